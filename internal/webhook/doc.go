// Package webhook implements the inbound custody event pipeline: HMAC
// signature verification, atomic event deduplication, routing into the
// processing queue, and the HTTP transport that ties them together.
//
// The upstream provider delivers events at-least-once. The pipeline gives
// downstream handlers at-most-once delivery per event id for the lifetime of
// the dedupe store; consumers should still be idempotent per event id as a
// defense-in-depth measure.
package webhook
