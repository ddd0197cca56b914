// Package governance coordinates runtime safety controls for the custody
// integration: outcome-driven circuit breaking, retry backoff, inbound
// webhook rate limiting, and security-event auditing.
//
// The policy primitives here are pure logic plus logging; they perform no
// I/O of their own and are safe to call from any error-handling path. The
// webhook and custody layers depend on these primitives to protect the
// upstream provider without introducing extra infrastructure coupling.
package governance
