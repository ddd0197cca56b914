// Package admin exposes the operational surface of the gateway: health
// checks, circuit breaker state, recent security events, and the Prometheus
// scrape endpoint. It is served on a separate listener from the webhook
// ingress so that operational traffic never competes with event delivery.
package admin
