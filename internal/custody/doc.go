// Package custody integrates with the third-party wallet-custody provider:
// validated client credentials, a thin HTTP client, defensive classification
// of provider failures into domain outcomes, and the circuit-breaker-gated
// transfer submission service.
package custody
