package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/custodix/custos-oss/internal/governance"
	"github.com/custodix/custos-oss/pkg/domain"
)

// SignatureHeader is the HTTP header carrying the provider's signature.
const SignatureHeader = "X-Webhook-Signature"

// Verifier authenticates inbound webhook deliveries with an HMAC-SHA256 of
// the raw body keyed by the provisioned webhook secret. The provider-side
// reference scheme was a bare SHA-256 of the body, which anyone able to read
// the body can forge; the keyed HMAC closes that gap.
type Verifier struct {
	secret  []byte
	monitor *governance.SecurityMonitor
	logger  *slog.Logger
}

// NewVerifier builds a verifier for the given webhook secret.
func NewVerifier(secret string, monitor *governance.SecurityMonitor, logger *slog.Logger) *Verifier {
	return &Verifier{
		secret:  []byte(secret),
		monitor: monitor,
		logger:  logger.With("component", "webhook_verifier"),
	}
}

// Configured reports whether a non-empty secret is provisioned. Used by the
// admin health check.
func (v *Verifier) Configured() bool {
	return len(v.secret) > 0
}

// Sign computes the hex-encoded signature for a body. Shared with the
// operator CLI so test deliveries can be produced out of band.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks the signature header against the raw body. It returns nil on
// success and domain.ErrUnauthorized (or ErrMissingSignature) on failure;
// every failure records exactly one security event. The comparison is
// constant-time so verification leaks no timing information about where a
// mismatch occurs.
//
// An unprovisioned secret rejects every delivery: a keyless HMAC would be
// computable by anyone able to read the body.
func (v *Verifier) Verify(rawBody []byte, signatureHeader string) error {
	if len(v.secret) == 0 {
		v.monitor.Record("webhook secret not provisioned")
		return fmt.Errorf("%w: no webhook secret provisioned", domain.ErrUnauthorized)
	}

	if signatureHeader == "" {
		v.monitor.Record("webhook signature header missing")
		return domain.ErrMissingSignature
	}

	provided, err := hex.DecodeString(signatureHeader)
	if err != nil {
		v.monitor.Record("webhook signature not decodable")
		return fmt.Errorf("%w: malformed signature", domain.ErrUnauthorized)
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(rawBody)
	expected := mac.Sum(nil)

	// hmac.Equal is constant-time and rejects length mismatches without
	// revealing the expected length through timing.
	if !hmac.Equal(expected, provided) {
		v.monitor.Record("webhook signature mismatch")
		return fmt.Errorf("%w: signature mismatch", domain.ErrUnauthorized)
	}

	v.logger.Debug("webhook signature verified", "body_bytes", len(rawBody))
	return nil
}
