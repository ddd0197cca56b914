package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidEnvelope is returned when an inbound webhook body cannot be
// decoded into a usable envelope.
var ErrInvalidEnvelope = errors.New("invalid webhook envelope")

// Envelope is a single webhook delivery from the custody provider. The same
// ID may be redelivered (at-least-once upstream delivery); deduplication is
// the responsibility of the webhook router, not the envelope.
type Envelope struct {
	// ID is the provider-assigned unique event identifier.
	ID string `json:"id"`
	// Type is the event category, e.g. "transaction.completed".
	Type string `json:"type"`
	// CreatedAt is the provider-side creation timestamp, if present.
	CreatedAt time.Time `json:"createdAt,omitzero"`
	// Payload is the event body, opaque to the pipeline.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DecodeEnvelope parses a raw webhook body. The ID and Type fields are
// mandatory; everything else is passed through untouched.
func DecodeEnvelope(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if env.ID == "" {
		return Envelope{}, fmt.Errorf("%w: missing event id", ErrInvalidEnvelope)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing event type", ErrInvalidEnvelope)
	}
	return env, nil
}
