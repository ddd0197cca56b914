package domain

import (
	"fmt"
	"math/big"
	"strings"
)

// TransferCommand describes one custodial transfer to be submitted to the
// provider. The command is caller-constructed and never mutated by the
// pipeline; the provider owns the resulting transaction state.
type TransferCommand struct {
	// Source and Destination are provider vault/wallet identifiers.
	Source      string `json:"source"`
	Destination string `json:"destination"`
	// AssetID names the asset being moved, e.g. "ETH" or "USDC_POLYGON".
	AssetID string `json:"assetId"`
	// Amount is a string-encoded decimal to avoid float precision loss.
	Amount string `json:"amount"`
	// ExternalTxID is the idempotency key expected by the provider. It must
	// be passed through unchanged on retries so repeated submissions of the
	// same logical transfer collapse into one upstream effect.
	ExternalTxID string `json:"externalTxId"`
	// Note is an optional free-form annotation.
	Note string `json:"note,omitempty"`
}

// Validate checks the structural invariants of the command. Business-level
// rules (asset allow-lists, amount ceilings) live in the preflight policy.
func (c TransferCommand) Validate() error {
	if strings.TrimSpace(c.Source) == "" {
		return fmt.Errorf("transfer command: source is required")
	}
	if strings.TrimSpace(c.Destination) == "" {
		return fmt.Errorf("transfer command: destination is required")
	}
	if strings.TrimSpace(c.AssetID) == "" {
		return fmt.Errorf("transfer command: assetId is required")
	}
	if strings.TrimSpace(c.ExternalTxID) == "" {
		return fmt.Errorf("transfer command: externalTxId is required")
	}
	amount, ok := new(big.Rat).SetString(c.Amount)
	if !ok {
		return fmt.Errorf("transfer command: amount %q is not a decimal", c.Amount)
	}
	if amount.Sign() <= 0 {
		return fmt.Errorf("transfer command: amount must be positive, got %q", c.Amount)
	}
	return nil
}

// TransferReceipt is the provider's acknowledgement of a submitted transfer.
type TransferReceipt struct {
	// TxID is the provider-assigned transaction identifier.
	TxID string `json:"txId"`
	// Status is the provider's reported status at submission time.
	Status string `json:"status"`
	// PendingPolicy is true when the provider accepted the transfer but is
	// holding it for policy authorization. Callers must treat this as a
	// distinct non-error state, not a failure.
	PendingPolicy bool `json:"pendingPolicy"`
}
