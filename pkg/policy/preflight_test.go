package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodix/custos-oss/pkg/domain"
)

func newEngine(t *testing.T, constraints Constraints) *PreflightEngine {
	t.Helper()
	engine, err := NewPreflightEngine(context.Background(), EngineOptions{Constraints: constraints})
	require.NoError(t, err)
	return engine
}

func transfer(asset, amount string) domain.TransferCommand {
	return domain.TransferCommand{
		Source:       "vault-1",
		Destination:  "vault-2",
		AssetID:      asset,
		Amount:       amount,
		ExternalTxID: "ext-1",
	}
}

func TestEvaluateAllowsUnconstrained(t *testing.T) {
	engine := newEngine(t, Constraints{})
	assert.NoError(t, engine.Evaluate(context.Background(), transfer("ETH", "100")))
}

func TestEvaluateAssetAllowList(t *testing.T) {
	engine := newEngine(t, Constraints{AllowedAssets: []string{"ETH", "USDC"}})
	ctx := context.Background()

	assert.NoError(t, engine.Evaluate(ctx, transfer("ETH", "1")))

	err := engine.Evaluate(ctx, transfer("DOGE", "1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPreflightRejected))
	assert.Contains(t, err.Error(), "DOGE")
}

func TestEvaluateAmountCeiling(t *testing.T) {
	engine := newEngine(t, Constraints{MaxAmount: 10})
	ctx := context.Background()

	assert.NoError(t, engine.Evaluate(ctx, transfer("ETH", "10")))

	err := engine.Evaluate(ctx, transfer("ETH", "10.5"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPreflightRejected))
}

func TestEvaluateSelfTransferDenied(t *testing.T) {
	engine := newEngine(t, Constraints{})

	cmd := transfer("ETH", "1")
	cmd.Destination = cmd.Source

	err := engine.Evaluate(context.Background(), cmd)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPreflightRejected))
}

// Multiple violations are reported together so callers see every reason at
// once.
func TestEvaluateCollectsAllReasons(t *testing.T) {
	engine := newEngine(t, Constraints{AllowedAssets: []string{"ETH"}, MaxAmount: 1})

	cmd := transfer("DOGE", "100")
	cmd.Destination = cmd.Source

	err := engine.Evaluate(context.Background(), cmd)
	require.Error(t, err)

	var derr *domain.DomainError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, "PREFLIGHT_REJECTED", derr.Code)

	reasons, ok := derr.Details["reasons"].([]string)
	require.True(t, ok)
	assert.Len(t, reasons, 3)
}

func TestNewPreflightEngineCustomModule(t *testing.T) {
	engine, err := NewPreflightEngine(context.Background(), EngineOptions{
		Modules: map[string]string{
			"custom.rego": `package custody.preflight

deny contains msg if {
	input.transfer.assetId == "FORBIDDEN"
	msg := "asset is forbidden"
}
`,
		},
	})
	require.NoError(t, err)

	assert.NoError(t, engine.Evaluate(context.Background(), transfer("ETH", "1")))
	assert.Error(t, engine.Evaluate(context.Background(), transfer("FORBIDDEN", "1")))
}

func TestNewPreflightEngineMalformedModuleFailsFast(t *testing.T) {
	_, err := NewPreflightEngine(context.Background(), EngineOptions{
		Modules: map[string]string{"bad.rego": `package custody.preflight

deny contains {`},
	})
	assert.Error(t, err)
}
