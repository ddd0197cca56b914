package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	//nolint:staticcheck // OPA v1 migration pending
	"github.com/open-policy-agent/opa/ast"
	//nolint:staticcheck // OPA v1 migration pending
	"github.com/open-policy-agent/opa/rego"

	"github.com/custodix/custos-oss/pkg/domain"
)

const (
	defaultEntrypoint = "custody/preflight/deny"

	// defaultModule carries the built-in transfer rules. Operators can
	// replace or extend these via configuration.
	defaultModule = `package custody.preflight

deny contains msg if {
	count(input.constraints.allowed_assets) > 0
	not input.transfer.assetId in input.constraints.allowed_assets
	msg := sprintf("asset %s is not allow-listed", [input.transfer.assetId])
}

deny contains msg if {
	input.constraints.max_amount > 0
	to_number(input.transfer.amount) > input.constraints.max_amount
	msg := sprintf("amount %s exceeds the transfer ceiling", [input.transfer.amount])
}

deny contains msg if {
	input.transfer.source == input.transfer.destination
	msg := "source and destination must differ"
}
`
)

// Constraints parameterize the built-in rules.
type Constraints struct {
	// AllowedAssets restricts transfers to the listed asset ids. Empty
	// means no restriction.
	AllowedAssets []string
	// MaxAmount caps a single transfer. Zero means no ceiling.
	MaxAmount float64
}

// EngineOptions control preflight engine construction.
type EngineOptions struct {
	// Entrypoint is the deny-set decision path. Defaults to
	// "custody/preflight/deny".
	Entrypoint string
	// Modules maps module names to Rego source. When empty the built-in
	// rules are loaded.
	Modules map[string]string
	// Constraints feed the built-in rules as evaluation input.
	Constraints Constraints
}

// PreflightEngine evaluates transfer commands against Rego rules.
type PreflightEngine struct {
	entrypoint  string
	constraints Constraints

	mu       sync.RWMutex
	prepared *rego.PreparedEvalQuery
	modules  map[string]*ast.Module
	order    []string
}

// NewPreflightEngine parses the configured modules and prepares the deny
// query eagerly so malformed rules fail at startup, not per transfer.
func NewPreflightEngine(ctx context.Context, opts EngineOptions) (*PreflightEngine, error) {
	entry := strings.TrimSpace(opts.Entrypoint)
	if entry == "" {
		entry = defaultEntrypoint
	}

	sources := opts.Modules
	if len(sources) == 0 {
		sources = map[string]string{"custody_preflight.rego": defaultModule}
	}

	order := make([]string, 0, len(sources))
	for name := range sources {
		order = append(order, name)
	}
	sort.Strings(order)

	parsed := make(map[string]*ast.Module, len(sources))
	for _, name := range order {
		module, err := ast.ParseModuleWithOpts(name, sources[name], ast.ParserOptions{RegoVersion: ast.RegoV1})
		if err != nil {
			return nil, fmt.Errorf("parse rego module %q: %w", name, err)
		}
		parsed[name] = module
	}

	e := &PreflightEngine{
		entrypoint:  entry,
		constraints: opts.Constraints,
		modules:     parsed,
		order:       order,
	}

	if err := e.prepare(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *PreflightEngine) prepare(ctx context.Context) error {
	query := "data." + strings.ReplaceAll(e.entrypoint, "/", ".")

	regoOpts := make([]func(*rego.Rego), 0, len(e.order)+1)
	regoOpts = append(regoOpts, rego.Query(query))
	for _, name := range e.order {
		regoOpts = append(regoOpts, rego.ParsedModule(e.modules[name]))
	}

	prepared, err := rego.New(regoOpts...).PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("prepare preflight query: %w", err)
	}

	e.mu.Lock()
	e.prepared = &prepared
	e.mu.Unlock()
	return nil
}

// Evaluate runs the deny rules against the command. A non-empty deny set
// yields a domain.ErrPreflightRejected-wrapped error listing every reason.
func (e *PreflightEngine) Evaluate(ctx context.Context, cmd domain.TransferCommand) error {
	payload := map[string]any{
		"transfer": map[string]any{
			"source":       cmd.Source,
			"destination":  cmd.Destination,
			"assetId":      cmd.AssetID,
			"amount":       cmd.Amount,
			"externalTxId": cmd.ExternalTxID,
		},
		"constraints": map[string]any{
			"allowed_assets": e.constraints.AllowedAssets,
			"max_amount":     e.constraints.MaxAmount,
		},
	}

	e.mu.RLock()
	prepared := e.prepared
	e.mu.RUnlock()

	results, err := prepared.Eval(ctx, rego.EvalInput(payload))
	if err != nil {
		return fmt.Errorf("preflight evaluation: %w", err)
	}

	reasons := denyReasons(results)
	if len(reasons) == 0 {
		return nil
	}

	return &domain.DomainError{
		Err:     domain.ErrPreflightRejected,
		Code:    "PREFLIGHT_REJECTED",
		Message: strings.Join(reasons, "; "),
		Details: map[string]any{"reasons": reasons},
	}
}

func denyReasons(results rego.ResultSet) []string {
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return nil
	}

	raw, ok := results[0].Expressions[0].Value.([]any)
	if !ok {
		return nil
	}

	reasons := make([]string, 0, len(raw))
	for _, item := range raw {
		if msg, ok := item.(string); ok {
			reasons = append(reasons, msg)
		}
	}
	sort.Strings(reasons)
	return reasons
}
