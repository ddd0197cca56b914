package custody

import (
	"fmt"
	"strings"
	"time"

	"github.com/custodix/custos-oss/pkg/domain"
)

// Environment selects which provider deployment the client talks to.
type Environment string

const (
	// EnvironmentSandbox targets the provider's test deployment.
	EnvironmentSandbox Environment = "sandbox"
	// EnvironmentProduction targets the live deployment.
	EnvironmentProduction Environment = "production"
)

// ClientOptions holds validated custody-API credentials and environment.
// The struct is immutable after construction: consumers receive copies and
// credentials are not rotated at runtime (a restart picks up new values).
type ClientOptions struct {
	Enabled   bool
	APIKey    string
	SecretKey string
	BasePath  string
	// WebhookSecret keys the HMAC used to authenticate inbound webhooks.
	WebhookSecret string
	Environment   Environment
	// RequestTimeout bounds each outbound call to the provider.
	RequestTimeout time.Duration
}

// OptionsProvider owns the client options and exposes them read-only.
type OptionsProvider struct {
	opts ClientOptions
}

// NewOptionsProvider validates the supplied options and fails fast when
// required credentials are absent.
func NewOptionsProvider(opts ClientOptions) (*OptionsProvider, error) {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.Environment == "" {
		opts.Environment = EnvironmentSandbox
	}

	if opts.Enabled {
		if strings.TrimSpace(opts.APIKey) == "" {
			return nil, fmt.Errorf("%w: custody api key is required", domain.ErrConfigInvalid)
		}
		if strings.TrimSpace(opts.SecretKey) == "" {
			return nil, fmt.Errorf("%w: custody secret key is required", domain.ErrConfigInvalid)
		}
		if strings.TrimSpace(opts.BasePath) == "" {
			return nil, fmt.Errorf("%w: custody base path is required", domain.ErrConfigInvalid)
		}
		if strings.TrimSpace(opts.WebhookSecret) == "" {
			return nil, fmt.Errorf("%w: custody webhook secret is required", domain.ErrConfigInvalid)
		}
	}
	if opts.Environment != EnvironmentSandbox && opts.Environment != EnvironmentProduction {
		return nil, fmt.Errorf("%w: unknown custody environment %q", domain.ErrConfigInvalid, opts.Environment)
	}

	return &OptionsProvider{opts: opts}, nil
}

// Options returns a snapshot of the validated options.
func (p *OptionsProvider) Options() ClientOptions {
	return p.opts
}
