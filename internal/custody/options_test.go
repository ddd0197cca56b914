package custody

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodix/custos-oss/pkg/domain"
)

func validOptions() ClientOptions {
	return ClientOptions{
		Enabled:        true,
		APIKey:         "api-key",
		SecretKey:      "secret-key",
		BasePath:       "https://sandbox.example.com",
		WebhookSecret:  "webhook-secret",
		Environment:    EnvironmentSandbox,
		RequestTimeout: 5 * time.Second,
	}
}

func TestNewOptionsProviderValid(t *testing.T) {
	provider, err := NewOptionsProvider(validOptions())
	require.NoError(t, err)

	opts := provider.Options()
	assert.Equal(t, "api-key", opts.APIKey)
	assert.Equal(t, EnvironmentSandbox, opts.Environment)
}

func TestNewOptionsProviderDefaults(t *testing.T) {
	provider, err := NewOptionsProvider(ClientOptions{})
	require.NoError(t, err)

	opts := provider.Options()
	assert.Equal(t, 30*time.Second, opts.RequestTimeout)
	assert.Equal(t, EnvironmentSandbox, opts.Environment)
}

func TestNewOptionsProviderMissingCredentials(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ClientOptions)
	}{
		{"missing api key", func(o *ClientOptions) { o.APIKey = "" }},
		{"missing secret key", func(o *ClientOptions) { o.SecretKey = "  " }},
		{"missing base path", func(o *ClientOptions) { o.BasePath = "" }},
		{"missing webhook secret", func(o *ClientOptions) { o.WebhookSecret = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := validOptions()
			tt.mutate(&opts)

			_, err := NewOptionsProvider(opts)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrConfigInvalid))
		})
	}
}

// Credentials are only validated when the integration is enabled; a disabled
// provider may be constructed empty.
func TestNewOptionsProviderDisabledSkipsCredentialChecks(t *testing.T) {
	opts := validOptions()
	opts.Enabled = false
	opts.APIKey = ""
	opts.SecretKey = ""

	_, err := NewOptionsProvider(opts)
	assert.NoError(t, err)
}

func TestNewOptionsProviderUnknownEnvironment(t *testing.T) {
	opts := validOptions()
	opts.Environment = "staging"

	_, err := NewOptionsProvider(opts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConfigInvalid))
}

// Options returns a copy: mutating the snapshot must not leak back into the
// provider.
func TestOptionsSnapshotIsImmutable(t *testing.T) {
	provider, err := NewOptionsProvider(validOptions())
	require.NoError(t, err)

	snapshot := provider.Options()
	snapshot.APIKey = "tampered"

	assert.Equal(t, "api-key", provider.Options().APIKey)
}
