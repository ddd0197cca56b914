package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupProviderNoEndpoint(t *testing.T) {
	shutdown, err := SetupProvider(context.Background(), Config{
		ServiceName: "custos-test",
	})
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	assert.NoError(t, shutdown(context.Background()))
}
