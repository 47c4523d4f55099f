package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTracerDisabledReturnsNoopShutdown(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), "cedrus-test", Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitTracerEnabledWithoutEndpointFallsBackToStdout(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), "cedrus-test", Config{Enabled: true})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}
