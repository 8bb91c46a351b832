package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetup_DisabledIsNoop(t *testing.T) {
	before := otel.GetTracerProvider()

	for _, tc := range []struct {
		endpoint string
		enabled  bool
	}{
		{"", true},
		{"http://localhost:4318", false},
	} {
		shutdown, err := Setup(context.Background(), "avamon", "test", tc.endpoint, tc.enabled)
		require.NoError(t, err)
		require.NoError(t, shutdown(context.Background()))
	}
	require.Equal(t, before, otel.GetTracerProvider())
}

func TestSetup_BadEndpoint(t *testing.T) {
	_, err := Setup(context.Background(), "avamon", "test", "://nope", true)
	require.Error(t, err)
}
