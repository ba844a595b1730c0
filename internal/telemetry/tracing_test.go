package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSetupTracingDisabled(t *testing.T) {
	for _, exporter := range []string{"", "none", " NONE "} {
		shutdown, err := SetupTracing(context.Background(), TraceConfig{Exporter: exporter}, zap.NewNop())
		require.NoError(t, err, "exporter %q", exporter)
		assert.NoError(t, shutdown(context.Background()))
	}
}

func TestSetupTracingRejectsBadConfig(t *testing.T) {
	_, err := SetupTracing(context.Background(), TraceConfig{Exporter: "zipkin"}, nil)
	assert.ErrorContains(t, err, "unsupported trace exporter")

	_, err = SetupTracing(context.Background(), TraceConfig{Exporter: "otlp"}, nil)
	assert.ErrorContains(t, err, "OTEL_EXPORTER_OTLP_ENDPOINT")
}
