package telemetry

import (
	"context"
	"testing"

	"pulse/internal/config"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitTelemetry_Disabled(t *testing.T) {
	req := require.New(t)
	cfg := &config.Config{
		Service: &config.ServiceConfig{Name: "pulse-realtime", Env: "test"},
		Tracer:  &config.TracerConfig{Enabled: false},
	}

	shutdown, err := InitTelemetry(context.Background(), cfg)

	req.NoError(err)
	req.NoError(shutdown(context.Background()))
	req.ElementsMatch([]string{"traceparent", "tracestate", "baggage"}, otel.GetTextMapPropagator().Fields())
}

func TestInitTelemetry_Enabled(t *testing.T) {
	req := require.New(t)
	cfg := &config.Config{
		Service: &config.ServiceConfig{Name: "pulse-realtime", Env: "test"},
		Tracer:  &config.TracerConfig{Enabled: true, Address: "localhost:4317"},
	}

	// The gRPC exporter connects lazily, so no collector is needed here.
	shutdown, err := InitTelemetry(context.Background(), cfg)
	req.NoError(err)

	_, span := otel.Tracer("test").Start(context.Background(), "op")
	req.True(span.SpanContext().IsValid())
	span.End()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
}
