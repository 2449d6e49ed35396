package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" api-key = abc ,broken, =x,tenant=vault")
	require.Equal(t, map[string]string{"api-key": "abc", "tenant": "vault"}, headers)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	cfg := ConfigFromEnv("vaultd", "test")
	require.False(t, cfg.Traces)
	require.False(t, cfg.Metrics)

	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://collector:4318/")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "true")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "x-token=1")
	cfg = ConfigFromEnv("vaultd", "test")
	require.Equal(t, "collector:4318", cfg.Endpoint)
	require.True(t, cfg.Insecure)
	require.True(t, cfg.Traces)
	require.Equal(t, "1", cfg.Headers["x-token"])

	t.Setenv("OTEL_METRICS_EXPORTER", "None")
	cfg = ConfigFromEnv("vaultd", "test")
	require.True(t, cfg.Traces)
	require.False(t, cfg.Metrics)
}

func TestResourceAttributes(t *testing.T) {
	res, err := newResource(Config{ServiceName: "vaultd", Environment: "test"})
	require.NoError(t, err)
	name, ok := res.Set().Value(semconv.ServiceNameKey)
	require.True(t, ok)
	require.Equal(t, "vaultd", name.AsString())
	namespace, ok := res.Set().Value(semconv.ServiceNamespaceKey)
	require.True(t, ok)
	require.Equal(t, "intentvault", namespace.AsString())
	env, ok := res.Set().Value(semconv.DeploymentEnvironmentKey)
	require.True(t, ok)
	require.Equal(t, "test", env.AsString())
}

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "vaultd"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	_, err = Init(context.Background(), Config{})
	require.Error(t, err)
}
