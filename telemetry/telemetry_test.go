package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/amp-labs/amp-fsm/envutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestLoadConfigFromEnv_Endpoints(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		env          []string
		wantEndpoint string
		wantLogs     string
	}{
		{
			name:         "kubernetes detected",
			env:          []string{"KUBERNETES_SERVICE_HOST", "10.0.0.1"},
			wantEndpoint: kubernetesCollector,
			wantLogs:     kubernetesCollector,
		},
		{
			name: "outside kubernetes",
		},
		{
			name: "custom endpoint overrides kubernetes default",
			env: []string{
				"KUBERNETES_SERVICE_HOST", "10.0.0.1",
				"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", "http://custom-collector:4318",
			},
			wantEndpoint: "http://custom-collector:4318",
			wantLogs:     "http://custom-collector:4318",
		},
		{
			name: "separate logs endpoint",
			env: []string{
				"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", "http://traces:4318",
				"OTEL_EXPORTER_OTLP_LOGS_ENDPOINT", "http://logs:4318",
			},
			wantEndpoint: "http://traces:4318",
			wantLogs:     "http://logs:4318",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			config, err := LoadConfigFromEnv(withEnvDefaults(tt.env...), "dev")
			require.NoError(t, err)
			assert.Equal(t, tt.wantEndpoint, config.Endpoint)
			assert.Equal(t, tt.wantLogs, config.LogsEndpoint)
		})
	}
}

// withEnvDefaults sets only the given variables, leaving the rest to the
// host environment minus Kubernetes detection.
func withEnvDefaults(kv ...string) context.Context {
	ctx := envutil.WithEnvOverride(context.Background(), "KUBERNETES_SERVICE_HOST", "")

	for i := 0; i+1 < len(kv); i += 2 {
		ctx = envutil.WithEnvOverride(ctx, kv[i], kv[i+1])
	}

	return ctx
}

func TestLoadConfigFromEnv_Values(t *testing.T) {
	t.Parallel()

	ctx := withEnvDefaults(
		"OTEL_ENABLED", "true",
		"OTEL_LOGS_ENABLED", "1",
		"OTEL_SERVICE_NAME", "fsmctl",
		"OTEL_SERVICE_VERSION", "2.1.0",
		"OTEL_EXPORTER_OTLP_TRACES_TIMEOUT", "2s",
	)

	config, err := LoadConfigFromEnv(ctx, "test")
	require.NoError(t, err)

	assert.True(t, config.Enabled)
	assert.True(t, config.LogsEnabled)
	assert.Equal(t, "fsmctl", config.ServiceName)
	assert.Equal(t, "2.1.0", config.ServiceVersion)
	assert.Equal(t, "test", config.Environment)
	assert.Equal(t, 2*time.Second, config.Timeout)
}

func TestLoadConfigFromEnv_BadTimeout(t *testing.T) {
	t.Parallel()

	_, err := LoadConfigFromEnv(withEnvDefaults("OTEL_EXPORTER_OTLP_TRACES_TIMEOUT", "soon"), "test")
	require.ErrorIs(t, err, envutil.ErrBadEnvVar)
}

// TestInitialize installs global providers.
//
//nolint:paralleltest // Test modifies global OTEL providers
func TestInitialize(t *testing.T) {
	ctx := context.Background()

	require.NoError(t, Initialize(ctx, &Config{Enabled: false}))
	assert.Nil(t, LogHandler("fsm"))

	require.NoError(t, Initialize(ctx, &Config{Enabled: true}))
	assert.Nil(t, LogHandler("fsm"), "no endpoint means no export")

	old := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(old) })

	err := Initialize(ctx, &Config{
		ServiceName:  "fsmctl",
		Environment:  "test",
		Endpoint:     "http://127.0.0.1:4318",
		LogsEndpoint: "http://127.0.0.1:4318",
		Enabled:      true,
		LogsEnabled:  true,
		Timeout:      time.Second,
	})
	require.NoError(t, err)
	assert.NotNil(t, LogHandler("fsm"))

	shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	require.NoError(t, Shutdown(shutdownCtx))
	assert.Nil(t, LogHandler("fsm"))
	require.NoError(t, Shutdown(shutdownCtx), "second shutdown is a no-op")
}
