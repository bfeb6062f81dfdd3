package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("AUTH_JWT_SECRET", "secret")
	t.Setenv("PAYMENT_GATEWAY_URL", "https://gateway.example.com")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, defaultHTTPPort, cfg.HTTP.Port)
	assert.Equal(t, StoreBackendPostgres, cfg.Database.Backend)
	assert.Contains(t, cfg.Database.URL, "/shopdash?")
	assert.Equal(t, "shopdash", cfg.Auth.JWTIssuer)
	assert.Equal(t, 10*time.Second, cfg.Payment.GatewayTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Payment.ClaimTTL)
	assert.Equal(t, "release", cfg.Payment.TransientPolicy)
	assert.Equal(t, 24*time.Hour, cfg.Payment.ResponseRetention)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("STORE_BACKEND", "Memory")
	t.Setenv("PAYMENT_GATEWAY_TIMEOUT", "3s")
	t.Setenv("PAYMENT_CLAIM_TTL", "1m")
	t.Setenv("PAYMENT_TRANSIENT_POLICY", "RETAIN")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, ,kafka-2:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreBackendMemory, cfg.Database.Backend)
	assert.Equal(t, 3*time.Second, cfg.Payment.GatewayTimeout)
	assert.Equal(t, time.Minute, cfg.Payment.ClaimTTL)
	assert.Equal(t, "retain", cfg.Payment.TransientPolicy)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{name: "missing secret", env: map[string]string{"AUTH_JWT_SECRET": ""}, wantErr: "AUTH_JWT_SECRET is required"},
		{name: "missing gateway", env: map[string]string{"PAYMENT_GATEWAY_URL": ""}, wantErr: "PAYMENT_GATEWAY_URL is required"},
		{name: "bad duration", env: map[string]string{"PAYMENT_GATEWAY_TIMEOUT": "soon"}, wantErr: "invalid PAYMENT_GATEWAY_TIMEOUT"},
		{name: "claim shorter than timeout", env: map[string]string{"PAYMENT_GATEWAY_TIMEOUT": "30s", "PAYMENT_CLAIM_TTL": "10s"}, wantErr: "must exceed"},
		{name: "unknown policy", env: map[string]string{"PAYMENT_TRANSIENT_POLICY": "drop"}, wantErr: "PAYMENT_TRANSIENT_POLICY"},
		{name: "unknown backend", env: map[string]string{"STORE_BACKEND": "redis"}, wantErr: "invalid STORE_BACKEND"},
		{name: "bad port", env: map[string]string{"API_HTTP_PORT": "http"}, wantErr: "invalid API_HTTP_PORT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for key, value := range tt.env {
				t.Setenv(key, value)
			}

			_, err := Load()

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
