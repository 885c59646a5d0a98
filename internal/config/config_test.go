package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_AppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("webhooks:\n  secret: whsec\n"))
	require.NoError(t, err)

	assert.Equal(t, "payment-reconciler", cfg.Service.Name)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 8080, cfg.Server.HTTP.Port)
	assert.Equal(t, 9090, cfg.Server.GRPC.Port)
	assert.Equal(t, "stripe", cfg.Gateway.Driver)
	assert.Equal(t, 15*time.Second, cfg.Gateway.Timeout)
	assert.Equal(t, "embedded", cfg.Checkout.DefaultMethod)
	assert.Equal(t, time.Hour, cfg.Checkout.SessionExpiresIn)
	assert.Equal(t, "hmac", cfg.Webhooks.Scheme)
	assert.Equal(t, "payments.events", cfg.Redis.Channel)
	assert.Equal(t, 30*time.Second, cfg.Redis.LockTTL)
}

func TestParse_EnvironmentOverridesFile(t *testing.T) {
	t.Setenv("GATEWAY_SECRET_KEY", "sk_from_env")
	t.Setenv("SERVER_HTTP_PORT", "9999")

	cfg, err := Parse([]byte("gateway:\n  secret_key: sk_from_file\nserver:\n  http:\n    port: 8081\n"))
	require.NoError(t, err)

	assert.Equal(t, "sk_from_env", cfg.Gateway.SecretKey)
	assert.Equal(t, 9999, cfg.Server.HTTP.Port)
}

func TestParse_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown gateway", "gateway:\n  driver: paypal\n"},
		{"unknown database driver", "database:\n  driver: oracle\n"},
		{"unknown checkout method", "checkout:\n  default_method: popup\n"},
		{"redis enabled without addr", "redis:\n  enabled: true\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payment.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  driver: sqlite\n  path: /tmp/x.db\n"), 0o600))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/tmp/x.db", cfg.Database.DSN())

	_, err = LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
