package app

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wekeepgrowing/payment-reconciler/internal/config"
	"github.com/wekeepgrowing/payment-reconciler/internal/infrastructure/events"
	"github.com/wekeepgrowing/payment-reconciler/internal/infrastructure/lock"
	"go.uber.org/zap"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Database: config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "app.db")},
		Gateway:  config.GatewayConfig{Driver: "stripe", SecretKey: "sk_test_app"},
		Checkout: config.CheckoutConfig{DefaultMethod: "hosted", CaptureMethod: "automatic"},
		Webhooks: config.WebhooksConfig{Scheme: "hmac", Secret: "whsec_app"},
	}
}

func TestNew_InProcessCoordination(t *testing.T) {
	c, err := New(testConfig(t), zap.NewNop(), true)
	require.NoError(t, err)
	defer c.Close()

	assert.IsType(t, &lock.LocalLocker{}, c.Locker)
	assert.IsType(t, &events.LogPublisher{}, c.Publisher)
	assert.Nil(t, c.Redis)
	assert.NotNil(t, c.Orchestrator)
	assert.NotNil(t, c.Processor)
	assert.NotNil(t, c.Ingestor)
}

func TestNew_RejectsMissingWebhookSecret(t *testing.T) {
	cfg := testConfig(t)
	cfg.Webhooks.Secret = ""

	_, err := New(cfg, zap.NewNop(), false)
	assert.Error(t, err)
}

func TestNew_RejectsUnconfiguredGateway(t *testing.T) {
	cfg := testConfig(t)
	cfg.Gateway = config.GatewayConfig{Driver: "clerk", SecretKey: "ck_test"}

	_, err := New(cfg, zap.NewNop(), false)
	assert.Error(t, err)
}
