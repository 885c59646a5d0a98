package provider

import (
	"fmt"

	"github.com/wekeepgrowing/payment-reconciler/internal/config"
	"github.com/wekeepgrowing/payment-reconciler/internal/domain/provider"
	clerkProvider "github.com/wekeepgrowing/payment-reconciler/internal/infrastructure/provider/clerk"
	stripeProvider "github.com/wekeepgrowing/payment-reconciler/internal/infrastructure/provider/stripe"
	"go.uber.org/zap"
)

// Factory creates the payment gateway configured for this deployment
type Factory struct {
	config config.GatewayConfig
	logger *zap.Logger
}

// NewFactory creates a new provider factory
func NewFactory(config config.GatewayConfig, logger *zap.Logger) *Factory {
	return &Factory{
		config: config,
		logger: logger,
	}
}

// Gateway returns the gateway selected by the configured driver
func (f *Factory) Gateway() (provider.Gateway, error) {
	return f.GetProvider(provider.ProviderType(f.config.Driver))
}

// GetProvider returns a payment gateway based on the provider type
func (f *Factory) GetProvider(providerType provider.ProviderType) (provider.Gateway, error) {
	switch providerType {
	case provider.ProviderTypeStripe, "":
		return f.createStripeProvider()
	case provider.ProviderTypeClerk:
		return f.createClerkProvider()
	default:
		return nil, fmt.Errorf("unsupported provider type: %s", providerType)
	}
}

func (f *Factory) createStripeProvider() (provider.Gateway, error) {
	if f.config.SecretKey == "" {
		return nil, fmt.Errorf("Stripe secret key not configured")
	}

	return stripeProvider.NewStripeProvider(
		f.config.SecretKey,
		f.config.BaseURL,
		f.logger,
	), nil
}

func (f *Factory) createClerkProvider() (provider.Gateway, error) {
	if f.config.SecretKey == "" {
		return nil, fmt.Errorf("clerk secret key not configured")
	}
	if f.config.BaseURL == "" {
		return nil, fmt.Errorf("clerk base URL not configured")
	}

	return clerkProvider.NewClerkProvider(
		f.config.SecretKey,
		f.config.BaseURL,
		clerkProvider.Options{
			Timeout:   f.config.Timeout,
			RateLimit: f.config.RateLimit,
			Burst:     f.config.Burst,
		},
		f.logger,
	), nil
}
