package config

import "time"

type ServiceConfig struct {
	Name        string `yaml:"name" env:"NAME"`
	Environment string `yaml:"environment" env:"ENVIRONMENT"`
	Version     string `yaml:"version" env:"VERSION"`
}

type JWTConfig struct {
	Secret string `yaml:"secret" env:"SECRET"`
}

// GatewayConfig selects and configures the payment gateway adapter.
type GatewayConfig struct {
	Driver    string        `yaml:"driver" env:"DRIVER" validate:"oneof=stripe clerk"`
	SecretKey string        `yaml:"secret_key" env:"SECRET_KEY"`
	BaseURL   string        `yaml:"base_url" env:"BASE_URL"`
	Timeout   time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// Outbound request budget for the clerk REST client
	RateLimit float64 `yaml:"rate_limit" env:"RATE_LIMIT"`
	Burst     int     `yaml:"burst" env:"BURST"`
}

type CheckoutConfig struct {
	DefaultMethod    string        `yaml:"default_method" env:"DEFAULT_METHOD" validate:"oneof=hosted embedded"`
	CaptureMethod    string        `yaml:"capture_method" env:"CAPTURE_METHOD" validate:"oneof=automatic manual"`
	SuccessURL       string        `yaml:"success_url" env:"SUCCESS_URL"`
	CancelURL        string        `yaml:"cancel_url" env:"CANCEL_URL"`
	CartURL          string        `yaml:"cart_url" env:"CART_URL"`
	OrderURL         string        `yaml:"order_url" env:"ORDER_URL"`
	SessionExpiresIn time.Duration `yaml:"session_expires_in" env:"SESSION_EXPIRES_IN"`
}

type OrdersConfig struct {
	AutoFulfill bool `yaml:"auto_fulfill" env:"AUTO_FULFILL"`
}

type WebhooksConfig struct {
	// Scheme is hmac (X-Prahsys-Signature) or stripe (Stripe-Signature)
	Scheme        string        `yaml:"scheme" env:"SCHEME" validate:"oneof=hmac stripe"`
	Secret        string        `yaml:"secret" env:"SECRET"`
	Tolerance     time.Duration `yaml:"tolerance" env:"TOLERANCE"`
	LegacyEnabled bool          `yaml:"legacy_enabled" env:"LEGACY_ENABLED"`
	RateLimit     float64       `yaml:"rate_limit" env:"RATE_LIMIT"`
	Burst         int           `yaml:"burst" env:"BURST"`
}

type RedisConfig struct {
	Enabled  bool          `yaml:"enabled" env:"ENABLED"`
	Addr     string        `yaml:"addr" env:"ADDR" validate:"required_if=Enabled true"`
	Password string        `yaml:"password" env:"PASSWORD"`
	DB       int           `yaml:"db" env:"DB"`
	Channel  string        `yaml:"channel" env:"CHANNEL"`
	LockTTL  time.Duration `yaml:"lock_ttl" env:"LOCK_TTL"`
}
