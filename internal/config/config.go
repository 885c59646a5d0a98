package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/wekeepgrowing/payment-reconciler/pkg/logger"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Service  ServiceConfig  `yaml:"service" envPrefix:"SERVICE_"`
	Database DatabaseConfig `yaml:"database" envPrefix:"DATABASE_"`
	Server   ServerConfig   `yaml:"server" envPrefix:"SERVER_"`
	Log      logger.Config  `yaml:"log" envPrefix:"LOG_"`
	JWT      JWTConfig      `yaml:"jwt" envPrefix:"JWT_"`
	Gateway  GatewayConfig  `yaml:"gateway" envPrefix:"GATEWAY_"`
	Checkout CheckoutConfig `yaml:"checkout" envPrefix:"CHECKOUT_"`
	Orders   OrdersConfig   `yaml:"orders" envPrefix:"ORDERS_"`
	Webhooks WebhooksConfig `yaml:"webhooks" envPrefix:"WEBHOOKS_"`
	Redis    RedisConfig    `yaml:"redis" envPrefix:"REDIS_"`
}

// LoadConfig reads the YAML file at CONFIG_PATH (default ./configs/payment.yaml),
// overlays environment variables (a .env file is loaded first when present),
// fills defaults and validates the result.
func LoadConfig() (*Config, error) {
	// .env is optional outside local development
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./configs/payment.yaml"
	}

	return LoadConfigFile(configPath)
}

// LoadConfigFile is LoadConfig for an explicit path.
func LoadConfigFile(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse builds a Config from raw YAML plus the process environment.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	cfg.applyDefaults()

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Service.Name == "" {
		c.Service.Name = "payment-reconciler"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Server.HTTP.Port == 0 {
		c.Server.HTTP.Port = 8080
	}
	if c.Server.GRPC.Port == 0 {
		c.Server.GRPC.Port = 9090
	}
	if c.Gateway.Driver == "" {
		c.Gateway.Driver = "stripe"
	}
	if c.Gateway.Timeout == 0 {
		c.Gateway.Timeout = 15 * time.Second
	}
	if c.Checkout.DefaultMethod == "" {
		c.Checkout.DefaultMethod = "embedded"
	}
	if c.Checkout.CaptureMethod == "" {
		c.Checkout.CaptureMethod = "automatic"
	}
	if c.Checkout.SuccessURL == "" {
		c.Checkout.SuccessURL = "/checkout/success"
	}
	if c.Checkout.CancelURL == "" {
		c.Checkout.CancelURL = "/checkout/cancel"
	}
	if c.Checkout.SessionExpiresIn == 0 {
		c.Checkout.SessionExpiresIn = time.Hour
	}
	if c.Webhooks.Scheme == "" {
		c.Webhooks.Scheme = "hmac"
	}
	if c.Redis.Channel == "" {
		c.Redis.Channel = "payments.events"
	}
	if c.Redis.LockTTL == 0 {
		c.Redis.LockTTL = 30 * time.Second
	}
}
