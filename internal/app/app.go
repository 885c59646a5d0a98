// Package app assembles the reconciler's components from configuration.
package app

import (
	"fmt"

	"github.com/wekeepgrowing/payment-reconciler/internal/config"
	"github.com/wekeepgrowing/payment-reconciler/internal/domain/model"
	"github.com/wekeepgrowing/payment-reconciler/internal/infrastructure/database"
	"github.com/wekeepgrowing/payment-reconciler/internal/infrastructure/events"
	"github.com/wekeepgrowing/payment-reconciler/internal/infrastructure/lock"
	"github.com/wekeepgrowing/payment-reconciler/internal/infrastructure/provider"
	"github.com/wekeepgrowing/payment-reconciler/internal/infrastructure/signature"
	"github.com/wekeepgrowing/payment-reconciler/internal/usecase"
	"github.com/wekeepgrowing/payment-reconciler/pkg/messaging"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Container struct {
	DB           *gorm.DB
	Repos        *database.Repositories
	Redis        messaging.RedisClient
	Locker       usecase.Locker
	Publisher    usecase.EventPublisher
	Orchestrator *usecase.SessionOrchestrator
	Processor    *usecase.EventProcessor
	Ingestor     *usecase.WebhookIngestor

	logger *zap.Logger
}

// New connects to the database (migrating when asked), picks Redis or
// in-process coordination and builds the use cases on top.
func New(cfg *config.Config, log *zap.Logger, migrate bool) (*Container, error) {
	db, err := database.NewConnection(&cfg.Database, log)
	if err != nil {
		return nil, err
	}

	c := &Container{DB: db, logger: log}

	if migrate {
		if err := database.Migrate(db, log); err != nil {
			c.Close()
			return nil, err
		}
	}

	c.Repos = database.NewRepositories(db, log)

	if cfg.Redis.Enabled {
		client, err := messaging.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.Redis = client
		c.Locker = lock.NewRedisLocker(client, cfg.Redis.LockTTL, log)
		c.Publisher = events.NewRedisPublisher(client, cfg.Redis.Channel, log)
	} else {
		log.Info("Redis disabled, using in-process locks and log publisher")
		c.Locker = lock.NewLocalLocker()
		c.Publisher = events.NewLogPublisher(log)
	}

	gateway, err := provider.NewFactory(cfg.Gateway, log).Gateway()
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}

	verifier, err := signature.NewVerifier(cfg.Webhooks.Scheme, cfg.Webhooks.Secret, cfg.Webhooks.Tolerance, log)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create signature verifier: %w", err)
	}

	c.Orchestrator = usecase.NewSessionOrchestrator(
		c.Repos.Sessions, c.Repos.Transactions, c.Repos.Commerce, c.Repos.Transactor,
		gateway, c.Locker,
		usecase.OrchestratorConfig{
			DefaultMethod:  model.PaymentMethod(cfg.Checkout.DefaultMethod),
			CaptureMethod:  cfg.Checkout.CaptureMethod,
			SuccessURL:     cfg.Checkout.SuccessURL,
			CancelURL:      cfg.Checkout.CancelURL,
			SessionTTL:     cfg.Checkout.SessionExpiresIn,
			GatewayTimeout: cfg.Gateway.Timeout,
			AutoFulfill:    cfg.Orders.AutoFulfill,
		},
		log,
	)
	c.Processor = usecase.NewEventProcessor(
		c.Repos.Sessions, c.Repos.Transactions, c.Repos.Commerce, c.Repos.Transactor,
		c.Orchestrator, c.Locker, c.Publisher, log,
	)
	c.Ingestor = usecase.NewWebhookIngestor(c.Repos.Webhooks, c.Processor, verifier, c.Locker, log)

	return c, nil
}

func (c *Container) Close() {
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.logger.Error("Failed to close Redis client", zap.Error(err))
		}
	}
	if err := database.Close(c.DB, c.logger); err != nil {
		c.logger.Error("Failed to close database connection", zap.Error(err))
	}
}
