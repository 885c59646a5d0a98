package database

import (
	"github.com/wekeepgrowing/payment-reconciler/internal/domain/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Models lists every table owned by the service
func Models() []interface{} {
	return []interface{}{
		&model.PaymentSession{},
		&model.Transaction{},
		&model.WebhookEvent{},
		&model.Cart{},
		&model.Order{},
	}
}

// Migrate runs database migrations
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	logger.Info("Running database migrations...")

	if err := db.AutoMigrate(Models()...); err != nil {
		logger.Error("Failed to run migrations", zap.Error(err))
		return err
	}
	logger.Info("GORM auto-migrations completed successfully")

	if err := createCustomIndexes(db); err != nil {
		logger.Error("Failed to create custom indexes", zap.Error(err))
		return err
	}

	logger.Info("Database migrations completed successfully")
	return nil
}

// createCustomIndexes creates indexes GORM doesn't handle automatically
func createCustomIndexes(db *gorm.DB) error {
	// MySQL has no partial indexes; the plain status index covers it there
	if db.Dialector.Name() == "mysql" {
		return nil
	}

	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_webhook_events_pending ON webhook_events (created_at) WHERE status IN ('received', 'failed')`).Error; err != nil {
		return err
	}

	return db.Exec(`CREATE INDEX IF NOT EXISTS idx_payment_transactions_captures ON payment_transactions (order_id, created_at) WHERE type = 'capture' AND success`).Error
}
