package database

import (
	"github.com/wekeepgrowing/payment-reconciler/internal/adapter/repository"
	domainRepo "github.com/wekeepgrowing/payment-reconciler/internal/domain/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Repositories holds all repository instances
type Repositories struct {
	Sessions     domainRepo.PaymentSessionRepository
	Transactions domainRepo.TransactionRepository
	Webhooks     domainRepo.WebhookEventRepository
	Commerce     domainRepo.CommerceRepository
	Transactor   domainRepo.Transactor
}

// NewRepositories creates new repository instances with database connection
func NewRepositories(db *gorm.DB, logger *zap.Logger) *Repositories {
	return &Repositories{
		Sessions:     repository.NewPaymentSessionRepository(db, logger),
		Transactions: repository.NewTransactionRepository(db, logger),
		Webhooks:     repository.NewWebhookRepository(db, logger),
		Commerce:     repository.NewCommerceRepository(db, logger),
		Transactor:   repository.NewTransactor(db),
	}
}
