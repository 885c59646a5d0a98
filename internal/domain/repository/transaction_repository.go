package repository

import (
	"context"

	"github.com/wekeepgrowing/payment-reconciler/internal/domain/model"
)

// TransactionRepository is the append-only Transaction Ledger
type TransactionRepository interface {
	Create(ctx context.Context, tx *model.Transaction) error
	FindByID(ctx context.Context, id int64) (*model.Transaction, error)
	// FindLatestCapture returns the newest successful capture of an order
	FindLatestCapture(ctx context.Context, orderID int64) (*model.Transaction, error)
	ListBySession(ctx context.Context, sessionID string) ([]*model.Transaction, error)
	ListByOrder(ctx context.Context, orderID int64) ([]*model.Transaction, error)
	// SumRefunded totals successful refunds recorded against an order
	SumRefunded(ctx context.Context, orderID int64) (int64, error)
}
