package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/wekeepgrowing/payment-reconciler/internal/domain/model"
	domainRepo "github.com/wekeepgrowing/payment-reconciler/internal/domain/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type transactionRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewTransactionRepository creates a new ledger repository. Rows are never
// updated or deleted through it.
func NewTransactionRepository(db *gorm.DB, logger *zap.Logger) domainRepo.TransactionRepository {
	return &transactionRepository{
		db:     db,
		logger: logger,
	}
}

func (r *transactionRepository) Create(ctx context.Context, tx *model.Transaction) error {
	if tx.ID != 0 {
		return fmt.Errorf("transaction %d already recorded", tx.ID)
	}

	if err := conn(ctx, r.db).Create(tx).Error; err != nil {
		r.logger.Error("Failed to record transaction",
			zap.String("type", string(tx.Type)),
			zap.String("status", string(tx.Status)),
			zap.String("reference", tx.Reference),
			zap.Error(err))
		return fmt.Errorf("failed to record transaction: %w", err)
	}
	return nil
}

func (r *transactionRepository) FindByID(ctx context.Context, id int64) (*model.Transaction, error) {
	var tx model.Transaction

	err := conn(ctx, r.db).First(&tx, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &tx, nil
}

func (r *transactionRepository) FindLatestCapture(ctx context.Context, orderID int64) (*model.Transaction, error) {
	var tx model.Transaction

	err := conn(ctx, r.db).
		Where("order_id = ? AND type = ? AND success = ?", orderID, model.TransactionTypeCapture, true).
		Order("id DESC").
		First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get capture transaction",
			zap.Int64("order_id", orderID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get capture transaction: %w", err)
	}
	return &tx, nil
}

func (r *transactionRepository) ListBySession(ctx context.Context, sessionID string) ([]*model.Transaction, error) {
	var txs []*model.Transaction

	if err := conn(ctx, r.db).Where("session_id = ?", sessionID).Order("id ASC").Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("failed to list session transactions: %w", err)
	}
	return txs, nil
}

func (r *transactionRepository) ListByOrder(ctx context.Context, orderID int64) ([]*model.Transaction, error) {
	var txs []*model.Transaction

	if err := conn(ctx, r.db).Where("order_id = ?", orderID).Order("id ASC").Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("failed to list order transactions: %w", err)
	}
	return txs, nil
}

func (r *transactionRepository) SumRefunded(ctx context.Context, orderID int64) (int64, error) {
	var total int64

	err := conn(ctx, r.db).
		Model(&model.Transaction{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("order_id = ? AND type = ? AND success = ?", orderID, model.TransactionTypeRefund, true).
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum refunds: %w", err)
	}
	return total, nil
}
