package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/wekeepgrowing/payment-reconciler/internal/domain/model"
	domainRepo "github.com/wekeepgrowing/payment-reconciler/internal/domain/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type paymentSessionRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewPaymentSessionRepository creates a new payment session repository
func NewPaymentSessionRepository(db *gorm.DB, logger *zap.Logger) domainRepo.PaymentSessionRepository {
	return &paymentSessionRepository{
		db:     db,
		logger: logger,
	}
}

func (r *paymentSessionRepository) Create(ctx context.Context, session *model.PaymentSession) error {
	if err := conn(ctx, r.db).Create(session).Error; err != nil {
		r.logger.Error("Failed to create payment session",
			zap.String("session_id", session.SessionID),
			zap.String("payment_id", session.PaymentID),
			zap.Error(err))
		return fmt.Errorf("failed to create payment session: %w", err)
	}
	return nil
}

func (r *paymentSessionRepository) FindBySessionID(ctx context.Context, sessionID string) (*model.PaymentSession, error) {
	return r.findOne(conn(ctx, r.db), "session_id = ?", sessionID)
}

func (r *paymentSessionRepository) FindByPaymentID(ctx context.Context, paymentID string) (*model.PaymentSession, error) {
	return r.findOne(conn(ctx, r.db), "payment_id = ?", paymentID)
}

func (r *paymentSessionRepository) FindForUpdate(ctx context.Context, sessionID string) (*model.PaymentSession, error) {
	q := conn(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"})
	return r.findOne(q, "session_id = ?", sessionID)
}

func (r *paymentSessionRepository) findOne(q *gorm.DB, where string, arg string) (*model.PaymentSession, error) {
	var session model.PaymentSession

	err := q.Where(where, arg).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get payment session",
			zap.String("lookup", arg),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get payment session: %w", err)
	}

	return &session, nil
}

func (r *paymentSessionRepository) Update(ctx context.Context, session *model.PaymentSession) error {
	if err := conn(ctx, r.db).Save(session).Error; err != nil {
		r.logger.Error("Failed to update payment session",
			zap.String("session_id", session.SessionID),
			zap.String("status", string(session.Status)),
			zap.Error(err))
		return fmt.Errorf("failed to update payment session: %w", err)
	}
	return nil
}
