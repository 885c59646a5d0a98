package repository

import (
	"context"

	"github.com/wekeepgrowing/payment-reconciler/internal/domain/model"
)

// PaymentSessionRepository is the Session Store. Finders return nil, nil when
// the session does not exist.
type PaymentSessionRepository interface {
	Create(ctx context.Context, session *model.PaymentSession) error
	FindBySessionID(ctx context.Context, sessionID string) (*model.PaymentSession, error)
	FindByPaymentID(ctx context.Context, paymentID string) (*model.PaymentSession, error)
	// FindForUpdate loads the session with a row lock held until the
	// surrounding transaction ends
	FindForUpdate(ctx context.Context, sessionID string) (*model.PaymentSession, error)
	Update(ctx context.Context, session *model.PaymentSession) error
}
