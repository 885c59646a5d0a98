package entity

import (
	"time"

	"github.com/wekeepgrowing/payment-reconciler/internal/domain/model"
)

// SessionStatus is the read-only polling view of a payment session
type SessionStatus struct {
	SessionID   string     `json:"session_id"`
	PaymentID   string     `json:"payment_id"`
	Status      string     `json:"status"`
	Amount      int64      `json:"amount"`
	Currency    string     `json:"currency"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	IsExpired   bool       `json:"is_expired"`
	IsCompleted bool       `json:"is_completed"`
}

// NewSessionStatus projects a session as observed at now
func NewSessionStatus(s *model.PaymentSession, now time.Time) *SessionStatus {
	return &SessionStatus{
		SessionID:   s.SessionID,
		PaymentID:   s.PaymentID,
		Status:      string(s.Status),
		Amount:      s.Amount,
		Currency:    s.Currency,
		CompletedAt: s.CompletedAt,
		ExpiresAt:   s.ExpiresAt,
		IsExpired:   s.IsExpired(now),
		IsCompleted: s.Status == model.SessionStatusCompleted,
	}
}
