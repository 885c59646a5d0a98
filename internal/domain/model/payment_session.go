package model

import "time"

// SessionStatus is the gateway-side status of a payment session
type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "pending"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
	SessionStatusCancelled SessionStatus = "cancelled"
)

// IsTerminal reports whether no further transition is accepted from s
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusFailed || s == SessionStatusCancelled
}

// PaymentMethod selects the gateway checkout flavour
type PaymentMethod string

const (
	// PaymentMethodHosted redirects the buyer to a gateway-hosted portal
	PaymentMethodHosted PaymentMethod = "hosted"
	// PaymentMethodEmbedded renders the gateway form inside the storefront
	PaymentMethodEmbedded PaymentMethod = "embedded"
)

// PaymentSession is one gateway checkout attempt
type PaymentSession struct {
	ID            int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID     string        `gorm:"uniqueIndex;not null;size:255" json:"session_id"`
	PaymentID     string        `gorm:"uniqueIndex;not null;size:255" json:"payment_id"`
	Method        PaymentMethod `gorm:"size:20;not null" json:"method"`
	Status        SessionStatus `gorm:"size:20;not null;index" json:"status"`
	Amount        int64         `gorm:"not null" json:"amount"`
	Currency      string        `gorm:"size:3;not null" json:"currency"`
	CardBrand     *string       `gorm:"size:50" json:"card_brand,omitempty"`
	CardLast4     *string       `gorm:"column:card_last4;size:4" json:"card_last4,omitempty"`
	CheckoutURL   *string       `json:"checkout_url,omitempty"`
	PortalURL     *string       `json:"portal_url,omitempty"`
	ClientSecret  *string       `json:"-"`
	FailureReason *string       `json:"failure_reason,omitempty"`
	ExpiresAt     *time.Time    `json:"expires_at,omitempty"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
	CancelledAt   *time.Time    `json:"cancelled_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (PaymentSession) TableName() string {
	return "payment_sessions"
}

// IsExpired reports whether the session expiry lies before now
func (s *PaymentSession) IsExpired(now time.Time) bool {
	return s.ExpiresAt != nil && now.After(*s.ExpiresAt)
}
