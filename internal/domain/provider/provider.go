package provider

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Gateway is the outbound contract every payment gateway adapter implements.
// Amounts crossing this interface are in major units.
type Gateway interface {
	// CreateHostedSession creates a session whose payment page lives on the gateway
	CreateHostedSession(ctx context.Context, req *SessionRequest) (*SessionData, error)

	// CreateEmbeddedSession creates a session rendered inside the storefront
	CreateEmbeddedSession(ctx context.Context, req *SessionRequest) (*SessionData, error)

	// ProcessRefund refunds part or all of a session's captured amount
	ProcessRefund(ctx context.Context, req *RefundRequest) (*RefundData, error)

	// RetrieveSession fetches the current gateway view of a session
	RetrieveSession(ctx context.Context, sessionID string) (*SessionData, error)

	// Name returns the provider name recorded on ledger rows
	Name() string
}

// SessionRequest represents a provider-agnostic checkout session request
type SessionRequest struct {
	PaymentID     string            `json:"payment_id"`
	Amount        decimal.Decimal   `json:"amount"`
	Currency      string            `json:"currency"`
	Description   string            `json:"description"`
	CustomerName  string            `json:"customer_name"`
	CustomerEmail string            `json:"customer_email,omitempty"`
	SuccessURL    string            `json:"success_url,omitempty"`
	CancelURL     string            `json:"cancel_url,omitempty"`
	CaptureMethod string            `json:"capture_method,omitempty"` // automatic or manual
	ExpiresAt     time.Time         `json:"expires_at"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// SessionData is the gateway's answer for a created or retrieved session
type SessionData struct {
	SessionID     string          `json:"session_id"`
	Status        PaymentStatus   `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	CheckoutURL   string          `json:"checkout_url,omitempty"`
	PortalURL     string          `json:"portal_url,omitempty"`
	ClientSecret  string          `json:"client_secret,omitempty"`
	TransactionID string          `json:"transaction_id,omitempty"`
	CardBrand     string          `json:"card_brand,omitempty"`
	CardLast4     string          `json:"card_last4,omitempty"`
	ExpiresAt     *time.Time      `json:"expires_at,omitempty"`
}

// RefundRequest represents a refund against a session's capture
type RefundRequest struct {
	SessionID string          `json:"session_id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Note      string          `json:"note,omitempty"`
}

// RefundData is the gateway's answer for an executed refund
type RefundData struct {
	RefundID string          `json:"refund_id"`
	Amount   decimal.Decimal `json:"amount"`
	Status   string          `json:"status"`
}

// PaymentStatus represents the status of a gateway session
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
	PaymentStatusExpired   PaymentStatus = "expired"
)

// ProviderType represents the type of payment provider
type ProviderType string

const (
	ProviderTypeStripe ProviderType = "stripe"
	ProviderTypeClerk  ProviderType = "clerk"
)

// ErrorKind separates retryable outages from gateway decisions
type ErrorKind string

const (
	ErrorKindValidation ErrorKind = "validation"
	ErrorKindTransient  ErrorKind = "transient"
	ErrorKindPermanent  ErrorKind = "permanent"
)

// ProviderError is the typed error every Gateway method returns
type ProviderError struct {
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

func (e *ProviderError) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

// Transient reports whether retrying the same call may succeed
func (e *ProviderError) Transient() bool {
	return e.Kind == ErrorKindTransient
}

func NewTransientError(code, message, details string) *ProviderError {
	return &ProviderError{Kind: ErrorKindTransient, Code: code, Message: message, Details: details}
}

func NewPermanentError(code, message, details string) *ProviderError {
	return &ProviderError{Kind: ErrorKindPermanent, Code: code, Message: message, Details: details}
}

func NewValidationError(code, message, details string) *ProviderError {
	return &ProviderError{Kind: ErrorKindValidation, Code: code, Message: message, Details: details}
}
