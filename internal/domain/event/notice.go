package event

import "time"

// PaymentEvent is published downstream after a transition commits
type PaymentEvent struct {
	EventType     string    `json:"event_type"`
	SessionID     string    `json:"session_id"`
	PaymentID     string    `json:"payment_id"`
	OrderID       *int64    `json:"order_id,omitempty"`
	SessionStatus string    `json:"session_status"`
	OrderStatus   string    `json:"order_status,omitempty"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	TransactionID int64     `json:"transaction_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}
