package model

import (
	"time"

	"gorm.io/datatypes"
)

// TransactionType distinguishes captures from refunds in the ledger
type TransactionType string

const (
	TransactionTypeCapture TransactionType = "capture"
	TransactionTypeRefund  TransactionType = "refund"
)

// TransactionStatus is the recorded outcome of one ledger entry
type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "pending"
	TransactionStatusAuthorized TransactionStatus = "authorized"
	TransactionStatusCaptured   TransactionStatus = "captured"
	TransactionStatusFailed     TransactionStatus = "failed"
	TransactionStatusCancelled  TransactionStatus = "cancelled"
	TransactionStatusRefunded   TransactionStatus = "refunded"
)

// FailedReference marks ledger rows whose gateway call never produced a session
const FailedReference = "failed"

// Transaction is an immutable ledger row for one capture or refund attempt
type Transaction struct {
	ID         int64             `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID    *int64            `gorm:"index" json:"order_id,omitempty"`
	CartID     *int64            `gorm:"index" json:"cart_id,omitempty"`
	SessionID  *string           `gorm:"size:255;index" json:"session_id,omitempty"`
	Driver     string            `gorm:"size:50;not null" json:"driver"`
	Type       TransactionType   `gorm:"size:20;not null" json:"type"`
	Success    bool              `gorm:"not null" json:"success"`
	Status     TransactionStatus `gorm:"size:20;not null;index" json:"status"`
	Amount     int64             `gorm:"not null" json:"amount"`
	Currency   string            `gorm:"size:3;not null" json:"currency"`
	Reference  string            `gorm:"size:255;not null;index" json:"reference"`
	CardBrand  *string           `gorm:"size:50" json:"card_brand,omitempty"`
	LastFour   *string           `gorm:"size:4" json:"last_four,omitempty"`
	Notes      *string           `json:"notes,omitempty"`
	Meta       datatypes.JSONMap `json:"meta,omitempty"`
	CapturedAt *time.Time        `json:"captured_at,omitempty"`
	CreatedAt  time.Time         `gorm:"index" json:"created_at"`
}

// TableName specifies the table name for GORM
func (Transaction) TableName() string {
	return "payment_transactions"
}
