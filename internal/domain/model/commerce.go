package model

import "time"

// Cart is the host commerce cart a payment session pays for
type Cart struct {
	ID         int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	UserEmail  *string `gorm:"size:255" json:"user_email,omitempty"`
	UserName   *string `gorm:"size:255" json:"user_name,omitempty"`
	GuestEmail *string `gorm:"size:255" json:"guest_email,omitempty"`
	GuestName  *string `gorm:"size:255" json:"guest_name,omitempty"`
	Total      int64   `gorm:"not null" json:"total"`
	Currency   string  `gorm:"size:3;not null" json:"currency"`
	// PaymentID tags the cart with the latest session's correlation key
	PaymentID *string   `gorm:"size:255;index" json:"payment_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Cart) TableName() string {
	return "carts"
}

// OrderStatus values written by payment reconciliation
const (
	OrderStatusAwaitingPayment   = "awaiting-payment"
	OrderStatusPaymentReceived   = "payment-received"
	OrderStatusFulfilled         = "fulfilled"
	OrderStatusRefunded          = "refunded"
	OrderStatusPartiallyRefunded = "partially-refunded"
)

// Order is derived from exactly one cart
type Order struct {
	ID        int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	CartID    int64      `gorm:"uniqueIndex;not null" json:"cart_id"`
	Reference string     `gorm:"size:64;not null" json:"reference"`
	Status    string     `gorm:"size:50;not null" json:"status"`
	Total     int64      `gorm:"not null" json:"total"`
	Currency  string     `gorm:"size:3;not null" json:"currency"`
	PlacedAt  *time.Time `json:"placed_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Order) TableName() string {
	return "orders"
}
