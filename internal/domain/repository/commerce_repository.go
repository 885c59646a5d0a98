package repository

import (
	"context"

	"github.com/wekeepgrowing/payment-reconciler/internal/domain/model"
)

// CommerceRepository exposes the host commerce system's carts and orders
// through the few lookups payment reconciliation needs.
type CommerceRepository interface {
	FindCartByID(ctx context.Context, cartID int64) (*model.Cart, error)
	FindCartByPaymentTag(ctx context.Context, paymentID string) (*model.Cart, error)
	TagCartWithPaymentID(ctx context.Context, cartID int64, paymentID string) error
	FindOrderByID(ctx context.Context, orderID int64) (*model.Order, error)
	FindOrderByCart(ctx context.Context, cartID int64) (*model.Order, error)
	// CreateOrderFromCart is idempotent per cart
	CreateOrderFromCart(ctx context.Context, cart *model.Cart) (*model.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status string) error
}
