package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainErrors "github.com/wekeepgrowing/payment-reconciler/internal/domain/errors"
	"github.com/wekeepgrowing/payment-reconciler/internal/domain/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func seedCart(t *testing.T, db *gorm.DB) *model.Cart {
	t.Helper()
	cart := &model.Cart{UserEmail: strPtr("buyer@example.com"), Total: 4200, Currency: "USD"}
	require.NoError(t, db.Create(cart).Error)
	return cart
}

func TestCommerceRepository_PaymentTagRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewCommerceRepository(db, zap.NewNop())
	cart := seedCart(t, db)

	require.NoError(t, repo.TagCartWithPaymentID(ctx, cart.ID, "cart-1-abc"))

	found, err := repo.FindCartByPaymentTag(ctx, "cart-1-abc")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, cart.ID, found.ID)

	missing, err := repo.FindCartByPaymentTag(ctx, "cart-1-other")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCommerceRepository_TagUnknownCart(t *testing.T) {
	repo := NewCommerceRepository(newTestDB(t), zap.NewNop())

	err := repo.TagCartWithPaymentID(context.Background(), 404, "cart-404-x")
	assert.ErrorIs(t, err, domainErrors.ErrCartNotFound)
}

func TestCommerceRepository_CreateOrderFromCartIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewCommerceRepository(db, zap.NewNop())
	cart := seedCart(t, db)

	first, err := repo.CreateOrderFromCart(ctx, cart)
	require.NoError(t, err)
	second, err := repo.CreateOrderFromCart(ctx, cart)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(4200), first.Total)
	assert.Equal(t, model.OrderStatusAwaitingPayment, first.Status)

	var count int64
	require.NoError(t, db.Model(&model.Order{}).Where("cart_id = ?", cart.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestCommerceRepository_UpdateOrderStatus(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewCommerceRepository(db, zap.NewNop())
	cart := seedCart(t, db)

	order, err := repo.CreateOrderFromCart(ctx, cart)
	require.NoError(t, err)

	require.NoError(t, repo.UpdateOrderStatus(ctx, order.ID, model.OrderStatusPaymentReceived))
	got, err := repo.FindOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPaymentReceived, got.Status)

	err = repo.UpdateOrderStatus(ctx, 9999, model.OrderStatusRefunded)
	assert.ErrorIs(t, err, domainErrors.ErrOrderNotFound)
}
