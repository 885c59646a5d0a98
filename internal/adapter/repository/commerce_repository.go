package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/wekeepgrowing/payment-reconciler/internal/domain/errors"
	"github.com/wekeepgrowing/payment-reconciler/internal/domain/model"
	domainRepo "github.com/wekeepgrowing/payment-reconciler/internal/domain/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type commerceRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewCommerceRepository creates the cart/order store
func NewCommerceRepository(db *gorm.DB, logger *zap.Logger) domainRepo.CommerceRepository {
	return &commerceRepository{
		db:     db,
		logger: logger,
	}
}

func (r *commerceRepository) FindCartByID(ctx context.Context, cartID int64) (*model.Cart, error) {
	var cart model.Cart
	if err := conn(ctx, r.db).First(&cart, cartID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return &cart, nil
}

func (r *commerceRepository) FindCartByPaymentTag(ctx context.Context, paymentID string) (*model.Cart, error) {
	var cart model.Cart
	if err := conn(ctx, r.db).Where("payment_id = ?", paymentID).First(&cart).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to find cart by payment tag",
			zap.String("payment_id", paymentID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to find cart by payment tag: %w", err)
	}
	return &cart, nil
}

func (r *commerceRepository) TagCartWithPaymentID(ctx context.Context, cartID int64, paymentID string) error {
	result := conn(ctx, r.db).
		Model(&model.Cart{}).
		Where("id = ?", cartID).
		Update("payment_id", paymentID)

	if result.Error != nil {
		return fmt.Errorf("failed to tag cart: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domainErrors.With(domainErrors.ErrCartNotFound, "", fmt.Errorf("cart %d", cartID))
	}
	return nil
}

func (r *commerceRepository) FindOrderByID(ctx context.Context, orderID int64) (*model.Order, error) {
	var order model.Order
	if err := conn(ctx, r.db).First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return &order, nil
}

func (r *commerceRepository) FindOrderByCart(ctx context.Context, cartID int64) (*model.Order, error) {
	var order model.Order
	if err := conn(ctx, r.db).Where("cart_id = ?", cartID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get order for cart: %w", err)
	}
	return &order, nil
}

// CreateOrderFromCart returns the cart's order, creating it on first call.
// The unique cart_id index keeps concurrent callers to a single row.
func (r *commerceRepository) CreateOrderFromCart(ctx context.Context, cart *model.Cart) (*model.Order, error) {
	now := time.Now()
	order := &model.Order{
		CartID:    cart.ID,
		Reference: fmt.Sprintf("ORD-%08d", cart.ID),
		Status:    model.OrderStatusAwaitingPayment,
		Total:     cart.Total,
		Currency:  cart.Currency,
		PlacedAt:  &now,
	}

	err := conn(ctx, r.db).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "cart_id"}}, DoNothing: true}).
		Create(order).Error
	if err != nil {
		r.logger.Error("Failed to create order from cart",
			zap.Int64("cart_id", cart.ID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	existing, err := r.FindOrderByCart(ctx, cart.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("order for cart %d not found after insert", cart.ID)
	}
	return existing, nil
}

func (r *commerceRepository) UpdateOrderStatus(ctx context.Context, orderID int64, status string) error {
	result := conn(ctx, r.db).
		Model(&model.Order{}).
		Where("id = ?", orderID).
		Update("status", status)

	if result.Error != nil {
		return fmt.Errorf("failed to update order status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domainErrors.With(domainErrors.ErrOrderNotFound, "", fmt.Errorf("order %d", orderID))
	}
	return nil
}
