package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wekeepgrowing/payment-reconciler/internal/domain/model"
	domainRepo "github.com/wekeepgrowing/payment-reconciler/internal/domain/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type webhookRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewWebhookRepository creates a new webhook event journal
func NewWebhookRepository(db *gorm.DB, logger *zap.Logger) domainRepo.WebhookEventRepository {
	return &webhookRepository{
		db:     db,
		logger: logger,
	}
}

// Save persists a new webhook event with status received
func (r *webhookRepository) Save(ctx context.Context, event *model.WebhookEvent) (bool, error) {
	event.Status = model.WebhookStatusReceived

	// Use ON CONFLICT to handle duplicate event ids
	result := conn(ctx, r.db).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(event)

	if result.Error != nil {
		r.logger.Error("Failed to save webhook event",
			zap.Stringp("event_id", event.EventID),
			zap.String("event_type", event.EventType),
			zap.Error(result.Error))
		return false, fmt.Errorf("failed to save webhook event: %w", result.Error)
	}

	return result.RowsAffected > 0, nil
}

func (r *webhookRepository) FindByID(ctx context.Context, id int64) (*model.WebhookEvent, error) {
	var event model.WebhookEvent

	err := conn(ctx, r.db).First(&event, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get webhook event: %w", err)
	}
	return &event, nil
}

// FindByEventID retrieves a webhook event by its gateway-assigned id
func (r *webhookRepository) FindByEventID(ctx context.Context, eventID string) (*model.WebhookEvent, error) {
	var event model.WebhookEvent

	err := conn(ctx, r.db).
		Where("event_id = ?", eventID).
		First(&event).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get webhook event",
			zap.String("event_id", eventID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get webhook event: %w", err)
	}

	return &event, nil
}

// MarkProcessed moves an event to processed and clears any earlier failure
func (r *webhookRepository) MarkProcessed(ctx context.Context, id int64) error {
	now := time.Now()

	return r.finish(ctx, id, map[string]interface{}{
		"status":         model.WebhookStatusProcessed,
		"processed_at":   &now,
		"failure_reason": nil,
		"attempts":       gorm.Expr("attempts + 1"),
	})
}

// MarkFailed moves an event to failed with the processing error
func (r *webhookRepository) MarkFailed(ctx context.Context, id int64, reason string) error {
	return r.finish(ctx, id, map[string]interface{}{
		"status":         model.WebhookStatusFailed,
		"failure_reason": &reason,
		"attempts":       gorm.Expr("attempts + 1"),
	})
}

func (r *webhookRepository) finish(ctx context.Context, id int64, updates map[string]interface{}) error {
	result := conn(ctx, r.db).
		Model(&model.WebhookEvent{}).
		Where("id = ?", id).
		Updates(updates)

	if result.Error != nil {
		r.logger.Error("Failed to update webhook event",
			zap.Int64("id", id),
			zap.Any("status", updates["status"]),
			zap.Error(result.Error))
		return fmt.Errorf("failed to update webhook event: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("webhook event not found: %d", id)
	}

	return nil
}

// GetPendingEvents retrieves received and failed events for replay
func (r *webhookRepository) GetPendingEvents(ctx context.Context, limit int) ([]*model.WebhookEvent, error) {
	var events []*model.WebhookEvent

	query := conn(ctx, r.db).
		Where("status IN (?, ?)", model.WebhookStatusReceived, model.WebhookStatusFailed).
		Order("created_at ASC").
		Order("id ASC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&events).Error; err != nil {
		r.logger.Error("Failed to get pending webhook events", zap.Error(err))
		return nil, fmt.Errorf("failed to get pending webhook events: %w", err)
	}

	return events, nil
}
