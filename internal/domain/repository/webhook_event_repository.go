package repository

import (
	"context"

	"github.com/wekeepgrowing/payment-reconciler/internal/domain/model"
)

// WebhookEventRepository is the Event Journal
type WebhookEventRepository interface {
	// Save inserts a received event. It reports false when an event with the
	// same event id already exists, in which case nothing is written.
	Save(ctx context.Context, event *model.WebhookEvent) (bool, error)
	FindByID(ctx context.Context, id int64) (*model.WebhookEvent, error)
	FindByEventID(ctx context.Context, eventID string) (*model.WebhookEvent, error)
	MarkProcessed(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, reason string) error
	// GetPendingEvents lists received and failed events, oldest first
	GetPendingEvents(ctx context.Context, limit int) ([]*model.WebhookEvent, error)
}
