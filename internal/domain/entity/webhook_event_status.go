package entity

import (
	"time"

	"github.com/wekeepgrowing/payment-reconciler/internal/domain/model"
)

// WebhookEventStatus is the public view of a journal row
type WebhookEventStatus struct {
	EventID       string     `json:"event_id"`
	EventType     string     `json:"event_type"`
	SessionID     string     `json:"session_id"`
	Status        string     `json:"status"`
	Attempts      int        `json:"attempts"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	FailureReason *string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func NewWebhookEventStatus(e *model.WebhookEvent) *WebhookEventStatus {
	s := &WebhookEventStatus{
		EventType:     e.EventType,
		SessionID:     e.SessionID,
		Status:        string(e.Status),
		Attempts:      e.Attempts,
		ProcessedAt:   e.ProcessedAt,
		FailureReason: e.FailureReason,
		CreatedAt:     e.CreatedAt,
	}
	if e.EventID != nil {
		s.EventID = *e.EventID
	}
	return s
}
