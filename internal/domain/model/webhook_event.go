package model

import (
	"database/sql/driver"
	"time"

	"gorm.io/datatypes"
)

// WebhookStatus represents the processing status of a webhook
type WebhookStatus string

const (
	WebhookStatusReceived  WebhookStatus = "received"
	WebhookStatusProcessed WebhookStatus = "processed"
	WebhookStatusFailed    WebhookStatus = "failed"
)

// Scan implements sql.Scanner interface
func (w *WebhookStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*w = WebhookStatus(v)
	case []byte:
		*w = WebhookStatus(v)
	default:
		*w = WebhookStatusReceived
	}
	return nil
}

// Value implements driver.Valuer interface
func (w WebhookStatus) Value() (driver.Value, error) {
	return string(w), nil
}

// WebhookSource records which intake path accepted the event
type WebhookSource string

const (
	WebhookSourceSigned WebhookSource = "signed"
	WebhookSourceLegacy WebhookSource = "legacy"
)

// WebhookEvent is the audit record of one inbound gateway notification.
// EventID is nil for legacy deliveries, which therefore cannot be deduplicated.
type WebhookEvent struct {
	ID            int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID       *string        `gorm:"uniqueIndex;size:255" json:"event_id,omitempty"`
	EventType     string         `gorm:"not null;size:100;index" json:"event_type"`
	SessionID     string         `gorm:"size:255;index" json:"session_id"`
	Source        WebhookSource  `gorm:"size:20;not null" json:"source"`
	Payload       datatypes.JSON `gorm:"not null" json:"payload"`
	Status        WebhookStatus  `gorm:"size:20;not null;index" json:"status"`
	Attempts      int            `gorm:"not null;default:0" json:"attempts"`
	FailureReason *string        `json:"failure_reason,omitempty"`
	ProcessedAt   *time.Time     `json:"processed_at,omitempty"`
	CreatedAt     time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (WebhookEvent) TableName() string {
	return "webhook_events"
}
