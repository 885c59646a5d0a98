package usecase

import (
	"context"
	"net/http"

	"github.com/wekeepgrowing/payment-reconciler/internal/domain/entity"
	domainErrors "github.com/wekeepgrowing/payment-reconciler/internal/domain/errors"
	"github.com/wekeepgrowing/payment-reconciler/internal/domain/event"
	"github.com/wekeepgrowing/payment-reconciler/internal/domain/model"
	"github.com/wekeepgrowing/payment-reconciler/internal/domain/repository"
	apperrors "github.com/wekeepgrowing/payment-reconciler/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// IngestRequest is a raw webhook delivery
type IngestRequest struct {
	Headers http.Header
	Body    []byte
	Source  model.WebhookSource
}

// IngestResponse is the transport-neutral answer to a delivery
type IngestResponse struct {
	Status int
	Body   map[string]interface{}
}

// ReplayReport summarizes a replay run
type ReplayReport struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// WebhookIngestor verifies, journals and applies gateway webhooks
type WebhookIngestor struct {
	journal   repository.WebhookEventRepository
	processor *EventProcessor
	verifier  SignatureVerifier
	locker    Locker
	logger    *zap.Logger
}

func NewWebhookIngestor(
	journal repository.WebhookEventRepository,
	processor *EventProcessor,
	verifier SignatureVerifier,
	locker Locker,
	logger *zap.Logger,
) *WebhookIngestor {
	return &WebhookIngestor{
		journal:   journal,
		processor: processor,
		verifier:  verifier,
		locker:    locker,
		logger:    logger,
	}
}

func reject(status int, err *domainErrors.PaymentError) IngestResponse {
	return IngestResponse{
		Status: status,
		Body:   map[string]interface{}{"success": false, "error": err.Message},
	}
}

// Ingest handles one delivery end to end. Signed deliveries must verify;
// legacy deliveries carry no signature and no event id.
func (i *WebhookIngestor) Ingest(ctx context.Context, req IngestRequest) IngestResponse {
	if req.Source != model.WebhookSourceLegacy && !i.verifier.Verify(req.Headers, req.Body) {
		i.logger.Warn("Rejected webhook with invalid signature",
			zap.Int("body_size", len(req.Body)))
		return reject(http.StatusUnauthorized, domainErrors.ErrInvalidSignature)
	}

	env, err := decodeEnvelope(req.Source, req.Body)
	if err != nil {
		i.logger.Warn("Rejected malformed webhook payload",
			zap.String("source", string(req.Source)),
			zap.Error(err))
		return reject(http.StatusBadRequest, domainErrors.ErrInvalidPayload)
	}

	logger := i.logger.With(
		zap.String("event_id", env.ID),
		zap.String("event_type", env.Type),
		zap.String("session_id", env.Data.SessionID))

	if env.ID != "" {
		release, err := i.locker.Acquire(ctx, webhookLockKey(env.ID))
		if err != nil {
			apperrors.LogError(logger, err, "Failed to lock webhook event")
			return reject(http.StatusInternalServerError, domainErrors.ErrInternal)
		}
		defer release()
	}

	record, duplicate, err := i.record(ctx, env, req)
	if err != nil {
		apperrors.LogError(logger, err, "Failed to journal webhook event")
		return reject(http.StatusInternalServerError, domainErrors.ErrInternal)
	}
	if duplicate {
		logger.Info("Duplicate webhook event already processed")
		return IngestResponse{
			Status: http.StatusOK,
			Body:   map[string]interface{}{"success": true, "duplicate": true},
		}
	}

	return i.process(ctx, record, event.FromEnvelope(env), logger)
}

// record returns the journal row to process. A row that already reached
// processed is reported as a duplicate; received and failed rows are reused.
func (i *WebhookIngestor) record(ctx context.Context, env event.Envelope, req IngestRequest) (*model.WebhookEvent, bool, error) {
	if env.ID != "" {
		existing, err := i.journal.FindByEventID(ctx, env.ID)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, existing.Status == model.WebhookStatusProcessed, nil
		}
	}

	row := &model.WebhookEvent{
		EventType: env.Type,
		SessionID: env.Data.SessionID,
		Source:    req.Source,
		Payload:   datatypes.JSON(req.Body),
	}
	if env.ID != "" {
		id := env.ID
		row.EventID = &id
	}

	inserted, err := i.journal.Save(ctx, row)
	if err != nil {
		return nil, false, err
	}
	if inserted {
		return row, false, nil
	}

	// Lost an insert race with another instance
	existing, err := i.journal.FindByEventID(ctx, env.ID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, domainErrors.With(domainErrors.ErrWebhookEventNotFound, "", nil)
	}
	return existing, existing.Status == model.WebhookStatusProcessed, nil
}

func (i *WebhookIngestor) process(ctx context.Context, row *model.WebhookEvent, evt event.Event, logger *zap.Logger) IngestResponse {
	result := i.processor.Apply(ctx, evt)

	// The journal row must reach a terminal status even if the caller left
	ctx = context.WithoutCancel(ctx)

	if result.Success {
		if err := i.journal.MarkProcessed(ctx, row.ID); err != nil {
			apperrors.LogError(logger, err, "Failed to mark webhook event processed")
			return reject(http.StatusInternalServerError, domainErrors.ErrInternal)
		}
		return IngestResponse{
			Status: http.StatusOK,
			Body:   map[string]interface{}{"success": true},
		}
	}

	if err := i.journal.MarkFailed(ctx, row.ID, result.ErrorReason); err != nil {
		apperrors.LogError(logger, err, "Failed to mark webhook event failed")
	}

	status := http.StatusBadRequest
	if result.Internal() {
		status = http.StatusInternalServerError
	}
	return IngestResponse{
		Status: status,
		Body:   map[string]interface{}{"success": false, "error": result.Message},
	}
}

// Replay re-applies journal rows that never reached processed, oldest first
func (i *WebhookIngestor) Replay(ctx context.Context, limit int) (ReplayReport, error) {
	var report ReplayReport

	rows, err := i.journal.GetPendingEvents(ctx, limit)
	if err != nil {
		return report, err
	}

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		env, err := decodeEnvelope(row.Source, row.Payload)
		if err != nil {
			i.logger.Warn("Skipping undecodable journal row",
				zap.Int64("id", row.ID),
				zap.Error(err))
			report.Skipped++
			continue
		}

		logger := i.logger.With(
			zap.Int64("id", row.ID),
			zap.String("event_type", env.Type),
			zap.String("session_id", env.Data.SessionID))

		resp := i.replayOne(ctx, row, env, logger)
		if resp.Status == http.StatusOK {
			report.Processed++
		} else {
			report.Failed++
		}
	}

	i.logger.Info("Webhook replay finished",
		zap.Int("processed", report.Processed),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped))
	return report, nil
}

func (i *WebhookIngestor) replayOne(ctx context.Context, row *model.WebhookEvent, env event.Envelope, logger *zap.Logger) IngestResponse {
	if row.EventID != nil {
		release, err := i.locker.Acquire(ctx, webhookLockKey(*row.EventID))
		if err != nil {
			return reject(http.StatusInternalServerError, domainErrors.ErrInternal)
		}
		defer release()

		// A live delivery may have finished it meanwhile
		current, err := i.journal.FindByID(ctx, row.ID)
		if err != nil {
			return reject(http.StatusInternalServerError, domainErrors.ErrInternal)
		}
		if current != nil && current.Status == model.WebhookStatusProcessed {
			return IngestResponse{Status: http.StatusOK}
		}
	}
	return i.process(ctx, row, event.FromEnvelope(env), logger)
}

// EventStatus returns the journal view of one event id
func (i *WebhookIngestor) EventStatus(ctx context.Context, eventID string) (*entity.WebhookEventStatus, error) {
	row, err := i.journal.FindByEventID(ctx, eventID)
	if err != nil {
		return nil, domainErrors.Internal(err)
	}
	if row == nil {
		return nil, domainErrors.ErrWebhookEventNotFound
	}
	return entity.NewWebhookEventStatus(row), nil
}

func decodeEnvelope(source model.WebhookSource, body []byte) (event.Envelope, error) {
	if source == model.WebhookSourceLegacy {
		return event.DecodeLegacy(body)
	}
	return event.Decode(body)
}
