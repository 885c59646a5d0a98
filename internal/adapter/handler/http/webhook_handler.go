package http

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	domainErrors "github.com/wekeepgrowing/payment-reconciler/internal/domain/errors"
	"github.com/wekeepgrowing/payment-reconciler/internal/domain/model"
	"github.com/wekeepgrowing/payment-reconciler/internal/usecase"
	"go.uber.org/zap"
)

// maxWebhookBody bounds what a single delivery may carry
const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	ingestor *usecase.WebhookIngestor
	logger   *zap.Logger
}

func NewWebhookHandler(ingestor *usecase.WebhookIngestor, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		ingestor: ingestor,
		logger:   logger,
	}
}

// Handle accepts signed gateway deliveries
func (h *WebhookHandler) Handle(c echo.Context) error {
	return h.ingest(c, model.WebhookSourceSigned)
}

// HandleLegacy accepts unsigned callbacks from older integrations
func (h *WebhookHandler) HandleLegacy(c echo.Context) error {
	h.logger.Warn("Legacy webhook received without signature verification",
		zap.String("remote_ip", c.RealIP()))
	return h.ingest(c, model.WebhookSourceLegacy)
}

func (h *WebhookHandler) ingest(c echo.Context, source model.WebhookSource) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody+1))
	if err != nil {
		h.logger.Error("Error reading request body", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{
			"success": false,
			"error":   "Error reading request body",
		})
	}
	if len(body) > maxWebhookBody {
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{
			"success": false,
			"error":   "Webhook payload too large",
		})
	}

	resp := h.ingestor.Ingest(c.Request().Context(), usecase.IngestRequest{
		Headers: c.Request().Header,
		Body:    body,
		Source:  source,
	})
	return c.JSON(resp.Status, resp.Body)
}

// Status reports how a delivered event was handled
func (h *WebhookHandler) Status(c echo.Context) error {
	eventID := c.QueryParam("event_id")
	if eventID == "" {
		return respondError(c, h.logger, domainErrors.Validation("event_id is required"), "Webhook status lookup failed")
	}

	status, err := h.ingestor.EventStatus(c.Request().Context(), eventID)
	if err != nil {
		return respondError(c, h.logger, err, "Webhook status lookup failed")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data":    status,
	})
}
