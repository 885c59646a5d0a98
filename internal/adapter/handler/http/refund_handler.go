package http

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	domainErrors "github.com/wekeepgrowing/payment-reconciler/internal/domain/errors"
	"github.com/wekeepgrowing/payment-reconciler/internal/middleware/auth"
	"github.com/wekeepgrowing/payment-reconciler/internal/usecase"
	"go.uber.org/zap"
)

type RefundHandler struct {
	orchestrator *usecase.SessionOrchestrator
	validate     *validator.Validate
	logger       *zap.Logger
}

func NewRefundHandler(orchestrator *usecase.SessionOrchestrator, logger *zap.Logger) *RefundHandler {
	return &RefundHandler{
		orchestrator: orchestrator,
		validate:     validator.New(),
		logger:       logger,
	}
}

// CreateRefundRequest amounts are in minor units; nil refunds the remaining
// captured balance
type CreateRefundRequest struct {
	Amount *int64 `json:"amount"`
	Notes  string `json:"notes" validate:"max=500"`
}

type RefundResponse struct {
	Success       bool   `json:"success"`
	TransactionID int64  `json:"transaction_id"`
	OrderID       int64  `json:"order_id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Status        string `json:"status"`
	Reference     string `json:"reference"`
	Error         string `json:"error,omitempty"`
}

// Create refunds an order through the gateway
func (h *RefundHandler) Create(c echo.Context) error {
	user, err := auth.RequireAuth(c)
	if user == nil {
		return err
	}

	orderID, err := strconv.ParseInt(c.Param("orderId"), 10, 64)
	if err != nil || orderID <= 0 {
		return respondError(c, h.logger, domainErrors.Validation("Invalid order id"), "Refund request rejected")
	}

	var req CreateRefundRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, h.logger, domainErrors.Validation("Invalid request body"), "Refund request rejected")
	}
	if err := h.validate.Struct(req); err != nil {
		return respondError(c, h.logger, domainErrors.Validation("Notes must be at most 500 characters"), "Refund request rejected")
	}

	ctx := c.Request().Context()
	order, err := h.orchestrator.Order(ctx, orderID)
	if err != nil {
		return respondError(c, h.logger, err, "Refund request rejected")
	}

	h.logger.Info("Merchant refund requested",
		zap.Int64("order_id", orderID),
		zap.String("requested_by", user.Subject))

	tx, err := h.orchestrator.Refund(ctx, usecase.RefundInput{
		Order:  order,
		Amount: req.Amount,
		Notes:  req.Notes,
	})
	if err != nil {
		return respondError(c, h.logger, err, "Refund failed")
	}

	resp := RefundResponse{
		Success:       tx.Success,
		TransactionID: tx.ID,
		OrderID:       order.ID,
		Amount:        tx.Amount,
		Currency:      tx.Currency,
		Status:        string(tx.Status),
		Reference:     tx.Reference,
	}
	if !tx.Success {
		if tx.Notes != nil {
			resp.Error = *tx.Notes
		}
		return c.JSON(http.StatusBadRequest, resp)
	}
	return c.JSON(http.StatusCreated, resp)
}
