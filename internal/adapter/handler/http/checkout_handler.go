package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	domainErrors "github.com/wekeepgrowing/payment-reconciler/internal/domain/errors"
	"github.com/wekeepgrowing/payment-reconciler/internal/domain/event"
	"github.com/wekeepgrowing/payment-reconciler/internal/domain/model"
	"github.com/wekeepgrowing/payment-reconciler/internal/domain/provider"
	"github.com/wekeepgrowing/payment-reconciler/internal/usecase"
	"go.uber.org/zap"
)

type CheckoutHandler struct {
	orchestrator *usecase.SessionOrchestrator
	processor    *usecase.EventProcessor
	validate     *validator.Validate
	cartURL      string
	orderURL     string
	logger       *zap.Logger
}

func NewCheckoutHandler(
	orchestrator *usecase.SessionOrchestrator,
	processor *usecase.EventProcessor,
	cartURL, orderURL string,
	logger *zap.Logger,
) *CheckoutHandler {
	return &CheckoutHandler{
		orchestrator: orchestrator,
		processor:    processor,
		validate:     validator.New(),
		cartURL:      cartURL,
		orderURL:     orderURL,
		logger:       logger,
	}
}

type CreateCheckoutRequest struct {
	CartID        int64  `json:"cart_id" form:"cart_id" validate:"required_without=OrderID"`
	OrderID       int64  `json:"order_id" form:"order_id"`
	Method        string `json:"method" form:"method"`
	CustomerName  string `json:"customer_name" form:"customer_name" validate:"max=255"`
	CustomerEmail string `json:"customer_email" form:"customer_email" validate:"omitempty,email"`
}

type CreateCheckoutResponse struct {
	Success       bool       `json:"success"`
	TransactionID int64      `json:"transaction_id"`
	SessionID     string     `json:"session_id"`
	PaymentID     string     `json:"payment_id"`
	CheckoutURL   string     `json:"checkout_url,omitempty"`
	PortalURL     string     `json:"portal_url,omitempty"`
	ClientSecret  string     `json:"client_secret,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// Create opens a gateway session for a cart (or an existing order)
func (h *CheckoutHandler) Create(c echo.Context) error {
	var req CreateCheckoutRequest
	if err := c.Bind(&req); err != nil {
		return h.fail(c, domainErrors.Validation("Invalid request body"))
	}
	if err := h.validate.Struct(req); err != nil {
		return h.fail(c, domainErrors.Validation("A cart id and valid customer details are required"))
	}

	ctx := c.Request().Context()
	in := usecase.CreateSessionInput{
		Method:        model.PaymentMethod(req.Method),
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
	}

	if req.OrderID != 0 {
		order, err := h.orchestrator.Order(ctx, req.OrderID)
		if err != nil {
			return h.fail(c, err)
		}
		in.Order = order
	}
	if req.CartID != 0 {
		cart, err := h.orchestrator.Cart(ctx, req.CartID)
		if err != nil {
			return h.fail(c, err)
		}
		in.Cart = cart
	}

	tx, err := h.orchestrator.CreateSession(ctx, in)
	if err != nil {
		return h.fail(c, err)
	}
	if !tx.Success && tx.Status == model.TransactionStatusFailed {
		message := "Payment session could not be created"
		if tx.Notes != nil {
			message = *tx.Notes
		}
		return h.fail(c, domainErrors.With(domainErrors.ErrGatewayPermanent, message, nil))
	}

	session, err := h.orchestrator.Session(ctx, tx.Reference)
	if err != nil {
		return h.fail(c, err)
	}

	resp := CreateCheckoutResponse{
		Success:       true,
		TransactionID: tx.ID,
		SessionID:     session.SessionID,
		PaymentID:     session.PaymentID,
		ExpiresAt:     session.ExpiresAt,
	}
	if session.ClientSecret != nil {
		resp.ClientSecret = *session.ClientSecret
	}
	if session.Method == model.PaymentMethodEmbedded && session.PortalURL != nil {
		resp.PortalURL = *session.PortalURL
	} else if session.CheckoutURL != nil {
		resp.CheckoutURL = *session.CheckoutURL
	}

	if !wantsJSON(c) && session.Method == model.PaymentMethodHosted && resp.CheckoutURL != "" {
		return c.Redirect(http.StatusSeeOther, resp.CheckoutURL)
	}
	return c.JSON(http.StatusOK, resp)
}

// Status is the polling endpoint for a session
func (h *CheckoutHandler) Status(c echo.Context) error {
	status, err := h.orchestrator.SessionStatus(c.Request().Context(), c.Param("sessionId"))
	if err != nil {
		return respondError(c, h.logger, err, "Session status lookup failed")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data":    status,
	})
}

// Success handles the buyer returning from the gateway. The gateway is asked
// for the authoritative state; a paid session is applied like a completed
// webhook so the order exists even if the webhook is late.
func (h *CheckoutHandler) Success(c echo.Context) error {
	sessionID := c.QueryParam("session_id")
	if sessionID == "" {
		return h.fail(c, domainErrors.Validation("session_id is required"))
	}

	ctx := c.Request().Context()
	data, err := h.orchestrator.RetrieveGatewaySession(ctx, sessionID)
	if err != nil {
		return h.fail(c, err)
	}

	if data.Status == provider.PaymentStatusCompleted {
		session, err := h.orchestrator.Session(ctx, sessionID)
		if err != nil {
			return h.fail(c, err)
		}

		amount := session.Amount
		result := h.processor.Apply(ctx, event.New(event.TypeCompleted, event.Data{
			SessionID:     sessionID,
			Amount:        &amount,
			Currency:      session.Currency,
			TransactionID: data.TransactionID,
			Status:        string(data.Status),
			CardBrand:     data.CardBrand,
			CardLast4:     data.CardLast4,
		}))
		if !result.Success {
			h.logger.Warn("Redirect completion was not applied",
				zap.String("session_id", sessionID),
				zap.String("reason", result.ErrorReason))
			if result.Internal() {
				return h.fail(c, domainErrors.ErrInternal)
			}
		}
	}

	status, err := h.orchestrator.SessionStatus(ctx, sessionID)
	if err != nil {
		return h.fail(c, err)
	}

	if !wantsJSON(c) {
		target := h.orderURL
		if !status.IsCompleted {
			target = withQuery(h.cartURL, "status", status.Status)
		}
		return c.Redirect(http.StatusSeeOther, withQuery(target, "session_id", sessionID))
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data":    status,
	})
}

// Cancel handles the buyer abandoning the gateway page
func (h *CheckoutHandler) Cancel(c echo.Context) error {
	sessionID := c.QueryParam("session_id")
	if sessionID == "" {
		return h.fail(c, domainErrors.Validation("session_id is required"))
	}

	ctx := c.Request().Context()
	// The gateway may still capture after the buyer leaves, so the session
	// status is left for webhooks to settle
	result := h.processor.Abandon(ctx, sessionID, "Cancelled by customer")
	if !result.Success {
		if result.Internal() {
			return h.fail(c, domainErrors.ErrInternal)
		}
		h.logger.Info("Cancel callback not applied",
			zap.String("session_id", sessionID),
			zap.String("reason", result.ErrorReason))
		if result.ErrorReason == domainErrors.ErrSessionNotFound.Reason {
			return h.fail(c, domainErrors.ErrSessionNotFound)
		}
	}

	if !wantsJSON(c) {
		return c.Redirect(http.StatusSeeOther, withQuery(h.cartURL, "cancelled", "1"))
	}

	status, err := h.orchestrator.SessionStatus(ctx, sessionID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data":    status,
	})
}

// fail answers JSON clients with the error envelope and sends browsers back
// to the cart with the message
func (h *CheckoutHandler) fail(c echo.Context, err error) error {
	if wantsJSON(c) {
		return respondError(c, h.logger, err, "Checkout request failed")
	}

	h.logger.Warn("Checkout request failed", zap.Error(err))
	message := err.Error()
	var pe *domainErrors.PaymentError
	if errors.As(err, &pe) {
		message = pe.Message
	}
	return c.Redirect(http.StatusSeeOther, withQuery(h.cartURL, "error", message))
}
