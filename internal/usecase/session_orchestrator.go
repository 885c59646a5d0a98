package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/wekeepgrowing/payment-reconciler/internal/domain/entity"
	domainErrors "github.com/wekeepgrowing/payment-reconciler/internal/domain/errors"
	"github.com/wekeepgrowing/payment-reconciler/internal/domain/model"
	"github.com/wekeepgrowing/payment-reconciler/internal/domain/money"
	"github.com/wekeepgrowing/payment-reconciler/internal/domain/provider"
	"github.com/wekeepgrowing/payment-reconciler/internal/domain/repository"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	guestCustomerName   = "Guest Customer"
	defaultRefundNote   = "Order refund"
	webhookRefundNote   = "Refund via webhook"
	defaultSessionTTL   = time.Hour
	defaultGatewayLimit = 30 * time.Second
)

// OrchestratorConfig carries the checkout settings the orchestrator needs
type OrchestratorConfig struct {
	DefaultMethod  model.PaymentMethod
	CaptureMethod  string
	SuccessURL     string
	CancelURL      string
	SessionTTL     time.Duration
	GatewayTimeout time.Duration
	AutoFulfill    bool
}

// CreateSessionInput describes what is being paid for and by whom.
// Order is set for post-checkout reconciliation; Cart may then be nil.
type CreateSessionInput struct {
	Cart          *model.Cart
	Order         *model.Order
	Method        model.PaymentMethod
	CustomerName  string
	CustomerEmail string
}

// RefundInput describes a refund against an order's latest capture
type RefundInput struct {
	Order  *model.Order
	Amount *int64
	Notes  string
	// GatewayReported marks refunds the gateway already executed, as reported
	// by a webhook. They are recorded without calling the gateway again.
	GatewayReported bool
	Reference       string
}

// CaptureInput is one capture-type ledger entry for an order
type CaptureInput struct {
	Order     *model.Order
	Session   *model.PaymentSession
	Status    model.TransactionStatus
	Amount    int64
	Reference string
	CardBrand string
	CardLast4 string
	Notes     string
	Meta      map[string]interface{}
}

type payable struct {
	ID       int64  `validate:"required"`
	Total    int64  `validate:"gt=0"`
	Currency string `validate:"required,len=3"`
}

// SessionOrchestrator creates gateway sessions and writes the ledger rows
// that accompany them
type SessionOrchestrator struct {
	sessions     repository.PaymentSessionRepository
	transactions repository.TransactionRepository
	commerce     repository.CommerceRepository
	transactor   repository.Transactor
	gateway      provider.Gateway
	locker       Locker
	validate     *validator.Validate
	config       OrchestratorConfig
	logger       *zap.Logger
	now          func() time.Time
}

func NewSessionOrchestrator(
	sessions repository.PaymentSessionRepository,
	transactions repository.TransactionRepository,
	commerce repository.CommerceRepository,
	transactor repository.Transactor,
	gateway provider.Gateway,
	locker Locker,
	config OrchestratorConfig,
	logger *zap.Logger,
) *SessionOrchestrator {
	if config.DefaultMethod == "" {
		config.DefaultMethod = model.PaymentMethodHosted
	}
	if config.SessionTTL <= 0 {
		config.SessionTTL = defaultSessionTTL
	}
	if config.GatewayTimeout <= 0 {
		config.GatewayTimeout = defaultGatewayLimit
	}

	return &SessionOrchestrator{
		sessions:     sessions,
		transactions: transactions,
		commerce:     commerce,
		transactor:   transactor,
		gateway:      gateway,
		locker:       locker,
		validate:     validator.New(),
		config:       config,
		logger:       logger,
		now:          time.Now,
	}
}

// CreateSession opens a gateway session for a cart or order. Gateway
// rejections come back as a failed transaction with a nil error; the error
// is reserved for invalid input, transient gateway outages and storage faults.
func (o *SessionOrchestrator) CreateSession(ctx context.Context, in CreateSessionInput) (*model.Transaction, error) {
	method := in.Method
	if method == "" {
		method = o.config.DefaultMethod
	}
	if method != model.PaymentMethodHosted && method != model.PaymentMethodEmbedded {
		return nil, domainErrors.With(domainErrors.ErrUnsupportedMethod,
			fmt.Sprintf("Unsupported payment method: %s", method), nil)
	}

	cart, order, err := o.resolvePayable(ctx, in)
	if err != nil {
		return nil, err
	}

	target := payable{ID: cart.ID, Total: cart.Total, Currency: cart.Currency}
	if order != nil {
		target = payable{ID: order.ID, Total: order.Total, Currency: order.Currency}
	}
	if err := o.validate.Struct(target); err != nil {
		return nil, domainErrors.Validation("Cart must have an id and a positive total")
	}

	name, email, err := o.resolveCustomer(cart, in, method)
	if err != nil {
		return nil, err
	}

	paymentID := fmt.Sprintf("cart-%d-%s", cart.ID, uuid.NewString())
	logger := o.logger.With(
		zap.Int64("cart_id", cart.ID),
		zap.String("payment_id", paymentID),
		zap.String("method", string(method)))

	req := &provider.SessionRequest{
		PaymentID:     paymentID,
		Amount:        money.ToMajor(target.Total, target.Currency),
		Currency:      strings.ToUpper(target.Currency),
		Description:   fmt.Sprintf("Cart #%d", cart.ID),
		CustomerName:  name,
		CustomerEmail: email,
		SuccessURL:    o.config.SuccessURL,
		CancelURL:     o.config.CancelURL,
		CaptureMethod: o.config.CaptureMethod,
		ExpiresAt:     o.now().Add(o.config.SessionTTL),
		Metadata: map[string]string{
			"payment_id": paymentID,
			"cart_id":    fmt.Sprintf("%d", cart.ID),
		},
	}

	data, err := o.openSession(ctx, method, req)
	if err == nil && data.SessionID == "" {
		err = provider.NewPermanentError("missing_session", "gateway returned no session id", "")
	}
	if err != nil {
		if gatewayErrorKind(err) == provider.ErrorKindTransient {
			logger.Warn("Gateway unavailable while creating session", zap.Error(err))
			return nil, domainErrors.With(domainErrors.ErrGatewayTransient, "", err)
		}
		logger.Warn("Gateway rejected session", zap.Error(err))
		return o.recordSessionFailure(ctx, cart, order, paymentID, method, target, err)
	}

	// The gateway session exists now; a client disconnect must not lose it
	persistCtx := context.WithoutCancel(ctx)

	expiresAt := data.ExpiresAt
	if expiresAt == nil {
		expiresAt = &req.ExpiresAt
	}

	session := &model.PaymentSession{
		SessionID:    data.SessionID,
		PaymentID:    paymentID,
		Method:       method,
		Status:       model.SessionStatusPending,
		Amount:       target.Total,
		Currency:     req.Currency,
		CheckoutURL:  optional(data.CheckoutURL),
		PortalURL:    optional(data.PortalURL),
		ClientSecret: optional(data.ClientSecret),
		ExpiresAt:    expiresAt,
	}

	meta := datatypes.JSONMap{
		"cart_id":    cart.ID,
		"session_id": data.SessionID,
		"payment_id": paymentID,
		"method":     string(method),
	}
	if data.CheckoutURL != "" {
		meta["checkout_url"] = data.CheckoutURL
	}
	if data.PortalURL != "" {
		meta["portal_url"] = data.PortalURL
	}

	tx := &model.Transaction{
		OrderID:   orderID(order),
		CartID:    &cart.ID,
		SessionID: &session.SessionID,
		Driver:    o.gateway.Name(),
		Type:      model.TransactionTypeCapture,
		Success:   false,
		Status:    model.TransactionStatusPending,
		Amount:    target.Total,
		Currency:  req.Currency,
		Reference: data.SessionID,
		Meta:      meta,
	}

	err = o.transactor.WithinTransaction(persistCtx, func(ctx context.Context) error {
		if err := o.sessions.Create(ctx, session); err != nil {
			return err
		}
		if err := o.commerce.TagCartWithPaymentID(ctx, cart.ID, paymentID); err != nil {
			return err
		}
		return o.transactions.Create(ctx, tx)
	})
	if err != nil {
		logger.Error("Failed to persist payment session",
			zap.String("session_id", data.SessionID),
			zap.Error(err))
		return nil, domainErrors.Internal(err)
	}

	logger.Info("Payment session created",
		zap.String("session_id", session.SessionID),
		zap.Int64("amount", session.Amount),
		zap.String("currency", session.Currency))

	return tx, nil
}

func (o *SessionOrchestrator) resolvePayable(ctx context.Context, in CreateSessionInput) (*model.Cart, *model.Order, error) {
	if in.Cart == nil && in.Order == nil {
		return nil, nil, domainErrors.Validation("A cart or order is required")
	}
	if in.Cart != nil {
		return in.Cart, in.Order, nil
	}

	cart, err := o.commerce.FindCartByID(ctx, in.Order.CartID)
	if err != nil {
		return nil, nil, domainErrors.Internal(err)
	}
	if cart == nil {
		return nil, nil, domainErrors.ErrCartNotFound
	}
	return cart, in.Order, nil
}

// resolveCustomer applies explicit input, then the cart owner, then guest
// details. Embedded checkout needs a real name and a valid email.
func (o *SessionOrchestrator) resolveCustomer(cart *model.Cart, in CreateSessionInput, method model.PaymentMethod) (string, string, error) {
	name := firstNonEmpty(in.CustomerName, deref(cart.UserName), deref(cart.GuestName))
	email := firstNonEmpty(in.CustomerEmail, deref(cart.UserEmail), deref(cart.GuestEmail))

	if method == model.PaymentMethodEmbedded {
		if name == "" {
			return "", "", domainErrors.Validation("Customer name is required for embedded checkout")
		}
		if err := o.validate.Var(email, "required,email"); err != nil {
			return "", "", domainErrors.Validation("A valid customer email is required for embedded checkout")
		}
	}

	if name == "" {
		name = guestCustomerName
	}
	return name, email, nil
}

func (o *SessionOrchestrator) openSession(ctx context.Context, method model.PaymentMethod, req *provider.SessionRequest) (*provider.SessionData, error) {
	ctx, cancel := context.WithTimeout(ctx, o.config.GatewayTimeout)
	defer cancel()

	if method == model.PaymentMethodEmbedded {
		return o.gateway.CreateEmbeddedSession(ctx, req)
	}
	return o.gateway.CreateHostedSession(ctx, req)
}

func (o *SessionOrchestrator) recordSessionFailure(
	ctx context.Context,
	cart *model.Cart,
	order *model.Order,
	paymentID string,
	method model.PaymentMethod,
	target payable,
	cause error,
) (*model.Transaction, error) {
	notes := "Session creation failed: " + cause.Error()
	tx := &model.Transaction{
		OrderID:   orderID(order),
		CartID:    &cart.ID,
		Driver:    o.gateway.Name(),
		Type:      model.TransactionTypeCapture,
		Success:   false,
		Status:    model.TransactionStatusFailed,
		Amount:    target.Total,
		Currency:  strings.ToUpper(target.Currency),
		Reference: model.FailedReference,
		Notes:     &notes,
		Meta: datatypes.JSONMap{
			"error":      cause.Error(),
			"payment_id": paymentID,
			"cart_id":    cart.ID,
			"method":     string(method),
		},
	}

	if err := o.transactions.Create(context.WithoutCancel(ctx), tx); err != nil {
		return nil, domainErrors.Internal(err)
	}
	return tx, nil
}

// RecordCapture writes a capture-type ledger row for an order. Only captured
// and authorized rows count as successful.
func (o *SessionOrchestrator) RecordCapture(ctx context.Context, in CaptureInput) (*model.Transaction, error) {
	tx := &model.Transaction{
		OrderID:   &in.Order.ID,
		CartID:    &in.Order.CartID,
		SessionID: &in.Session.SessionID,
		Driver:    o.gateway.Name(),
		Type:      model.TransactionTypeCapture,
		Success:   in.Status == model.TransactionStatusCaptured || in.Status == model.TransactionStatusAuthorized,
		Status:    in.Status,
		Amount:    in.Amount,
		Currency:  in.Session.Currency,
		Reference: in.Reference,
		CardBrand: optional(in.CardBrand),
		LastFour:  optional(in.CardLast4),
		Notes:     optional(in.Notes),
		Meta:      datatypes.JSONMap(in.Meta),
	}
	if in.Status == model.TransactionStatusCaptured {
		now := o.now()
		tx.CapturedAt = &now
	}

	if err := o.transactions.Create(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// Refund refunds an order against its latest capture. Failures are recorded
// as unsuccessful refund rows and returned with a nil error; only invalid
// amounts and storage faults produce an error.
func (o *SessionOrchestrator) Refund(ctx context.Context, in RefundInput) (*model.Transaction, error) {
	if in.Order == nil {
		return nil, domainErrors.ErrOrderNotFoundForRefund
	}
	if in.Amount != nil && *in.Amount <= 0 {
		return nil, domainErrors.Validation("Refund amount must be positive")
	}

	logger := o.logger.With(
		zap.Int64("order_id", in.Order.ID),
		zap.Bool("gateway_reported", in.GatewayReported))

	capture, err := o.transactions.FindLatestCapture(ctx, in.Order.ID)
	if err != nil {
		return nil, domainErrors.Internal(err)
	}

	notes := in.Notes
	if notes == "" {
		notes = defaultRefundNote
		if in.GatewayReported {
			notes = webhookRefundNote
		}
	}

	if capture == nil {
		amount := int64(0)
		if in.Amount != nil {
			amount = *in.Amount
		}
		logger.Warn("Refund requested for order without a capture")
		return o.recordRefundFailure(ctx, in.Order, nil, "", amount, in.Order.Currency, domainErrors.ErrOriginalCaptureMissing)
	}

	amount := capture.Amount
	if in.Amount != nil {
		amount = *in.Amount
	}

	sessionID := capture.Reference
	if capture.SessionID != nil && *capture.SessionID != "" {
		sessionID = *capture.SessionID
	}

	if in.GatewayReported {
		if existing, err := o.findRecordedRefund(ctx, in.Order.ID, in.Reference); err != nil {
			return nil, domainErrors.Internal(err)
		} else if existing != nil {
			logger.Info("Refund already recorded", zap.String("reference", in.Reference))
			return existing, nil
		}
	} else {
		release, err := o.locker.Acquire(ctx, sessionLockKey(sessionID))
		if err != nil {
			return nil, domainErrors.Internal(err)
		}
		defer release()

		refunded, err := o.transactions.SumRefunded(ctx, in.Order.ID)
		if err != nil {
			return nil, domainErrors.Internal(err)
		}
		if amount > capture.Amount-refunded {
			return nil, domainErrors.Validation(fmt.Sprintf("Refund amount exceeds refundable balance of %s %s",
				money.Format(capture.Amount-refunded, capture.Currency), capture.Currency))
		}
	}

	session, err := o.sessions.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, domainErrors.Internal(err)
	}
	if session == nil {
		logger.Warn("Refund session not found", zap.String("session_id", sessionID))
		return o.recordRefundFailure(ctx, in.Order, capture, sessionID, amount, capture.Currency, domainErrors.ErrSessionNotFound)
	}

	reference := in.Reference
	if !in.GatewayReported {
		refundID, refundedAmount, err := o.executeRefund(ctx, session, amount, notes)
		if err != nil {
			logger.Warn("Gateway refund failed",
				zap.String("session_id", sessionID),
				zap.Int64("amount", amount),
				zap.Error(err))
			return o.recordRefundFailure(ctx, in.Order, capture, sessionID, amount, capture.Currency, err)
		}
		reference = refundID
		amount = refundedAmount
	}
	if reference == "" {
		reference = sessionID
	}

	tx := &model.Transaction{
		OrderID:   &in.Order.ID,
		CartID:    capture.CartID,
		SessionID: &session.SessionID,
		Driver:    o.gateway.Name(),
		Type:      model.TransactionTypeRefund,
		Success:   true,
		Status:    model.TransactionStatusRefunded,
		Amount:    amount,
		Currency:  capture.Currency,
		Reference: reference,
		CardBrand: capture.CardBrand,
		LastFour:  capture.LastFour,
		Notes:     &notes,
		Meta: datatypes.JSONMap{
			"refund_amount":           amount,
			"original_transaction_id": capture.ID,
			"session_id":              session.SessionID,
		},
	}
	if err := o.transactions.Create(context.WithoutCancel(ctx), tx); err != nil {
		return nil, domainErrors.Internal(err)
	}

	logger.Info("Refund recorded",
		zap.String("session_id", session.SessionID),
		zap.String("reference", reference),
		zap.Int64("amount", amount))
	return tx, nil
}

// executeRefund calls the gateway and returns the refund id and the refunded
// amount in minor units
func (o *SessionOrchestrator) executeRefund(ctx context.Context, session *model.PaymentSession, amount int64, note string) (string, int64, error) {
	gctx, cancel := context.WithTimeout(ctx, o.config.GatewayTimeout)
	defer cancel()

	data, err := o.gateway.ProcessRefund(gctx, &provider.RefundRequest{
		SessionID: session.SessionID,
		Amount:    money.ToMajor(amount, session.Currency),
		Currency:  session.Currency,
		Note:      note,
	})
	if err != nil {
		return "", 0, err
	}

	refunded := amount
	if !data.Amount.IsZero() {
		minor, err := money.ToMinor(data.Amount, session.Currency)
		if err != nil {
			o.logger.Warn("Gateway refund amount not representable, keeping requested amount",
				zap.String("refund_id", data.RefundID),
				zap.Error(err))
		} else {
			refunded = minor
		}
	}
	return data.RefundID, refunded, nil
}

func (o *SessionOrchestrator) findRecordedRefund(ctx context.Context, orderID int64, reference string) (*model.Transaction, error) {
	if reference == "" {
		return nil, nil
	}
	rows, err := o.transactions.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row.Type == model.TransactionTypeRefund && row.Success && row.Reference == reference {
			return row, nil
		}
	}
	return nil, nil
}

func (o *SessionOrchestrator) recordRefundFailure(
	ctx context.Context,
	order *model.Order,
	capture *model.Transaction,
	sessionID string,
	amount int64,
	currency string,
	cause error,
) (*model.Transaction, error) {
	notes := "Refund failed: " + cause.Error()
	meta := datatypes.JSONMap{"error": cause.Error()}
	var sessionRef *string
	if sessionID != "" {
		sessionRef = &sessionID
		meta["session_id"] = sessionID
	}

	tx := &model.Transaction{
		OrderID:   &order.ID,
		CartID:    &order.CartID,
		SessionID: sessionRef,
		Driver:    o.gateway.Name(),
		Type:      model.TransactionTypeRefund,
		Success:   false,
		Status:    model.TransactionStatusFailed,
		Amount:    amount,
		Currency:  currency,
		Reference: model.FailedReference,
		Notes:     &notes,
		Meta:      meta,
	}
	if capture != nil {
		meta["original_transaction_id"] = capture.ID
	}

	if err := o.transactions.Create(context.WithoutCancel(ctx), tx); err != nil {
		return nil, domainErrors.Internal(err)
	}
	return tx, nil
}

// Session returns the stored session or SessionNotFound
func (o *SessionOrchestrator) Session(ctx context.Context, sessionID string) (*model.PaymentSession, error) {
	session, err := o.sessions.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, domainErrors.Internal(err)
	}
	if session == nil {
		return nil, domainErrors.ErrSessionNotFound
	}
	return session, nil
}

// Cart loads a cart or returns CartNotFound
func (o *SessionOrchestrator) Cart(ctx context.Context, cartID int64) (*model.Cart, error) {
	cart, err := o.commerce.FindCartByID(ctx, cartID)
	if err != nil {
		return nil, domainErrors.Internal(err)
	}
	if cart == nil {
		return nil, domainErrors.ErrCartNotFound
	}
	return cart, nil
}

// Order loads an order or returns OrderNotFound
func (o *SessionOrchestrator) Order(ctx context.Context, orderID int64) (*model.Order, error) {
	order, err := o.commerce.FindOrderByID(ctx, orderID)
	if err != nil {
		return nil, domainErrors.Internal(err)
	}
	if order == nil {
		return nil, domainErrors.ErrOrderNotFound
	}
	return order, nil
}

// SessionStatus is the polling projection of a session
func (o *SessionOrchestrator) SessionStatus(ctx context.Context, sessionID string) (*entity.SessionStatus, error) {
	session, err := o.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return entity.NewSessionStatus(session, o.now()), nil
}

// RetrieveGatewaySession asks the gateway for its current view of a session
func (o *SessionOrchestrator) RetrieveGatewaySession(ctx context.Context, sessionID string) (*provider.SessionData, error) {
	ctx, cancel := context.WithTimeout(ctx, o.config.GatewayTimeout)
	defer cancel()

	data, err := o.gateway.RetrieveSession(ctx, sessionID)
	if err != nil {
		if gatewayErrorKind(err) == provider.ErrorKindTransient {
			return nil, domainErrors.With(domainErrors.ErrGatewayTransient, "", err)
		}
		return nil, domainErrors.With(domainErrors.ErrGatewayPermanent, "", err)
	}
	return data, nil
}

// gatewayErrorKind treats deadlines, cancellation and untyped failures as
// transient
func gatewayErrorKind(err error) provider.ErrorKind {
	var pe *provider.ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return provider.ErrorKindTransient
}

func orderID(order *model.Order) *int64 {
	if order == nil {
		return nil
	}
	return &order.ID
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
