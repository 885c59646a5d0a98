package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/wekeepgrowing/payment-reconciler/internal/domain/errors"
	"github.com/wekeepgrowing/payment-reconciler/internal/domain/event"
	"github.com/wekeepgrowing/payment-reconciler/internal/domain/model"
	"github.com/wekeepgrowing/payment-reconciler/internal/domain/repository"
	apperrors "github.com/wekeepgrowing/payment-reconciler/pkg/errors"
	"go.uber.org/zap"
)

const (
	defaultFailureReason = "Payment failed"
	defaultCancelReason  = "Payment cancelled"
)

// ProcessingResult is the outcome of applying one event. Code is a
// pkg/errors code and is empty on success.
type ProcessingResult struct {
	Success     bool
	ErrorReason string
	Message     string
	Code        string
}

// Internal reports whether the failure came from an unexpected fault
func (r ProcessingResult) Internal() bool {
	return !r.Success && r.Code == apperrors.ErrInternal
}

func succeeded() ProcessingResult {
	return ProcessingResult{Success: true}
}

func failed(err error) ProcessingResult {
	var pe *domainErrors.PaymentError
	if !errors.As(err, &pe) {
		pe = domainErrors.Internal(err)
	}
	return ProcessingResult{
		Success:     false,
		ErrorReason: pe.Reason,
		Message:     pe.Message,
		Code:        pe.Code(),
	}
}

// applyState is everything a transition reads, loaded under the session lock
type applyState struct {
	session *model.PaymentSession
	cart    *model.Cart
	order   *model.Order
}

// EventProcessor is the payment state machine
type EventProcessor struct {
	sessions     repository.PaymentSessionRepository
	transactions repository.TransactionRepository
	commerce     repository.CommerceRepository
	transactor   repository.Transactor
	orchestrator *SessionOrchestrator
	locker       Locker
	publisher    EventPublisher
	logger       *zap.Logger
}

func NewEventProcessor(
	sessions repository.PaymentSessionRepository,
	transactions repository.TransactionRepository,
	commerce repository.CommerceRepository,
	transactor repository.Transactor,
	orchestrator *SessionOrchestrator,
	locker Locker,
	publisher EventPublisher,
	logger *zap.Logger,
) *EventProcessor {
	return &EventProcessor{
		sessions:     sessions,
		transactions: transactions,
		commerce:     commerce,
		transactor:   transactor,
		orchestrator: orchestrator,
		locker:       locker,
		publisher:    publisher,
		logger:       logger,
	}
}

// Apply runs one event through the state machine. It never returns an error
// or panics; every outcome is a ProcessingResult.
func (p *EventProcessor) Apply(ctx context.Context, evt event.Event) (result ProcessingResult) {
	logger := p.logger.With(
		zap.String("session_id", evt.SessionID()),
		zap.String("event_type", evt.Type()))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic while applying payment event",
				zap.Any("panic", r),
				zap.Stack("stack"))
			result = failed(domainErrors.Internal(fmt.Errorf("panic: %v", r)))
		}
	}()

	if _, ok := evt.(event.Unknown); ok {
		logger.Info("Ignoring unhandled payment event type")
		return succeeded()
	}

	release, err := p.locker.Acquire(ctx, sessionLockKey(evt.SessionID()))
	if err != nil {
		apperrors.LogError(logger, err, "Failed to lock payment session")
		return failed(err)
	}
	defer release()

	var (
		notice  *event.PaymentEvent
		outcome *domainErrors.PaymentError
	)
	err = p.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		n, err := p.dispatch(ctx, evt)
		var pe *domainErrors.PaymentError
		if errors.As(err, &pe) && pe.Code() != apperrors.ErrInternal {
			// Business failures keep whatever the branch recorded
			outcome = pe
			return nil
		}
		if err != nil {
			return err
		}
		notice = n
		return nil
	})
	if err != nil {
		apperrors.LogError(logger, err, "Failed to apply payment event")
		return failed(err)
	}
	if outcome != nil {
		apperrors.LogError(logger, outcome, "Payment event rejected",
			zap.String("reason", outcome.Reason))
		return failed(outcome)
	}

	if notice != nil {
		p.publish(ctx, *notice)
	}
	logger.Info("Payment event applied")
	return succeeded()
}

// Abandon records that the customer left the hosted checkout. The session
// keeps its status so a capture the gateway reports afterwards still lands.
// When an order already exists a cancelled capture row is written once.
func (p *EventProcessor) Abandon(ctx context.Context, sessionID, reason string) (result ProcessingResult) {
	logger := p.logger.With(zap.String("session_id", sessionID))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic while abandoning payment session",
				zap.Any("panic", r),
				zap.Stack("stack"))
			result = failed(domainErrors.Internal(fmt.Errorf("panic: %v", r)))
		}
	}()

	release, err := p.locker.Acquire(ctx, sessionLockKey(sessionID))
	if err != nil {
		apperrors.LogError(logger, err, "Failed to lock payment session")
		return failed(err)
	}
	defer release()

	err = p.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		st, err := p.load(ctx, sessionID)
		if err != nil {
			return err
		}
		if st.order == nil || st.session.Status.IsTerminal() {
			return nil
		}

		rows, err := p.transactions.ListBySession(ctx, sessionID)
		if err != nil {
			return err
		}
		for _, row := range rows {
			if row.Type == model.TransactionTypeCapture && row.Status == model.TransactionStatusCancelled {
				return nil
			}
		}

		_, err = p.orchestrator.RecordCapture(ctx, CaptureInput{
			Order:     st.order,
			Session:   st.session,
			Status:    model.TransactionStatusCancelled,
			Amount:    st.session.Amount,
			Reference: sessionID,
			Notes:     firstNonEmpty(reason, defaultCancelReason),
		})
		return err
	})
	if err != nil {
		apperrors.LogError(logger, err, "Failed to abandon payment session")
		return failed(err)
	}

	logger.Info("Payment session abandoned by customer")
	return succeeded()
}

func (p *EventProcessor) dispatch(ctx context.Context, evt event.Event) (*event.PaymentEvent, error) {
	st, err := p.load(ctx, evt.SessionID())
	if err != nil {
		return nil, err
	}

	switch e := evt.(type) {
	case event.Completed:
		return p.complete(ctx, st, e)
	case event.Failed:
		return p.close(ctx, st, e, model.SessionStatusFailed, firstNonEmpty(e.Reason(), defaultFailureReason))
	case event.Cancelled:
		return p.close(ctx, st, e, model.SessionStatusCancelled, firstNonEmpty(e.Reason(), defaultCancelReason))
	case event.Refunded:
		return p.refund(ctx, st, e)
	case event.Unknown:
		return nil, nil
	default:
		return nil, fmt.Errorf("unhandled event %T", evt)
	}
}

func (p *EventProcessor) load(ctx context.Context, sessionID string) (*applyState, error) {
	session, err := p.sessions.FindForUpdate(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, domainErrors.ErrSessionNotFound
	}

	cart, err := p.commerce.FindCartByPaymentTag(ctx, session.PaymentID)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		p.logger.Error("Orphaned payment session, no cart carries its payment id",
			zap.String("session_id", sessionID),
			zap.String("payment_id", session.PaymentID))
		return nil, domainErrors.ErrCartNotFound
	}

	order, err := p.commerce.FindOrderByCart(ctx, cart.ID)
	if err != nil {
		return nil, err
	}

	return &applyState{session: session, cart: cart, order: order}, nil
}

// checkTransition reports whether moving to target is a no-op repeat, and
// rejects moves out of a different terminal status
func checkTransition(session *model.PaymentSession, target model.SessionStatus) (bool, error) {
	if session.Status == target {
		return true, nil
	}
	if session.Status.IsTerminal() {
		return false, domainErrors.With(domainErrors.ErrSessionTerminal,
			fmt.Sprintf("Payment session already %s", session.Status), nil)
	}
	return false, nil
}

func (p *EventProcessor) complete(ctx context.Context, st *applyState, e event.Completed) (*event.PaymentEvent, error) {
	if st.session.Status == model.SessionStatusCompleted {
		return nil, nil
	}
	// Money moved after the session closed. Record it without reopening.
	late := st.session.Status.IsTerminal()

	order := st.order
	if late && order != nil {
		prior, err := p.transactions.FindLatestCapture(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		if prior != nil {
			return nil, nil
		}
	}
	var err error
	if order == nil {
		order, err = p.commerce.CreateOrderFromCart(ctx, st.cart)
		if err != nil || order == nil {
			return nil, domainErrors.With(domainErrors.ErrOrderCreationFailed, "", err)
		}
	}

	amount := st.session.Amount
	if e.Amount() != nil {
		amount = *e.Amount()
	}
	reference := firstNonEmpty(e.Reference(), st.session.SessionID)
	data := e.Payload()

	tx, err := p.orchestrator.RecordCapture(ctx, CaptureInput{
		Order:     order,
		Session:   st.session,
		Status:    model.TransactionStatusCaptured,
		Amount:    amount,
		Reference: reference,
		CardBrand: data.CardBrand,
		CardLast4: data.CardLast4,
		Meta:      data.Snapshot(),
	})
	if err != nil {
		return nil, err
	}

	if late {
		p.logger.Warn("Capture reported for a closed payment session",
			zap.String("session_id", st.session.SessionID),
			zap.String("status", string(st.session.Status)),
			zap.Int64("order_id", order.ID))
	} else {
		now := time.Now()
		st.session.Status = model.SessionStatusCompleted
		st.session.CompletedAt = &now
		st.session.FailureReason = nil
		if data.CardBrand != "" {
			st.session.CardBrand = &data.CardBrand
		}
		if data.CardLast4 != "" {
			st.session.CardLast4 = &data.CardLast4
		}
		if err := p.sessions.Update(ctx, st.session); err != nil {
			return nil, err
		}
	}

	orderStatus := model.OrderStatusPaymentReceived
	if p.orchestrator.config.AutoFulfill {
		orderStatus = model.OrderStatusFulfilled
	}
	if err := p.commerce.UpdateOrderStatus(ctx, order.ID, orderStatus); err != nil {
		return nil, err
	}

	return p.notice(e, st.session, order, orderStatus, amount, tx.ID), nil
}

// close handles the failed and cancelled transitions
func (p *EventProcessor) close(ctx context.Context, st *applyState, e event.Event, target model.SessionStatus, reason string) (*event.PaymentEvent, error) {
	repeat, err := checkTransition(st.session, target)
	if err != nil || repeat {
		return nil, err
	}

	var txID int64
	if st.order != nil {
		status := model.TransactionStatusFailed
		if target == model.SessionStatusCancelled {
			status = model.TransactionStatusCancelled
		}
		amount := st.session.Amount
		if a := e.Payload().Amount; a != nil {
			amount = *a
		}
		tx, err := p.orchestrator.RecordCapture(ctx, CaptureInput{
			Order:     st.order,
			Session:   st.session,
			Status:    status,
			Amount:    amount,
			Reference: st.session.SessionID,
			Notes:     reason,
			Meta:      e.Payload().Snapshot(),
		})
		if err != nil {
			return nil, err
		}
		txID = tx.ID
	}

	now := time.Now()
	st.session.Status = target
	st.session.FailureReason = &reason
	if target == model.SessionStatusCancelled {
		st.session.CancelledAt = &now
	}
	if err := p.sessions.Update(ctx, st.session); err != nil {
		return nil, err
	}

	orderStatus := ""
	if st.order != nil {
		orderStatus = st.order.Status
	}
	return p.notice(e, st.session, st.order, orderStatus, st.session.Amount, txID), nil
}

func (p *EventProcessor) refund(ctx context.Context, st *applyState, e event.Refunded) (*event.PaymentEvent, error) {
	if st.order == nil {
		return nil, domainErrors.ErrOrderNotFoundForRefund
	}

	tx, err := p.orchestrator.Refund(ctx, RefundInput{
		Order:           st.order,
		Amount:          e.Amount(),
		Notes:           e.Reason(),
		GatewayReported: true,
		Reference:       e.Reference(),
	})
	if err != nil {
		return nil, err
	}
	if !tx.Success {
		return nil, domainErrors.With(domainErrors.ErrRefundFailed, "", errors.New(deref(tx.Notes)))
	}

	refunded, err := p.transactions.SumRefunded(ctx, st.order.ID)
	if err != nil {
		return nil, err
	}
	orderStatus := model.OrderStatusPartiallyRefunded
	if refunded >= st.order.Total {
		orderStatus = model.OrderStatusRefunded
	}
	if err := p.commerce.UpdateOrderStatus(ctx, st.order.ID, orderStatus); err != nil {
		return nil, err
	}

	return p.notice(e, st.session, st.order, orderStatus, tx.Amount, tx.ID), nil
}

func (p *EventProcessor) notice(e event.Event, session *model.PaymentSession, order *model.Order, orderStatus string, amount, txID int64) *event.PaymentEvent {
	n := &event.PaymentEvent{
		EventType:     e.Type(),
		SessionID:     session.SessionID,
		PaymentID:     session.PaymentID,
		SessionStatus: string(session.Status),
		OrderStatus:   orderStatus,
		Amount:        amount,
		Currency:      session.Currency,
		TransactionID: txID,
		OccurredAt:    time.Now(),
	}
	if order != nil {
		n.OrderID = &order.ID
	}
	return n
}

func (p *EventProcessor) publish(ctx context.Context, n event.PaymentEvent) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(context.WithoutCancel(ctx), n); err != nil {
		p.logger.Warn("Failed to publish payment event",
			zap.String("session_id", n.SessionID),
			zap.String("event_type", n.EventType),
			zap.Error(err))
	}
}
