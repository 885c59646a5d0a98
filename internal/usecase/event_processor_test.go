package usecase_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wekeepgrowing/payment-reconciler/internal/domain/event"
	"github.com/wekeepgrowing/payment-reconciler/internal/domain/model"
	apperrors "github.com/wekeepgrowing/payment-reconciler/pkg/errors"
)

func amountData(sessionID string, amount int64) event.Data {
	return event.Data{SessionID: sessionID, Amount: &amount}
}

func TestEventProcessor_TerminalStatusIsMonotonic(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultConfig())
	h.openSession(t, "sess_mono", 2500)

	result := h.processor.Apply(ctx, event.New(event.TypeCompleted, amountData("sess_mono", 2500)))
	require.True(t, result.Success, result.ErrorReason)
	txCount := h.count(t, &model.Transaction{}, "")

	for _, eventType := range []string{event.TypeFailed, event.TypeCancelled} {
		result = h.processor.Apply(ctx, event.New(eventType, event.Data{SessionID: "sess_mono", FailureReason: "late"}))
		assert.False(t, result.Success, eventType)
		assert.Equal(t, "SessionTerminal", result.ErrorReason)
		assert.Equal(t, apperrors.ErrInvalidArgument, result.Code)
		assert.Equal(t, model.SessionStatusCompleted, h.sessions.get(t, "sess_mono").Status)
	}

	// A repeated completion is a no-op
	result = h.processor.Apply(ctx, event.New(event.TypeCompleted, amountData("sess_mono", 2500)))
	assert.True(t, result.Success)
	assert.Equal(t, txCount, h.count(t, &model.Transaction{}, ""))
	assert.Equal(t, 1, h.publisher.count())
}

func TestEventProcessor_FailedBeforeOrder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultConfig())
	cart, _ := h.openSession(t, "sess_fail", 2500)

	result := h.processor.Apply(ctx, event.New(event.TypeFailed, event.Data{SessionID: "sess_fail"}))
	require.True(t, result.Success)

	session := h.sessions.get(t, "sess_fail")
	assert.Equal(t, model.SessionStatusFailed, session.Status)
	require.NotNil(t, session.FailureReason)
	assert.Equal(t, "Payment failed", *session.FailureReason)

	assert.Nil(t, h.commerce.orderFor(t, cart.ID))
	assert.Equal(t, int64(0), h.count(t, &model.Transaction{}, "status = ?", model.TransactionStatusFailed))

	// A capture reported afterwards is still booked, the status stays failed
	result = h.processor.Apply(ctx, event.New(event.TypeCompleted, amountData("sess_fail", 2500)))
	require.True(t, result.Success, result.ErrorReason)
	assert.Equal(t, model.SessionStatusFailed, h.sessions.get(t, "sess_fail").Status)
	order := h.commerce.orderFor(t, cart.ID)
	require.NotNil(t, order)
	assert.Equal(t, model.OrderStatusPaymentReceived, order.Status)
	assert.Equal(t, int64(1), h.count(t, &model.Transaction{}, "order_id = ? AND status = ?", order.ID, model.TransactionStatusCaptured))
}

func TestEventProcessor_LateCaptureOnCancelledSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultConfig())
	cart, _ := h.openSession(t, "sess_late", 2500)

	result := h.processor.Apply(ctx, event.New(event.TypeCancelled, event.Data{SessionID: "sess_late"}))
	require.True(t, result.Success)
	cancelled := h.sessions.get(t, "sess_late")
	require.Equal(t, model.SessionStatusCancelled, cancelled.Status)
	assert.Nil(t, h.commerce.orderFor(t, cart.ID))

	data := amountData("sess_late", 2500)
	data.CardBrand = "visa"
	data.CardLast4 = "4242"
	result = h.processor.Apply(ctx, event.New(event.TypeCompleted, data))
	require.True(t, result.Success, result.ErrorReason)

	session := h.sessions.get(t, "sess_late")
	assert.Equal(t, model.SessionStatusCancelled, session.Status)
	assert.Nil(t, session.CompletedAt)
	assert.Equal(t, cancelled.CancelledAt.Unix(), session.CancelledAt.Unix())

	order := h.commerce.orderFor(t, cart.ID)
	require.NotNil(t, order)
	assert.Equal(t, model.OrderStatusPaymentReceived, order.Status)

	var capture model.Transaction
	require.NoError(t, h.db.Where("order_id = ? AND status = ?", order.ID, model.TransactionStatusCaptured).First(&capture).Error)
	assert.True(t, capture.Success)
	assert.Equal(t, int64(2500), capture.Amount)
	require.NotNil(t, capture.LastFour)
	assert.Equal(t, "4242", *capture.LastFour)

	require.Equal(t, 2, h.publisher.count())

	// The same capture delivered again books nothing new
	result = h.processor.Apply(ctx, event.New(event.TypeCompleted, data))
	require.True(t, result.Success)
	assert.Equal(t, int64(1), h.count(t, &model.Transaction{}, "status = ?", model.TransactionStatusCaptured))
	assert.Equal(t, int64(1), h.count(t, &model.Order{}, "cart_id = ?", cart.ID))
	assert.Equal(t, 2, h.publisher.count())

	// Refunds against the late capture go through, the session stays cancelled
	result = h.processor.Apply(ctx, event.New(event.TypeRefunded, event.Data{SessionID: "sess_late", RefundID: "re_late"}))
	require.True(t, result.Success, result.Message)

	var refund model.Transaction
	require.NoError(t, h.db.Where("order_id = ? AND type = ?", order.ID, model.TransactionTypeRefund).First(&refund).Error)
	assert.True(t, refund.Success)
	assert.Equal(t, int64(2500), refund.Amount)
	assert.Equal(t, model.OrderStatusRefunded, h.commerce.orderFor(t, cart.ID).Status)
	assert.Equal(t, model.SessionStatusCancelled, h.sessions.get(t, "sess_late").Status)
}

func TestEventProcessor_Abandon(t *testing.T) {
	ctx := context.Background()

	t.Run("without an order nothing is written", func(t *testing.T) {
		h := newHarness(t, defaultConfig())
		cart, _ := h.openSession(t, "sess_left", 2500)
		before := h.count(t, &model.Transaction{}, "")

		result := h.processor.Abandon(ctx, "sess_left", "Cancelled by customer")
		require.True(t, result.Success)

		session := h.sessions.get(t, "sess_left")
		assert.Equal(t, model.SessionStatusPending, session.Status)
		assert.Nil(t, session.CancelledAt)
		assert.Equal(t, before, h.count(t, &model.Transaction{}, ""))

		// The gateway can still settle the session
		result = h.processor.Apply(ctx, event.New(event.TypeCompleted, amountData("sess_left", 2500)))
		require.True(t, result.Success, result.ErrorReason)
		assert.Equal(t, model.SessionStatusCompleted, h.sessions.get(t, "sess_left").Status)
		assert.NotNil(t, h.commerce.orderFor(t, cart.ID))
	})

	t.Run("with an order one cancelled row is written", func(t *testing.T) {
		h := newHarness(t, defaultConfig())
		cart, _ := h.openSession(t, "sess_left_order", 2500)
		order := &model.Order{CartID: cart.ID, Reference: "ORD-A", Status: model.OrderStatusAwaitingPayment, Total: 2500, Currency: "USD"}
		require.NoError(t, h.db.Create(order).Error)

		for i := 0; i < 2; i++ {
			result := h.processor.Abandon(ctx, "sess_left_order", "Cancelled by customer")
			require.True(t, result.Success)
		}

		var rows []model.Transaction
		require.NoError(t, h.db.Where("order_id = ?", order.ID).Find(&rows).Error)
		require.Len(t, rows, 1)
		assert.Equal(t, model.TransactionStatusCancelled, rows[0].Status)
		assert.False(t, rows[0].Success)
		assert.Equal(t, "Cancelled by customer", *rows[0].Notes)
		assert.Equal(t, model.SessionStatusPending, h.sessions.get(t, "sess_left_order").Status)
		assert.Equal(t, 0, h.publisher.count())
	})

	t.Run("unknown session", func(t *testing.T) {
		h := newHarness(t, defaultConfig())
		result := h.processor.Abandon(ctx, "sess_missing", "")
		assert.False(t, result.Success)
		assert.Equal(t, "SessionNotFound", result.ErrorReason)
	})
}

func TestEventProcessor_FailedWithExistingOrder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultConfig())
	cart, _ := h.openSession(t, "sess_retry", 2500)
	order := &model.Order{CartID: cart.ID, Reference: "ORD-R", Status: model.OrderStatusAwaitingPayment, Total: 2500, Currency: "USD"}
	require.NoError(t, h.db.Create(order).Error)

	result := h.processor.Apply(ctx, event.New(event.TypeCancelled, event.Data{SessionID: "sess_retry", FailureReason: "buyer closed the page"}))
	require.True(t, result.Success)

	var row model.Transaction
	require.NoError(t, h.db.Where("order_id = ?", order.ID).First(&row).Error)
	assert.False(t, row.Success)
	assert.Equal(t, model.TransactionStatusCancelled, row.Status)
	assert.Equal(t, "buyer closed the page", *row.Notes)

	session := h.sessions.get(t, "sess_retry")
	assert.Equal(t, model.SessionStatusCancelled, session.Status)
	assert.NotNil(t, session.CancelledAt)
}

func TestEventProcessor_ConcurrentCompletions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultConfig())
	cart, _ := h.openSession(t, "sess_race", 2500)

	var wg sync.WaitGroup
	results := make([]bool, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = h.processor.Apply(ctx, event.New(event.TypeCompleted, amountData("sess_race", 2500))).Success
		}(i)
	}
	wg.Wait()

	for _, ok := range results {
		assert.True(t, ok)
	}
	assert.Equal(t, int64(1), h.count(t, &model.Order{}, "cart_id = ?", cart.ID))
	assert.Equal(t, int64(1), h.count(t, &model.Transaction{}, "status = ?", model.TransactionStatusCaptured))
	assert.Equal(t, 1, h.publisher.count())
}

func TestEventProcessor_ResolutionFailures(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultConfig())

	result := h.processor.Apply(ctx, event.New(event.TypeCompleted, amountData("sess_none", 100)))
	assert.False(t, result.Success)
	assert.Equal(t, "SessionNotFound", result.ErrorReason)
	assert.Equal(t, apperrors.ErrNotFound, result.Code)

	// Orphaned session: the cart no longer carries the tag
	cart, _ := h.openSession(t, "sess_orphan", 100)
	require.NoError(t, h.db.Model(&model.Cart{}).Where("id = ?", cart.ID).Update("payment_id", nil).Error)

	result = h.processor.Apply(ctx, event.New(event.TypeCompleted, amountData("sess_orphan", 100)))
	assert.False(t, result.Success)
	assert.Equal(t, "CartNotFound", result.ErrorReason)
	assert.Equal(t, model.SessionStatusPending, h.sessions.get(t, "sess_orphan").Status)

	result = h.processor.Apply(ctx, event.New(event.TypeRefunded, event.Data{SessionID: "sess_none"}))
	assert.Equal(t, "SessionNotFound", result.ErrorReason)
}

func TestEventProcessor_RefundRequiresOrder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultConfig())
	h.openSession(t, "sess_norder", 2500)

	refund := int64(500)
	result := h.processor.Apply(ctx, event.New(event.TypeRefunded, event.Data{SessionID: "sess_norder", RefundAmount: &refund}))
	assert.False(t, result.Success)
	assert.Equal(t, "OrderNotFoundForRefund", result.ErrorReason)
	assert.Equal(t, int64(0), h.count(t, &model.Transaction{}, "type = ?", model.TransactionTypeRefund))
}

func TestEventProcessor_FullRefundAndDuplicateRefundID(t *testing.T) {
	ctx := context.Background()
	cfg := defaultConfig()
	cfg.AutoFulfill = true
	h := newHarness(t, cfg)
	order := completeOrder(t, h, "sess_full", 2500)
	assert.Equal(t, model.OrderStatusFulfilled, order.Status)

	data := event.Data{SessionID: "sess_full", RefundID: "re_same"}
	result := h.processor.Apply(ctx, event.New(event.TypePartiallyRefunded, data))
	require.True(t, result.Success, result.Message)

	// Same refund reported again under a different event id
	result = h.processor.Apply(ctx, event.New(event.TypeRefunded, data))
	require.True(t, result.Success)

	var refunds []model.Transaction
	require.NoError(t, h.db.Where("type = ?", model.TransactionTypeRefund).Find(&refunds).Error)
	require.Len(t, refunds, 1)
	assert.Equal(t, int64(2500), refunds[0].Amount)
	assert.Equal(t, "Refund via webhook", *refunds[0].Notes)

	assert.Equal(t, model.OrderStatusRefunded, h.commerce.orderFor(t, order.CartID).Status)
}

func TestEventProcessor_UnknownEventNeedsNoSession(t *testing.T) {
	h := newHarness(t, defaultConfig())

	result := h.processor.Apply(context.Background(), event.New("payment.bonus_event", event.Data{SessionID: "sess_nowhere"}))
	assert.True(t, result.Success)
	assert.Equal(t, 0, h.publisher.count())
}
