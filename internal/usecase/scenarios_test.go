package usecase_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/wekeepgrowing/payment-reconciler/internal/domain/model"
	"github.com/wekeepgrowing/payment-reconciler/internal/domain/provider"
)

func completedBody(eventID, sessionID string, amount int64) string {
	return fmt.Sprintf(`{"id":%q,"type":"payment.completed","data":{"session_id":%q,"amount":%d,"transaction_id":"txn_%s","card_brand":"visa","card_last4":"4242"}}`,
		eventID, sessionID, amount, sessionID)
}

func TestCheckoutLifecycle(t *testing.T) {
	h := newHarness(t, defaultConfig())

	// Scenario A: hosted session for a $25.00 cart
	cart, pending := h.openSession(t, "sess_A", 2500)

	assert.Equal(t, "sess_A", pending.Reference)
	assert.Equal(t, model.TransactionStatusPending, pending.Status)
	assert.False(t, pending.Success)

	h.gateway.AssertCalled(t, "CreateHostedSession", mock.Anything, mock.MatchedBy(func(r *provider.SessionRequest) bool {
		return r.Amount.Equal(decimal.RequireFromString("25.00")) && r.Currency == "USD"
	}))

	session := h.sessions.get(t, "sess_A")
	assert.Equal(t, int64(2500), session.Amount)
	assert.Equal(t, "USD", session.Currency)
	assert.Equal(t, model.SessionStatusPending, session.Status)
	require.NotNil(t, session.ExpiresAt)

	// The cart tag resolves back to the same cart
	var tagged model.Cart
	require.NoError(t, h.db.Where("payment_id = ?", session.PaymentID).First(&tagged).Error)
	assert.Equal(t, cart.ID, tagged.ID)

	// Scenario B: completed webhook
	resp := h.deliver(completedBody("evt_B", "sess_A", 2500))
	require.Equal(t, http.StatusOK, resp.Status, resp.Body)
	assert.Equal(t, true, resp.Body["success"])

	order := h.commerce.orderFor(t, cart.ID)
	require.NotNil(t, order)
	assert.Equal(t, model.OrderStatusPaymentReceived, order.Status)

	var capture model.Transaction
	require.NoError(t, h.db.Where("order_id = ? AND type = ?", order.ID, model.TransactionTypeCapture).First(&capture).Error)
	assert.True(t, capture.Success)
	assert.Equal(t, model.TransactionStatusCaptured, capture.Status)
	assert.Equal(t, int64(2500), capture.Amount)
	assert.Equal(t, "txn_sess_A", capture.Reference)
	assert.NotNil(t, capture.CapturedAt)

	session = h.sessions.get(t, "sess_A")
	assert.Equal(t, model.SessionStatusCompleted, session.Status)
	assert.NotNil(t, session.CompletedAt)
	assert.Equal(t, "4242", *session.CardLast4)
	assert.Equal(t, 1, h.publisher.count())

	txCount := h.count(t, &model.Transaction{}, "")

	// Scenario C: same event id delivered again
	resp = h.deliver(completedBody("evt_B", "sess_A", 2500))
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, true, resp.Body["duplicate"])
	assert.Equal(t, int64(1), h.count(t, &model.WebhookEvent{}, "event_id = ?", "evt_B"))
	assert.Equal(t, int64(1), h.count(t, &model.WebhookEvent{}, "event_id = ? AND status = ?", "evt_B", model.WebhookStatusProcessed))
	assert.Equal(t, txCount, h.count(t, &model.Transaction{}, ""))

	// Scenario D: partial refund reported by the gateway
	resp = h.deliver(`{"id":"evt_D","type":"payment.refunded","data":{"session_id":"sess_A","refund_amount":1000,"refund_id":"re_1"}}`)
	require.Equal(t, http.StatusOK, resp.Status, resp.Body)

	var refund model.Transaction
	require.NoError(t, h.db.Where("type = ?", model.TransactionTypeRefund).First(&refund).Error)
	assert.True(t, refund.Success)
	assert.Equal(t, int64(1000), refund.Amount)
	assert.Equal(t, model.TransactionStatusRefunded, refund.Status)
	assert.Equal(t, "re_1", refund.Reference)
	assert.Equal(t, float64(capture.ID), refund.Meta["original_transaction_id"])

	var original model.Transaction
	require.NoError(t, h.db.First(&original, capture.ID).Error)
	assert.Equal(t, int64(2500), original.Amount)
	assert.Equal(t, model.TransactionStatusCaptured, original.Status)

	order = h.commerce.orderFor(t, cart.ID)
	assert.Equal(t, model.OrderStatusPartiallyRefunded, order.Status)
	assert.Equal(t, model.SessionStatusCompleted, h.sessions.get(t, "sess_A").Status)
	h.gateway.AssertNotCalled(t, "ProcessRefund", mock.Anything, mock.Anything)

	txCount = h.count(t, &model.Transaction{}, "")

	// Scenario E: unknown event type
	resp = h.deliver(`{"id":"evt_E","type":"payment.bonus_event","data":{"session_id":"sess_A"}}`)
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, int64(1), h.count(t, &model.WebhookEvent{}, "event_id = ? AND status = ?", "evt_E", model.WebhookStatusProcessed))
	assert.Equal(t, txCount, h.count(t, &model.Transaction{}, ""))
	assert.Equal(t, model.SessionStatusCompleted, h.sessions.get(t, "sess_A").Status)
}

func TestIngest_InvalidSignature(t *testing.T) {
	h := newHarness(t, defaultConfig())
	h.openSession(t, "sess_F", 2500)

	body := completedBody("evt_F", "sess_F", 2500)
	header := http.Header{}
	header.Set("X-Prahsys-Signature", "deadbeef")

	resp := h.ingestor.Ingest(context.Background(), ingestRequest(header, body))

	assert.Equal(t, http.StatusUnauthorized, resp.Status)
	assert.Equal(t, "Invalid signature", resp.Body["error"])
	assert.Equal(t, int64(0), h.count(t, &model.WebhookEvent{}, ""))
	assert.Equal(t, model.SessionStatusPending, h.sessions.get(t, "sess_F").Status)
}

func TestIngest_InvalidPayload(t *testing.T) {
	h := newHarness(t, defaultConfig())

	for _, body := range []string{`not json`, `{"id":"evt_1","data":{"session_id":"s"}}`, `{"id":"evt_1","type":"payment.completed","data":{}}`} {
		resp := h.deliver(body)
		assert.Equal(t, http.StatusBadRequest, resp.Status, body)
		assert.Equal(t, "Invalid webhook payload", resp.Body["error"])
	}
	assert.Equal(t, int64(0), h.count(t, &model.WebhookEvent{}, ""))
}

func TestIngest_SessionNotFoundThenRetry(t *testing.T) {
	h := newHarness(t, defaultConfig())
	body := completedBody("evt_early", "sess_late", 1500)

	resp := h.deliver(body)
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	assert.Equal(t, "Payment session not found", resp.Body["error"])

	var row model.WebhookEvent
	require.NoError(t, h.db.Where("event_id = ?", "evt_early").First(&row).Error)
	assert.Equal(t, model.WebhookStatusFailed, row.Status)
	require.NotNil(t, row.FailureReason)
	assert.Equal(t, "SessionNotFound", *row.FailureReason)

	// The session shows up later and the gateway redelivers
	h.openSession(t, "sess_late", 1500)
	resp = h.deliver(body)
	assert.Equal(t, http.StatusOK, resp.Status, resp.Body)

	require.NoError(t, h.db.Where("event_id = ?", "evt_early").First(&row).Error)
	assert.Equal(t, model.WebhookStatusProcessed, row.Status)
	assert.Equal(t, 2, row.Attempts)
	assert.Nil(t, row.FailureReason)
	assert.Equal(t, int64(1), h.count(t, &model.WebhookEvent{}, ""))
}

func TestIngest_LegacyPathIsAtLeastOnce(t *testing.T) {
	h := newHarness(t, defaultConfig())
	h.openSession(t, "sess_legacy", 900)

	body := `{"session_id":"sess_legacy","status":"captured","amount":900}`
	for i := 0; i < 2; i++ {
		resp := h.ingestor.Ingest(context.Background(), legacyRequest(body))
		assert.Equal(t, http.StatusOK, resp.Status, resp.Body)
	}

	assert.Equal(t, int64(2), h.count(t, &model.WebhookEvent{}, "source = ?", model.WebhookSourceLegacy))
	// The second delivery finds the session completed and records nothing new
	assert.Equal(t, int64(1), h.count(t, &model.Transaction{}, "type = ? AND status = ?", model.TransactionTypeCapture, model.TransactionStatusCaptured))
}

func TestReplay_ReappliesFailedEvents(t *testing.T) {
	h := newHarness(t, defaultConfig())

	resp := h.deliver(completedBody("evt_replay", "sess_replay", 700))
	require.Equal(t, http.StatusBadRequest, resp.Status)

	h.openSession(t, "sess_replay", 700)

	report, err := h.ingestor.Replay(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, model.SessionStatusCompleted, h.sessions.get(t, "sess_replay").Status)

	report, err = h.ingestor.Replay(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Processed)
}

func TestEventStatus(t *testing.T) {
	h := newHarness(t, defaultConfig())
	h.openSession(t, "sess_status", 100)
	require.Equal(t, http.StatusOK, h.deliver(completedBody("evt_status", "sess_status", 100)).Status)

	status, err := h.ingestor.EventStatus(context.Background(), "evt_status")
	require.NoError(t, err)
	assert.Equal(t, "processed", status.Status)
	assert.Equal(t, "payment.completed", status.EventType)
	assert.NotNil(t, status.ProcessedAt)

	_, err = h.ingestor.EventStatus(context.Background(), "evt_missing")
	assert.Error(t, err)
}
