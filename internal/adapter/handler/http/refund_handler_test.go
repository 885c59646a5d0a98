package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/wekeepgrowing/payment-reconciler/internal/domain/model"
	"github.com/wekeepgrowing/payment-reconciler/internal/domain/provider"
	"github.com/wekeepgrowing/payment-reconciler/internal/middleware/auth"
	"go.uber.org/zap"
)

const testJWTSecret = "jwt-secret"

func merchantToken(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "merchant-1",
		"role": "admin",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}

// paidOrder runs a cart through checkout and a completed webhook
func (env *testEnv) paidOrder(t *testing.T, sessionID string, total int64) *model.Order {
	t.Helper()
	cart := env.seedCart(t, total)
	env.expectHostedSession(sessionID)
	serve(t, env.checkout.Create,
		newJSONRequest(http.MethodPost, "/api/v1/checkout", fmt.Sprintf(`{"cart_id":%d}`, cart.ID)))

	rec := serve(t, env.webhooks.Handle, signedRequest(completedEvent("evt_"+sessionID, sessionID)))
	require.Equal(t, http.StatusOK, rec.Code)

	var order model.Order
	require.NoError(t, env.db.Where("cart_id = ?", cart.ID).First(&order).Error)
	return &order
}

func (env *testEnv) refund(t *testing.T, orderID string, body string, token string) *httptest.ResponseRecorder {
	t.Helper()
	handler := auth.JWTMiddleware(auth.JWTConfig{Secret: testJWTSecret, Logger: zap.NewNop()})(env.refunds.Create)

	req := newJSONRequest(http.MethodPost, "/api/v1/orders/"+orderID+"/refunds", body)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	return serve(t, handler, req, "orderId", orderID)
}

func TestRefundHandler_Create(t *testing.T) {
	t.Run("partial refund", func(t *testing.T) {
		env := newTestEnv(t)
		order := env.paidOrder(t, "cs_refund", 2500)

		env.gateway.On("ProcessRefund", mock.Anything, mock.MatchedBy(func(r *provider.RefundRequest) bool {
			return r.SessionID == "cs_refund" && r.Amount.Equal(decimal.RequireFromString("10"))
		})).Return(&provider.RefundData{
			RefundID: "re_1",
			Amount:   decimal.RequireFromString("10"),
			Status:   "succeeded",
		}, nil).Once()

		rec := env.refund(t, fmt.Sprintf("%d", order.ID), `{"amount":1000,"notes":"Damaged item"}`, merchantToken(t))
		require.Equal(t, http.StatusCreated, rec.Code)

		var resp RefundResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, int64(1000), resp.Amount)
		assert.Equal(t, "re_1", resp.Reference)
		assert.Equal(t, string(model.TransactionStatusRefunded), resp.Status)
		env.gateway.AssertExpectations(t)
	})

	t.Run("amount above balance", func(t *testing.T) {
		env := newTestEnv(t)
		order := env.paidOrder(t, "cs_over", 2500)

		rec := env.refund(t, fmt.Sprintf("%d", order.ID), `{"amount":2501}`, merchantToken(t))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "refundable balance")
		env.gateway.AssertNotCalled(t, "ProcessRefund", mock.Anything, mock.Anything)
	})

	t.Run("gateway declines", func(t *testing.T) {
		env := newTestEnv(t)
		order := env.paidOrder(t, "cs_declined", 2500)
		env.gateway.On("ProcessRefund", mock.Anything, mock.Anything).
			Return(nil, provider.NewPermanentError("charge_disputed", "Charge is disputed", "")).Once()

		rec := env.refund(t, fmt.Sprintf("%d", order.ID), `{}`, merchantToken(t))

		require.Equal(t, http.StatusBadRequest, rec.Code)
		var resp RefundResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		assert.Equal(t, string(model.TransactionStatusFailed), resp.Status)
		assert.NotEmpty(t, resp.Error)
	})

	t.Run("unknown order", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.refund(t, "4242", `{}`, merchantToken(t))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid order id", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.refund(t, "abc", `{}`, merchantToken(t))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("requires a token", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.refund(t, "1", `{}`, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
