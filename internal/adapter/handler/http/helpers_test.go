package http

import (
	"context"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/wekeepgrowing/payment-reconciler/internal/config"
	"github.com/wekeepgrowing/payment-reconciler/internal/domain/model"
	"github.com/wekeepgrowing/payment-reconciler/internal/domain/provider"
	"github.com/wekeepgrowing/payment-reconciler/internal/infrastructure/database"
	"github.com/wekeepgrowing/payment-reconciler/internal/infrastructure/events"
	"github.com/wekeepgrowing/payment-reconciler/internal/infrastructure/lock"
	"github.com/wekeepgrowing/payment-reconciler/internal/infrastructure/signature"
	"github.com/wekeepgrowing/payment-reconciler/internal/usecase"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testWebhookSecret = "whsec_handler"
	testCartURL       = "https://shop.example.com/cart"
	testOrderURL      = "https://shop.example.com/orders"
)

// MockGateway is a mock implementation of provider.Gateway
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateHostedSession(ctx context.Context, req *provider.SessionRequest) (*provider.SessionData, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.SessionData), args.Error(1)
}

func (m *MockGateway) CreateEmbeddedSession(ctx context.Context, req *provider.SessionRequest) (*provider.SessionData, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.SessionData), args.Error(1)
}

func (m *MockGateway) ProcessRefund(ctx context.Context, req *provider.RefundRequest) (*provider.RefundData, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.RefundData), args.Error(1)
}

func (m *MockGateway) RetrieveSession(ctx context.Context, sessionID string) (*provider.SessionData, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.SessionData), args.Error(1)
}

func (m *MockGateway) Name() string { return "stripe" }

type testEnv struct {
	db       *gorm.DB
	gateway  *MockGateway
	checkout *CheckoutHandler
	webhooks *WebhookHandler
	refunds  *RefundHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := zap.NewNop()

	db, err := database.NewConnection(&config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "handler.db"),
	}, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db, log) })
	require.NoError(t, database.Migrate(db, log))

	repos := database.NewRepositories(db, log)
	locker := lock.NewLocalLocker()
	gateway := new(MockGateway)

	verifier, err := signature.NewVerifier(signature.SchemeHMAC, testWebhookSecret, 0, log)
	require.NoError(t, err)

	orchestrator := usecase.NewSessionOrchestrator(repos.Sessions, repos.Transactions, repos.Commerce, repos.Transactor,
		gateway, locker, usecase.OrchestratorConfig{
			DefaultMethod: model.PaymentMethodHosted,
			SuccessURL:    "https://shop.example.com/checkout/success",
			CancelURL:     "https://shop.example.com/checkout/cancel",
		}, log)
	processor := usecase.NewEventProcessor(repos.Sessions, repos.Transactions, repos.Commerce, repos.Transactor,
		orchestrator, locker, events.NewLogPublisher(log), log)
	ingestor := usecase.NewWebhookIngestor(repos.Webhooks, processor, verifier, locker, log)

	return &testEnv{
		db:       db,
		gateway:  gateway,
		checkout: NewCheckoutHandler(orchestrator, processor, testCartURL, testOrderURL, log),
		webhooks: NewWebhookHandler(ingestor, log),
		refunds:  NewRefundHandler(orchestrator, log),
	}
}

func (env *testEnv) seedCart(t *testing.T, total int64) *model.Cart {
	t.Helper()
	email := "buyer@example.com"
	name := "Jane Buyer"
	cart := &model.Cart{UserEmail: &email, UserName: &name, Total: total, Currency: "USD"}
	require.NoError(t, env.db.Create(cart).Error)
	return cart
}

// expectHostedSession makes the gateway answer the next hosted checkout
func (env *testEnv) expectHostedSession(sessionID string) {
	env.gateway.On("CreateHostedSession", mock.Anything, mock.Anything).Return(&provider.SessionData{
		SessionID:    sessionID,
		Status:       provider.PaymentStatusPending,
		CheckoutURL:  "https://pay.example.com/" + sessionID,
		ClientSecret: "secret_" + sessionID,
	}, nil).Once()
}

func newJSONRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderAccept, echo.MIMEApplicationJSON)
	return req
}

func signedRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/gateway", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(signature.HMACHeader, hex.EncodeToString(signature.Sign([]byte(testWebhookSecret), []byte(body))))
	return req
}

func serve(t *testing.T, handler echo.HandlerFunc, req *http.Request, params ...string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if len(params) > 0 {
		names := make([]string, 0, len(params)/2)
		values := make([]string, 0, len(params)/2)
		for i := 0; i+1 < len(params); i += 2 {
			names = append(names, params[i])
			values = append(values, params[i+1])
		}
		c.SetParamNames(names...)
		c.SetParamValues(values...)
	}
	require.NoError(t, handler(c))
	return rec
}
