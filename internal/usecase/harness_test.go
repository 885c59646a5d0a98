package usecase_test

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wekeepgrowing/payment-reconciler/internal/adapter/repository"
	"github.com/wekeepgrowing/payment-reconciler/internal/domain/event"
	"github.com/wekeepgrowing/payment-reconciler/internal/domain/model"
	"github.com/wekeepgrowing/payment-reconciler/internal/domain/provider"
	"github.com/wekeepgrowing/payment-reconciler/internal/infrastructure/lock"
	"github.com/wekeepgrowing/payment-reconciler/internal/infrastructure/signature"
	"github.com/wekeepgrowing/payment-reconciler/internal/usecase"
)

const webhookSecret = "whsec_test"

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

type recordingPublisher struct {
	mu     sync.Mutex
	events []event.PaymentEvent
}

func (p *recordingPublisher) Publish(_ context.Context, evt event.PaymentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type harness struct {
	db           *gorm.DB
	gateway      *MockGateway
	publisher    *recordingPublisher
	sessions     *sessionReader
	commerce     *commerceReader
	orchestrator *usecase.SessionOrchestrator
	processor    *usecase.EventProcessor
	ingestor     *usecase.WebhookIngestor
}

type sessionReader struct{ db *gorm.DB }
type commerceReader struct{ db *gorm.DB }

func newHarness(t *testing.T, cfg usecase.OrchestratorConfig) *harness {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&model.PaymentSession{},
		&model.Transaction{},
		&model.WebhookEvent{},
		&model.Cart{},
		&model.Order{},
	))

	log := zap.NewNop()
	sessions := repository.NewPaymentSessionRepository(db, log)
	transactions := repository.NewTransactionRepository(db, log)
	journal := repository.NewWebhookRepository(db, log)
	commerce := repository.NewCommerceRepository(db, log)
	transactor := repository.NewTransactor(db)
	locker := lock.NewLocalLocker()

	gateway := new(MockGateway)
	publisher := &recordingPublisher{}

	verifier, err := signature.NewVerifier(signature.SchemeHMAC, webhookSecret, 0, log)
	require.NoError(t, err)

	orchestrator := usecase.NewSessionOrchestrator(sessions, transactions, commerce, transactor, gateway, locker, cfg, log)
	processor := usecase.NewEventProcessor(sessions, transactions, commerce, transactor, orchestrator, locker, publisher, log)
	ingestor := usecase.NewWebhookIngestor(journal, processor, verifier, locker, log)

	return &harness{
		db:           db,
		gateway:      gateway,
		publisher:    publisher,
		sessions:     &sessionReader{db: db},
		commerce:     &commerceReader{db: db},
		orchestrator: orchestrator,
		processor:    processor,
		ingestor:     ingestor,
	}
}

func (h *harness) seedCart(t *testing.T, total int64) *model.Cart {
	t.Helper()
	email := "buyer@example.com"
	name := "Jane Buyer"
	cart := &model.Cart{UserEmail: &email, UserName: &name, Total: total, Currency: "USD"}
	require.NoError(t, h.db.Create(cart).Error)
	return cart
}

// openSession creates a hosted session for a fresh cart through the orchestrator
func (h *harness) openSession(t *testing.T, sessionID string, total int64) (*model.Cart, *model.Transaction) {
	t.Helper()
	cart := h.seedCart(t, total)

	h.gateway.On("CreateHostedSession", mock.Anything, mock.MatchedBy(func(r *provider.SessionRequest) bool {
		return r.Metadata["cart_id"] == fmt.Sprintf("%d", cart.ID)
	})).Return(&provider.SessionData{
		SessionID:   sessionID,
		Status:      provider.PaymentStatusPending,
		CheckoutURL: "https://pay.example.com/" + sessionID,
		PortalURL:   "https://pay.example.com/portal/" + sessionID,
	}, nil).Once()

	tx, err := h.orchestrator.CreateSession(context.Background(), usecase.CreateSessionInput{
		Cart:   cart,
		Method: model.PaymentMethodHosted,
	})
	require.NoError(t, err)
	return cart, tx
}

func (h *harness) deliver(body string) usecase.IngestResponse {
	header := http.Header{}
	header.Set(signature.HMACHeader, hex.EncodeToString(signature.Sign([]byte(webhookSecret), []byte(body))))
	return h.ingestor.Ingest(context.Background(), usecase.IngestRequest{
		Headers: header,
		Body:    []byte(body),
		Source:  model.WebhookSourceSigned,
	})
}

func (h *harness) count(t *testing.T, m interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	q := h.db.Model(m)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

func (r *sessionReader) get(t *testing.T, sessionID string) *model.PaymentSession {
	t.Helper()
	var s model.PaymentSession
	require.NoError(t, r.db.Where("session_id = ?", sessionID).First(&s).Error)
	return &s
}

func (r *commerceReader) orderFor(t *testing.T, cartID int64) *model.Order {
	t.Helper()
	var o model.Order
	err := r.db.Where("cart_id = ?", cartID).First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	require.NoError(t, err)
	return &o
}

func defaultConfig() usecase.OrchestratorConfig {
	return usecase.OrchestratorConfig{
		DefaultMethod:  model.PaymentMethodHosted,
		CaptureMethod:  "automatic",
		SuccessURL:     "https://shop.example.com/checkout/success",
		CancelURL:      "https://shop.example.com/checkout/cancel",
		SessionTTL:     time.Hour,
		GatewayTimeout: time.Second,
	}
}

func ingestRequest(header http.Header, body string) usecase.IngestRequest {
	return usecase.IngestRequest{Headers: header, Body: []byte(body), Source: model.WebhookSourceSigned}
}

func legacyRequest(body string) usecase.IngestRequest {
	return usecase.IngestRequest{Headers: http.Header{}, Body: []byte(body), Source: model.WebhookSourceLegacy}
}
