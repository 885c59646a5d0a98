// Package clerk is a REST client for a generic hosted-checkout gateway that
// speaks JSON over Basic auth.
package clerk

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wekeepgrowing/payment-reconciler/internal/domain/money"
	"github.com/wekeepgrowing/payment-reconciler/internal/domain/provider"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	clerkAPIVersion = "v1"
	defaultTimeout  = 30 * time.Second
)

// ClerkProvider implements provider.Gateway against the clerk REST API
type ClerkProvider struct {
	secretKey string
	baseURL   string
	client    *http.Client
	limiter   *rate.Limiter
	logger    *zap.Logger
}

// Options tunes the HTTP client
type Options struct {
	Timeout   time.Duration
	RateLimit float64
	Burst     int
}

// NewClerkProvider creates a new clerk gateway client
func NewClerkProvider(secretKey, baseURL string, opts Options, logger *zap.Logger) *ClerkProvider {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	return &ClerkProvider{
		secretKey: secretKey,
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(limit, burst),
		logger:    logger,
	}
}

func (c *ClerkProvider) Name() string {
	return string(provider.ProviderTypeClerk)
}

type customer struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

type sessionBody struct {
	Reference     string            `json:"reference"`
	Mode          string            `json:"mode"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	Description   string            `json:"description,omitempty"`
	Customer      customer          `json:"customer"`
	SuccessURL    string            `json:"success_url,omitempty"`
	CancelURL     string            `json:"cancel_url,omitempty"`
	CaptureMethod string            `json:"capture_method,omitempty"`
	ExpiresAt     *time.Time        `json:"expires_at,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type sessionResponse struct {
	ID            string     `json:"id"`
	Status        string     `json:"status"`
	Amount        int64      `json:"amount"`
	Currency      string     `json:"currency"`
	CheckoutURL   string     `json:"checkout_url"`
	ClientSecret  string     `json:"client_secret"`
	TransactionID string     `json:"transaction_id"`
	ExpiresAt     *time.Time `json:"expires_at"`
	Card          *struct {
		Brand string `json:"brand"`
		Last4 string `json:"last4"`
	} `json:"card"`
}

type refundBody struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Note     string `json:"note,omitempty"`
}

type refundResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// CreateHostedSession creates a session paid on the gateway's own page
// POST /v1/sessions
func (c *ClerkProvider) CreateHostedSession(ctx context.Context, req *provider.SessionRequest) (*provider.SessionData, error) {
	return c.createSession(ctx, "hosted", req)
}

// CreateEmbeddedSession creates a session rendered in the storefront
// POST /v1/sessions
func (c *ClerkProvider) CreateEmbeddedSession(ctx context.Context, req *provider.SessionRequest) (*provider.SessionData, error) {
	return c.createSession(ctx, "embedded", req)
}

func (c *ClerkProvider) createSession(ctx context.Context, mode string, req *provider.SessionRequest) (*provider.SessionData, error) {
	amount, err := money.ToMinor(req.Amount, req.Currency)
	if err != nil {
		return nil, provider.NewValidationError("INVALID_AMOUNT", "Amount not representable", err.Error())
	}

	body := sessionBody{
		Reference:     req.PaymentID,
		Mode:          mode,
		Amount:        amount,
		Currency:      strings.ToUpper(req.Currency),
		Description:   req.Description,
		Customer:      customer{Name: req.CustomerName, Email: req.CustomerEmail},
		SuccessURL:    req.SuccessURL,
		CancelURL:     req.CancelURL,
		CaptureMethod: req.CaptureMethod,
		Metadata:      req.Metadata,
	}
	if !req.ExpiresAt.IsZero() {
		expiresAt := req.ExpiresAt.UTC()
		body.ExpiresAt = &expiresAt
	}

	c.logger.Info("ClerkProvider: Creating session",
		zap.String("payment_id", req.PaymentID),
		zap.String("mode", mode),
		zap.Int64("amount", amount))

	var resp sessionResponse
	if err := c.do(ctx, http.MethodPost, "/sessions", body, &resp); err != nil {
		c.logger.Error("ClerkProvider: Session creation failed",
			zap.String("payment_id", req.PaymentID),
			zap.Error(err))
		return nil, err
	}

	data := toSessionData(&resp)
	if mode == "embedded" {
		data.PortalURL, data.CheckoutURL = data.CheckoutURL, ""
	}
	return data, nil
}

// RetrieveSession fetches a session
// GET /v1/sessions/{id}
func (c *ClerkProvider) RetrieveSession(ctx context.Context, sessionID string) (*provider.SessionData, error) {
	var resp sessionResponse
	if err := c.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(sessionID), nil, &resp); err != nil {
		return nil, err
	}
	return toSessionData(&resp), nil
}

// ProcessRefund refunds against a session's capture
// POST /v1/sessions/{id}/refunds
func (c *ClerkProvider) ProcessRefund(ctx context.Context, req *provider.RefundRequest) (*provider.RefundData, error) {
	amount, err := money.ToMinor(req.Amount, req.Currency)
	if err != nil {
		return nil, provider.NewValidationError("INVALID_AMOUNT", "Amount not representable", err.Error())
	}

	var resp refundResponse
	path := fmt.Sprintf("/sessions/%s/refunds", url.PathEscape(req.SessionID))
	body := refundBody{Amount: amount, Currency: strings.ToUpper(req.Currency), Note: req.Note}
	if err := c.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		c.logger.Error("ClerkProvider: Refund failed",
			zap.String("session_id", req.SessionID),
			zap.Error(err))
		return nil, err
	}

	if resp.Status == "failed" || resp.Status == "declined" {
		return nil, provider.NewPermanentError("REFUND_"+strings.ToUpper(resp.Status), "Refund was not executed", resp.ID)
	}

	currency := resp.Currency
	if currency == "" {
		currency = req.Currency
	}
	return &provider.RefundData{
		RefundID: resp.ID,
		Amount:   money.ToMajor(resp.Amount, currency),
		Status:   resp.Status,
	}, nil
}

func (c *ClerkProvider) do(ctx context.Context, method, path string, in, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return provider.NewTransientError("RATE_LIMITED", "Outbound request budget exhausted", err.Error())
	}

	var reader io.Reader
	if in != nil {
		jsonBody, err := json.Marshal(in)
		if err != nil {
			return provider.NewValidationError("MARSHAL_ERROR", "Failed to prepare request", err.Error())
		}
		reader = bytes.NewReader(jsonBody)
	}

	endpoint := fmt.Sprintf("%s/%s%s", c.baseURL, clerkAPIVersion, path)
	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return provider.NewPermanentError("REQUEST_ERROR", "Failed to create request", err.Error())
	}

	auth := base64.StdEncoding.EncodeToString([]byte(c.secretKey + ":"))
	httpReq.Header.Set("Authorization", "Basic "+auth)
	httpReq.Header.Set("Accept", "application/json")
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return provider.NewTransientError("API_ERROR", "Clerk API request failed", err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return provider.NewTransientError("RESPONSE_ERROR", "Failed to read response", err.Error())
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return provider.NewTransientError("PARSE_ERROR", "Failed to parse response", err.Error())
	}
	return nil
}

// statusError classifies a non-2xx answer
func statusError(status int, body []byte) error {
	var errResp errorResponse
	_ = json.Unmarshal(body, &errResp)

	code := errResp.Error.Code
	if code == "" {
		code = fmt.Sprintf("HTTP_%d", status)
	}
	message := errResp.Error.Message
	if message == "" {
		message = http.StatusText(status)
	}

	switch {
	case status >= http.StatusInternalServerError, status == http.StatusTooManyRequests:
		return provider.NewTransientError(code, message, string(body))
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return provider.NewValidationError(code, message, string(body))
	default:
		return provider.NewPermanentError(code, message, string(body))
	}
}

func toSessionData(resp *sessionResponse) *provider.SessionData {
	data := &provider.SessionData{
		SessionID:     resp.ID,
		Status:        sessionStatus(resp.Status),
		Amount:        money.ToMajor(resp.Amount, resp.Currency),
		Currency:      strings.ToUpper(resp.Currency),
		CheckoutURL:   resp.CheckoutURL,
		ClientSecret:  resp.ClientSecret,
		TransactionID: resp.TransactionID,
		ExpiresAt:     resp.ExpiresAt,
	}
	if resp.Card != nil {
		data.CardBrand = resp.Card.Brand
		data.CardLast4 = resp.Card.Last4
	}
	return data
}

func sessionStatus(status string) provider.PaymentStatus {
	switch strings.ToLower(status) {
	case "completed", "captured", "paid":
		return provider.PaymentStatusCompleted
	case "failed", "declined":
		return provider.PaymentStatusFailed
	case "cancelled", "canceled":
		return provider.PaymentStatusCancelled
	case "expired":
		return provider.PaymentStatusExpired
	default:
		return provider.PaymentStatusPending
	}
}

