package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/wekeepgrowing/payment-reconciler/internal/domain/money"
	"github.com/wekeepgrowing/payment-reconciler/internal/domain/provider"
	"go.uber.org/zap"
)

const sessionPlaceholder = "session_id={CHECKOUT_SESSION_ID}"

// StripeProvider implements provider.Gateway with Stripe Checkout Sessions
type StripeProvider struct {
	api    *client.API
	logger *zap.Logger
}

// NewStripeProvider creates a new Stripe gateway. baseURL overrides the API
// endpoint and is meant for stripe-mock or tests.
func NewStripeProvider(secretKey, baseURL string, logger *zap.Logger) *StripeProvider {
	api := &client.API{}

	if baseURL == "" {
		api.Init(secretKey, nil)
	} else {
		backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			URL:               stripe.String(baseURL),
			MaxNetworkRetries: stripe.Int64(0),
		})
		api.Init(secretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
	}

	return &StripeProvider{
		api:    api,
		logger: logger,
	}
}

// Name returns the provider name
func (s *StripeProvider) Name() string {
	return string(provider.ProviderTypeStripe)
}

func (s *StripeProvider) CreateHostedSession(ctx context.Context, req *provider.SessionRequest) (*provider.SessionData, error) {
	params, err := s.sessionParams(req)
	if err != nil {
		return nil, err
	}
	params.UIMode = stripe.String(string(stripe.CheckoutSessionUIModeHosted))
	params.SuccessURL = stripe.String(withSessionID(req.SuccessURL))
	params.CancelURL = stripe.String(withSessionID(req.CancelURL))
	params.Context = ctx

	return s.createSession(params, req)
}

func (s *StripeProvider) CreateEmbeddedSession(ctx context.Context, req *provider.SessionRequest) (*provider.SessionData, error) {
	params, err := s.sessionParams(req)
	if err != nil {
		return nil, err
	}
	params.UIMode = stripe.String(string(stripe.CheckoutSessionUIModeEmbedded))
	params.ReturnURL = stripe.String(withSessionID(req.SuccessURL))
	params.Context = ctx

	return s.createSession(params, req)
}

func (s *StripeProvider) sessionParams(req *provider.SessionRequest) (*stripe.CheckoutSessionParams, error) {
	unitAmount, err := money.ToMinor(req.Amount, req.Currency)
	if err != nil {
		return nil, provider.NewValidationError("invalid_amount", "Amount not representable", err.Error())
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(req.PaymentID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(req.Currency)),
					UnitAmount: stripe.Int64(unitAmount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Description: stripe.String(req.Description),
			Metadata:    req.Metadata,
		},
	}
	if req.CaptureMethod != "" {
		params.PaymentIntentData.CaptureMethod = stripe.String(req.CaptureMethod)
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	// Stripe rejects expirations under 30 minutes away
	if !req.ExpiresAt.IsZero() && time.Until(req.ExpiresAt) >= 30*time.Minute {
		params.ExpiresAt = stripe.Int64(req.ExpiresAt.Unix())
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.AddMetadata("customer_name", req.CustomerName)

	return params, nil
}

func (s *StripeProvider) createSession(params *stripe.CheckoutSessionParams, req *provider.SessionRequest) (*provider.SessionData, error) {
	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		s.logger.Error("StripeProvider: Failed to create checkout session",
			zap.String("payment_id", req.PaymentID),
			zap.Error(err))
		return nil, mapError(err)
	}

	s.logger.Info("StripeProvider: Checkout session created",
		zap.String("payment_id", req.PaymentID),
		zap.String("session_id", sess.ID),
		zap.String("ui_mode", string(sess.UIMode)))

	return toSessionData(sess), nil
}

func (s *StripeProvider) RetrieveSession(ctx context.Context, sessionID string) (*provider.SessionData, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent.latest_charge")

	sess, err := s.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, mapError(err)
	}
	return toSessionData(sess), nil
}

// ProcessRefund refunds the session's payment intent
func (s *StripeProvider) ProcessRefund(ctx context.Context, req *provider.RefundRequest) (*provider.RefundData, error) {
	getParams := &stripe.CheckoutSessionParams{}
	getParams.Context = ctx

	sess, err := s.api.CheckoutSessions.Get(req.SessionID, getParams)
	if err != nil {
		return nil, mapError(err)
	}
	if sess.PaymentIntent == nil || sess.PaymentIntent.ID == "" {
		return nil, provider.NewPermanentError("no_payment_intent", "Session has no payment to refund", req.SessionID)
	}

	amount, err := money.ToMinor(req.Amount, req.Currency)
	if err != nil {
		return nil, provider.NewValidationError("invalid_amount", "Amount not representable", err.Error())
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(sess.PaymentIntent.ID),
		Amount:        stripe.Int64(amount),
	}
	params.Context = ctx
	if req.Note != "" {
		params.AddMetadata("note", req.Note)
	}

	refund, err := s.api.Refunds.New(params)
	if err != nil {
		s.logger.Error("StripeProvider: Refund failed",
			zap.String("session_id", req.SessionID),
			zap.Error(err))
		return nil, mapError(err)
	}

	if refund.Status == stripe.RefundStatusFailed || refund.Status == stripe.RefundStatusCanceled {
		return nil, provider.NewPermanentError("refund_"+string(refund.Status), "Refund was not executed", refund.ID)
	}

	return &provider.RefundData{
		RefundID: refund.ID,
		Amount:   money.ToMajor(refund.Amount, string(refund.Currency)),
		Status:   string(refund.Status),
	}, nil
}

func toSessionData(sess *stripe.CheckoutSession) *provider.SessionData {
	data := &provider.SessionData{
		SessionID:    sess.ID,
		Status:       sessionStatus(sess),
		Amount:       money.ToMajor(sess.AmountTotal, string(sess.Currency)),
		Currency:     strings.ToUpper(string(sess.Currency)),
		ClientSecret: sess.ClientSecret,
	}
	if sess.UIMode == stripe.CheckoutSessionUIModeEmbedded {
		data.PortalURL = sess.URL
	} else {
		data.CheckoutURL = sess.URL
	}
	if sess.ExpiresAt > 0 {
		t := time.Unix(sess.ExpiresAt, 0)
		data.ExpiresAt = &t
	}

	if pi := sess.PaymentIntent; pi != nil {
		data.TransactionID = pi.ID
		if ch := pi.LatestCharge; ch != nil && ch.PaymentMethodDetails != nil && ch.PaymentMethodDetails.Card != nil {
			data.CardBrand = string(ch.PaymentMethodDetails.Card.Brand)
			data.CardLast4 = ch.PaymentMethodDetails.Card.Last4
		}
	}
	return data
}

func sessionStatus(sess *stripe.CheckoutSession) provider.PaymentStatus {
	switch {
	case sess.Status == stripe.CheckoutSessionStatusComplete && sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		return provider.PaymentStatusCompleted
	case sess.Status == stripe.CheckoutSessionStatusExpired:
		return provider.PaymentStatusExpired
	default:
		return provider.PaymentStatusPending
	}
}

// mapError classifies Stripe failures. Anything that is not a Stripe API
// error is a transport problem and therefore transient.
func mapError(err error) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return provider.NewTransientError("network_error", "Stripe request failed", err.Error())
	}

	code := string(stripeErr.Code)
	if code == "" {
		code = string(stripeErr.Type)
	}

	switch {
	case stripeErr.HTTPStatusCode >= http.StatusInternalServerError,
		stripeErr.HTTPStatusCode == http.StatusTooManyRequests,
		stripeErr.Type == stripe.ErrorTypeAPI:
		return provider.NewTransientError(code, stripeErr.Msg, fmt.Sprintf("status %d", stripeErr.HTTPStatusCode))
	case stripeErr.Type == stripe.ErrorTypeInvalidRequest:
		return provider.NewValidationError(code, stripeErr.Msg, stripeErr.Param)
	default:
		return provider.NewPermanentError(code, stripeErr.Msg, string(stripeErr.Type))
	}
}

func withSessionID(url string) string {
	if url == "" || strings.Contains(url, "{CHECKOUT_SESSION_ID}") {
		return url
	}
	if strings.Contains(url, "?") {
		return url + "&" + sessionPlaceholder
	}
	return url + "?" + sessionPlaceholder
}

