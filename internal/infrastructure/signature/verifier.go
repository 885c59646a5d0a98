// Package signature authenticates inbound gateway webhooks.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79/webhook"
	"go.uber.org/zap"
)

const (
	SchemeHMAC   = "hmac"
	SchemeStripe = "stripe"

	HMACHeader   = "X-Prahsys-Signature"
	StripeHeader = "Stripe-Signature"

	hmacPrefix = "sha256="
)

// Verifier authenticates a raw webhook request
type Verifier interface {
	Verify(header http.Header, body []byte) bool
}

// NewVerifier returns the verifier for a configured scheme
func NewVerifier(scheme, secret string, tolerance time.Duration, logger *zap.Logger) (Verifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("webhook secret is required for scheme %q", scheme)
	}

	switch scheme {
	case SchemeHMAC:
		return &HMACVerifier{secret: []byte(secret), logger: logger}, nil
	case SchemeStripe:
		if tolerance <= 0 {
			tolerance = webhook.DefaultTolerance
		}
		return &StripeVerifier{secret: secret, tolerance: tolerance, logger: logger}, nil
	default:
		return nil, fmt.Errorf("unsupported signature scheme: %s", scheme)
	}
}

// HMACVerifier checks a hex HMAC-SHA256 of the raw body
type HMACVerifier struct {
	secret []byte
	logger *zap.Logger
}

func (v *HMACVerifier) Verify(header http.Header, body []byte) bool {
	provided := strings.TrimSpace(header.Get(HMACHeader))
	provided = strings.TrimPrefix(provided, hmacPrefix)
	if provided == "" {
		v.logger.Warn("Webhook signature header missing", zap.String("header", HMACHeader))
		return false
	}

	got, err := hex.DecodeString(provided)
	if err != nil {
		v.logger.Warn("Webhook signature is not hex encoded")
		return false
	}

	return hmac.Equal(got, Sign(v.secret, body))
}

// Sign computes the raw HMAC-SHA256 of body
func Sign(secret, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return mac.Sum(nil)
}

// StripeVerifier validates Stripe-Signature headers
type StripeVerifier struct {
	secret    string
	tolerance time.Duration
	logger    *zap.Logger
}

func (v *StripeVerifier) Verify(header http.Header, body []byte) bool {
	sig := header.Get(StripeHeader)
	if sig == "" {
		v.logger.Warn("Webhook signature header missing", zap.String("header", StripeHeader))
		return false
	}

	if err := webhook.ValidatePayloadWithTolerance(body, sig, v.secret, v.tolerance); err != nil {
		v.logger.Warn("Webhook signature verification failed", zap.Error(err))
		return false
	}
	return true
}
