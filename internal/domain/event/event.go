// Package event decodes gateway notifications into a closed set of typed events.
package event

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Gateway event type names
const (
	TypeCompleted         = "payment.completed"
	TypeFailed            = "payment.failed"
	TypeCancelled         = "payment.cancelled"
	TypeRefunded          = "payment.refunded"
	TypePartiallyRefunded = "payment.partially_refunded"
)

// Envelope is the JSON body delivered by the gateway
type Envelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data Data   `json:"data"`
}

// Data carries the event attributes. Amounts are in minor units.
type Data struct {
	SessionID     string `json:"session_id"`
	Amount        *int64 `json:"amount,omitempty"`
	Currency      string `json:"currency,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	Status        string `json:"status,omitempty"`
	CardBrand     string `json:"card_brand,omitempty"`
	CardLast4     string `json:"card_last4,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
	RefundAmount  *int64 `json:"refund_amount,omitempty"`
	RefundID      string `json:"refund_id,omitempty"`
	RefundReason  string `json:"refund_reason,omitempty"`
}

// Snapshot flattens the data for ledger meta columns
func (d Data) Snapshot() map[string]interface{} {
	out := map[string]interface{}{"session_id": d.SessionID}
	if d.Amount != nil {
		out["amount"] = *d.Amount
	}
	if d.RefundAmount != nil {
		out["refund_amount"] = *d.RefundAmount
	}
	for k, v := range map[string]string{
		"currency":       d.Currency,
		"transaction_id": d.TransactionID,
		"status":         d.Status,
		"card_brand":     d.CardBrand,
		"card_last4":     d.CardLast4,
		"failure_reason": d.FailureReason,
		"refund_id":      d.RefundID,
		"refund_reason":  d.RefundReason,
	} {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// Decode parses a webhook body and enforces the required fields. Bodies in
// the Stripe shape, where the checkout session sits under data.object, are
// mapped onto the same envelope.
func Decode(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("malformed json: %w", err)
	}
	if strings.TrimSpace(env.Type) == "" {
		return Envelope{}, fmt.Errorf("missing type")
	}
	if env.Data.SessionID == "" {
		if err := fromStripeObject(body, &env); err != nil {
			return Envelope{}, err
		}
	}
	if strings.TrimSpace(env.Data.SessionID) == "" {
		return Envelope{}, fmt.Errorf("missing data.session_id")
	}
	return env, nil
}

// Stripe checkout session event types
const (
	stripeSessionCompleted      = "checkout.session.completed"
	stripeAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	stripeAsyncPaymentFailed    = "checkout.session.async_payment_failed"
	stripeSessionExpired        = "checkout.session.expired"
)

type stripeEvent struct {
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type stripeCheckoutSession struct {
	ID            string          `json:"id"`
	Object        string          `json:"object"`
	AmountTotal   *int64          `json:"amount_total"`
	Currency      string          `json:"currency"`
	PaymentStatus string          `json:"payment_status"`
	PaymentIntent json.RawMessage `json:"payment_intent"`
}

// paymentIntentID accepts both the bare id and the expanded object
func (s stripeCheckoutSession) paymentIntentID() string {
	if len(s.PaymentIntent) == 0 {
		return ""
	}
	var id string
	if err := json.Unmarshal(s.PaymentIntent, &id); err == nil {
		return id
	}
	var expanded struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(s.PaymentIntent, &expanded); err == nil {
		return expanded.ID
	}
	return ""
}

// fromStripeObject fills env from a checkout.session object. Other Stripe
// objects carry no session id and are left untouched.
func fromStripeObject(body []byte, env *Envelope) error {
	var se stripeEvent
	if err := json.Unmarshal(body, &se); err != nil || len(se.Data.Object) == 0 {
		return nil
	}
	var cs stripeCheckoutSession
	if err := json.Unmarshal(se.Data.Object, &cs); err != nil {
		return fmt.Errorf("malformed data.object: %w", err)
	}
	if cs.Object != "checkout.session" || cs.ID == "" {
		return nil
	}

	env.Data = Data{
		SessionID:     cs.ID,
		Amount:        cs.AmountTotal,
		Currency:      strings.ToUpper(cs.Currency),
		TransactionID: cs.paymentIntentID(),
		Status:        cs.PaymentStatus,
	}
	switch env.Type {
	case stripeSessionCompleted:
		// Delayed methods complete unpaid and settle through the async events
		if cs.PaymentStatus == "paid" || cs.PaymentStatus == "no_payment_required" {
			env.Type = TypeCompleted
		}
	case stripeAsyncPaymentSucceeded:
		env.Type = TypeCompleted
	case stripeAsyncPaymentFailed:
		env.Type = TypeFailed
		env.Data.FailureReason = "Asynchronous payment failed"
	case stripeSessionExpired:
		env.Type = TypeCancelled
		env.Data.FailureReason = "Checkout session expired"
	}
	return nil
}

// Event is one of Completed, Failed, Cancelled, Refunded or Unknown.
// The unexported method keeps the set closed to this package.
type Event interface {
	SessionID() string
	Type() string
	Payload() Data
	isEvent()
}

type base struct {
	eventType string
	data      Data
}

func (b base) SessionID() string { return b.data.SessionID }
func (b base) Type() string      { return b.eventType }
func (b base) Payload() Data     { return b.data }

// Completed reports a successful capture
type Completed struct{ base }

// Failed reports a declined or errored payment
type Failed struct{ base }

// Cancelled reports a buyer or gateway cancellation
type Cancelled struct{ base }

// Refunded reports a full or partial refund executed at the gateway
type Refunded struct {
	base
	Partial bool
}

// Unknown is any event type this service does not act on
type Unknown struct{ base }

func (Completed) isEvent() {}
func (Failed) isEvent()    {}
func (Cancelled) isEvent() {}
func (Refunded) isEvent()  {}
func (Unknown) isEvent()   {}

// Amount returns the payload amount, if any
func (e Completed) Amount() *int64 { return e.data.Amount }

// Reference returns the gateway transaction id, if any
func (e Completed) Reference() string { return e.data.TransactionID }

// Reason returns the gateway failure reason, if any
func (e Failed) Reason() string { return e.data.FailureReason }

// Reason returns the cancellation reason, if any
func (e Cancelled) Reason() string { return e.data.FailureReason }

// Amount prefers refund_amount and falls back to amount
func (e Refunded) Amount() *int64 {
	if e.data.RefundAmount != nil {
		return e.data.RefundAmount
	}
	return e.data.Amount
}

// Reference returns the gateway refund id, falling back to the transaction id
func (e Refunded) Reference() string {
	if e.data.RefundID != "" {
		return e.data.RefundID
	}
	return e.data.TransactionID
}

// Reason returns the refund reason, if any
func (e Refunded) Reason() string { return e.data.RefundReason }

// FromEnvelope maps the type string onto the closed event set
func FromEnvelope(env Envelope) Event {
	b := base{eventType: env.Type, data: env.Data}
	switch env.Type {
	case TypeCompleted:
		return Completed{b}
	case TypeFailed:
		return Failed{b}
	case TypeCancelled:
		return Cancelled{b}
	case TypeRefunded:
		return Refunded{base: b}
	case TypePartiallyRefunded:
		return Refunded{base: b, Partial: true}
	default:
		return Unknown{b}
	}
}

// New builds an event for callers that synthesize notifications, such as
// redirect callbacks
func New(eventType string, data Data) Event {
	return FromEnvelope(Envelope{Type: eventType, Data: data})
}

// TypeFromLegacyStatus maps the status field of unsigned legacy callbacks
func TypeFromLegacyStatus(status string) string {
	switch strings.ToLower(status) {
	case "completed", "captured", "authorized", "paid", "success":
		return TypeCompleted
	case "failed", "declined", "error":
		return TypeFailed
	case "cancelled", "canceled":
		return TypeCancelled
	case "refunded":
		return TypeRefunded
	default:
		return "payment." + strings.ToLower(status)
	}
}

// legacyBody is the flat body posted by unsigned legacy callers
type legacyBody struct {
	SessionID     string `json:"session_id"`
	Status        string `json:"status"`
	Amount        *int64 `json:"amount,omitempty"`
	Currency      string `json:"currency,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	CardBrand     string `json:"card_brand,omitempty"`
	CardLast4     string `json:"card_last4,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// DecodeLegacy parses a legacy callback into an envelope without an id
func DecodeLegacy(body []byte) (Envelope, error) {
	var lb legacyBody
	if err := json.Unmarshal(body, &lb); err != nil {
		return Envelope{}, fmt.Errorf("malformed json: %w", err)
	}
	if strings.TrimSpace(lb.SessionID) == "" {
		return Envelope{}, fmt.Errorf("missing session_id")
	}
	if strings.TrimSpace(lb.Status) == "" {
		return Envelope{}, fmt.Errorf("missing status")
	}
	return Envelope{
		Type: TypeFromLegacyStatus(lb.Status),
		Data: Data{
			SessionID:     lb.SessionID,
			Amount:        lb.Amount,
			Currency:      lb.Currency,
			TransactionID: lb.TransactionID,
			Status:        lb.Status,
			CardBrand:     lb.CardBrand,
			CardLast4:     lb.CardLast4,
			FailureReason: lb.FailureReason,
		},
	}, nil
}
