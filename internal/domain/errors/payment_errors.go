package errors

import (
	"errors"
	"fmt"

	apperrors "github.com/wekeepgrowing/payment-reconciler/pkg/errors"
)

// Kind classifies payment failures for retry and HTTP mapping decisions
type Kind string

const (
	KindValidation        Kind = "validation"
	KindUnsupportedMethod Kind = "unsupported_method"
	KindNotFound          Kind = "not_found"
	KindOrderCreation     Kind = "order_creation"
	KindSessionTerminal   Kind = "session_terminal"
	KindGatewayTransient  Kind = "gateway_transient"
	KindGatewayPermanent  Kind = "gateway_permanent"
	KindAuthentication    Kind = "authentication"
	KindInternal          Kind = "internal"
)

// PaymentError is the typed failure returned across usecase boundaries
type PaymentError struct {
	Kind    Kind
	Reason  string
	Message string
	Err     error
}

func (e *PaymentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

// Is matches on Reason so wrapped instances compare equal to the sentinels below
func (e *PaymentError) Is(target error) bool {
	t, ok := target.(*PaymentError)
	if !ok {
		return false
	}
	return e.Reason == t.Reason
}

// Code implements pkg/errors.Error
func (e *PaymentError) Code() string {
	switch e.Kind {
	case KindValidation, KindUnsupportedMethod, KindSessionTerminal:
		return apperrors.ErrInvalidArgument
	case KindNotFound:
		return apperrors.ErrNotFound
	case KindGatewayTransient:
		return apperrors.ErrUnavailable
	case KindGatewayPermanent:
		return apperrors.ErrFailedPrecondition
	case KindAuthentication:
		return apperrors.ErrUnauthenticated
	default:
		return apperrors.ErrInternal
	}
}

var (
	ErrSessionNotFound        = &PaymentError{Kind: KindNotFound, Reason: "SessionNotFound", Message: "Payment session not found"}
	ErrCartNotFound           = &PaymentError{Kind: KindNotFound, Reason: "CartNotFound", Message: "Cart not found"}
	ErrOrderNotFound          = &PaymentError{Kind: KindNotFound, Reason: "OrderNotFound", Message: "Order not found"}
	ErrOrderNotFoundForRefund = &PaymentError{Kind: KindNotFound, Reason: "OrderNotFoundForRefund", Message: "Order not found for refund"}
	ErrOrderCreationFailed    = &PaymentError{Kind: KindOrderCreation, Reason: "OrderCreationFailed", Message: "Failed to create order"}
	ErrOriginalCaptureMissing = &PaymentError{Kind: KindNotFound, Reason: "OriginalCaptureNotFound", Message: "No captured transaction found for order"}
	ErrRefundFailed           = &PaymentError{Kind: KindGatewayPermanent, Reason: "RefundFailed", Message: "Failed to process refund"}
	ErrInvalidSignature       = &PaymentError{Kind: KindAuthentication, Reason: "InvalidSignature", Message: "Invalid signature"}
	ErrInvalidPayload         = &PaymentError{Kind: KindValidation, Reason: "InvalidPayload", Message: "Invalid webhook payload"}
	ErrWebhookEventNotFound   = &PaymentError{Kind: KindNotFound, Reason: "WebhookEventNotFound", Message: "Webhook event not found"}
	ErrValidation             = &PaymentError{Kind: KindValidation, Reason: "ValidationError", Message: "Validation failed"}
	ErrUnsupportedMethod      = &PaymentError{Kind: KindUnsupportedMethod, Reason: "UnsupportedMethod", Message: "Unsupported payment method"}
	ErrSessionTerminal        = &PaymentError{Kind: KindSessionTerminal, Reason: "SessionTerminal", Message: "Payment session already finalized"}
	ErrGatewayTransient       = &PaymentError{Kind: KindGatewayTransient, Reason: "GatewayTransient", Message: "Payment gateway temporarily unavailable"}
	ErrGatewayPermanent       = &PaymentError{Kind: KindGatewayPermanent, Reason: "GatewayPermanent", Message: "Payment gateway rejected the request"}
	ErrInternal               = &PaymentError{Kind: KindInternal, Reason: "InternalError", Message: "Internal error"}
)

// With returns a copy of the sentinel carrying a specific message and cause
func With(sentinel *PaymentError, message string, err error) *PaymentError {
	clone := *sentinel
	if message != "" {
		clone.Message = message
	}
	clone.Err = err
	return &clone
}

// Validation builds a ValidationError with a caller-facing message
func Validation(message string) *PaymentError {
	return With(ErrValidation, message, nil)
}

// Internal wraps an unexpected infrastructure fault
func Internal(err error) *PaymentError {
	return With(ErrInternal, "", err)
}

// KindOf returns the Kind of the first PaymentError in err's chain
func KindOf(err error) Kind {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}
