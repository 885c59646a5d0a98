package usecase

import (
	"context"
	"net/http"

	"github.com/wekeepgrowing/payment-reconciler/internal/domain/event"
)

// Locker serializes work on a key. The returned release func must be called
// exactly once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// EventPublisher forwards committed payment transitions downstream
type EventPublisher interface {
	Publish(ctx context.Context, evt event.PaymentEvent) error
}

// SignatureVerifier authenticates a raw webhook delivery
type SignatureVerifier interface {
	Verify(header http.Header, body []byte) bool
}

func sessionLockKey(sessionID string) string {
	return "payment-session:" + sessionID
}

func webhookLockKey(eventID string) string {
	return "webhook:" + eventID
}
