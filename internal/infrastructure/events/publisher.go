// Package events publishes committed payment transitions to Redis.
package events

import (
	"context"
	"fmt"

	"github.com/wekeepgrowing/payment-reconciler/internal/domain/event"
	"github.com/wekeepgrowing/payment-reconciler/pkg/messaging"
	"go.uber.org/zap"
)

const DefaultChannel = "payments.events"

// RedisPublisher fans each event out to the shared channel and to a
// per-session channel
type RedisPublisher struct {
	client  messaging.RedisClient
	channel string
	logger  *zap.Logger
}

func NewRedisPublisher(client messaging.RedisClient, channel string, logger *zap.Logger) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel, logger: logger}
}

// SessionChannel is the channel carrying one session's events
func SessionChannel(channel, sessionID string) string {
	return channel + ":" + sessionID
}

func (p *RedisPublisher) Publish(ctx context.Context, evt event.PaymentEvent) error {
	if err := p.client.Publish(ctx, p.channel, evt); err != nil {
		return fmt.Errorf("failed to publish payment event: %w", err)
	}
	if err := p.client.Publish(ctx, SessionChannel(p.channel, evt.SessionID), evt); err != nil {
		return fmt.Errorf("failed to publish session event: %w", err)
	}

	p.logger.Debug("Payment event published",
		zap.String("channel", p.channel),
		zap.String("session_id", evt.SessionID),
		zap.String("event_type", evt.EventType))
	return nil
}

// Channel returns the shared channel name
func (p *RedisPublisher) Channel() string {
	return p.channel
}

// LogPublisher only logs; used when Redis is disabled
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, evt event.PaymentEvent) error {
	p.logger.Info("Payment event",
		zap.String("event_type", evt.EventType),
		zap.String("session_id", evt.SessionID),
		zap.String("session_status", evt.SessionStatus),
		zap.String("order_status", evt.OrderStatus))
	return nil
}
