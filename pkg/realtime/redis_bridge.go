package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBridge shares events between API instances over a Redis channel. Events are
// delivered to the local hub immediately; messages that come back from Redis carrying
// this instance's ID are skipped.
type RedisBridge struct {
	client     redis.UniversalClient
	hub        *Hub
	channel    string
	instanceID string
	logger     *zap.Logger
	retryDelay time.Duration
	maxDelay   time.Duration
}

// NewRedisBridge wires hub to channel.
func NewRedisBridge(client redis.UniversalClient, hub *Hub, channel string, logger *zap.Logger) *RedisBridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	if channel == "" {
		channel = "course-registration:events"
	}
	return &RedisBridge{
		client:     client,
		hub:        hub,
		channel:    channel,
		instanceID: uuid.NewString(),
		logger:     logger,
		retryDelay: time.Second,
		maxDelay:   30 * time.Second,
	}
}

// Publish delivers locally and forwards to the other instances. A Redis failure is
// returned but the local subscribers have already been served.
func (b *RedisBridge) Publish(ctx context.Context, evt Event) error {
	evt.Source = b.instanceID
	b.hub.deliver(evt)

	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal realtime event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish realtime event: %w", err)
	}
	return nil
}

// Run relays events published by other instances until ctx is done. A lost or refused
// subscription is retried with a doubling delay; local delivery keeps working meanwhile.
func (b *RedisBridge) Run(ctx context.Context) error {
	delay := b.retryDelay
	for {
		subscribed, err := b.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if subscribed {
			delay = b.retryDelay
		}
		b.logger.Warn("realtime bridge disconnected", zap.String("channel", b.channel), zap.Duration("retry_in", delay), zap.Error(err))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		if delay *= 2; delay > b.maxDelay {
			delay = b.maxDelay
		}
	}
}

// listen holds one subscription until it fails or ctx is done. subscribed reports
// whether the subscription was confirmed before the failure.
func (b *RedisBridge) listen(ctx context.Context) (subscribed bool, err error) {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return false, fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.logger.Info("realtime bridge subscribed", zap.String("channel", b.channel), zap.String("instance", b.instanceID))

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return true, nil
		case msg, ok := <-messages:
			if !ok {
				return true, errors.New("subscription channel closed")
			}
			b.relay(msg.Payload)
		}
	}
}

func (b *RedisBridge) relay(payload string) {
	var evt Event
	if err := json.Unmarshal([]byte(payload), &evt); err != nil {
		b.logger.Warn("discarding malformed realtime event", zap.Error(err))
		return
	}
	if evt.Source == b.instanceID || evt.PeriodID == "" {
		return
	}
	b.hub.deliver(evt)
}
