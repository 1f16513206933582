package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"riseready-notifications/internal/common/logger"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisChannel = "riseready:realtime:relay"

// RedisRelay publishes relay envelopes on a Redis channel for a RedisBridge
// in the bus host to pick up.
type RedisRelay struct {
	client  redis.UniversalClient
	channel string
	secret  string
}

func NewRedisRelay(client redis.UniversalClient, channel, secret string) *RedisRelay {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisRelay{client: client, channel: channel, secret: secret}
}

func (r *RedisRelay) Publish(ctx context.Context, userID, event string, payload any) error {
	data, err := marshalPayload(payload)
	if err != nil {
		return err
	}

	msg, err := json.Marshal(RelayEnvelope{Secret: r.secret, UserID: userID, Event: event, Payload: data})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	if len(msg) > maxMessageSize {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrFrameTooLarge, len(msg), maxMessageSize)
	}

	receivers, err := r.client.Publish(ctx, r.channel, string(msg)).Result()
	if err != nil {
		return fmt.Errorf("redis publish to %s: %w", r.channel, err)
	}
	if receivers == 0 {
		return fmt.Errorf("%w on %s", ErrNoBusHost, r.channel)
	}
	return nil
}

// RedisBridge feeds envelopes from a Redis channel into Hub.Relay, so the
// secret check is the same as on the websocket path.
type RedisBridge struct {
	client  redis.UniversalClient
	channel string
	hub     *Hub
	logger  logger.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

func NewRedisBridge(client redis.UniversalClient, channel string, hub *Hub, log logger.Logger) *RedisBridge {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisBridge{
		client:  client,
		channel: channel,
		hub:     hub,
		logger:  logger.ForComponent(log, "redis-bridge"),
	}
}

// Start subscribes and returns once the subscription is confirmed.
func (b *RedisBridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubsub != nil {
		return fmt.Errorf("redis bridge already started")
	}

	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	b.pubsub = pubsub
	b.done = make(chan struct{})
	go b.run(pubsub.Channel(), b.done)

	b.logger.Info("redis bridge subscribed", map[string]interface{}{"channel": b.channel})
	return nil
}

func (b *RedisBridge) run(ch <-chan *redis.Message, done chan struct{}) {
	defer close(done)
	for msg := range ch {
		b.handle(msg.Payload)
	}
}

func (b *RedisBridge) handle(raw string) {
	env, err := ParseEnvelope([]byte(raw))
	if err != nil {
		b.logger.Warn("dropping malformed relay envelope", map[string]interface{}{"error": err.Error()})
		return
	}

	// the hub logs rejections itself
	if _, err := b.hub.Relay(context.Background(), env, "redis"); err != nil && !errors.Is(err, ErrRelayRejected) {
		b.logger.Error("relay from redis failed", map[string]interface{}{
			"userId": env.UserID,
			"event":  env.Event,
			"error":  err.Error(),
		})
	}
}

// Close unsubscribes and waits for in-flight messages.
func (b *RedisBridge) Close() error {
	b.mu.Lock()
	pubsub, done := b.pubsub, b.done
	b.pubsub = nil
	b.mu.Unlock()

	if pubsub == nil {
		return nil
	}
	err := pubsub.Close()
	<-done
	return err
}
