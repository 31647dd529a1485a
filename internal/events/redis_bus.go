package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"acadium-backend/internal/logger"
)

const redisChannelPrefix = "progress_updates:"

func redisChannel(userID uuid.UUID) string {
	return redisChannelPrefix + userID.String()
}

// RedisBus fans progress events out across server processes through
// Redis pub/sub, one channel per user. pub and sub may be the same client.
type RedisBus struct {
	pub *redis.Client
	sub *redis.Client
	log *logger.Logger
}

func NewRedisBus(pub, sub *redis.Client, log *logger.Logger) *RedisBus {
	return &RedisBus{
		pub: pub,
		sub: sub,
		log: logger.OrNop(log).With("service", "RedisProgressBus"),
	}
}

func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	if b == nil || b.pub == nil {
		return errors.New("redis progress bus not initialized")
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return b.pub.Publish(ctx, redisChannel(ev.UserID), raw).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, userID uuid.UUID, fn func(Event)) error {
	if b == nil || b.sub == nil {
		return errors.New("redis progress bus not initialized")
	}
	if fn == nil {
		return errors.New("subscriber callback required")
	}

	sub := b.sub.Subscribe(ctx, redisChannel(userID))

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					b.log.Warn("bad progress event payload", "error", err, "channel", m.Channel)
					continue
				}
				fn(ev)
			}
		}
	}()

	return nil
}

// Close is a no-op; the redis client is owned by database.RedisClients.
func (b *RedisBus) Close() error {
	return nil
}
