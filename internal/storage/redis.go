package storage

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"msgflow/backend/internal/config"
	"msgflow/backend/internal/models"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLocked is returned when another holder owns the lock.
var ErrLocked = errors.New("lock is held by another request")

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// AcquireLock takes a Redis lock on key for at most ttl. Without Redis it
// always succeeds. The returned release func is safe to call once.
func (s *Service) AcquireLock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if s.Redis == nil {
		return func() {}, nil
	}

	token := uuid.New().String()
	ok, err := s.Redis.SetNX(ctx, "lock:"+key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLocked
	}

	return func() {
		// the caller's ctx may already be cancelled
		if err := releaseScript.Run(context.Background(), s.Redis, []string{"lock:" + key}, token).Err(); err != nil {
			slog.Warn("failed to release lock", slog.String("key", key), slog.String("error", err.Error()))
		}
	}, nil
}

// PublishEvent publishes a delivery event on the events channel.
func (s *Service) PublishEvent(ctx context.Context, ev models.DeliveryEvent) error {
	if s.Redis == nil {
		return nil
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.Redis.Publish(ctx, config.EventsChannel, string(payload)).Err()
}

// SubscribeEvents subscribes to the events channel. Returns nil without Redis.
func (s *Service) SubscribeEvents(ctx context.Context) *redis.PubSub {
	if s.Redis == nil {
		return nil
	}
	return s.Redis.Subscribe(ctx, config.EventsChannel)
}
