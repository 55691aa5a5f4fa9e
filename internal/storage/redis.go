package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	wbfredis "github.com/wb-go/wbf/redis"
	wbfretry "github.com/wb-go/wbf/retry"

	"plantcare/internal/models"
)

var redisRetry = wbfretry.Strategy{
	Attempts: 3,
	Delay:    100 * time.Millisecond,
	Backoff:  2,
}

// alertKeepAfterFire is how long a fired alert stays listed as pending before
// it is pruned.
const alertKeepAfterFire = time.Hour

func NewRedisClient(addr string) (*redis.Client, error) {
	wbfClient := wbfredis.New(addr, "", 0)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	retryStrategy := wbfretry.Strategy{
		Attempts: 5,
		Delay:    1 * time.Second,
		Backoff:  2,
	}

	var pingErr error
	err := wbfretry.DoContext(ctx, retryStrategy, func() error {
		pingErr = wbfClient.Ping(ctx)
		return pingErr
	})

	if err != nil || pingErr != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	slog.Info("connected to redis", "module", "storage", "addr", addr)

	return wbfClient.Client, nil
}

// RedisAlertStore holds the pending alert set of one household.
//
//	alerts:<household>:<id>    alert JSON, expires an hour after it fires
//	alerts:<household>:pending ZSET of ids scored by fire time
type RedisAlertStore struct {
	client    *redis.Client
	namespace string
	now       func() time.Time
}

func NewRedisAlertStore(client *redis.Client, householdID string) *RedisAlertStore {
	return &RedisAlertStore{
		client:    client,
		namespace: "alerts:" + householdID,
		now:       time.Now,
	}
}

func (s *RedisAlertStore) key(id string) string { return s.namespace + ":" + id }
func (s *RedisAlertStore) pendingKey() string   { return s.namespace + ":pending" }

func (s *RedisAlertStore) Schedule(ctx context.Context, alert models.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	fireAt := alert.Trigger.At
	ttl := alertTTL(fireAt, s.now())

	err = wbfretry.DoContext(ctx, redisRetry, func() error {
		return s.client.Set(ctx, s.key(alert.ID), data, ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to store alert: %w", err)
	}

	err = wbfretry.DoContext(ctx, redisRetry, func() error {
		return s.client.ZAdd(ctx, s.pendingKey(), &redis.Z{
			Score:  float64(fireAt.Unix()),
			Member: alert.ID,
		}).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to add alert to pending set: %w", err)
	}

	return nil
}

// alertTTL keeps an alert's payload until alertKeepAfterFire past its fire
// time, and never less than a minute.
func alertTTL(fireAt, now time.Time) time.Duration {
	ttl := fireAt.Sub(now) + alertKeepAfterFire
	if ttl < time.Minute {
		return time.Minute
	}
	return ttl
}

func (s *RedisAlertStore) Cancel(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	keys := make([]string, 0, len(ids))
	members := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, s.key(id))
		members = append(members, id)
	}

	err := wbfretry.DoContext(ctx, redisRetry, func() error {
		return s.client.Del(ctx, keys...).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to delete alerts: %w", err)
	}

	err = wbfretry.DoContext(ctx, redisRetry, func() error {
		return s.client.ZRem(ctx, s.pendingKey(), members...).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to remove alerts from pending set: %w", err)
	}
	return nil
}

func (s *RedisAlertStore) ListPending(ctx context.Context) ([]string, error) {
	cutoff := s.now().Add(-alertKeepAfterFire).Unix()
	if err := s.client.ZRemRangeByScore(ctx, s.pendingKey(), "-inf", strconv.FormatInt(cutoff, 10)).Err(); err != nil {
		return nil, fmt.Errorf("failed to prune fired alerts: %w", err)
	}

	ids, err := s.client.ZRange(ctx, s.pendingKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list pending alerts: %w", err)
	}
	return ids, nil
}

// RedisDispatchGuard dedupes sweep reminders across worker processes.
type RedisDispatchGuard struct {
	client *redis.Client
}

func NewRedisDispatchGuard(client *redis.Client) *RedisDispatchGuard {
	return &RedisDispatchGuard{client: client}
}

func (g *RedisDispatchGuard) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	var ok bool
	err := wbfretry.DoContext(ctx, redisRetry, func() error {
		var setErr error
		ok, setErr = g.client.SetNX(ctx, "dispatch:"+key, 1, ttl).Result()
		return setErr
	})
	if err != nil {
		return false, fmt.Errorf("failed to claim dispatch key: %w", err)
	}
	return ok, nil
}
