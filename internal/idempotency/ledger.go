// Package idempotency records which processor events were already handled.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

type State int

const (
	// Claimed means the caller now owns the event and must Complete or Release it.
	Claimed State = iota
	// InFlight means another worker holds the claim.
	InFlight
	// Done means the event was processed before.
	Done
)

const (
	valueProcessing = "processing"
	valueDone       = "done"

	keyPrefix = "webhook-event:"
)

// Store is the subset of the redis client the ledger uses.
type Store interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type RedisLedger struct {
	rdb Store
	// claimTTL bounds how long a crashed worker can block redelivery.
	claimTTL time.Duration
	doneTTL  time.Duration
}

func NewRedisLedger(rdb Store, claimTTL, doneTTL time.Duration) *RedisLedger {
	return &RedisLedger{rdb: rdb, claimTTL: claimTTL, doneTTL: doneTTL}
}

func (l *RedisLedger) Claim(ctx context.Context, eventID string) (State, error) {
	key := keyPrefix + eventID
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := l.rdb.SetNX(ctx, key, valueProcessing, l.claimTTL).Result()
		if err != nil {
			return 0, fmt.Errorf("claim %s: %w", eventID, err)
		}
		if ok {
			return Claimed, nil
		}

		val, err := l.rdb.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			// expired between SETNX and GET
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("read claim %s: %w", eventID, err)
		}
		if val == valueDone {
			return Done, nil
		}
		return InFlight, nil
	}
	return InFlight, nil
}

func (l *RedisLedger) Complete(ctx context.Context, eventID string) error {
	if err := l.rdb.Set(ctx, keyPrefix+eventID, valueDone, l.doneTTL).Err(); err != nil {
		return fmt.Errorf("complete %s: %w", eventID, err)
	}
	return nil
}

// Release drops a claim so that a redelivery of the event is processed again.
func (l *RedisLedger) Release(ctx context.Context, eventID string) error {
	if err := l.rdb.Del(ctx, keyPrefix+eventID).Err(); err != nil {
		return fmt.Errorf("release %s: %w", eventID, err)
	}
	return nil
}
