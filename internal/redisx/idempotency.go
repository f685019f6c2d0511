package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// OrderGuard keeps two concurrent submissions of the same idempotency key
// from both reaching the store. The ledger's unique index stays the source
// of truth; the guard only short-circuits the race.
type OrderGuard struct {
	RDB      *redis.Client
	InFlight time.Duration
	Done     time.Duration
}

func NewOrderGuard(rdb *redis.Client, done time.Duration) *OrderGuard {
	if done <= 0 {
		done = TTLIdempotency
	}
	return &OrderGuard{RDB: rdb, InFlight: TTLIdemInFlight, Done: done}
}

func (g *OrderGuard) key(owner uuid.UUID, key string) string {
	return fmt.Sprintf(KeyIdemOrderCreate, owner, key)
}

// Acquire returns false when another request holds the key.
func (g *OrderGuard) Acquire(ctx context.Context, owner uuid.UUID, key string) (bool, error) {
	ok, err := g.RDB.SetNX(ctx, g.key(owner, key), pendingMarker, g.InFlight).Result()
	if err != nil {
		return false, fmt.Errorf("acquire idempotency key: %w", err)
	}
	if ok {
		return true, nil
	}
	// a completed key no longer blocks; the caller replays from the ledger
	v, err := g.RDB.Get(ctx, g.key(owner, key)).Result()
	if err == redis.Nil {
		return g.Acquire(ctx, owner, key)
	}
	if err != nil {
		return false, fmt.Errorf("read idempotency key: %w", err)
	}
	return v != pendingMarker, nil
}

func (g *OrderGuard) Complete(ctx context.Context, owner uuid.UUID, key string, orderID uuid.UUID) error {
	return g.RDB.Set(ctx, g.key(owner, key), orderID.String(), g.Done).Err()
}

// releaseScript deletes the key only while it still holds the in-flight
// marker, so a completed key survives a failed retry.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

func (g *OrderGuard) Release(ctx context.Context, owner uuid.UUID, key string) error {
	if err := releaseScript.Run(ctx, g.RDB, []string{g.key(owner, key)}, pendingMarker).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}
