package redisx

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// Activity is the per-item read model built from committed events.
type Activity struct {
	ItemID     uuid.UUID        `json:"item_id"`
	UnitsSold  int64            `json:"units_sold"`
	Orders     int64            `json:"orders"`
	CurrentBid *decimal.Decimal `json:"current_bid,omitempty"`
	BidCount   int              `json:"bid_count"`
	LastBidAt  *time.Time       `json:"last_bid_at,omitempty"`
}

type ActivityStore struct {
	RDB *redis.Client
}

func (s *ActivityStore) key(item uuid.UUID) string { return fmt.Sprintf(KeyItemActivity, item) }

func (s *ActivityStore) AddSale(ctx context.Context, item uuid.UUID, units int) error {
	pipe := s.RDB.TxPipeline()
	pipe.HIncrBy(ctx, s.key(item), "units_sold", int64(units))
	pipe.HIncrBy(ctx, s.key(item), "orders", 1)
	pipe.Expire(ctx, s.key(item), TTLActivity)
	_, err := pipe.Exec(ctx)
	return err
}

// SetBid keeps the highest bid count seen, so a replayed or late event
// cannot move the projection backwards.
var setBidScript = redis.NewScript(`
local cur = tonumber(redis.call('HGET', KEYS[1], 'bid_count') or '0')
local incoming = tonumber(ARGV[2])
if incoming <= cur then
  return 0
end
redis.call('HSET', KEYS[1], 'current_bid', ARGV[1], 'bid_count', ARGV[2], 'last_bid_at', ARGV[3])
redis.call('EXPIRE', KEYS[1], ARGV[4])
return 1
`)

func (s *ActivityStore) SetBid(ctx context.Context, item uuid.UUID, amount decimal.Decimal, bidCount int, at time.Time) (bool, error) {
	n, err := setBidScript.Run(ctx, s.RDB, []string{s.key(item)},
		amount.String(), bidCount, at.UTC().Format(time.RFC3339Nano), int(TTLActivity.Seconds()),
	).Int()
	if err != nil {
		return false, fmt.Errorf("set bid activity: %w", err)
	}
	return n == 1, nil
}

func (s *ActivityStore) Get(ctx context.Context, item uuid.UUID) (*Activity, error) {
	vals, err := s.RDB.HGetAll(ctx, s.key(item)).Result()
	if err != nil {
		return nil, fmt.Errorf("activity get: %w", err)
	}
	a := &Activity{ItemID: item}
	if len(vals) == 0 {
		return a, nil
	}
	if v, ok := vals["units_sold"]; ok {
		a.UnitsSold, _ = strconv.ParseInt(v, 10, 64)
	}
	if v, ok := vals["orders"]; ok {
		a.Orders, _ = strconv.ParseInt(v, 10, 64)
	}
	if v, ok := vals["bid_count"]; ok {
		a.BidCount, _ = strconv.Atoi(v)
	}
	if v, ok := vals["current_bid"]; ok {
		bid, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("activity parse current_bid: %w", err)
		}
		a.CurrentBid = &bid
	}
	if v, ok := vals["last_bid_at"]; ok {
		at, err := time.Parse(time.RFC3339Nano, v)
		if err == nil {
			a.LastBidAt = &at
		}
	}
	return a, nil
}

// Dedup records processed event ids per consumer.
type Dedup struct {
	RDB     *redis.Client
	Service string
}

// FirstSeen atomically marks the event and reports whether this is the first delivery.
func (d *Dedup) FirstSeen(ctx context.Context, eventID string) (bool, error) {
	ok, err := d.RDB.SetNX(ctx, fmt.Sprintf(KeyDedup, d.Service, eventID), "1", TTLDedup).Result()
	if err != nil {
		return false, fmt.Errorf("dedup: %w", err)
	}
	return ok, nil
}

// Forget undoes FirstSeen so a failed event can be redelivered.
func (d *Dedup) Forget(ctx context.Context, eventID string) error {
	return d.RDB.Del(ctx, fmt.Sprintf(KeyDedup, d.Service, eventID)).Err()
}
