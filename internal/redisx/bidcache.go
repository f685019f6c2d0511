package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-marketplace-core/internal/market"
)

type cachedBid struct {
	ID         uuid.UUID       `json:"id"`
	ItemID     uuid.UUID       `json:"item_id"`
	BidderID   uuid.UUID       `json:"bidder_id"`
	BidderName string          `json:"bidder_name"`
	Amount     decimal.Decimal `json:"amount"`
	PlacedAt   time.Time       `json:"placed_at"`
}

// BidHistoryCache is a short-lived read-through copy of an item's bid history.
type BidHistoryCache struct {
	RDB *redis.Client
	TTL time.Duration
}

func NewBidHistoryCache(rdb *redis.Client, ttl time.Duration) *BidHistoryCache {
	if ttl <= 0 {
		ttl = TTLBidHistory
	}
	return &BidHistoryCache{RDB: rdb, TTL: ttl}
}

// Get reports ok=false on a miss.
func (c *BidHistoryCache) Get(ctx context.Context, item uuid.UUID) ([]market.Bid, bool, error) {
	raw, err := c.RDB.Get(ctx, fmt.Sprintf(KeyBidHistory, item)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("bid cache get: %w", err)
	}
	var cached []cachedBid
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil, false, fmt.Errorf("bid cache decode: %w", err)
	}
	out := make([]market.Bid, 0, len(cached))
	for _, b := range cached {
		out = append(out, market.Bid(b))
	}
	return out, true, nil
}

func (c *BidHistoryCache) Set(ctx context.Context, item uuid.UUID, bids []market.Bid) error {
	cached := make([]cachedBid, 0, len(bids))
	for _, b := range bids {
		cached = append(cached, cachedBid(b))
	}
	raw, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("bid cache encode: %w", err)
	}
	return c.RDB.Set(ctx, fmt.Sprintf(KeyBidHistory, item), raw, c.TTL).Err()
}

func (c *BidHistoryCache) Invalidate(ctx context.Context, item uuid.UUID) error {
	return c.RDB.Del(ctx, fmt.Sprintf(KeyBidHistory, item)).Err()
}
