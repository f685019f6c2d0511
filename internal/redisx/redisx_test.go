package redisx

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-marketplace-core/internal/market"
)

func TestNew_InvalidURL(t *testing.T) {
	_, err := New(context.Background(), "not-a-valid-url")
	assert.Error(t, err)
}

func testClient(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set; skipping redis integration tests")
	}
	rdb, err := New(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestOrderGuard(t *testing.T) {
	rdb := testClient(t)
	ctx := context.Background()
	g := NewOrderGuard(rdb, time.Minute)
	owner, key := uuid.New(), uuid.NewString()
	t.Cleanup(func() { rdb.Del(ctx, g.key(owner, key)) })

	ok, err := g.Acquire(ctx, owner, key)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.Acquire(ctx, owner, key)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire while pending")

	require.NoError(t, g.Complete(ctx, owner, key, uuid.New()))
	ok, err = g.Acquire(ctx, owner, key)
	require.NoError(t, err)
	assert.True(t, ok, "completed key lets the replay through")
}

func TestOrderGuard_ReleaseKeepsCompletedKey(t *testing.T) {
	rdb := testClient(t)
	ctx := context.Background()
	g := NewOrderGuard(rdb, time.Minute)
	owner, key := uuid.New(), uuid.NewString()
	t.Cleanup(func() { rdb.Del(ctx, g.key(owner, key)) })

	ok, err := g.Acquire(ctx, owner, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, g.Release(ctx, owner, key))
	n, err := rdb.Exists(ctx, g.key(owner, key)).Result()
	require.NoError(t, err)
	assert.Zero(t, n, "pending key is released")

	ok, err = g.Acquire(ctx, owner, key)
	require.NoError(t, err)
	require.True(t, ok)
	orderID := uuid.New()
	require.NoError(t, g.Complete(ctx, owner, key, orderID))

	// a retry passes the completed key, fails its commit and releases
	ok, err = g.Acquire(ctx, owner, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, g.Release(ctx, owner, key))

	v, err := rdb.Get(ctx, g.key(owner, key)).Result()
	require.NoError(t, err)
	assert.Equal(t, orderID.String(), v)
}

func TestBidHistoryCache(t *testing.T) {
	rdb := testClient(t)
	ctx := context.Background()
	c := NewBidHistoryCache(rdb, time.Minute)
	item := uuid.New()
	t.Cleanup(func() { _ = c.Invalidate(ctx, item) })

	_, ok, err := c.Get(ctx, item)
	require.NoError(t, err)
	assert.False(t, ok)

	bids := []market.Bid{{ID: uuid.New(), ItemID: item, BidderName: "ana", Amount: decimal.RequireFromString("12.5"), PlacedAt: time.Now().UTC()}}
	require.NoError(t, c.Set(ctx, item, bids))

	got, ok, err := c.Get(ctx, item)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "ana", got[0].BidderName)
	assert.True(t, got[0].Amount.Equal(bids[0].Amount))

	require.NoError(t, c.Invalidate(ctx, item))
	_, ok, err = c.Get(ctx, item)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestActivityStore(t *testing.T) {
	rdb := testClient(t)
	ctx := context.Background()
	s := &ActivityStore{RDB: rdb}
	item := uuid.New()
	t.Cleanup(func() { rdb.Del(ctx, s.key(item)) })

	require.NoError(t, s.AddSale(ctx, item, 2))
	require.NoError(t, s.AddSale(ctx, item, 1))

	applied, err := s.SetBid(ctx, item, decimal.RequireFromString("20"), 2, time.Now())
	require.NoError(t, err)
	assert.True(t, applied)
	applied, err = s.SetBid(ctx, item, decimal.RequireFromString("15"), 1, time.Now())
	require.NoError(t, err)
	assert.False(t, applied, "older bid must not overwrite")

	a, err := s.Get(ctx, item)
	require.NoError(t, err)
	assert.Equal(t, int64(3), a.UnitsSold)
	assert.Equal(t, int64(2), a.Orders)
	assert.Equal(t, 2, a.BidCount)
	require.NotNil(t, a.CurrentBid)
	assert.True(t, a.CurrentBid.Equal(decimal.RequireFromString("20")))
}

func TestDedup(t *testing.T) {
	rdb := testClient(t)
	ctx := context.Background()
	d := &Dedup{RDB: rdb, Service: "test"}
	id := uuid.NewString()
	t.Cleanup(func() { _ = d.Forget(ctx, id) })

	first, err := d.FirstSeen(ctx, id)
	require.NoError(t, err)
	assert.True(t, first)
	first, err = d.FirstSeen(ctx, id)
	require.NoError(t, err)
	assert.False(t, first)
}
