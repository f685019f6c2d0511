package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-marketplace-core/internal/market"
	"github.com/ariefcatur/go-marketplace-core/internal/store"
)

func newItem(s *Store, qty int) uuid.UUID {
	id := uuid.New()
	s.PutItem(market.Item{ID: id, Name: "item", Price: decimal.NewFromInt(10), Quantity: qty, Active: true})
	return id
}

func TestWithTx_CommitPublishesStagedWrites(t *testing.T) {
	ctx := context.Background()
	s := New()
	id := newItem(s, 5)
	owner := uuid.New()

	err := s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.AdjustQuantity(ctx, id, -2); err != nil {
			return err
		}
		o := market.NewOrder(owner, "ana", nil, market.ShippingAddress{}, "", time.Now())
		return tx.InsertOrder(ctx, o)
	})
	require.NoError(t, err)

	it, err := s.GetItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3, it.Quantity)

	orders, err := s.ListOrdersByOwner(ctx, owner, 10)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestWithTx_RollbackDiscardsEverything(t *testing.T) {
	ctx := context.Background()
	s := New()
	id := newItem(s, 5)
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		require.NoError(t, tx.AdjustQuantity(ctx, id, -5))
		require.NoError(t, tx.ApplyBid(ctx, id, decimal.NewFromInt(99)))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	it, err := s.GetItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 5, it.Quantity)
	assert.Nil(t, it.CurrentBid)
	assert.Zero(t, it.BidCount)
}

func TestAdjustQuantity_NeverBelowZero(t *testing.T) {
	ctx := context.Background()
	s := New()
	id := newItem(s, 1)

	err := s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.AdjustQuantity(ctx, id, -2)
	})
	assert.ErrorIs(t, err, market.ErrInsufficientQuantity)
}

func TestLockItem_Missing(t *testing.T) {
	s := New()
	err := s.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := tx.LockItem(ctx, uuid.New())
		return err
	})
	assert.ErrorIs(t, err, market.ErrItemNotFound)
}

func TestLockItem_IsExclusive(t *testing.T) {
	ctx := context.Background()
	s := New()
	id := newItem(s, 100)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
				if _, err := tx.LockItem(ctx, id); err != nil {
					return err
				}
				return tx.AdjustQuantity(ctx, id, -1)
			})
		}()
	}
	wg.Wait()

	it, err := s.GetItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 50, it.Quantity)
}

func TestLockItem_HonoursContext(t *testing.T) {
	s := New()
	id := newItem(s, 1)
	locked := make(chan struct{})
	done := make(chan struct{})

	go func() {
		_ = s.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
			_, err := tx.LockItem(ctx, id)
			close(locked)
			<-done
			return err
		})
	}()
	<-locked

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.LockItem(ctx, id)
		return err
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(done)
}

func TestIdempotencyKeyIsUniquePerOwner(t *testing.T) {
	ctx := context.Background()
	s := New()
	owner := uuid.New()
	insert := func(owner uuid.UUID) error {
		return s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			o := market.NewOrder(owner, "ana", nil, market.ShippingAddress{}, "", time.Now())
			o.IdempotencyKey = "k1"
			return tx.InsertOrder(ctx, o)
		})
	}

	require.NoError(t, insert(owner))
	assert.ErrorIs(t, insert(owner), market.ErrDuplicateOrder)
	require.NoError(t, insert(uuid.New()))

	found, err := s.FindOrderByIdempotencyKey(ctx, owner, "k1")
	require.NoError(t, err)
	assert.Equal(t, owner, found.OwnerID)
}

func TestGetOrder_ScopedToOwner(t *testing.T) {
	ctx := context.Background()
	s := New()
	owner := uuid.New()
	o := market.NewOrder(owner, "ana", nil, market.ShippingAddress{}, "", time.Now())
	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error { return tx.InsertOrder(ctx, o) }))

	_, err := s.GetOrder(ctx, owner, o.ID)
	require.NoError(t, err)
	_, err = s.GetOrder(ctx, uuid.New(), o.ID)
	assert.ErrorIs(t, err, market.ErrOrderNotFound)
}

func TestListBidsByItem_NewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New()
	item := newItem(s, 1)
	for i := 1; i <= 3; i++ {
		b := &market.Bid{ID: uuid.New(), ItemID: item, Amount: decimal.NewFromInt(int64(i)), PlacedAt: time.Now()}
		require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error { return tx.InsertBid(ctx, b) }))
	}

	bids, err := s.ListBidsByItem(ctx, item, 2)
	require.NoError(t, err)
	require.Len(t, bids, 2)
	assert.True(t, bids[0].Amount.Equal(decimal.NewFromInt(3)))
	assert.True(t, bids[1].Amount.Equal(decimal.NewFromInt(2)))
}

func TestCountItems(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now()
	SeedDemo(s, now)

	all, err := s.CountItems(ctx, market.ItemFilter{})
	require.NoError(t, err)
	assert.Equal(t, 5, all)

	yes := true
	open, err := s.CountItems(ctx, market.ItemFilter{ActiveOnly: true, Auction: &yes, OpenAt: &now})
	require.NoError(t, err)
	assert.Equal(t, 2, open)
}
