package postgres

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-marketplace-core/internal/market"
	"github.com/ariefcatur/go-marketplace-core/internal/store"
)

type StoreSuite struct {
	suite.Suite
	ctx   context.Context
	pool  *pgxpool.Pool
	store *Store
}

func TestStoreSuite(t *testing.T) {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set, skipping postgres integration tests")
	}
	suite.Run(t, &StoreSuite{})
}

func (s *StoreSuite) SetupSuite() {
	dsn := os.Getenv("POSTGRES_DSN")
	s.ctx = context.Background()
	s.Require().NoError(Migrate(dsn, false))

	pool, err := Connect(s.ctx, dsn, PoolConfig{MaxConns: 20})
	s.Require().NoError(err)
	s.pool = pool
	s.store = NewStore(pool, zap.NewNop())
}

func (s *StoreSuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *StoreSuite) SetupTest() {
	_, err := s.pool.Exec(s.ctx, `TRUNCATE bids, order_items, orders, items`)
	s.Require().NoError(err)
}

func (s *StoreSuite) insertItem(qty int, auction bool) uuid.UUID {
	id := uuid.New()
	var ends *time.Time
	if auction {
		t := time.Now().Add(time.Hour)
		ends = &t
	}
	_, err := s.pool.Exec(s.ctx, `INSERT INTO items(id, name, images, price, quantity, is_auction, auction_ends_at)
		VALUES ($1, 'lamp', ARRAY['a.jpg'], 10.00, $2, $3, $4)`, id, qty, auction, ends)
	s.Require().NoError(err)
	return id
}

func (s *StoreSuite) TestGetItem() {
	id := s.insertItem(4, false)

	it, err := s.store.GetItem(s.ctx, id)
	s.Require().NoError(err)
	s.Equal("lamp", it.Name)
	s.Equal(4, it.Quantity)
	s.Equal([]string{"a.jpg"}, it.Images)
	s.True(it.Price.Equal(decimal.RequireFromString("10")))
	s.Nil(it.CurrentBid)

	_, err = s.store.GetItem(s.ctx, uuid.New())
	s.ErrorIs(err, market.ErrItemNotFound)
}

func (s *StoreSuite) TestAdjustQuantity_Conditional() {
	id := s.insertItem(2, false)

	err := s.store.WithTx(s.ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.AdjustQuantity(ctx, id, -3)
	})
	s.ErrorIs(err, market.ErrInsufficientQuantity)

	it, err := s.store.GetItem(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(2, it.Quantity)
}

func (s *StoreSuite) TestConcurrentDecrementsNeverOversell() {
	id := s.insertItem(5, false)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.WithTx(s.ctx, func(ctx context.Context, tx store.Tx) error {
				it, err := tx.LockItem(ctx, id)
				if err != nil {
					return err
				}
				if it.Quantity < 1 {
					return market.InsufficientError(id, 1, it.Quantity)
				}
				return tx.AdjustQuantity(ctx, id, -1)
			})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	s.Equal(5, wins)
	it, err := s.store.GetItem(s.ctx, id)
	s.Require().NoError(err)
	s.Zero(it.Quantity)
}

func (s *StoreSuite) TestOrderRoundTrip() {
	item := s.insertItem(3, false)
	owner := uuid.New()
	o := market.NewOrder(owner, "ana", []market.LineItem{
		{ItemID: item, Name: "lamp", Price: decimal.RequireFromString("10.00"), Quantity: 2, Image: "a.jpg"},
	}, market.ShippingAddress{Street: "1 Main", City: "Springfield"}, "", time.Now().UTC().Truncate(time.Microsecond))
	o.IdempotencyKey = "cart-1"

	s.Require().NoError(s.store.WithTx(s.ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertOrder(ctx, o)
	}))

	got, err := s.store.GetOrder(s.ctx, owner, o.ID)
	s.Require().NoError(err)
	s.Equal(o.ID, got.ID)
	s.Equal(market.StatusProcessing, got.Status)
	s.Equal("Springfield", got.ShippingAddress.City)
	s.Equal(market.DefaultCountry, got.ShippingAddress.Country)
	s.Require().Len(got.Items, 1)
	s.True(got.TotalAmount.Equal(decimal.RequireFromString("20")))
	s.True(got.TaxAmount.Equal(decimal.RequireFromString("1.6")))

	_, err = s.store.GetOrder(s.ctx, uuid.New(), o.ID)
	s.ErrorIs(err, market.ErrOrderNotFound)

	byKey, err := s.store.FindOrderByIdempotencyKey(s.ctx, owner, "cart-1")
	s.Require().NoError(err)
	s.Equal(o.ID, byKey.ID)

	dup := market.NewOrder(owner, "ana", nil, market.ShippingAddress{}, "", time.Now())
	dup.IdempotencyKey = "cart-1"
	err = s.store.WithTx(s.ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertOrder(ctx, dup)
	})
	s.ErrorIs(err, market.ErrDuplicateOrder)

	list, err := s.store.ListOrdersByOwner(s.ctx, owner, 10)
	s.Require().NoError(err)
	s.Len(list, 1)
}

func (s *StoreSuite) TestBidsNewestFirst() {
	item := s.insertItem(1, true)
	for i := 1; i <= 3; i++ {
		amount := decimal.NewFromInt(int64(10 + i))
		s.Require().NoError(s.store.WithTx(s.ctx, func(ctx context.Context, tx store.Tx) error {
			if err := tx.ApplyBid(ctx, item, amount); err != nil {
				return err
			}
			return tx.InsertBid(ctx, &market.Bid{ID: uuid.New(), ItemID: item, BidderID: uuid.New(),
				BidderName: "bob", Amount: amount, PlacedAt: time.Now()})
		}))
	}

	bids, err := s.store.ListBidsByItem(s.ctx, item, 100)
	s.Require().NoError(err)
	s.Require().Len(bids, 3)
	s.True(bids[0].Amount.Equal(decimal.NewFromInt(13)))

	it, err := s.store.GetItem(s.ctx, item)
	s.Require().NoError(err)
	s.Equal(3, it.BidCount)
	s.Require().NotNil(it.CurrentBid)
	s.True(it.CurrentBid.Equal(decimal.NewFromInt(13)))
}

func (s *StoreSuite) TestCountItems() {
	s.insertItem(0, false)
	s.insertItem(3, false)
	s.insertItem(1, true)

	yes := true
	now := time.Now()
	n, err := s.store.CountItems(s.ctx, market.ItemFilter{ActiveOnly: true, InStockOnly: true})
	s.Require().NoError(err)
	s.Equal(2, n)

	n, err = s.store.CountItems(s.ctx, market.ItemFilter{Auction: &yes, OpenAt: &now})
	s.Require().NoError(err)
	s.Equal(1, n)
}
