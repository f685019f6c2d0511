// Package memory is an in-process Store. Every item has its own lock; a
// transaction stages its writes and publishes them atomically on commit.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-marketplace-core/internal/market"
	"github.com/ariefcatur/go-marketplace-core/internal/store"
)

type idemKey struct {
	owner uuid.UUID
	key   string
}

type Store struct {
	mu     sync.RWMutex
	items  map[uuid.UUID]*market.Item
	locks  map[uuid.UUID]chan struct{}
	orders map[uuid.UUID]*market.Order
	seq    []uuid.UUID // order ids in commit order
	bids   map[uuid.UUID][]market.Bid
	idem   map[idemKey]uuid.UUID
	now    func() time.Time
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		items:  make(map[uuid.UUID]*market.Item),
		locks:  make(map[uuid.UUID]chan struct{}),
		orders: make(map[uuid.UUID]*market.Order),
		bids:   make(map[uuid.UUID][]market.Bid),
		idem:   make(map[idemKey]uuid.UUID),
		now:    time.Now,
	}
}

// PutItem inserts or replaces a catalog record. The catalog is owned by an
// external collaborator; this is its write path for tests and dev seeding.
func (s *Store) PutItem(it market.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if it.ID == uuid.Nil {
		it.ID = uuid.New()
	}
	if it.CreatedAt.IsZero() {
		it.CreatedAt = s.now()
		it.UpdatedAt = it.CreatedAt
	}
	s.items[it.ID] = copyItem(&it)
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) GetItem(_ context.Context, id uuid.UUID) (*market.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[id]
	if !ok {
		return nil, market.ItemError(market.ErrItemNotFound, id)
	}
	return copyItem(it), nil
}

func (s *Store) CountItems(_ context.Context, f market.ItemFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, it := range s.items {
		if f.Match(it) {
			n++
		}
	}
	return n, nil
}

func (s *Store) GetOrder(_ context.Context, owner, id uuid.UUID) (*market.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok || o.OwnerID != owner {
		return nil, market.ErrOrderNotFound
	}
	return copyOrder(o), nil
}

func (s *Store) FindOrderByIdempotencyKey(_ context.Context, owner uuid.UUID, key string) (*market.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.idem[idemKey{owner, key}]
	if !ok {
		return nil, market.ErrOrderNotFound
	}
	return copyOrder(s.orders[id]), nil
}

func (s *Store) ListOrdersByOwner(_ context.Context, owner uuid.UUID, limit int) ([]market.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]market.Order, 0)
	for i := len(s.seq) - 1; i >= 0; i-- {
		o := s.orders[s.seq[i]]
		if o.OwnerID != owner {
			continue
		}
		out = append(out, *copyOrder(o))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListBidsByItem(_ context.Context, item uuid.UUID, limit int) ([]market.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bids := s.bids[item]
	out := make([]market.Bid, 0, len(bids))
	for i := len(bids) - 1; i >= 0; i-- {
		out = append(out, bids[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	t := &tx{s: s, held: make(map[uuid.UUID]chan struct{}), items: make(map[uuid.UUID]*market.Item)}
	defer t.release()

	if err := fn(ctx, t); err != nil {
		return err
	}
	return t.commit()
}

func (s *Store) lockFor(id uuid.UUID) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = make(chan struct{}, 1)
		s.locks[id] = l
	}
	return l
}

type tx struct {
	s      *Store
	held   map[uuid.UUID]chan struct{}
	items  map[uuid.UUID]*market.Item
	orders []*market.Order
	bids   []market.Bid
}

func (t *tx) LockItem(ctx context.Context, id uuid.UUID) (*market.Item, error) {
	if it, ok := t.items[id]; ok {
		return copyItem(it), nil
	}
	if _, err := t.s.GetItem(ctx, id); err != nil {
		return nil, err
	}

	l := t.s.lockFor(id)
	select {
	case l <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("lock item %s: %w", id, ctx.Err())
	}
	t.held[id] = l

	// re-read now that the scope is exclusive
	it, err := t.s.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	t.items[id] = it
	return copyItem(it), nil
}

func (t *tx) locked(ctx context.Context, id uuid.UUID) (*market.Item, error) {
	if it, ok := t.items[id]; ok {
		return it, nil
	}
	if _, err := t.LockItem(ctx, id); err != nil {
		return nil, err
	}
	return t.items[id], nil
}

func (t *tx) AdjustQuantity(ctx context.Context, id uuid.UUID, delta int) error {
	it, err := t.locked(ctx, id)
	if err != nil {
		return err
	}
	if it.Quantity+delta < 0 {
		return market.InsufficientError(id, -delta, it.Quantity)
	}
	it.Quantity += delta
	it.UpdatedAt = t.s.now()
	return nil
}

func (t *tx) ApplyBid(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	it, err := t.locked(ctx, id)
	if err != nil {
		return err
	}
	bid := amount
	it.CurrentBid = &bid
	it.BidCount++
	it.UpdatedAt = t.s.now()
	return nil
}

func (t *tx) InsertOrder(_ context.Context, o *market.Order) error {
	if o.IdempotencyKey != "" {
		for _, staged := range t.orders {
			if staged.OwnerID == o.OwnerID && staged.IdempotencyKey == o.IdempotencyKey {
				return market.ErrDuplicateOrder
			}
		}
	}
	t.orders = append(t.orders, copyOrder(o))
	return nil
}

func (t *tx) InsertBid(_ context.Context, b *market.Bid) error {
	t.bids = append(t.bids, *b)
	return nil
}

func (t *tx) commit() error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range t.orders {
		if o.IdempotencyKey == "" {
			continue
		}
		if _, dup := s.idem[idemKey{o.OwnerID, o.IdempotencyKey}]; dup {
			return market.ErrDuplicateOrder
		}
	}
	for id, it := range t.items {
		s.items[id] = it
	}
	for _, o := range t.orders {
		s.orders[o.ID] = o
		s.seq = append(s.seq, o.ID)
		if o.IdempotencyKey != "" {
			s.idem[idemKey{o.OwnerID, o.IdempotencyKey}] = o.ID
		}
	}
	for _, b := range t.bids {
		s.bids[b.ItemID] = append(s.bids[b.ItemID], b)
	}
	return nil
}

func (t *tx) release() {
	for id, l := range t.held {
		<-l
		delete(t.held, id)
	}
}

func copyItem(it *market.Item) *market.Item {
	c := *it
	c.Images = append([]string(nil), it.Images...)
	if it.AuctionEndsAt != nil {
		end := *it.AuctionEndsAt
		c.AuctionEndsAt = &end
	}
	if it.CurrentBid != nil {
		bid := *it.CurrentBid
		c.CurrentBid = &bid
	}
	return &c
}

func copyOrder(o *market.Order) *market.Order {
	c := *o
	c.Items = append([]market.LineItem(nil), o.Items...)
	if o.TrackingNumber != nil {
		tn := *o.TrackingNumber
		c.TrackingNumber = &tn
	}
	return &c
}
