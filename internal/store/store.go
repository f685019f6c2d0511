// Package store defines the record-store capabilities the marketplace core
// depends on: catalog items, the order and bid ledger, and a transactional
// scope with per-item exclusive locks.
//
// Implementations are opened once at process start and injected into the
// engines; their lifetime is the process.
package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-marketplace-core/internal/market"
)

// HistoryLimit caps ledger listings.
const HistoryLimit = 100

// Catalog is the read side of the item records.
type Catalog interface {
	GetItem(ctx context.Context, id uuid.UUID) (*market.Item, error)
	CountItems(ctx context.Context, f market.ItemFilter) (int, error)
}

// Ledger is the read side of the append-only order and bid records.
type Ledger interface {
	GetOrder(ctx context.Context, owner, id uuid.UUID) (*market.Order, error)
	FindOrderByIdempotencyKey(ctx context.Context, owner uuid.UUID, key string) (*market.Order, error)
	// ListOrdersByOwner returns newest first.
	ListOrdersByOwner(ctx context.Context, owner uuid.UUID, limit int) ([]market.Order, error)
	// ListBidsByItem returns newest first.
	ListBidsByItem(ctx context.Context, item uuid.UUID, limit int) ([]market.Bid, error)
}

// Tx is a unit of work. Everything done through it is committed together or
// not at all.
type Tx interface {
	// LockItem reads the item and holds an exclusive scope on it until the
	// transaction ends.
	LockItem(ctx context.Context, id uuid.UUID) (*market.Item, error)
	// AdjustQuantity adds delta to the available quantity. It fails with
	// market.ErrInsufficientQuantity instead of going below zero.
	AdjustQuantity(ctx context.Context, id uuid.UUID, delta int) error
	// ApplyBid sets the current bid and increments the bid count.
	ApplyBid(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error
	InsertOrder(ctx context.Context, o *market.Order) error
	InsertBid(ctx context.Context, b *market.Bid) error
}

type Store interface {
	Catalog
	Ledger
	// WithTx commits when fn returns nil and rolls back otherwise. Rollback
	// is not bound to ctx cancellation.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error
}
