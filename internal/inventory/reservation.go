// Package inventory validates a cart against current availability and
// commits the multi-item decrement inside the caller's transaction.
package inventory

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ariefcatur/go-marketplace-core/internal/market"
	"github.com/ariefcatur/go-marketplace-core/internal/store"
)

var tracer = otel.Tracer("inventory")

// MaxLineQuantity bounds a single line, after merging duplicates, to what
// the ledger's INTEGER quantity column holds.
const MaxLineQuantity = math.MaxInt32

type Line struct {
	ItemID   uuid.UUID
	Quantity int
}

type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

// Reserve locks every requested item, validates all lines, and only then
// decrements. On error nothing has been decremented by this call; the
// caller's rollback releases the locks.
func (e *Engine) Reserve(ctx context.Context, tx store.Tx, lines []Line) ([]market.LineItem, error) {
	ctx, span := tracer.Start(ctx, "inventory.Reserve")
	defer span.End()

	if len(lines) == 0 {
		return nil, market.ErrEmptyCart
	}
	merged, err := coalesce(lines)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("inventory.lines", len(merged)))

	// Lock in id order so two carts sharing items cannot deadlock.
	order := make([]Line, len(merged))
	copy(order, merged)
	sort.Slice(order, func(i, j int) bool {
		return bytes.Compare(order[i].ItemID[:], order[j].ItemID[:]) < 0
	})
	locked := make(map[uuid.UUID]*market.Item, len(order))
	for _, l := range order {
		it, err := tx.LockItem(ctx, l.ItemID)
		if err != nil {
			return nil, err
		}
		locked[l.ItemID] = it
	}

	priced := make([]market.LineItem, 0, len(merged))
	for _, l := range merged {
		it := locked[l.ItemID]
		if err := check(it, l); err != nil {
			span.RecordError(err)
			return nil, err
		}
		priced = append(priced, market.LineItem{
			ItemID:   it.ID,
			Name:     it.Name,
			Price:    it.Price,
			Quantity: l.Quantity,
			Image:    it.PrimaryImage(),
		})
	}

	for _, l := range merged {
		if err := tx.AdjustQuantity(ctx, l.ItemID, -l.Quantity); err != nil {
			return nil, fmt.Errorf("decrement %s: %w", l.ItemID, err)
		}
	}
	return priced, nil
}

// Release hands reserved units back inside tx.
func (e *Engine) Release(ctx context.Context, tx store.Tx, lines []market.LineItem) error {
	for _, l := range lines {
		if err := tx.AdjustQuantity(ctx, l.ItemID, l.Quantity); err != nil {
			return fmt.Errorf("release %s: %w", l.ItemID, err)
		}
	}
	return nil
}

func check(it *market.Item, l Line) error {
	switch {
	case l.Quantity <= 0:
		return &market.Error{Kind: market.ErrInvalidQuantity, ItemID: it.ID, Requested: l.Quantity}
	case !it.Active:
		return market.ItemError(market.ErrItemNotFound, it.ID)
	case it.IsAuction:
		return market.ItemError(market.ErrAuctionNotPurchasable, it.ID)
	case l.Quantity > it.Quantity:
		return market.InsufficientError(it.ID, l.Quantity, it.Quantity)
	}
	return nil
}

// coalesce merges lines for the same item, keeping first-seen order.
func coalesce(lines []Line) ([]Line, error) {
	idx := make(map[uuid.UUID]int, len(lines))
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		if l.ItemID == uuid.Nil {
			return nil, fmt.Errorf("%w: nil item id", market.ErrInvalidIdentifier)
		}
		if l.Quantity <= 0 || l.Quantity > MaxLineQuantity {
			return nil, &market.Error{Kind: market.ErrInvalidQuantity, ItemID: l.ItemID, Requested: l.Quantity}
		}
		if i, ok := idx[l.ItemID]; ok {
			if out[i].Quantity > MaxLineQuantity-l.Quantity {
				return nil, &market.Error{Kind: market.ErrInvalidQuantity, ItemID: l.ItemID}
			}
			out[i].Quantity += l.Quantity
			continue
		}
		idx[l.ItemID] = len(out)
		out = append(out, l)
	}
	return out, nil
}
