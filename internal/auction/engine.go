// Package auction accepts bids on auction items. For each item the
// accepted bids form a strictly increasing sequence: every bid is checked
// and applied while the item is exclusively locked.
package auction

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-marketplace-core/internal/auth"
	"github.com/ariefcatur/go-marketplace-core/internal/events"
	"github.com/ariefcatur/go-marketplace-core/internal/logging"
	"github.com/ariefcatur/go-marketplace-core/internal/market"
	"github.com/ariefcatur/go-marketplace-core/internal/metrics"
	"github.com/ariefcatur/go-marketplace-core/internal/store"
)

var tracer = otel.Tracer("auction")

// HistoryCache is an optional read-through cache for bid history.
type HistoryCache interface {
	Get(ctx context.Context, item uuid.UUID) ([]market.Bid, bool, error)
	Set(ctx context.Context, item uuid.UUID, bids []market.Bid) error
	Invalidate(ctx context.Context, item uuid.UUID) error
}

type Result struct {
	Accepted   decimal.Decimal
	CurrentBid decimal.Decimal
	BidCount   int
	Bid        market.Bid
}

type Engine struct {
	store           store.Store
	publisher       events.Publisher
	cache           HistoryCache
	log             *zap.Logger
	producer        string
	mutationTimeout time.Duration
	now             func() time.Time
}

type Option func(*Engine)

func WithPublisher(p events.Publisher) Option { return func(e *Engine) { e.publisher = p } }

func WithHistoryCache(c HistoryCache) Option { return func(e *Engine) { e.cache = c } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func WithProducerName(name string) Option { return func(e *Engine) { e.producer = name } }

func WithMutationTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.mutationTimeout = d
		}
	}
}

func NewEngine(st store.Store, log *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:           st,
		publisher:       events.Discard{},
		log:             log,
		producer:        "market-api",
		mutationTimeout: 5 * time.Second,
		now:             time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) PlaceBid(ctx context.Context, itemID string, caller auth.Identity, amount decimal.Decimal) (res *Result, err error) {
	ctx, span := tracer.Start(ctx, "auction.PlaceBid")
	defer func() {
		metrics.BidsTotal.WithLabelValues(metrics.Outcome(err, market.IsRejection)).Inc()
		if err != nil && !market.IsRejection(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	id, err := market.ParseID(itemID)
	if err != nil {
		return nil, err
	}
	if !caller.Valid() {
		return nil, market.ErrUnauthorized
	}
	if err := market.CheckAmount(amount); err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("auction.item_id", id.String()),
		attribute.String("auction.amount", amount.String()),
	)

	res, err = e.apply(ctx, id, caller, amount)
	if err != nil {
		return nil, err
	}
	e.afterCommit(ctx, res)
	return res, nil
}

// apply runs detached from the caller so the bid and its history row are
// either both committed or both rolled back.
func (e *Engine) apply(ctx context.Context, id uuid.UUID, caller auth.Identity, amount decimal.Decimal) (*Result, error) {
	mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.mutationTimeout)
	defer cancel()

	var res *Result
	err := e.store.WithTx(mctx, func(ctx context.Context, tx store.Tx) error {
		item, err := tx.LockItem(ctx, id)
		if err != nil {
			return err
		}
		now := e.now()
		switch {
		case !item.Active:
			return market.ItemError(market.ErrItemNotFound, id)
		case !item.IsAuction:
			return market.ItemError(market.ErrNotAnAuction, id)
		case item.AuctionState(now) == market.AuctionClosed:
			return market.ItemError(market.ErrAuctionClosed, id)
		}
		floor := item.Floor()
		if !amount.GreaterThan(floor) {
			return market.BidTooLowError(id, floor)
		}

		bid := market.Bid{
			ID:         uuid.New(),
			ItemID:     id,
			BidderID:   caller.ID,
			BidderName: caller.Name,
			Amount:     amount,
			PlacedAt:   now.UTC(),
		}
		if err := tx.ApplyBid(ctx, id, amount); err != nil {
			return fmt.Errorf("apply bid: %w", err)
		}
		if err := tx.InsertBid(ctx, &bid); err != nil {
			return fmt.Errorf("insert bid: %w", err)
		}
		res = &Result{Accepted: amount, CurrentBid: amount, BidCount: item.BidCount + 1, Bid: bid}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Engine) afterCommit(ctx context.Context, res *Result) {
	bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()

	if e.cache != nil {
		if err := e.cache.Invalidate(bctx, res.Bid.ItemID); err != nil {
			logging.Warn(ctx, e.log, "invalidate bid history", zap.Error(err))
		}
	}

	logging.Info(ctx, e.log, "bid accepted",
		zap.String("item_id", res.Bid.ItemID.String()),
		zap.String("bidder_id", res.Bid.BidderID.String()),
		zap.String("amount", res.Accepted.StringFixed(2)),
		zap.Int("bid_count", res.BidCount),
	)

	env, err := events.New(events.EventBidPlaced, e.producer, logging.TraceID(ctx), res.Bid.ItemID.String(), events.BidPlacedPayload{
		BidID:    res.Bid.ID.String(),
		ItemID:   res.Bid.ItemID.String(),
		BidderID: res.Bid.BidderID.String(),
		Amount:   res.Accepted,
		BidCount: res.BidCount,
		PlacedAt: res.Bid.PlacedAt,
	})
	if err != nil {
		logging.Error(ctx, e.log, "build bid event", zap.Error(err))
		return
	}
	if err := e.publisher.Publish(bctx, events.TopicBidPlaced, []byte(res.Bid.ItemID.String()), env); err != nil {
		logging.Warn(ctx, e.log, "publish bid event", zap.Error(err))
	}
}

// History returns the item's bids, most recent first.
func (e *Engine) History(ctx context.Context, itemID string) ([]market.Bid, error) {
	ctx, span := tracer.Start(ctx, "auction.History")
	defer span.End()

	id, err := market.ParseID(itemID)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		bids, ok, err := e.cache.Get(ctx, id)
		if err != nil {
			logging.Warn(ctx, e.log, "bid history cache read", zap.Error(err))
		} else if ok {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return bids, nil
		}
	}

	if _, err := e.store.GetItem(ctx, id); err != nil {
		return nil, err
	}
	bids, err := e.store.ListBidsByItem(ctx, id, store.HistoryLimit)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		if err := e.cache.Set(ctx, id, bids); err != nil {
			logging.Warn(ctx, e.log, "bid history cache write", zap.Error(err))
		}
	}
	return bids, nil
}
