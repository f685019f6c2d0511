package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-marketplace-core/internal/market"
)

type RetryOptions struct {
	// Attempts includes the first call.
	Attempts        int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Logger          *zap.Logger
}

func (o RetryOptions) withDefaults() RetryOptions {
	if o.Attempts <= 0 {
		o.Attempts = 3
	}
	if o.InitialInterval <= 0 {
		o.InitialInterval = 50 * time.Millisecond
	}
	if o.MaxInterval <= 0 {
		o.MaxInterval = time.Second
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// WithReadRetry retries idempotent reads on market.ErrStoreUnavailable and
// trips a circuit breaker when the store keeps failing. WithTx is passed
// through: a mutation is never replayed automatically.
func WithReadRetry(s Store, opts RetryOptions) Store {
	opts = opts.withDefaults()
	log := opts.Logger
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "store-reads",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     5 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, market.ErrStoreUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return &retrying{Store: s, opts: opts, cb: cb}
}

type retrying struct {
	Store
	opts RetryOptions
	cb   *gobreaker.CircuitBreaker
}

func read[T any](ctx context.Context, r *retrying, op string, fn func() (T, error)) (T, error) {
	var out T
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.opts.InitialInterval
	exp.MaxInterval = r.opts.MaxInterval
	b := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(r.opts.Attempts-1)), ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		v, err := r.cb.Execute(func() (interface{}, error) {
			return fn()
		})
		switch {
		case err == nil:
			out = v.(T)
			return nil
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return backoff.Permanent(market.Unavailable(op, err))
		case errors.Is(err, market.ErrStoreUnavailable):
			r.opts.Logger.Debug("store read failed, retrying",
				zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err))
			return err
		default:
			return backoff.Permanent(err)
		}
	}, b)
	if err != nil {
		var zero T
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, market.ErrStoreUnavailable) {
			return zero, fmt.Errorf("%s: %w", op, ctxErr)
		}
		return zero, err
	}
	return out, nil
}

func (r *retrying) GetItem(ctx context.Context, id uuid.UUID) (*market.Item, error) {
	return read(ctx, r, "get item", func() (*market.Item, error) { return r.Store.GetItem(ctx, id) })
}

func (r *retrying) CountItems(ctx context.Context, f market.ItemFilter) (int, error) {
	return read(ctx, r, "count items", func() (int, error) { return r.Store.CountItems(ctx, f) })
}

func (r *retrying) GetOrder(ctx context.Context, owner, id uuid.UUID) (*market.Order, error) {
	return read(ctx, r, "get order", func() (*market.Order, error) { return r.Store.GetOrder(ctx, owner, id) })
}

func (r *retrying) FindOrderByIdempotencyKey(ctx context.Context, owner uuid.UUID, key string) (*market.Order, error) {
	return read(ctx, r, "find order", func() (*market.Order, error) {
		return r.Store.FindOrderByIdempotencyKey(ctx, owner, key)
	})
}

func (r *retrying) ListOrdersByOwner(ctx context.Context, owner uuid.UUID, limit int) ([]market.Order, error) {
	return read(ctx, r, "list orders", func() ([]market.Order, error) {
		return r.Store.ListOrdersByOwner(ctx, owner, limit)
	})
}

func (r *retrying) ListBidsByItem(ctx context.Context, item uuid.UUID, limit int) ([]market.Bid, error) {
	return read(ctx, r, "list bids", func() ([]market.Bid, error) {
		return r.Store.ListBidsByItem(ctx, item, limit)
	})
}
