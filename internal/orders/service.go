// Package orders turns a caller's cart into a committed, priced order.
package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-marketplace-core/internal/auth"
	"github.com/ariefcatur/go-marketplace-core/internal/events"
	"github.com/ariefcatur/go-marketplace-core/internal/inventory"
	"github.com/ariefcatur/go-marketplace-core/internal/logging"
	"github.com/ariefcatur/go-marketplace-core/internal/market"
	"github.com/ariefcatur/go-marketplace-core/internal/metrics"
	"github.com/ariefcatur/go-marketplace-core/internal/store"
)

var tracer = otel.Tracer("orders")

const maxIdempotencyKey = 128

// IdempotencyGuard short-circuits concurrent submissions of the same key.
type IdempotencyGuard interface {
	Acquire(ctx context.Context, owner uuid.UUID, key string) (bool, error)
	Complete(ctx context.Context, owner uuid.UUID, key string, orderID uuid.UUID) error
	Release(ctx context.Context, owner uuid.UUID, key string) error
}

type Cart struct {
	Lines           []inventory.Line
	ShippingAddress market.ShippingAddress
	PaymentMethod   string
	// IdempotencyKey is optional. A repeated key returns the original order.
	IdempotencyKey string
}

type Result struct {
	Order    *market.Order
	Replayed bool
}

type Service struct {
	store           store.Store
	inventory       *inventory.Engine
	publisher       events.Publisher
	guard           IdempotencyGuard
	log             *zap.Logger
	producer        string
	mutationTimeout time.Duration
	now             func() time.Time
}

type Option func(*Service)

func WithPublisher(p events.Publisher) Option { return func(s *Service) { s.publisher = p } }

func WithGuard(g IdempotencyGuard) Option { return func(s *Service) { s.guard = g } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithProducerName(name string) Option { return func(s *Service) { s.producer = name } }

// WithMutationTimeout bounds the transaction, which runs detached from the
// caller's context.
func WithMutationTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.mutationTimeout = d
		}
	}
}

func NewService(st store.Store, inv *inventory.Engine, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:           st,
		inventory:       inv,
		publisher:       events.Discard{},
		log:             log,
		producer:        "market-api",
		mutationTimeout: 5 * time.Second,
		now:             time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) CreateOrder(ctx context.Context, caller auth.Identity, cart Cart) (res *Result, err error) {
	ctx, span := tracer.Start(ctx, "orders.CreateOrder")
	defer func() {
		result := metrics.Outcome(err, market.IsRejection)
		if res != nil && res.Replayed {
			result = metrics.ResultReplayed
		}
		metrics.OrdersTotal.WithLabelValues(result).Inc()
		if err != nil && !market.IsRejection(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if !caller.Valid() {
		return nil, market.ErrUnauthorized
	}
	if len(cart.Lines) == 0 {
		return nil, market.ErrEmptyCart
	}
	key := strings.TrimSpace(cart.IdempotencyKey)
	if len(key) > maxIdempotencyKey {
		return nil, fmt.Errorf("%w: idempotency key longer than %d", market.ErrInvalidIdentifier, maxIdempotencyKey)
	}
	span.SetAttributes(
		attribute.String("order.owner_id", caller.ID.String()),
		attribute.Int("order.lines", len(cart.Lines)),
		attribute.Bool("order.idempotent", key != ""),
	)

	if key != "" {
		if prev, err := s.replay(ctx, caller.ID, key); prev != nil || err != nil {
			return prev, err
		}
		release, err := s.acquire(ctx, caller.ID, key)
		if err != nil {
			return nil, err
		}
		defer func() { release(res) }()
	}

	order, err := s.commit(ctx, caller, cart, key)
	if errors.Is(err, market.ErrDuplicateOrder) && key != "" {
		// an identical request committed first
		if prev, rerr := s.replay(ctx, caller.ID, key); prev != nil {
			return prev, nil
		} else if rerr != nil {
			return nil, rerr
		}
	}
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, order)
	return &Result{Order: order}, nil
}

func (s *Service) replay(ctx context.Context, owner uuid.UUID, key string) (*Result, error) {
	prev, err := s.store.FindOrderByIdempotencyKey(ctx, owner, key)
	switch {
	case err == nil:
		return &Result{Order: prev, Replayed: true}, nil
	case errors.Is(err, market.ErrOrderNotFound):
		return nil, nil
	default:
		return nil, fmt.Errorf("lookup idempotency key: %w", err)
	}
}

// acquire takes the in-flight guard. A guard outage degrades to the
// ledger's unique index instead of failing the request.
func (s *Service) acquire(ctx context.Context, owner uuid.UUID, key string) (func(*Result), error) {
	noop := func(*Result) {}
	if s.guard == nil {
		return noop, nil
	}
	ok, err := s.guard.Acquire(ctx, owner, key)
	if err != nil {
		logging.Warn(ctx, s.log, "idempotency guard unavailable", zap.Error(err))
		return noop, nil
	}
	if !ok {
		return nil, market.ErrRequestInFlight
	}
	return func(res *Result) {
		gctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		var err error
		if res != nil && res.Order != nil {
			err = s.guard.Complete(gctx, owner, key, res.Order.ID)
		} else {
			err = s.guard.Release(gctx, owner, key)
		}
		if err != nil {
			logging.Warn(gctx, s.log, "idempotency guard update failed", zap.Error(err))
		}
	}, nil
}

// commit reserves inventory and writes the order in one transaction, so a
// failed insert rolls the decrements back with it.
func (s *Service) commit(ctx context.Context, caller auth.Identity, cart Cart, key string) (*market.Order, error) {
	mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.mutationTimeout)
	defer cancel()

	var order *market.Order
	err := s.store.WithTx(mctx, func(ctx context.Context, tx store.Tx) error {
		lines, err := s.inventory.Reserve(ctx, tx, cart.Lines)
		if err != nil {
			return err
		}
		order = market.NewOrder(caller.ID, caller.Name, lines, cart.ShippingAddress, cart.PaymentMethod, s.now().UTC())
		order.IdempotencyKey = key
		if err := tx.InsertOrder(ctx, order); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Service) afterCommit(ctx context.Context, o *market.Order) {
	units := 0
	lines := make([]events.OrderLine, 0, len(o.Items))
	for _, l := range o.Items {
		units += l.Quantity
		lines = append(lines, events.OrderLine{ItemID: l.ItemID.String(), Quantity: l.Quantity, Price: l.Price})
	}
	metrics.ReservedUnits.Add(float64(units))

	logging.Info(ctx, s.log, "order created",
		zap.String("order_id", o.ID.String()),
		zap.String("owner_id", o.OwnerID.String()),
		zap.String("total", o.TotalAmount.StringFixed(2)),
		zap.Int("units", units),
	)

	env, err := events.New(events.EventOrderCreated, s.producer, logging.TraceID(ctx), o.ID.String(), events.OrderCreatedPayload{
		OrderID:     o.ID.String(),
		OwnerID:     o.OwnerID.String(),
		Items:       lines,
		TotalAmount: o.TotalAmount,
		TaxAmount:   o.TaxAmount,
		CreatedAt:   o.CreatedAt,
	})
	if err != nil {
		logging.Error(ctx, s.log, "build order event", zap.Error(err))
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := s.publisher.Publish(pctx, events.TopicOrderCreated, []byte(o.ID.String()), env); err != nil {
		logging.Warn(ctx, s.log, "publish order event", zap.String("order_id", o.ID.String()), zap.Error(err))
	}
}

func (s *Service) GetOrder(ctx context.Context, caller auth.Identity, orderID string) (*market.Order, error) {
	if !caller.Valid() {
		return nil, market.ErrUnauthorized
	}
	id, err := market.ParseID(orderID)
	if err != nil {
		return nil, err
	}
	return s.store.GetOrder(ctx, caller.ID, id)
}

// ListOrders returns the caller's most recent orders first.
func (s *Service) ListOrders(ctx context.Context, caller auth.Identity) ([]market.Order, error) {
	if !caller.Valid() {
		return nil, market.ErrUnauthorized
	}
	return s.store.ListOrdersByOwner(ctx, caller.ID, store.HistoryLimit)
}
