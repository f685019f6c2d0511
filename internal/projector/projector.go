// Package projector folds committed order and bid events into the per-item
// activity read model served by the API.
package projector

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-marketplace-core/internal/events"
	"github.com/ariefcatur/go-marketplace-core/internal/logging"
	"github.com/ariefcatur/go-marketplace-core/internal/metrics"
)

type ActivityWriter interface {
	AddSale(ctx context.Context, item uuid.UUID, units int) error
	SetBid(ctx context.Context, item uuid.UUID, amount decimal.Decimal, bidCount int, at time.Time) (bool, error)
}

type Deduper interface {
	FirstSeen(ctx context.Context, id string) (bool, error)
	Forget(ctx context.Context, id string) error
}

// Topics consumed by Service.Handle.
var Topics = []string{events.TopicOrderCreated, events.TopicBidPlaced}

type Service struct {
	Activity ActivityWriter
	Dedup    Deduper
	Log      *zap.Logger
}

// Handle is installed as the consumer handler. A returned error asks the
// consumer to redeliver.
func (s *Service) Handle(ctx context.Context, m kafkago.Message) error {
	var env events.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		logging.Warn(ctx, s.Log, "dropping undecodable message", zap.String("topic", m.Topic), zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}

	switch env.EventType {
	case events.EventOrderCreated:
		p, err := events.Decode[events.OrderCreatedPayload](env)
		if err != nil {
			logging.Warn(ctx, s.Log, "dropping order event", zap.String("event_id", env.EventID), zap.Error(err))
			return nil
		}
		return s.orderCreated(ctx, env, p)
	case events.EventBidPlaced:
		p, err := events.Decode[events.BidPlacedPayload](env)
		if err != nil {
			logging.Warn(ctx, s.Log, "dropping bid event", zap.String("event_id", env.EventID), zap.Error(err))
			return nil
		}
		return s.bidPlaced(ctx, env, p)
	default:
		return nil
	}
}

// orderCreated counts each line once. Dedup is per line so a redelivery
// after a partial failure only applies the missing lines.
func (s *Service) orderCreated(ctx context.Context, env events.Envelope, p events.OrderCreatedPayload) error {
	for _, l := range p.Items {
		item, err := uuid.Parse(l.ItemID)
		if err != nil {
			logging.Warn(ctx, s.Log, "order event line has bad item id", zap.String("event_id", env.EventID), zap.String("item_id", l.ItemID))
			continue
		}
		key := env.EventID + "/" + item.String()
		first, err := s.Dedup.FirstSeen(ctx, key)
		if err != nil {
			return err
		}
		if !first {
			continue
		}
		if err := s.Activity.AddSale(ctx, item, l.Quantity); err != nil {
			if ferr := s.Dedup.Forget(ctx, key); ferr != nil {
				logging.Error(ctx, s.Log, "dedup forget failed", zap.String("key", key), zap.Error(ferr))
			}
			return fmt.Errorf("add sale %s: %w", item, err)
		}
	}
	metrics.EventsProjected.WithLabelValues(env.EventType).Inc()
	logging.Debug(ctx, s.Log, "order projected", zap.String("order_id", p.OrderID), zap.Int("lines", len(p.Items)))
	return nil
}

// bidPlaced needs no dedup: the activity model only moves forward in
// bid count.
func (s *Service) bidPlaced(ctx context.Context, env events.Envelope, p events.BidPlacedPayload) error {
	item, err := uuid.Parse(p.ItemID)
	if err != nil {
		logging.Warn(ctx, s.Log, "bid event has bad item id", zap.String("event_id", env.EventID))
		return nil
	}
	applied, err := s.Activity.SetBid(ctx, item, p.Amount, p.BidCount, p.PlacedAt)
	if err != nil {
		return err
	}
	if applied {
		metrics.EventsProjected.WithLabelValues(env.EventType).Inc()
	}
	return nil
}
