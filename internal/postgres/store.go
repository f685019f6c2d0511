package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-marketplace-core/internal/logging"
	"github.com/ariefcatur/go-marketplace-core/internal/market"
	"github.com/ariefcatur/go-marketplace-core/internal/store"
)

const idempotencyConstraint = "orders_owner_idempotency_key"

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	DB  *pgxpool.Pool
	Log *zap.Logger
}

var _ store.Store = (*Store)(nil)

func NewStore(db *pgxpool.Pool, log *zap.Logger) *Store {
	return &Store{DB: db, Log: log}
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.DB.Ping(ctx); err != nil {
		return classify("ping", err)
	}
	return nil
}

func (s *Store) GetItem(ctx context.Context, id uuid.UUID) (*market.Item, error) {
	it, err := scanItem(s.DB.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, market.ItemError(market.ErrItemNotFound, id)
	}
	if err != nil {
		return nil, classify("get item", err)
	}
	return it, nil
}

func (s *Store) CountItems(ctx context.Context, f market.ItemFilter) (int, error) {
	var (
		where []string
		args  []any
	)
	if f.ActiveOnly {
		where = append(where, "is_active")
	}
	if f.Auction != nil {
		args = append(args, *f.Auction)
		where = append(where, fmt.Sprintf("is_auction = $%d", len(args)))
	}
	if f.InStockOnly {
		where = append(where, "quantity > 0")
	}
	if f.OpenAt != nil {
		args = append(args, *f.OpenAt)
		where = append(where, fmt.Sprintf("is_auction AND auction_ends_at > $%d", len(args)))
	}
	q := `SELECT COUNT(*) FROM items`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}

	var n int
	if err := s.DB.QueryRow(ctx, q, args...).Scan(&n); err != nil {
		return 0, classify("count items", err)
	}
	return n, nil
}

func (s *Store) GetOrder(ctx context.Context, owner, id uuid.UUID) (*market.Order, error) {
	return s.oneOrder(ctx, "get order", `SELECT `+orderColumns+` FROM orders WHERE id = $1 AND owner_id = $2`, id, owner)
}

func (s *Store) FindOrderByIdempotencyKey(ctx context.Context, owner uuid.UUID, key string) (*market.Order, error) {
	return s.oneOrder(ctx, "find order", `SELECT `+orderColumns+` FROM orders WHERE owner_id = $1 AND idempotency_key = $2`, owner, key)
}

func (s *Store) oneOrder(ctx context.Context, op, q string, args ...any) (*market.Order, error) {
	o, err := scanOrder(s.DB.QueryRow(ctx, q, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, market.ErrOrderNotFound
	}
	if err != nil {
		return nil, classify(op, err)
	}
	if err := attachLines(ctx, s.DB, []*market.Order{o}); err != nil {
		return nil, classify(op, err)
	}
	return o, nil
}

func (s *Store) ListOrdersByOwner(ctx context.Context, owner uuid.UUID, limit int) ([]market.Order, error) {
	if limit <= 0 {
		limit = store.HistoryLimit
	}
	rows, err := s.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE owner_id = $1 ORDER BY created_at DESC, id LIMIT $2`, owner, limit)
	if err != nil {
		return nil, classify("list orders", err)
	}
	defer rows.Close()

	var ptrs []*market.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, classify("list orders", err)
		}
		ptrs = append(ptrs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list orders", err)
	}
	rows.Close()

	if err := attachLines(ctx, s.DB, ptrs); err != nil {
		return nil, classify("list orders", err)
	}
	out := make([]market.Order, 0, len(ptrs))
	for _, o := range ptrs {
		out = append(out, *o)
	}
	return out, nil
}

func (s *Store) ListBidsByItem(ctx context.Context, item uuid.UUID, limit int) ([]market.Bid, error) {
	if limit <= 0 {
		limit = store.HistoryLimit
	}
	rows, err := s.DB.Query(ctx, `SELECT id, item_id, bidder_id, bidder_name, amount, placed_at
		FROM bids WHERE item_id = $1 ORDER BY seq DESC LIMIT $2`, item, limit)
	if err != nil {
		return nil, classify("list bids", err)
	}
	defer rows.Close()

	out := make([]market.Bid, 0)
	for rows.Next() {
		var b market.Bid
		if err := rows.Scan(&b.ID, &b.ItemID, &b.BidderID, &b.BidderName, &b.Amount, &b.PlacedAt); err != nil {
			return nil, classify("list bids", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list bids", err)
	}
	return out, nil
}

// WithTx runs fn in a READ COMMITTED transaction. Per-item serialization
// comes from the row locks taken by LockItem, not from the isolation level.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return classify("begin tx", err)
	}
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)
		if err := tx.Rollback(cleanupCtx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			logging.Error(cleanupCtx, s.Log, "rollback failed", zap.Error(err))
		}
	}()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return classify("commit", err)
	}
	return nil
}

type pgTx struct{ tx pgx.Tx }

func (t *pgTx) LockItem(ctx context.Context, id uuid.UUID) (*market.Item, error) {
	it, err := scanItem(t.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, market.ItemError(market.ErrItemNotFound, id)
	}
	if err != nil {
		return nil, classify("lock item", err)
	}
	return it, nil
}

func (t *pgTx) AdjustQuantity(ctx context.Context, id uuid.UUID, delta int) error {
	ct, err := t.tx.Exec(ctx, `UPDATE items SET quantity = quantity + $2, updated_at = now()
		WHERE id = $1 AND quantity + $2 >= 0`, id, delta)
	if err != nil {
		return classify("adjust quantity", err)
	}
	if ct.RowsAffected() == 1 {
		return nil
	}

	var available int
	err = t.tx.QueryRow(ctx, `SELECT quantity FROM items WHERE id = $1`, id).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return market.ItemError(market.ErrItemNotFound, id)
	}
	if err != nil {
		return classify("adjust quantity", err)
	}
	return market.InsufficientError(id, -delta, available)
}

func (t *pgTx) ApplyBid(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	ct, err := t.tx.Exec(ctx, `UPDATE items SET current_bid = $2, bid_count = bid_count + 1, updated_at = now()
		WHERE id = $1`, id, amount)
	if err != nil {
		return classify("apply bid", err)
	}
	if ct.RowsAffected() != 1 {
		return market.ItemError(market.ErrItemNotFound, id)
	}
	return nil
}

func (t *pgTx) InsertOrder(ctx context.Context, o *market.Order) error {
	var key *string
	if o.IdempotencyKey != "" {
		key = &o.IdempotencyKey
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders(id, owner_id, owner_name, idempotency_key, total_amount, tax_amount,
			shipping_amount, status, shipping_address, payment_method, tracking_number, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		o.ID, o.OwnerID, o.OwnerName, key, o.TotalAmount, o.TaxAmount,
		o.ShippingAmount, string(o.Status), o.ShippingAddress, o.PaymentMethod, o.TrackingNumber, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return classify("insert order", err)
	}

	for i, l := range o.Items {
		if _, err := t.tx.Exec(ctx, `
			INSERT INTO order_items(order_id, position, item_id, name, price, quantity, image)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			o.ID, i, l.ItemID, l.Name, l.Price, l.Quantity, l.Image,
		); err != nil {
			return classify("insert order item", err)
		}
	}
	return nil
}

func (t *pgTx) InsertBid(ctx context.Context, b *market.Bid) error {
	if _, err := t.tx.Exec(ctx, `
		INSERT INTO bids(id, item_id, bidder_id, bidder_name, amount, placed_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		b.ID, b.ItemID, b.BidderID, b.BidderName, b.Amount, b.PlacedAt,
	); err != nil {
		return classify("insert bid", err)
	}
	return nil
}

// classify keeps domain conflicts and caller cancellation recognisable and
// marks connection-level faults as market.ErrStoreUnavailable.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505" && pgErr.ConstraintName == idempotencyConstraint:
			return fmt.Errorf("%s: %w", op, market.ErrDuplicateOrder)
		case transientClass(pgErr.Code):
			return market.Unavailable(op, err)
		default:
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return market.Unavailable(op, err)
}

// transientClass covers connection exceptions, serialization failures and
// deadlocks, insufficient resources and operator intervention.
func transientClass(code string) bool {
	if len(code) < 2 {
		return false
	}
	switch code[:2] {
	case "08", "40", "53", "57":
		return true
	}
	return false
}
