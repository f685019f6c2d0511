package postgres

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-marketplace-core/internal/market"
)

const itemColumns = `id, name, images, price, quantity, is_auction, auction_ends_at,
	current_bid, bid_count, is_active, seller, created_at, updated_at`

const orderColumns = `id, owner_id, owner_name, idempotency_key, total_amount, tax_amount,
	shipping_amount, status, shipping_address, payment_method, tracking_number, created_at, updated_at`

type row interface {
	Scan(dest ...any) error
}

func scanItem(r row) (*market.Item, error) {
	var (
		it  market.Item
		bid decimal.NullDecimal
	)
	if err := r.Scan(&it.ID, &it.Name, &it.Images, &it.Price, &it.Quantity, &it.IsAuction, &it.AuctionEndsAt,
		&bid, &it.BidCount, &it.Active, &it.Seller, &it.CreatedAt, &it.UpdatedAt); err != nil {
		return nil, err
	}
	if bid.Valid {
		v := bid.Decimal
		it.CurrentBid = &v
	}
	return &it, nil
}

func scanOrder(r row) (*market.Order, error) {
	var (
		o      market.Order
		key    *string
		status string
	)
	if err := r.Scan(&o.ID, &o.OwnerID, &o.OwnerName, &key, &o.TotalAmount, &o.TaxAmount,
		&o.ShippingAmount, &status, &o.ShippingAddress, &o.PaymentMethod, &o.TrackingNumber, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	if key != nil {
		o.IdempotencyKey = *key
	}
	o.Status = market.OrderStatus(status)
	return &o, nil
}

func attachLines(ctx context.Context, q querier, orders []*market.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, 0, len(orders))
	byID := make(map[string]*market.Order, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID.String())
		byID[o.ID.String()] = o
	}

	rows, err := q.Query(ctx, `SELECT order_id::text, item_id, name, price, quantity, image
		FROM order_items WHERE order_id = ANY($1::uuid[]) ORDER BY order_id, position`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID string
			l       market.LineItem
		)
		if err := rows.Scan(&orderID, &l.ItemID, &l.Name, &l.Price, &l.Quantity, &l.Image); err != nil {
			return err
		}
		if o, ok := byID[orderID]; ok {
			o.Items = append(o.Items, l)
		}
	}
	return rows.Err()
}
