package redisx

import "time"

const (
	// idem:order:create:{owner_id}:{key} -> "pending" | order_id
	KeyIdemOrderCreate = "idem:order:create:%s:%s"

	// bids:item:{item_id} -> JSON list, newest first
	KeyBidHistory = "bids:item:%s"

	// activity:item:{item_id} -> hash units_sold, orders, current_bid, bid_count, last_bid_at
	KeyItemActivity = "activity:item:%s"

	// dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	pendingMarker = "pending"
)

var (
	TTLIdempotency  = 24 * time.Hour
	TTLIdemInFlight = 30 * time.Second
	TTLBidHistory   = 10 * time.Second
	TTLDedup        = 48 * time.Hour
	TTLActivity     = 7 * 24 * time.Hour
)
