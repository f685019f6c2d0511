package market

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Bid is append-only. Per item, amounts strictly increase with PlacedAt.
type Bid struct {
	ID         uuid.UUID
	ItemID     uuid.UUID
	BidderID   uuid.UUID
	BidderName string
	Amount     decimal.Decimal
	PlacedAt   time.Time
}
