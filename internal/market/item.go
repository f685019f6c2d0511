package market

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AuctionState is the bidding phase of an auction item at a given instant.
type AuctionState string

const (
	AuctionOpen   AuctionState = "open"
	AuctionClosed AuctionState = "closed"
)

type Item struct {
	ID            uuid.UUID
	Name          string
	Images        []string
	Price         decimal.Decimal
	Quantity      int
	IsAuction     bool
	AuctionEndsAt *time.Time
	CurrentBid    *decimal.Decimal
	BidCount      int
	Active        bool
	Seller        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Purchasable reports whether the item can be bought through the fixed-price path.
func (i *Item) Purchasable() bool {
	return i.Active && !i.IsAuction && i.Quantity > 0
}

// AuctionState is Closed from the deadline onwards; there is no way back to Open.
func (i *Item) AuctionState(now time.Time) AuctionState {
	if !i.IsAuction || i.AuctionEndsAt == nil {
		return AuctionClosed
	}
	if now.Before(*i.AuctionEndsAt) {
		return AuctionOpen
	}
	return AuctionClosed
}

// Floor is the amount a new bid has to exceed.
func (i *Item) Floor() decimal.Decimal {
	if i.CurrentBid != nil {
		return *i.CurrentBid
	}
	return i.Price
}

// PrimaryImage is the image snapshotted onto order lines.
func (i *Item) PrimaryImage() string {
	if len(i.Images) == 0 {
		return ""
	}
	return i.Images[0]
}

// ItemFilter narrows CountItems. Zero value counts every item.
type ItemFilter struct {
	ActiveOnly  bool
	Auction     *bool
	InStockOnly bool
	// OpenAt keeps auctions whose deadline is after the instant.
	OpenAt *time.Time
}

// Match is the in-process evaluation of the filter.
func (f ItemFilter) Match(i *Item) bool {
	if f.ActiveOnly && !i.Active {
		return false
	}
	if f.Auction != nil && i.IsAuction != *f.Auction {
		return false
	}
	if f.InStockOnly && i.Quantity <= 0 {
		return false
	}
	if f.OpenAt != nil && i.AuctionState(*f.OpenAt) != AuctionOpen {
		return false
	}
	return true
}
