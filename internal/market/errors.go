package market

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidIdentifier     = errors.New("invalid identifier")
	ErrInvalidQuantity       = errors.New("quantity must be positive")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrEmptyCart             = errors.New("cart has no items")
	ErrItemNotFound          = errors.New("item not found")
	ErrOrderNotFound         = errors.New("order not found")
	ErrInsufficientQuantity  = errors.New("insufficient quantity")
	ErrAuctionNotPurchasable = errors.New("auction items cannot be purchased directly")
	ErrNotAnAuction          = errors.New("item is not an auction")
	ErrAuctionClosed         = errors.New("auction has ended")
	ErrBidTooLow             = errors.New("bid must be higher than current bid")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrDuplicateOrder        = errors.New("order already exists for idempotency key")
	ErrRequestInFlight       = errors.New("an identical request is still being processed")
	ErrStoreUnavailable      = errors.New("store unavailable")
)

// Error carries the details a caller needs to correct a rejected request.
// It unwraps to one of the sentinels above.
type Error struct {
	Kind      error
	ItemID    uuid.UUID
	Requested int
	Available int
	Floor     *decimal.Decimal
}

func (e *Error) Error() string {
	switch {
	case errors.Is(e.Kind, ErrInsufficientQuantity):
		return fmt.Sprintf("%s for item %s: requested %d, available %d", e.Kind, e.ItemID, e.Requested, e.Available)
	case e.Floor != nil:
		return fmt.Sprintf("%s for item %s: floor %s", e.Kind, e.ItemID, e.Floor.StringFixed(2))
	case e.ItemID != uuid.Nil:
		return fmt.Sprintf("%s: %s", e.Kind, e.ItemID)
	default:
		return e.Kind.Error()
	}
}

func (e *Error) Unwrap() error { return e.Kind }

func ItemError(kind error, id uuid.UUID) error {
	return &Error{Kind: kind, ItemID: id}
}

func InsufficientError(id uuid.UUID, requested, available int) error {
	return &Error{Kind: ErrInsufficientQuantity, ItemID: id, Requested: requested, Available: available}
}

func BidTooLowError(id uuid.UUID, floor decimal.Decimal) error {
	return &Error{Kind: ErrBidTooLow, ItemID: id, Floor: &floor}
}

// Unavailable marks a store fault so it can be told apart from domain rejections.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// Details extracts the structured part of err, if any.
func Details(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRejection reports whether err is a domain rejection the caller can act
// on, as opposed to an infrastructure failure.
func IsRejection(err error) bool {
	for _, kind := range []error{
		ErrInvalidIdentifier, ErrInvalidQuantity, ErrInvalidAmount, ErrEmptyCart, ErrItemNotFound, ErrOrderNotFound,
		ErrInsufficientQuantity, ErrAuctionNotPurchasable, ErrNotAnAuction, ErrAuctionClosed,
		ErrBidTooLow, ErrUnauthorized, ErrDuplicateOrder, ErrRequestInFlight,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
