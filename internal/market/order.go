package market

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusProcessing OrderStatus = "Processing"
	StatusInTransit  OrderStatus = "In Transit"
	StatusDelivered  OrderStatus = "Delivered"
	StatusCancelled  OrderStatus = "Cancelled"
)

// Transitions are owned by fulfillment; orders are only ever created as Processing here.
var validNext = map[OrderStatus]map[OrderStatus]bool{
	StatusProcessing: {StatusInTransit: true, StatusCancelled: true},
	StatusInTransit:  {StatusDelivered: true},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

func CanTransition(from, to OrderStatus) bool {
	return validNext[from][to]
}

func (s OrderStatus) Valid() bool {
	_, ok := validNext[s]
	return ok
}

const (
	DefaultCountry       = "United States"
	DefaultPaymentMethod = "Credit Card"
)

type ShippingAddress struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zip_code"`
	Country string `json:"country"`
}

// LineItem is a frozen snapshot of an item at order time.
type LineItem struct {
	ItemID   uuid.UUID
	Name     string
	Price    decimal.Decimal
	Quantity int
	Image    string
}

func (l LineItem) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Order struct {
	ID              uuid.UUID
	OwnerID         uuid.UUID
	OwnerName       string
	Items           []LineItem
	TotalAmount     decimal.Decimal
	TaxAmount       decimal.Decimal
	ShippingAmount  decimal.Decimal
	Status          OrderStatus
	ShippingAddress ShippingAddress
	PaymentMethod   string
	TrackingNumber  *string
	IdempotencyKey  string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewOrder prices the lines and returns a Processing order. Amounts are
// computed once here and never recomputed.
func NewOrder(ownerID uuid.UUID, ownerName string, lines []LineItem, addr ShippingAddress, paymentMethod string, now time.Time) *Order {
	if addr.Country == "" {
		addr.Country = DefaultCountry
	}
	if paymentMethod == "" {
		paymentMethod = DefaultPaymentMethod
	}
	total := OrderTotal(lines)
	return &Order{
		ID:              uuid.New(),
		OwnerID:         ownerID,
		OwnerName:       ownerName,
		Items:           lines,
		TotalAmount:     total,
		TaxAmount:       Tax(total),
		ShippingAmount:  decimal.Zero,
		Status:          StatusProcessing,
		ShippingAddress: addr,
		PaymentMethod:   paymentMethod,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
