package market

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MaxAmount is the first value the ledger's NUMERIC(12,2) columns cannot hold.
var MaxAmount = decimal.New(1, 10)

// TaxRate is the flat sales tax applied to every order total.
var TaxRate = decimal.RequireFromString("0.08")

// OrderTotal sums price x quantity over the lines.
func OrderTotal(lines []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total.Round(2)
}

// Tax rounds half away from zero to cents: 25.50 -> 2.04.
func Tax(total decimal.Decimal) decimal.Decimal {
	return total.Mul(TaxRate).Round(2)
}

// CheckAmount rejects amounts the ledger would round or refuse: more than
// two decimal places, or beyond the column range.
func CheckAmount(d decimal.Decimal) error {
	if !d.Equal(d.Round(2)) {
		return fmt.Errorf("%w: %s has more than two decimal places", ErrInvalidAmount, d)
	}
	if d.Abs().GreaterThanOrEqual(MaxAmount) {
		return fmt.Errorf("%w: %s exceeds %s", ErrInvalidAmount, d, MaxAmount)
	}
	return nil
}
