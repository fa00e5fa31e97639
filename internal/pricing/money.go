// Package pricing holds the money arithmetic of a checkout: coupon discount
// computation and allocation of an order-level discount across its lines.
// Functions here are pure; lookups and persistence live in the service layer.
package pricing

import "github.com/shopspring/decimal"

var (
	hundred = decimal.NewFromInt(100)
	cent    = decimal.New(1, -2)
)

// Round rounds an amount to cents, half-up.
func Round(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}

// NonNegative clamps an amount at zero
func NonNegative(amount decimal.Decimal) decimal.Decimal {
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount
}
