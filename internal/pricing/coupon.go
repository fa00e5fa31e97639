package pricing

import (
	"fmt"

	"festival-booking/internal/models"

	"github.com/shopspring/decimal"
)

// Reasons returned to the storefront when a coupon is rejected
const (
	ReasonNotFound      = "Invalid coupon code"
	ReasonInactive      = "This coupon is not active"
	ReasonWrongEvent    = "This coupon is not valid for this event"
	ReasonNotYetActive  = "This coupon is not yet active"
	ReasonExpired       = "This coupon has expired"
	ReasonUsageExceeded = "This coupon has reached its usage limit"
)

// Verdict is the outcome of evaluating a coupon against an order
type Verdict struct {
	Valid          bool            `json:"valid"`
	Reason         string          `json:"error_message,omitempty"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	FinalTotal     decimal.Decimal `json:"final_total"`
}

// OrderContext is what a coupon is checked against
type OrderContext struct {
	EventID  string
	Subtotal decimal.Decimal
	// Today is the calendar date as YYYY-MM-DD
	Today          string
	CurrencySymbol string
}

func invalid(reason string) Verdict {
	return Verdict{Reason: reason}
}

// Evaluate runs the coupon checks in order and stops at the first failure.
// A nil coupon means the code lookup found nothing.
func Evaluate(c *models.Coupon, oc OrderContext) Verdict {
	if c == nil {
		return invalid(ReasonNotFound)
	}
	if !c.IsActive {
		return invalid(ReasonInactive)
	}
	if c.EventID != nil && *c.EventID != oc.EventID {
		return invalid(ReasonWrongEvent)
	}
	// ISO dates compare correctly as strings
	if c.StartDate != nil && oc.Today < *c.StartDate {
		return invalid(ReasonNotYetActive)
	}
	if c.EndDate != nil && oc.Today > *c.EndDate {
		return invalid(ReasonExpired)
	}
	if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
		return invalid(ReasonUsageExceeded)
	}
	if c.MinOrderAmount.Valid && oc.Subtotal.LessThan(c.MinOrderAmount.Decimal) {
		return invalid(fmt.Sprintf("Minimum order amount of %s%s required", oc.CurrencySymbol, c.MinOrderAmount.Decimal.String()))
	}

	discount := Round(Discount(c, oc.Subtotal))
	return Verdict{
		Valid:          true,
		DiscountAmount: discount,
		FinalTotal:     Round(NonNegative(oc.Subtotal.Sub(discount))),
	}
}

// Discount computes the unrounded discount a coupon grants on subtotal
func Discount(c *models.Coupon, subtotal decimal.Decimal) decimal.Decimal {
	switch c.DiscountType {
	case models.DiscountTypePercentage:
		raw := subtotal.Mul(c.DiscountValue).Div(hundred)
		if c.MaxDiscount.Valid && raw.GreaterThan(c.MaxDiscount.Decimal) {
			return c.MaxDiscount.Decimal
		}
		return raw
	case models.DiscountTypeFixedAmount:
		return decimal.Min(c.DiscountValue, subtotal)
	default:
		return decimal.Zero
	}
}
