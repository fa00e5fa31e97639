package pricing

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Line is one SKU of a cart
type Line struct {
	SKUID     string
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// AllocatedLine carries the line's share of the order discount
type AllocatedLine struct {
	Line
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}

// Allocation is a fully priced cart
type Allocation struct {
	Lines    []AllocatedLine
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}

// Subtotal sums unit price times quantity over all lines
func Subtotal(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return sum
}

// Allocate splits discount across lines in proportion to their subtotals.
// Shares are floored to cents and the leftover cents go to the lines with
// the largest remainders, so line totals always add up to subtotal - discount.
func Allocate(lines []Line, discount decimal.Decimal) Allocation {
	out := Allocation{Lines: make([]AllocatedLine, len(lines))}

	for i, l := range lines {
		sub := l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
		out.Lines[i] = AllocatedLine{Line: l, Subtotal: sub, Discount: decimal.Zero}
		out.Subtotal = out.Subtotal.Add(sub)
	}

	discount = Round(NonNegative(discount))
	if discount.GreaterThan(out.Subtotal) {
		discount = out.Subtotal
	}

	if out.Subtotal.IsPositive() && discount.IsPositive() {
		remainders := make([]decimal.Decimal, len(lines))
		assigned := decimal.Zero
		for i := range out.Lines {
			raw := discount.Mul(out.Lines[i].Subtotal).Div(out.Subtotal)
			floor := raw.RoundFloor(2)
			out.Lines[i].Discount = floor
			remainders[i] = raw.Sub(floor)
			assigned = assigned.Add(floor)
		}

		order := make([]int, len(lines))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			return remainders[order[a]].GreaterThan(remainders[order[b]])
		})

		leftover := discount.Sub(assigned).Div(cent).IntPart()
		for k := int64(0); k < leftover && len(order) > 0; k++ {
			i := order[int(k)%len(order)]
			out.Lines[i].Discount = out.Lines[i].Discount.Add(cent)
		}
	}

	for i := range out.Lines {
		out.Lines[i].Total = out.Lines[i].Subtotal.Sub(out.Lines[i].Discount)
		out.Discount = out.Discount.Add(out.Lines[i].Discount)
		out.Total = out.Total.Add(out.Lines[i].Total)
	}

	return out
}
