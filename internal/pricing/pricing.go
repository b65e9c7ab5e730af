// Package pricing distributes an order-level discount across sale lines
// in proportion to each line's share of the pre-discount total.
package pricing

import "github.com/shopspring/decimal"

type Line struct {
	Price    float64
	Quantity int
}

type Allocation struct {
	ItemTotal       float64
	DiscountAmount  float64
	FinalPaidAmount float64
}

// Allocate computes per-line totals and the proportional slice of
// discountAmount owed by each line. Each slice is rounded half-up to two
// decimals independently, so the rounded slices may drift from the order
// discount by a cent or two across many lines. The drift is deliberately
// not reconciled onto any line.
//
// A non-positive discount, or an order whose pre-discount total is zero,
// yields zero discount on every line.
func Allocate(lines []Line, discountAmount float64) ([]Allocation, float64) {
	allocs := make([]Allocation, len(lines))

	originalTotal := decimal.Zero
	totals := make([]decimal.Decimal, len(lines))
	for i, line := range lines {
		t := decimal.NewFromFloat(line.Price).
			Mul(decimal.NewFromInt(int64(line.Quantity))).
			Round(2)
		totals[i] = t
		originalTotal = originalTotal.Add(t)
	}

	discount := decimal.NewFromFloat(discountAmount)
	distribute := discount.IsPositive() && originalTotal.IsPositive()

	for i, t := range totals {
		share := decimal.Zero
		if distribute {
			share = t.Div(originalTotal).Mul(discount).Round(2)
		}
		itemTotal, _ := t.Float64()
		shareF, _ := share.Float64()
		paid, _ := t.Sub(share).Float64()
		allocs[i] = Allocation{
			ItemTotal:       itemTotal,
			DiscountAmount:  shareF,
			FinalPaidAmount: paid,
		}
	}

	total, _ := originalTotal.Float64()
	return allocs, total
}
