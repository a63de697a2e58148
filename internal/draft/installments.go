package draft

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Breakdown holds financed-payment figures.
type Breakdown struct {
	Principal   decimal.Decimal
	Count       int
	RatePercent decimal.Decimal
	Total       decimal.Decimal
	Monthly     decimal.Decimal
}

// Installments computes total payable and per-installment amount:
//
//	total   = principal * (1 + rate/100)
//	monthly = total / count
//
// count below 1 is treated as 1 and a negative rate as 0.
func Installments(principal decimal.Decimal, count int, ratePercent decimal.Decimal) Breakdown {
	if count < 1 {
		count = 1
	}
	if ratePercent.IsNegative() {
		ratePercent = decimal.Zero
	}

	total := principal.Mul(decimal.NewFromInt(1).Add(ratePercent.Div(hundred)))
	return Breakdown{
		Principal:   principal,
		Count:       count,
		RatePercent: ratePercent,
		Total:       total,
		Monthly:     total.Div(decimal.NewFromInt(int64(count))),
	}
}

// Show reports whether the breakdown is worth displaying. A single
// interest-free payment has nothing to break down.
func (b Breakdown) Show() bool {
	return b.Count != 1 || !b.RatePercent.IsZero()
}
