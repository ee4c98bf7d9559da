package service

import (
	"github.com/Anilsharma012/vastralaya4-sub000/internal"
	"github.com/shopspring/decimal"
)

// Calculator computes commission amounts from order totals using the
// configured tier-rate table.
type Calculator struct {
	Config internal.CommissionConfig
}

var oneHundred = decimal.NewFromInt(100)

// Compute returns orderTotal * rate / 100 in the smallest currency unit,
// rounded half away from zero (round-half-up for the positive amounts
// handled here).
func (c *Calculator) Compute(referrer internal.Referrer, orderTotal internal.Money) internal.Money {
	rate := decimal.NewFromFloat(c.Config.RateFor(referrer.Ref.Kind, referrer.Tier))
	amount := decimal.NewFromInt(int64(orderTotal)).Mul(rate).Div(oneHundred)
	return internal.Money(amount.Round(0).IntPart())
}
