// Package money does order arithmetic in decimal and rounds to cents.
package money

import "github.com/shopspring/decimal"

// Round rounds an amount to two decimal places, half away from zero
func Round(amount float64) float64 {
	return decimal.NewFromFloat(amount).Round(2).InexactFloat64()
}

// LineTotal returns price * quantity rounded to cents
func LineTotal(price float64, quantity int) float64 {
	return decimal.NewFromFloat(price).Mul(decimal.NewFromInt(int64(quantity))).Round(2).InexactFloat64()
}

// Sum adds amounts without accumulating float error
func Sum(amounts ...float64) float64 {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(decimal.NewFromFloat(a))
	}
	return total.Round(2).InexactFloat64()
}

// OrderTotal computes subtotal - discount + shipping rounded to cents
func OrderTotal(subtotal, discount, shipping float64) float64 {
	return decimal.NewFromFloat(subtotal).
		Sub(decimal.NewFromFloat(discount)).
		Add(decimal.NewFromFloat(shipping)).
		Round(2).
		InexactFloat64()
}

// Percent returns amount * pct / 100 without rounding
func Percent(amount, pct float64) float64 {
	return decimal.NewFromFloat(amount).Mul(decimal.NewFromFloat(pct)).Div(decimal.NewFromInt(100)).InexactFloat64()
}

// ToCents converts an amount to integer minor units
func ToCents(amount float64) int64 {
	return decimal.NewFromFloat(amount).Shift(2).Round(0).IntPart()
}
