package service

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Tip      decimal.Decimal
	Discount decimal.Decimal
	Deposit  decimal.Decimal
	Total    decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// MaxAmount is the largest value a numeric(12,2) column holds.
var MaxAmount = decimal.RequireFromString("9999999999.99")

// MaxQuantity caps a single order line.
const MaxQuantity = 1000

func checkAmount(name string, d decimal.Decimal) error {
	if d.IsNegative() {
		return fmt.Errorf("%w: %s must not be negative", ErrInvalidArgument, name)
	}
	if !d.Mul(hundred).IsInteger() {
		return fmt.Errorf("%w: %s has more than two decimal places", ErrInvalidArgument, name)
	}
	if d.GreaterThan(MaxAmount) {
		return fmt.Errorf("%w: %s exceeds %s", ErrInvalidArgument, name, MaxAmount.StringFixed(2))
	}
	return nil
}

// ComputeTotals derives the order amounts once, at creation:
// total = subtotal + tax + tip - discount - deposit, tax rounded to cents.
func ComputeTotals(subtotal, taxRate, tip, discount, deposit decimal.Decimal) (Totals, error) {
	for _, a := range []struct {
		name string
		v    decimal.Decimal
	}{
		{"subtotal", subtotal},
		{"tip_amount", tip},
		{"discount_amount", discount},
		{"deposit_used", deposit},
	} {
		if err := checkAmount(a.name, a.v); err != nil {
			return Totals{}, err
		}
	}
	if deposit.GreaterThan(subtotal) {
		return Totals{}, fmt.Errorf("%w: deposit_used %s exceeds subtotal %s", ErrInvalidArgument, deposit.StringFixed(2), subtotal.StringFixed(2))
	}

	tax := subtotal.Mul(taxRate).Round(2)
	total := subtotal.Add(tax).Add(tip).Sub(discount).Sub(deposit)
	if total.IsNegative() {
		return Totals{}, fmt.Errorf("%w: discount exceeds the order amount", ErrInvalidArgument)
	}
	if err := checkAmount("tax_amount", tax); err != nil {
		return Totals{}, err
	}
	if err := checkAmount("total_amount", total); err != nil {
		return Totals{}, err
	}

	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Tip:      tip,
		Discount: discount,
		Deposit:  deposit,
		Total:    total,
	}, nil
}
