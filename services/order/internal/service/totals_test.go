package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestComputeTotals(t *testing.T) {
	tests := []struct {
		name                             string
		subtotal, tip, discount, deposit string
		wantTax, wantTotal               string
	}{
		{"plain", "250", "20", "10", "0", "12.50", "272.50"},
		{"rounds tax to cents", "10.01", "0", "0", "0", "0.50", "10.51"},
		{"deposit equal to subtotal", "40", "0", "0", "40", "2.00", "2.00"},
		{"no extras", "0", "0", "0", "0", "0", "0"},
		{"total at column limit", "9523809523.80", "0.00", "0", "0", "476190476.19", "9999999999.99"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeTotals(d(tt.subtotal), d("0.05"), d(tt.tip), d(tt.discount), d(tt.deposit))
			require.NoError(t, err)
			assert.True(t, got.Tax.Equal(d(tt.wantTax)), "tax %s", got.Tax)
			assert.True(t, got.Total.Equal(d(tt.wantTotal)), "total %s", got.Total)

			want := got.Subtotal.Add(got.Tax).Add(got.Tip).Sub(got.Discount).Sub(got.Deposit)
			assert.True(t, got.Total.Equal(want))
		})
	}
}

func TestComputeTotals_Rejects(t *testing.T) {
	tests := []struct {
		name                             string
		subtotal, tip, discount, deposit string
	}{
		{"deposit above subtotal", "50", "0", "0", "50.01"},
		{"negative tip", "50", "-1", "0", "0"},
		{"negative discount", "50", "0", "-1", "0"},
		{"sub-cent tip", "50", "0.005", "0", "0"},
		{"discount drives total negative", "10", "0", "20", "0"},
		{"tip above column limit", "50", "10000000000", "0", "0"},
		{"subtotal above column limit", "10000000000", "0", "0", "0"},
		{"total above column limit", "9999999999.99", "1", "0", "0"},
		{"tax pushes total over limit", "9600000000", "0", "0", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ComputeTotals(d(tt.subtotal), d("0.05"), d(tt.tip), d(tt.discount), d(tt.deposit))
			require.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
}
