package symbolspec

import (
	"math"

	"github.com/shopspring/decimal"
)

// MulChecked multiplies two non-negative values and reports overflow.
func MulChecked(a, b int64) (int64, error) {
	if a < 0 || b < 0 {
		return 0, ErrOverflow
	}
	if a == 0 || b == 0 {
		return 0, nil
	}
	if a > math.MaxInt64/b {
		return 0, ErrOverflow
	}
	return a * b, nil
}

// AddChecked adds two signed values and reports overflow.
func AddChecked(a, b int64) (int64, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, ErrOverflow
	}
	return a + b, nil
}

// Rate converts a price in steps into quote currency units per base currency
// unit, e.g. price 15400 with quoteScaleK 10_000 and baseScaleK 1_000_000
// yields 154.
func (s Spec) Rate(price int64) decimal.Decimal {
	if s.BaseScaleK == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(price).
		Mul(decimal.NewFromInt(s.QuoteScaleK)).
		Div(decimal.NewFromInt(s.BaseScaleK))
}
