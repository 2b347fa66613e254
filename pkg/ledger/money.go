package ledger

import (
	"math"

	"github.com/shopspring/decimal"
)

// MinorUnitScale is the number of fractional digits of one major currency unit.
const MinorUnitScale = 2

// Amount is a monetary value in minor currency units (e.g. cents).
type Amount int64

// ParseAmount converts a decimal string such as "12.34" into minor units.
// Values with more fractional digits than MinorUnitScale are rejected rather than rounded.
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, validationError("amount", "amount must be a decimal number")
	}
	return AmountFromDecimal(d)
}

// AmountFromDecimal converts d into minor units without rounding.
func AmountFromDecimal(d decimal.Decimal) (Amount, error) {
	minor := d.Shift(MinorUnitScale)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, validationError("amount", "amount has more than 2 fractional digits")
	}
	if minor.GreaterThan(decimal.NewFromInt(math.MaxInt64)) || minor.LessThan(decimal.NewFromInt(math.MinInt64)) {
		return 0, validationError("amount", "amount is out of range")
	}
	return Amount(minor.IntPart()), nil
}

// Decimal returns the amount in major units.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -MinorUnitScale)
}

func (a Amount) String() string {
	return a.Decimal().StringFixed(MinorUnitScale)
}

// add returns a+b, reporting false when the sum does not fit in an int64.
func (a Amount) add(b Amount) (Amount, bool) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, false
	}
	return sum, true
}
