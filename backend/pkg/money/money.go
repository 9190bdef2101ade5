// Package money converts between the decimal amounts callers work with and
// the fixed-precision integer minor units the store persists. The document
// store keeps balances as int64 minor units rather than a binary float so
// that neither deposits nor transfers accumulate rounding error; decimal
// values only exist at the edge of the API.
package money

import "github.com/shopspring/decimal"

// Scale is the number of minor units per major unit (2 -> cents).
const Scale = 2

var unit = decimal.New(1, int32(Scale))

// MinorUnits is an exact integer amount, e.g. cents.
type MinorUnits int64

// ToMinorUnits rounds d to the configured scale and returns it as an
// integer minor-unit amount.
func ToMinorUnits(d decimal.Decimal) MinorUnits {
	return MinorUnits(d.Mul(unit).Round(0).IntPart())
}

// ToDecimal converts a minor-unit amount back to a decimal for display or
// further arithmetic.
func (m MinorUnits) ToDecimal() decimal.Decimal {
	return decimal.NewFromInt(int64(m)).DivRound(unit, int32(Scale))
}

func (m MinorUnits) String() string {
	return m.ToDecimal().StringFixed(int32(Scale))
}
