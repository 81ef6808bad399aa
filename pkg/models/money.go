package models

import "github.com/shopspring/decimal"

// MoneyScale is the number of fractional digits kept for every amount.
// Amounts are persisted as integer minor units so that SQL sums stay exact.
const MoneyScale = 2

// MaxAmount is the largest amount a single term, entry or payment may carry.
// At 10^14 minor units it leaves room for int64 SQL sums over tens of
// thousands of entries.
var MaxAmount = decimal.New(1, 12)

// ToMinor converts d to integer minor units. d must fit MoneyScale and be
// within MaxAmount.
func ToMinor(d decimal.Decimal) int64 {
	return d.Shift(MoneyScale).IntPart()
}

// FromMinor converts integer minor units back to an amount.
func FromMinor(v int64) decimal.Decimal {
	return decimal.New(v, -MoneyScale)
}

// FitsMoneyScale reports whether d can be stored without losing precision.
func FitsMoneyScale(d decimal.Decimal) bool {
	return d.Equal(d.Round(MoneyScale))
}

// WithinMaxAmount reports whether |d| does not exceed MaxAmount.
func WithinMaxAmount(d decimal.Decimal) bool {
	return d.Abs().LessThanOrEqual(MaxAmount)
}
