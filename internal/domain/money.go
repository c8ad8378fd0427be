package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MinorUnitsPerMajor is the number of minor units (cents) in one major unit.
const MinorUnitsPerMajor = 100

// Money is an amount in minor currency units. All ledger arithmetic is done on
// the integer value; decimal is only used for presentation.
type Money int64

// ToDecimal converts the minor units into a decimal major-unit value.
func (m Money) ToDecimal() decimal.Decimal {
	return decimal.New(int64(m), -2)
}

// String renders the amount with two fractional digits, e.g. "12.34".
func (m Money) String() string {
	return m.ToDecimal().StringFixed(2)
}

// FromDecimal converts a major-unit decimal into minor units, truncating any
// precision below one minor unit.
func FromDecimal(d decimal.Decimal) Money {
	return Money(d.Mul(decimal.NewFromInt(MinorUnitsPerMajor)).IntPart())
}

// ValidateAmount checks that amount is positive and within the accepted
// upper bound.
func ValidateAmount(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be greater than 0, got %d", amount)
	}
	if amount > MaxTransferAmount {
		return fmt.Errorf("amount %d exceeds maximum of %d", amount, MaxTransferAmount)
	}
	return nil
}
