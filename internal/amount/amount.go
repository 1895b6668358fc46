// Package amount converts decimal currency amounts to the integer minor units
// processors expect, and back.
package amount

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrNotPositive     = errors.New("amount must be greater than zero")
	ErrUnknownCurrency = errors.New("unknown currency")
	ErrOverflow        = errors.New("amount overflows minor units")
)

// exponents maps ISO 4217 codes to the number of minor-unit digits.
var exponents = map[string]int32{
	"MXN": 2,
	"USD": 2,
	"EUR": 2,
	"COP": 2,
	"BRL": 2,
	"JPY": 0,
	"CLP": 0,
}

var maxMinor = decimal.NewFromInt(math.MaxInt64)

// Exponent returns the minor-unit exponent for currency.
func Exponent(currency string) (int32, error) {
	exp, ok := exponents[strings.ToUpper(currency)]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCurrency, currency)
	}
	return exp, nil
}

// ToMinor rounds half-up to the currency exponent and returns the amount in
// minor units: 150.00 MXN is 15000, 99.995 MXN is 10000.
func ToMinor(amount decimal.Decimal, currency string) (int64, error) {
	exp, err := Exponent(currency)
	if err != nil {
		return 0, err
	}
	if amount.Sign() <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrNotPositive, amount.String())
	}

	// Round is half away from zero, which is half-up for positive amounts.
	minor := amount.Round(exp).Shift(exp)
	if minor.Sign() <= 0 {
		return 0, fmt.Errorf("%w: %s rounds to zero %s", ErrNotPositive, amount.String(), currency)
	}
	if minor.GreaterThan(maxMinor) {
		return 0, fmt.Errorf("%w: %s %s", ErrOverflow, amount.String(), currency)
	}
	return minor.IntPart(), nil
}

// FromMinor is the inverse of ToMinor for display and reconciliation.
func FromMinor(minor int64, currency string) (decimal.Decimal, error) {
	exp, err := Exponent(currency)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.New(minor, -exp), nil
}
