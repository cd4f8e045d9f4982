// Package money converts decimal major-unit amounts to the integer minor units
// payment processors expect.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// maxMinorUnits caps a single amount (99,999,999.99 in two-decimal currencies).
const maxMinorUnits = 9_999_999_999

var zeroDecimalCurrencies = map[string]struct{}{
	"BIF": {}, "CLP": {}, "DJF": {}, "GNF": {}, "JPY": {}, "KMF": {}, "KRW": {}, "MGA": {},
	"PYG": {}, "RWF": {}, "UGX": {}, "VND": {}, "VUV": {}, "XAF": {}, "XOF": {}, "XPF": {},
}

var threeDecimalCurrencies = map[string]struct{}{
	"BHD": {}, "JOD": {}, "KWD": {}, "OMR": {}, "TND": {},
}

// Exponent returns the number of minor-unit digits for an ISO 4217 currency.
func Exponent(currency string) int32 {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if _, ok := zeroDecimalCurrencies[code]; ok {
		return 0
	}
	if _, ok := threeDecimalCurrencies[code]; ok {
		return 3
	}
	return 2
}

// ToMinorUnits converts amount into the smallest currency unit. Amounts carrying
// more precision than the currency allows are rejected rather than rounded.
func ToMinorUnits(amount decimal.Decimal, currency string) (int64, error) {
	if amount.IsNegative() {
		return 0, fmt.Errorf("amount must not be negative")
	}
	scaled := amount.Shift(Exponent(currency))
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more precision than %s allows", amount.String(), strings.ToUpper(currency))
	}
	if scaled.GreaterThan(decimal.NewFromInt(maxMinorUnits)) {
		return 0, fmt.Errorf("amount %s is out of range", amount.String())
	}
	return scaled.IntPart(), nil
}

// FromMinorUnits converts a processor amount back to major units.
func FromMinorUnits(minor int64, currency string) decimal.Decimal {
	return decimal.New(minor, -Exponent(currency))
}

// Round normalizes amount to the currency precision.
func Round(amount decimal.Decimal, currency string) decimal.Decimal {
	return amount.Round(Exponent(currency))
}
