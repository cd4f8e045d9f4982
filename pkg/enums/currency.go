package enums

import (
	"slices"
	"strings"
)

// Currency is an ISO 4217 code accepted for listings and payments.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyCAD Currency = "CAD"
	CurrencyAUD Currency = "AUD"
	CurrencyAED Currency = "AED"
	CurrencyJPY Currency = "JPY"
	CurrencyKRW Currency = "KRW"
	CurrencyNGN Currency = "NGN"
	CurrencyGHS Currency = "GHS"
	CurrencyKES Currency = "KES"
	CurrencyZAR Currency = "ZAR"
	CurrencyKWD Currency = "KWD"
	CurrencyBHD Currency = "BHD"
)

var validCurrencies = []Currency{
	CurrencyUSD,
	CurrencyEUR,
	CurrencyGBP,
	CurrencyCAD,
	CurrencyAUD,
	CurrencyAED,
	CurrencyJPY,
	CurrencyKRW,
	CurrencyNGN,
	CurrencyGHS,
	CurrencyKES,
	CurrencyZAR,
	CurrencyKWD,
	CurrencyBHD,
}

// String implements fmt.Stringer.
func (c Currency) String() string {
	return string(c)
}

// IsValid reports whether the currency is recognized.
func (c Currency) IsValid() bool {
	return slices.Contains(validCurrencies, c)
}

// ParseCurrency converts a raw string into a Currency. Input is case-insensitive.
func ParseCurrency(value string) (Currency, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	return parse("currency", validCurrencies, normalized)
}
