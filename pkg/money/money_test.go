package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMinorUnits(t *testing.T) {
	cases := []struct {
		amount   string
		currency string
		want     int64
	}{
		{"20000", "USD", 2000000},
		{"5000", "usd", 500000},
		{"19.99", "EUR", 1999},
		{"5000", "JPY", 5000},
		{"120000", "KRW", 120000},
		{"12.345", "KWD", 12345},
		{"0", "USD", 0},
	}
	for _, tc := range cases {
		got, err := ToMinorUnits(decimal.RequireFromString(tc.amount), tc.currency)
		require.NoError(t, err, "%s %s", tc.amount, tc.currency)
		assert.Equal(t, tc.want, got, "%s %s", tc.amount, tc.currency)
	}
}

func TestToMinorUnitsRejectsExcessPrecision(t *testing.T) {
	_, err := ToMinorUnits(decimal.RequireFromString("1.234"), "USD")
	require.Error(t, err)

	_, err = ToMinorUnits(decimal.RequireFromString("100.5"), "JPY")
	require.Error(t, err)
}

func TestToMinorUnitsRejectsNegative(t *testing.T) {
	_, err := ToMinorUnits(decimal.NewFromInt(-1), "USD")
	require.Error(t, err)
}

func TestFromMinorUnits(t *testing.T) {
	assert.True(t, FromMinorUnits(500000, "USD").Equal(decimal.NewFromInt(5000)))
	assert.True(t, FromMinorUnits(5000, "JPY").Equal(decimal.NewFromInt(5000)))
	assert.True(t, FromMinorUnits(12345, "BHD").Equal(decimal.RequireFromString("12.345")))
}

func TestExponent(t *testing.T) {
	assert.Equal(t, int32(0), Exponent("jpy"))
	assert.Equal(t, int32(3), Exponent("KWD"))
	assert.Equal(t, int32(2), Exponent("GBP"))
}
