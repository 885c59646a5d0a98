// Package money converts between integer minor units and gateway major units.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const defaultExponent int32 = 2

// ISO 4217 minor-unit exponents that differ from the default of 2.
var exponents = map[string]int32{
	"BIF": 0, "CLP": 0, "DJF": 0, "GNF": 0, "ISK": 0, "JPY": 0, "KMF": 0,
	"KRW": 0, "PYG": 0, "RWF": 0, "UGX": 0, "VND": 0, "VUV": 0, "XAF": 0,
	"XOF": 0, "XPF": 0,
	"BHD": 3, "IQD": 3, "JOD": 3, "KWD": 3, "LYD": 3, "OMR": 3, "TND": 3,
}

// Exponent returns the number of minor-unit digits for currency.
func Exponent(currency string) int32 {
	if exp, ok := exponents[strings.ToUpper(currency)]; ok {
		return exp
	}
	return defaultExponent
}

// ToMajor converts minor units (2500 USD cents) to major units (25.00).
func ToMajor(minor int64, currency string) decimal.Decimal {
	return decimal.New(minor, -Exponent(currency))
}

// ToMinor converts major units back to minor units. Amounts carrying more
// precision than the currency allows are rejected rather than rounded.
func ToMinor(major decimal.Decimal, currency string) (int64, error) {
	shifted := major.Shift(Exponent(currency))
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("amount %s exceeds %s precision", major.String(), strings.ToUpper(currency))
	}
	return shifted.IntPart(), nil
}

// Format renders minor units with the currency's fixed number of decimals.
func Format(minor int64, currency string) string {
	return ToMajor(minor, currency).StringFixed(Exponent(currency))
}
