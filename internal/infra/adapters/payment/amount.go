package payment

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"bookmarks-billing/internal/domain"
)

// zeroDecimal lists ISO 4217 currencies without a minor unit.
var zeroDecimal = map[string]bool{"JPY": true, "KRW": true, "VND": true, "CLP": true, "ISK": true}

func exponent(currency string) int32 {
	if zeroDecimal[strings.ToUpper(currency)] {
		return 0
	}
	return 2
}

// ToMinorUnits converts a provider decimal string such as "50.00" into minor units.
// Values with more precision than the currency allows are rejected.
func ToMinorUnits(value, currency string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%w: amount %q", domain.ErrMalformedPayload, value)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: negative amount %q", domain.ErrMalformedPayload, value)
	}
	minor := d.Shift(exponent(currency))
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("%w: amount %q has too many decimals", domain.ErrMalformedPayload, value)
	}
	return minor.IntPart(), nil
}

// FromMinorUnits renders minor units as the decimal string providers expect.
func FromMinorUnits(minor int64, currency string) string {
	exp := exponent(currency)
	return decimal.New(minor, -exp).StringFixed(exp)
}
