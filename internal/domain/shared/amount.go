package shared

import (
	"math"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Amounts are carried as int64 minor units (cents). Decimal strings are only
// accepted at the edges and converted here.

var maxCents = decimal.NewFromInt(math.MaxInt64)

// ParseCents converts a decimal string into cents, rounding half away from zero at
// the second fractional digit. The sign is preserved.
func ParseCents(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, ValidationError{Field: "amount", Reason: "is required"}
	}

	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, ValidationError{Field: "amount", Reason: "malformed decimal " + quote(raw)}
	}

	cents := d.Shift(2).Round(0)
	if cents.Abs().GreaterThan(maxCents) {
		return 0, ValidationError{Field: "amount", Reason: "out of range"}
	}

	return cents.IntPart(), nil
}

// ParseAmount converts a decimal string into a strictly positive number of cents
func ParseAmount(raw string) (int64, error) {
	cents, err := ParseCents(raw)
	if err != nil {
		return 0, err
	}
	if cents <= 0 {
		return 0, ValidationError{Field: "amount", Reason: "must be positive"}
	}
	return cents, nil
}

// AddCents adds two cent amounts, failing instead of wrapping when the result
// leaves the int64 range
func AddCents(a, b int64) (int64, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, ValidationError{Field: "amount", Reason: "total out of range"}
	}
	return a + b, nil
}

// FormatAmount renders cents as a plain two-digit decimal, e.g. 450 -> "4.50"
func FormatAmount(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// DisplayAmount renders cents with the currency symbol, e.g. 450, "USD" -> "$4.50"
func DisplayAmount(cents int64, currency string) string {
	return money.New(cents, currency).Display()
}

func quote(s string) string {
	return "\"" + s + "\""
}
