package ledger

import (
	"math"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// ReciprocalPlaces is the number of decimal places a reciprocal rate is rounded to.
const ReciprocalPlaces = 5

var one = decimal.NewFromInt(1)

// Reciprocal returns 1/rate rounded to ReciprocalPlaces.
// rate must be non-zero.
func Reciprocal(rate decimal.Decimal) decimal.Decimal {
	return one.DivRound(rate, ReciprocalPlaces)
}

// ParseAmount parses a decimal string such as "45" or "0.90".
// NaN, infinities and malformed input are validation errors.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, Validationf("parse amount", "%q is not a finite decimal number", s)
	}
	return d, nil
}

// AmountFromFloat converts a float (as decoded from YAML or JSON) to a decimal.
// NaN and infinities are validation errors.
func AmountFromFloat(f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, Validationf("parse amount", "%v is not a finite number", f)
	}
	return decimal.NewFromFloat(f), nil
}

// NormalizeCurrency canonicalizes a currency code: NFC normalized, upper
// cased, surrounding space removed. Empty codes and codes containing
// whitespace are rejected.
func NormalizeCurrency(code string) (string, error) {
	c := strings.TrimSpace(norm.NFC.String(code))
	if c == "" {
		return "", Validationf("normalize currency", "currency code is required")
	}
	if strings.IndexFunc(c, unicode.IsSpace) >= 0 {
		return "", Validationf("normalize currency", "currency code %q contains whitespace", code)
	}
	return cases.Upper(language.Und).String(c), nil
}
