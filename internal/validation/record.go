package validation

import (
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 2000
)

// ValidateTitle returns the trimmed title or an error when it is missing
func ValidateTitle(title string) (string, error) {
	trimmed := strings.TrimSpace(title)

	if trimmed == "" {
		return "", newError("title", "title is required")
	}

	if utf8.RuneCountInString(trimmed) > MaxTitleLength {
		return "", newError("title", "title is too long (max 200 characters)")
	}

	return trimmed, nil
}

func ValidateDescription(description string) (string, error) {
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return "", newError("description", "description is too long (max 2000 characters)")
	}
	return description, nil
}

// ParseAmount parses a decimal amount such as "42.50".
// The parsed decimal is exact; there is no NaN or infinity to guard against.
func ParseAmount(amount string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(amount)
	if trimmed == "" {
		return decimal.Zero, newError("amount", "amount is required")
	}

	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, newError("amount", "amount must be a number")
	}

	// Keep the exponent sane so "1e100000" cannot be stored
	if d.Abs().GreaterThanOrEqual(decimal.New(1, 15)) {
		return decimal.Zero, newError("amount", "amount is too large")
	}
	if d.Exponent() < -4 {
		d = d.Round(4)
	}

	return d, nil
}

// ValidateCurrency normalizes an ISO 4217 currency code, using def when code is empty
func ValidateCurrency(code, def string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		code = def
	}

	unit, err := currency.ParseISO(strings.ToUpper(code))
	if err != nil {
		return "", newError("currency_code", "unknown currency code")
	}

	return unit.String(), nil
}
