package domain

import "github.com/shopspring/decimal"

const currencyPlaces = 2

// RoundCurrency rounds half away from zero to cents. Amounts keep full
// precision until they are displayed or written to a receipt.
func RoundCurrency(d decimal.Decimal) decimal.Decimal {
	return d.Round(currencyPlaces)
}

// FormatCurrency renders an amount with exactly two decimal places.
func FormatCurrency(d decimal.Decimal) string {
	return d.StringFixed(currencyPlaces)
}
