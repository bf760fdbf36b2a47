// Package money holds the integer-cent arithmetic used by checkout. Amounts
// are always int64 minor units; decimal values only appear when converting
// between currencies.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-checkout/pkg/enums"
)

// MaxBasisPoints is 100%.
const MaxBasisPoints int64 = 10_000

// ApplyBasisPoints returns floor(cents * bps / 10000) for non-negative inputs.
func ApplyBasisPoints(cents, bps int64) int64 {
	if cents <= 0 || bps <= 0 {
		return 0
	}
	return cents * bps / MaxBasisPoints
}

// roundBasisPoints rounds half-up instead of flooring.
func roundBasisPoints(cents, bps int64) int64 {
	if cents <= 0 || bps <= 0 {
		return 0
	}
	return (cents*bps + MaxBasisPoints/2) / MaxBasisPoints
}

// AffiliateCredit is the affiliate's share of net revenue, never more than net.
func AffiliateCredit(netCents, bps int64) int64 {
	if bps > MaxBasisPoints {
		bps = MaxBasisPoints
	}
	credit := ApplyBasisPoints(netCents, bps)
	if credit > netCents {
		return netCents
	}
	return credit
}

// FromCents converts minor units of a currency to a decimal amount.
func FromCents(cents int64, currency enums.Currency) decimal.Decimal {
	return decimal.New(cents, -currency.MinorUnits())
}

// ToCents converts a decimal amount to minor units, rounding half away from zero.
func ToCents(amount decimal.Decimal, currency enums.Currency) int64 {
	return amount.Shift(currency.MinorUnits()).Round(0).IntPart()
}

// Format renders minor units for user-facing messages, e.g. "$5.00".
func Format(cents int64, currency enums.Currency) string {
	amount := FromCents(cents, currency).StringFixed(currency.MinorUnits())
	switch currency {
	case enums.CurrencyUSD, enums.CurrencyCAD, enums.CurrencyAUD:
		return "$" + amount
	case enums.CurrencyEUR:
		return "€" + amount
	case enums.CurrencyGBP:
		return "£" + amount
	case enums.CurrencyJPY:
		return "¥" + amount
	}
	return fmt.Sprintf("%s %s", amount, currency)
}
