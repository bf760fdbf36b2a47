package money

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-checkout/pkg/enums"
)

// Snapshot freezes a presentment amount and its USD conversion at purchase time.
type Snapshot struct {
	Currency    enums.Currency
	MinorAmount int64
	Rate        decimal.Decimal
	USDCents    int64
}

// NewSnapshot converts minorAmount of currency to USD cents using rate (USD per unit).
func NewSnapshot(currency enums.Currency, minorAmount int64, rate decimal.Decimal) (Snapshot, error) {
	if !currency.IsValid() {
		return Snapshot{}, fmt.Errorf("unsupported currency %q", currency)
	}
	if currency == enums.CurrencyUSD {
		rate = decimal.NewFromInt(1)
	}
	if !rate.IsPositive() {
		return Snapshot{}, fmt.Errorf("conversion rate for %s must be positive", currency)
	}
	usd := ToCents(FromCents(minorAmount, currency).Mul(rate), enums.CurrencyUSD)
	return Snapshot{
		Currency:    currency,
		MinorAmount: minorAmount,
		Rate:        rate,
		USDCents:    usd,
	}, nil
}
