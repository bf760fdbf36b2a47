package tax

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-checkout/pkg/config"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	"github.com/angelmondragon/storefront-checkout/pkg/money"
)

// Service computes sales tax and freezes currency conversions.
type Service struct {
	rates map[string]int64
	fx    map[enums.Currency]decimal.Decimal
}

// NewService parses the configured tax rates and USD conversion rates.
func NewService(cfg config.TaxConfig) (*Service, error) {
	rates := make(map[string]int64, len(cfg.RatesBasisPoints))
	for country, bps := range cfg.RatesBasisPoints {
		if bps < 0 || bps > money.MaxBasisPoints {
			return nil, fmt.Errorf("tax rate for %s out of range: %d", country, bps)
		}
		rates[strings.ToUpper(strings.TrimSpace(country))] = bps
	}
	fx := map[enums.Currency]decimal.Decimal{enums.CurrencyUSD: decimal.NewFromInt(1)}
	for raw, value := range cfg.FXRates {
		currency, err := enums.ParseCurrency(strings.ToLower(strings.TrimSpace(raw)))
		if err != nil {
			return nil, err
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("fx rate for %s: %w", currency, err)
		}
		if !rate.IsPositive() {
			return nil, fmt.Errorf("fx rate for %s must be positive", currency)
		}
		fx[currency] = rate
	}
	return &Service{rates: rates, fx: fx}, nil
}

// ComputeTax returns the tax owed on priceCents for a buyer in country.
// Countries without a configured rate owe nothing.
func (s *Service) ComputeTax(_ context.Context, country string, priceCents int64) (int64, error) {
	if priceCents <= 0 {
		return 0, nil
	}
	bps, ok := s.rates[strings.ToUpper(strings.TrimSpace(country))]
	if !ok {
		return 0, nil
	}
	return money.ApplyBasisPoints(priceCents, bps), nil
}

// ConvertToUSD snapshots minorAmount of currency at the current rate.
func (s *Service) ConvertToUSD(_ context.Context, currency enums.Currency, minorAmount int64) (money.Snapshot, error) {
	rate, ok := s.fx[currency]
	if !ok {
		return money.Snapshot{}, fmt.Errorf("no fx rate for %s", currency)
	}
	return money.NewSnapshot(currency, minorAmount, rate)
}
