package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-checkout/pkg/enums"
)

func defaultSchedule() FeeSchedule {
	return FeeSchedule{
		PlatformBasisPoints:  1000,
		PlatformFlatCents:    50,
		ProcessorBasisPoints: 290,
		ProcessorFlatCents:   30,
		DiscoverBasisPoints:  3000,
	}
}

func TestComputeAffiliateCreditOnTenDollarSale(t *testing.T) {
	out := defaultSchedule().Compute(BreakdownInput{PriceCents: 1000, AffiliateBasisPoints: 1000})

	assert.Equal(t, int64(209), out.FeeCents)
	assert.Equal(t, int64(791), out.NetCents)
	assert.Equal(t, int64(79), out.AffiliateCreditCents)
	assert.Equal(t, int64(1000), out.TotalTransactionCents)
}

func TestComputeTotalIncludesTaxAndShipping(t *testing.T) {
	out := defaultSchedule().Compute(BreakdownInput{PriceCents: 500, TaxCents: 40, ShippingCents: 300})
	assert.Equal(t, int64(840), out.TotalTransactionCents)
	assert.Equal(t, out.PriceCents+out.TaxCents+out.ShippingCents, out.TotalTransactionCents)
}

func TestComputeFreeItemHasNoFees(t *testing.T) {
	out := defaultSchedule().Compute(BreakdownInput{PriceCents: 0, AffiliateBasisPoints: 5000})
	assert.Zero(t, out.FeeCents)
	assert.Zero(t, out.AffiliateCreditCents)
	assert.Zero(t, out.TotalTransactionCents)
}

func TestComputeDiscoverSuppressesAffiliateCredit(t *testing.T) {
	out := defaultSchedule().Compute(BreakdownInput{PriceCents: 1000, Discover: true, AffiliateBasisPoints: 1000})
	assert.Equal(t, int64(200), out.DiscoverFeeCents)
	assert.Equal(t, int64(409), out.FeeCents)
	assert.Zero(t, out.AffiliateCreditCents)
}

func TestComputeFeeNeverExceedsPrice(t *testing.T) {
	out := defaultSchedule().Compute(BreakdownInput{PriceCents: 60})
	assert.Equal(t, int64(60), out.FeeCents)
	assert.Zero(t, out.NetCents)
}

func TestAffiliateCreditCappedAtNet(t *testing.T) {
	assert.Equal(t, int64(791), AffiliateCredit(791, 20_000))
	assert.Equal(t, int64(0), AffiliateCredit(0, 1000))
	assert.Equal(t, int64(3), AffiliateCredit(39, 1000))
}

func TestSnapshotConvertsToUSD(t *testing.T) {
	snap, err := NewSnapshot(enums.CurrencyEUR, 1000, decimal.RequireFromString("1.0850"))
	require.NoError(t, err)
	assert.Equal(t, int64(1085), snap.USDCents)

	jpy, err := NewSnapshot(enums.CurrencyJPY, 1500, decimal.RequireFromString("0.0067"))
	require.NoError(t, err)
	assert.Equal(t, int64(1005), jpy.USDCents)

	usd, err := NewSnapshot(enums.CurrencyUSD, 1234, decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), usd.USDCents)

	_, err = NewSnapshot(enums.CurrencyGBP, 100, decimal.Zero)
	require.Error(t, err)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "$5.00", Format(500, enums.CurrencyUSD))
	assert.Equal(t, "¥1500", Format(1500, enums.CurrencyJPY))
}
