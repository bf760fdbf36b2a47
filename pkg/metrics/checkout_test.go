package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckoutMetricsRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCheckoutMetrics(reg)

	m.IncPurchase("successful", "")
	m.IncPurchase("successful", "")
	m.IncPurchase("failed", "card_declined")
	m.IncCharge("requires_action")
	m.ObserveProcessorCall("stripe", "authorize", "requires_action", 300*time.Millisecond)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	ok, err := fetchCounterValue(mfs, "storefront_checkout_purchases_total", map[string]string{"state": "successful", "error_code": "none"})
	require.NoError(t, err)
	assert.Equal(t, float64(2), ok)

	declined, err := fetchCounterValue(mfs, "storefront_checkout_purchases_total", map[string]string{"state": "failed", "error_code": "card_declined"})
	require.NoError(t, err)
	assert.Equal(t, float64(1), declined)

	charges, err := fetchCounterValue(mfs, "storefront_checkout_charges_total", map[string]string{"status": "requires_action"})
	require.NoError(t, err)
	assert.Equal(t, float64(1), charges)

	count, err := fetchHistogramCount(mfs, "storefront_checkout_processor_call_duration_seconds", map[string]string{"processor": "stripe", "operation": "authorize"})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}
