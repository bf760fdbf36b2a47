package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics tracks purchase outcomes and processor latency.
type CheckoutMetrics struct {
	purchases *prometheus.CounterVec
	processor *prometheus.HistogramVec
	charges   *prometheus.CounterVec
}

func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	purchases := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "checkout",
		Name:      "purchases_total",
		Help:      "Purchases reaching a state, by error code when failed.",
	}, []string{"state", "error_code"})
	processor := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "checkout",
		Name:      "processor_call_duration_seconds",
		Help:      "Latency of payment processor calls.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"processor", "operation", "outcome"})
	charges := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "checkout",
		Name:      "charges_total",
		Help:      "Charges created, by status.",
	}, []string{"status"})
	reg.MustRegister(purchases, processor, charges)
	return &CheckoutMetrics{
		purchases: purchases,
		processor: processor,
		charges:   charges,
	}
}

// IncPurchase counts a purchase reaching state. errorCode is empty on success.
func (m *CheckoutMetrics) IncPurchase(state, errorCode string) {
	if m == nil || m.purchases == nil {
		return
	}
	if errorCode == "" {
		errorCode = "none"
	}
	m.purchases.WithLabelValues(normalizeLabel(state), errorCode).Inc()
}

func (m *CheckoutMetrics) ObserveProcessorCall(processor, operation, outcome string, duration time.Duration) {
	if m == nil || m.processor == nil {
		return
	}
	m.processor.WithLabelValues(normalizeLabel(processor), normalizeLabel(operation), normalizeLabel(outcome)).Observe(duration.Seconds())
}

func (m *CheckoutMetrics) IncCharge(status string) {
	if m == nil || m.charges == nil {
		return
	}
	m.charges.WithLabelValues(normalizeLabel(status)).Inc()
}
