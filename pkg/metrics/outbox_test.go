package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestOutboxMetricsCountsByEventType(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)
	m.IncPublished("receipt_requested")
	m.IncPublished("receipt_requested")
	m.IncFailed("ping_requested")
	m.IncDeadLettered("", "non_retryable")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "storefront_outbox_published_total", map[string]string{"event_type": "receipt_requested"}); err != nil || got != 2 {
		t.Fatalf("expected published=2, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "storefront_outbox_publish_failures_total", map[string]string{"event_type": "ping_requested"}); err != nil || got != 1 {
		t.Fatalf("expected failures=1, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "storefront_outbox_dead_lettered_total", map[string]string{"event_type": "unknown", "reason": "non_retryable"}); err != nil || got != 1 {
		t.Fatalf("expected dead_lettered=1, got %f (%v)", got, err)
	}
}

func TestNilOutboxMetricsIsNoop(t *testing.T) {
	var m *OutboxMetrics
	m.IncPublished("x")
	NewOutboxMetrics(nil).IncDeadLettered("x", "y")
}
