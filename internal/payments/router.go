package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	"github.com/angelmondragon/storefront-checkout/pkg/metrics"
)

// Router dispatches to the processor that owns a chargeable and times every call.
type Router struct {
	processors map[enums.Processor]Processor
	metrics    *metrics.CheckoutMetrics
	now        func() time.Time
}

func NewRouter(m *metrics.CheckoutMetrics) *Router {
	return &Router{
		processors: map[enums.Processor]Processor{},
		metrics:    m,
		now:        time.Now,
	}
}

// Register adds a processor. A nil processor leaves the slot empty so
// authorizations against it report the processor as unavailable.
func (r *Router) Register(name enums.Processor, p Processor) *Router {
	if p != nil {
		r.processors[name] = p
	}
	return r
}

func (r *Router) Authorize(ctx context.Context, req AuthorizeRequest) (*Result, error) {
	p, ok := r.processors[req.Processor]
	if !ok {
		r.observe(req.Processor, "authorize", string(OutcomeUnavailable), r.now())
		return unavailable(), nil
	}
	start := r.now()
	res, err := p.Authorize(ctx, req)
	r.observe(req.Processor, "authorize", outcomeLabel(res, err), start)
	return res, err
}

func (r *Router) Confirm(ctx context.Context, processor enums.Processor, intentID string) (*Result, error) {
	p, ok := r.processors[processor]
	if !ok {
		return unavailable(), nil
	}
	start := r.now()
	res, err := p.Confirm(ctx, intentID)
	r.observe(processor, "confirm", outcomeLabel(res, err), start)
	return res, err
}

func (r *Router) Status(ctx context.Context, processor enums.Processor, intentID string) (*Result, error) {
	p, ok := r.processors[processor]
	if !ok {
		return nil, fmt.Errorf("processor %s not configured", processor)
	}
	start := r.now()
	res, err := p.Status(ctx, intentID)
	r.observe(processor, "status", outcomeLabel(res, err), start)
	return res, err
}

func (r *Router) Cancel(ctx context.Context, processor enums.Processor, intentID string) error {
	p, ok := r.processors[processor]
	if !ok {
		return fmt.Errorf("processor %s not configured", processor)
	}
	start := r.now()
	err := p.Cancel(ctx, intentID)
	r.observe(processor, "cancel", errorLabel(err), start)
	return err
}

func (r *Router) Refund(ctx context.Context, processor enums.Processor, transactionID string) error {
	p, ok := r.processors[processor]
	if !ok {
		return fmt.Errorf("processor %s not configured", processor)
	}
	start := r.now()
	err := p.Refund(ctx, transactionID)
	r.observe(processor, "refund", errorLabel(err), start)
	return err
}

func (r *Router) observe(processor enums.Processor, op, outcome string, start time.Time) {
	r.metrics.ObserveProcessorCall(string(processor), op, outcome, r.now().Sub(start))
}

func outcomeLabel(res *Result, err error) string {
	if err != nil || res == nil {
		return "error"
	}
	return string(res.Outcome)
}

func errorLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
