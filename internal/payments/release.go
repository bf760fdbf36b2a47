package payments

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront-checkout/pkg/enums"
)

// Fate is what releasing an intent established about the buyer's money.
type Fate int

const (
	// FateReleased means no money is held; the purchases may fail.
	FateReleased Fate = iota
	// FateCaptured means the intent captured or authorized; the purchases
	// must settle, never fail.
	FateCaptured
	// FateUnknown means the purchases stay pending until a later attempt.
	FateUnknown
)

type intentReleaser interface {
	Status(ctx context.Context, processor enums.Processor, intentID string) (*Result, error)
	Cancel(ctx context.Context, processor enums.Processor, intentID string) error
}

// Release cancels intentID before its purchases are failed. A cancel the
// processor refuses is resolved by reading the intent: the buyer may have
// finished authentication in the meantime. The Result is set for
// FateCaptured and the error for FateUnknown.
func Release(ctx context.Context, r intentReleaser, processor enums.Processor, intentID string) (Fate, *Result, error) {
	if intentID == "" {
		return FateReleased, nil, nil
	}
	cancelErr := r.Cancel(ctx, processor, intentID)
	if cancelErr == nil {
		return FateReleased, nil, nil
	}
	res, err := r.Status(ctx, processor, intentID)
	if err != nil {
		return FateUnknown, nil, fmt.Errorf("%w; status: %w", cancelErr, err)
	}
	switch {
	case res.Succeeded():
		return FateCaptured, res, nil
	case res != nil && res.Outcome == OutcomeDeclined:
		// Already canceled, or the payment method was refused.
		return FateReleased, nil, nil
	}
	return FateUnknown, nil, cancelErr
}
