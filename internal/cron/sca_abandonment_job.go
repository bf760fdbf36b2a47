package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/internal/orders"
	"github.com/angelmondragon/storefront-checkout/internal/payments"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/metrics"
)

const (
	abandonmentBatchSize = 200
	abandonmentReason    = "sca_timeout"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type purchaseAbandoner interface {
	Abandon(ctx context.Context, tx *gorm.DB, p *models.Purchase) error
}

type intentReleaser interface {
	Status(ctx context.Context, processor enums.Processor, intentID string) (*payments.Result, error)
	Cancel(ctx context.Context, processor enums.Processor, intentID string) error
}

type capturedSettler interface {
	Reconcile(ctx context.Context, purchaseID uuid.UUID) error
}

type abandonmentNotifier interface {
	PurchaseAbandoned(ctx context.Context, tx *gorm.DB, p *models.Purchase, reason string) error
}

// SCAAbandonmentJobParams wire the sweeper for purchases whose buyer never
// finished authentication.
type SCAAbandonmentJobParams struct {
	Logger        *logger.Logger
	DB            txRunner
	Repo          orders.Repository
	Executor      purchaseAbandoner
	Payments      intentReleaser
	Settler       capturedSettler
	Notifications abandonmentNotifier
	Metrics       *metrics.CronJobMetrics
	BatchSize     int
}

func NewSCAAbandonmentJob(params SCAAbandonmentJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Executor == nil {
		return nil, fmt.Errorf("purchase executor required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment router required")
	}
	if params.Settler == nil {
		return nil, fmt.Errorf("checkout settler required")
	}
	if params.Notifications == nil {
		return nil, fmt.Errorf("notification service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = abandonmentBatchSize
	}
	return &scaAbandonmentJob{
		logg:          params.Logger,
		db:            params.DB,
		repo:          params.Repo,
		executor:      params.Executor,
		payments:      params.Payments,
		settler:       params.Settler,
		notifications: params.Notifications,
		metrics:       params.Metrics,
		batch:         batch,
		now:           time.Now,
	}, nil
}

type scaAbandonmentJob struct {
	logg          *logger.Logger
	db            txRunner
	repo          orders.Repository
	executor      purchaseAbandoner
	payments      intentReleaser
	settler       capturedSettler
	notifications abandonmentNotifier
	metrics       *metrics.CronJobMetrics
	batch         int
	now           func() time.Time
}

func (j *scaAbandonmentJob) Name() string { return "sca-abandonment" }

// abandonment is one unit of work: every pending purchase behind a single
// payment intent.
type abandonment struct {
	charge    *models.Charge
	processor enums.Processor
	intentID  string
	purchases []models.Purchase
}

func (j *scaAbandonmentJob) Run(ctx context.Context) error {
	expired, err := j.repo.FindAbandonable(ctx, j.now().UTC(), j.batch)
	if err != nil {
		return fmt.Errorf("find abandonable purchases: %w", err)
	}
	units, err := j.collect(ctx, expired)
	if err != nil {
		return err
	}

	var errs error
	var abandoned int64
	for _, unit := range units {
		n, err := j.abandon(ctx, unit)
		abandoned += n
		errs = multierr.Append(errs, err)
	}
	j.metrics.AddProcessed(j.Name(), abandoned)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"expired":   len(expired),
		"abandoned": abandoned,
	})
	j.logg.Info(logCtx, "sca abandonment sweep complete")
	return errs
}

// collect widens each expired purchase to its whole charge so a charge is
// never left half abandoned.
func (j *scaAbandonmentJob) collect(ctx context.Context, expired []models.Purchase) ([]*abandonment, error) {
	seen := map[uuid.UUID]bool{}
	var units []*abandonment
	for _, p := range expired {
		if p.ChargeID == nil {
			unit := &abandonment{processor: p.Processor, purchases: []models.Purchase{p}}
			if p.PaymentIntentID != nil {
				unit.intentID = *p.PaymentIntentID
			}
			units = append(units, unit)
			continue
		}
		if seen[*p.ChargeID] {
			continue
		}
		seen[*p.ChargeID] = true
		charge, err := j.repo.FindCharge(ctx, *p.ChargeID)
		if err != nil {
			return nil, fmt.Errorf("load charge %s: %w", *p.ChargeID, err)
		}
		members, err := j.repo.FindPurchasesByCharge(ctx, charge.ID)
		if err != nil {
			return nil, fmt.Errorf("load charge members: %w", err)
		}
		unit := &abandonment{charge: charge, processor: charge.Processor}
		if charge.PaymentIntentID != nil {
			unit.intentID = *charge.PaymentIntentID
		}
		for _, member := range members {
			if member.State == enums.PurchaseStateInProgress {
				unit.purchases = append(unit.purchases, member)
			}
		}
		units = append(units, unit)
	}
	return units, nil
}

// abandon releases the intent before anything is marked failed, so a
// purchase is never failed while its money is captured.
func (j *scaAbandonmentJob) abandon(ctx context.Context, unit *abandonment) (int64, error) {
	if len(unit.purchases) == 0 {
		return 0, nil
	}
	fate, _, err := payments.Release(ctx, j.payments, unit.processor, unit.intentID)
	switch fate {
	case payments.FateCaptured:
		logCtx := j.logg.WithField(ctx, "payment_intent_id", unit.intentID)
		if err := j.settler.Reconcile(logCtx, unit.purchases[0].ID); err != nil {
			return 0, fmt.Errorf("settle captured intent %q: %w", unit.intentID, err)
		}
		j.logg.Info(logCtx, "captured intent settled instead of abandoned")
		return 0, nil
	case payments.FateUnknown:
		return 0, fmt.Errorf("release intent %q: %w", unit.intentID, err)
	}

	var abandoned int64
	err = j.db.WithTx(ctx, func(tx *gorm.DB) error {
		abandoned = 0
		for i := range unit.purchases {
			p := &unit.purchases[i]
			if err := j.executor.Abandon(ctx, tx, p); err != nil {
				return err
			}
			if err := j.notifications.PurchaseAbandoned(ctx, tx, p, abandonmentReason); err != nil {
				return err
			}
			abandoned++
		}
		if unit.charge == nil {
			return nil
		}
		_, err := j.repo.WithTx(tx).TransitionCharge(ctx, unit.charge.ID, enums.ChargeStatusRequiresAction, enums.ChargeStatusCanceled)
		return err
	})
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeStateConflict) {
			// A confirm settled it first; the buyer keeps the purchase.
			return 0, nil
		}
		return 0, fmt.Errorf("abandon intent %q: %w", unit.intentID, err)
	}
	return abandoned, nil
}
