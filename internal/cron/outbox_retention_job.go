package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/metrics"
)

const (
	outboxRetention      = 30 * 24 * time.Hour
	outboxRetentionBatch = 500
	outboxRetentionJob   = "outbox-retention"
)

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	Repository outboxPruner
	Metrics    *metrics.CronJobMetrics
	Retention  time.Duration
	BatchSize  int
}

type outboxPruner interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// NewOutboxRetentionJob prunes outbox rows published longer ago than the
// retention window. Unpublished rows are never touched, so the DLQ and
// anything still retrying survive.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Repository == nil {
		return nil, errors.New("outbox repository required")
	}
	job := &outboxRetentionSweep{
		logg:      params.Logger,
		pruner:    params.Repository,
		metrics:   params.Metrics,
		retention: params.Retention,
		batch:     params.BatchSize,
		now:       time.Now,
	}
	if job.retention <= 0 {
		job.retention = outboxRetention
	}
	if job.batch <= 0 {
		job.batch = outboxRetentionBatch
	}
	return job, nil
}

type outboxRetentionSweep struct {
	logg      *logger.Logger
	pruner    outboxPruner
	metrics   *metrics.CronJobMetrics
	retention time.Duration
	batch     int
	now       func() time.Time
}

func (j *outboxRetentionSweep) Name() string { return outboxRetentionJob }

// Run deletes in batches until a short batch signals the backlog is gone or
// ctx runs out. Rows removed before a failure stay counted.
func (j *outboxRetentionSweep) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var total int64
	defer func() { j.metrics.AddProcessed(outboxRetentionJob, total) }()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		deleted, err := j.pruner.DeletePublishedBefore(ctx, cutoff, j.batch)
		if err != nil {
			return fmt.Errorf("prune outbox before %s: %w", cutoff.Format(time.RFC3339), err)
		}
		total += deleted
		if deleted < int64(j.batch) {
			break
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": total,
	}), "outbox retention sweep complete")
	return nil
}
