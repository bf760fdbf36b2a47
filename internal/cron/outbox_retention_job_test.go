package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-checkout/pkg/logger"
)

type pruneCall struct {
	cutoff time.Time
	limit  int
}

// scriptedPruner returns the queued batch sizes in order, then zero.
type scriptedPruner struct {
	batches []int64
	calls   []pruneCall
	err     error
}

func (p *scriptedPruner) DeletePublishedBefore(_ context.Context, cutoff time.Time, limit int) (int64, error) {
	p.calls = append(p.calls, pruneCall{cutoff: cutoff, limit: limit})
	if p.err != nil {
		return 0, p.err
	}
	if len(p.batches) == 0 {
		return 0, nil
	}
	n := p.batches[0]
	p.batches = p.batches[1:]
	return n, nil
}

func retentionSweep(t *testing.T, pruner *scriptedPruner, batch int) *outboxRetentionSweep {
	t.Helper()
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		Repository: pruner,
		BatchSize:  batch,
	})
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	return job.(*outboxRetentionSweep)
}

func TestOutboxRetentionSweepDrainsFullBatches(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	pruner := &scriptedPruner{batches: []int64{2, 2, 1}}
	job := retentionSweep(t, pruner, 2)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(pruner.calls) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(pruner.calls))
	}
	want := now.Add(-outboxRetention)
	for _, call := range pruner.calls {
		if !call.cutoff.Equal(want) || call.limit != 2 {
			t.Fatalf("unexpected call %+v", call)
		}
	}
}

func TestOutboxRetentionSweepStopsOnError(t *testing.T) {
	pruner := &scriptedPruner{err: errors.New("boom")}
	job := retentionSweep(t, pruner, 0)

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(pruner.calls) != 1 || pruner.calls[0].limit != outboxRetentionBatch {
		t.Fatalf("expected a single default-sized batch, got %+v", pruner.calls)
	}
}

func TestOutboxRetentionSweepHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pruner := &scriptedPruner{}
	job := retentionSweep(t, pruner, 10)

	if err := job.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(pruner.calls) != 0 {
		t.Fatalf("expected no deletes after cancel, got %d", len(pruner.calls))
	}
}
