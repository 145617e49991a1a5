package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/circleup-app/circleup-backend/pkg/logger"
)

const (
	defaultWorkerInterval = time.Minute
	triggerWorker         = "worker"
	retentionSweepEvery   = 24 * time.Hour
)

// RetentionStore prunes aged in-app feed rows.
type RetentionStore interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// WorkerParams configure the background dispatch worker.
type WorkerParams struct {
	Logger        *logger.Logger
	Processor     *Processor
	Lock          Lock
	Interval      time.Duration
	Retention     RetentionStore
	RetentionDays int
}

// Worker drives the processor on a fixed cadence. A Redis lock keeps replicas
// from running overlapping batches; losing the lock skips the cycle.
type Worker struct {
	logg          *logger.Logger
	processor     *Processor
	lock          Lock
	interval      time.Duration
	retention     RetentionStore
	retentionDays int
	lastSweep     time.Time
}

// NewWorker builds a dispatch worker.
func NewWorker(params WorkerParams) (*Worker, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Processor == nil {
		return nil, errors.New("processor is required")
	}
	if params.Lock == nil {
		return nil, errors.New("lock is required")
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultWorkerInterval
	}
	return &Worker{
		logg:          params.Logger,
		processor:     params.Processor,
		lock:          params.Lock,
		interval:      interval,
		retention:     params.Retention,
		retentionDays: params.RetentionDays,
	}, nil
}

// Run executes dispatch cycles until the context is canceled.
func (w *Worker) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := w.runCycle(ctx); err != nil {
		w.logg.Error(ctx, "dispatch cycle failed", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logg.Info(ctx, "dispatch worker context canceled")
			return ctx.Err()
		case <-ticker.C:
			if err := w.runCycle(ctx); err != nil {
				w.logg.Error(ctx, "dispatch cycle failed", err)
			}
		}
	}
}

func (w *Worker) runCycle(ctx context.Context) error {
	locked, err := w.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		w.logg.Info(ctx, "another dispatch worker holds the lock; skipping cycle")
		return nil
	}
	defer func() {
		if relErr := w.lock.Release(ctx); relErr != nil {
			w.logg.Error(ctx, "failed to release dispatch lock", relErr)
		}
	}()

	if _, err := w.processor.ProcessDue(ctx, triggerWorker); err != nil {
		return err
	}

	w.maybeSweepRetention(ctx)
	return nil
}

// maybeSweepRetention prunes the in-app feed at most once per day.
func (w *Worker) maybeSweepRetention(ctx context.Context) {
	if w.retention == nil || w.retentionDays <= 0 {
		return
	}
	now := time.Now().UTC()
	if !w.lastSweep.IsZero() && now.Sub(w.lastSweep) < retentionSweepEvery {
		return
	}
	w.lastSweep = now

	cutoff := now.AddDate(0, 0, -w.retentionDays)
	removed, err := w.retention.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		w.logg.Error(ctx, "inbox retention sweep failed", err)
		return
	}
	if removed > 0 {
		w.logg.Info(w.logg.WithField(ctx, "removed", removed), "inbox retention sweep complete")
	}
}
