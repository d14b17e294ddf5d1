package worker

import (
	"context"
	"time"

	"recruit_exec/internal/domain/repository"
	"recruit_exec/internal/platform/queue"

	"go.uber.org/zap"
)

// RetentionWorker periodically deletes correlation rows of superseded generations once they are
// older than the retention window. With several instances the sweep lock lets one of them run
// per tick.
type RetentionWorker struct {
	correlations repository.TaskCorrelationRepository
	lock         *queue.Lock
	retention    time.Duration
	interval     time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

func NewRetentionWorker(
	corrRepo repository.TaskCorrelationRepository,
	lock *queue.Lock,
	retention, interval time.Duration,
	logger *zap.Logger,
) *RetentionWorker {
	return &RetentionWorker{
		correlations: corrRepo,
		lock:         lock,
		retention:    retention,
		interval:     interval,
		logger:       logger,
		now:          time.Now,
	}
}

// Start sweeps once immediately and then on every interval until ctx is cancelled.
func (w *RetentionWorker) Start(ctx context.Context) error {
	w.logger.Info("retention worker started",
		zap.Duration("interval", w.interval), zap.Duration("retention", w.retention))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.Sweep(ctx)
		select {
		case <-ctx.Done():
			w.logger.Info("retention worker stopping")
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep runs one retention pass and returns the number of deleted rows.
func (w *RetentionWorker) Sweep(ctx context.Context) int64 {
	if w.lock != nil {
		release, ok, err := w.lock.TryAcquire(ctx)
		if err != nil {
			w.logger.Error("failed to attempt sweep lock", zap.Error(err))
			return 0
		}
		if !ok {
			w.logger.Debug("sweep lock held by another instance, skipping")
			return 0
		}
		defer func() {
			// the sweep may have been cut short by ctx; release on a fresh context
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			held, err := release(releaseCtx)
			if err != nil {
				w.logger.Error("failed to release sweep lock", zap.Error(err))
			} else if !held {
				w.logger.Warn("sweep lock expired before release")
			}
		}()
	}

	cutoff := w.now().Add(-w.retention)
	deleted, err := w.correlations.DeleteSuperseded(ctx, cutoff)
	if err != nil {
		w.logger.Error("failed to delete superseded correlations", zap.Error(err))
		return 0
	}
	if deleted > 0 {
		w.logger.Info("deleted superseded correlations", zap.Int64("rows", deleted), zap.Time("cutoff", cutoff))
	}
	return deleted
}
