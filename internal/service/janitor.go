package service

import (
	"fmt"
	"time"

	"github.com/kursadbilgin/linkbot/internal/repository"
	"go.uber.org/zap"
)

const defaultBatchRetention = time.Hour

// Janitor evicts finished batches from the store after the retention window.
type Janitor struct {
	store     repository.BatchStore
	retention time.Duration
	logger    *zap.Logger
}

func NewJanitor(store repository.BatchStore, retention time.Duration, logger *zap.Logger) (*Janitor, error) {
	if store == nil {
		return nil, fmt.Errorf("batch store is required")
	}
	if retention <= 0 {
		retention = defaultBatchRetention
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Janitor{
		store:     store,
		retention: retention,
		logger:    logger,
	}, nil
}

// Schedule arranges for the batch to be removed once the retention window
// has passed. Scheduling an unknown batch is a no-op.
func (j *Janitor) Schedule(batchID string) {
	if j == nil {
		return
	}
	if !j.store.ScheduleRemoval(batchID, j.retention) {
		j.logger.Debug("batch already removed, nothing to schedule", zap.String("batchId", batchID))
		return
	}
	j.logger.Debug("batch removal scheduled",
		zap.String("batchId", batchID),
		zap.Duration("retention", j.retention),
	)
}

func (j *Janitor) Retention() time.Duration {
	if j == nil {
		return 0
	}
	return j.retention
}
