package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/kursadbilgin/linkbot/internal/domain"
	"github.com/kursadbilgin/linkbot/internal/observability"
	"github.com/kursadbilgin/linkbot/internal/queue"
	"github.com/kursadbilgin/linkbot/internal/scraper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const minWorkerConcurrency = 1

// ItemReporter settles queued batch items.
type ItemReporter interface {
	Snapshot(batchID string) (domain.BatchSnapshot, error)
	ReportItem(ctx context.Context, batchID string, index int, result *domain.ScrapeResult, errMsg string, success bool) error
}

// QueueWorker consumes link messages, scrapes each link once and reports the
// outcome back to the batch service.
type QueueWorker struct {
	consumer    queue.Consumer
	scraper     scraper.Scraper
	batches     ItemReporter
	logger      *zap.Logger
	metrics     *observability.Metrics
	concurrency int
}

func NewQueueWorker(
	consumer queue.Consumer,
	gateway scraper.Scraper,
	batches ItemReporter,
	concurrency int,
	logger *zap.Logger,
) (*QueueWorker, error) {
	if consumer == nil {
		return nil, fmt.Errorf("queue consumer is required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("scrape gateway is required")
	}
	if batches == nil {
		return nil, fmt.Errorf("item reporter is required")
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &QueueWorker{
		consumer:    consumer,
		scraper:     gateway,
		batches:     batches,
		logger:      logger,
		concurrency: concurrency,
	}, nil
}

func (w *QueueWorker) SetMetrics(metrics *observability.Metrics) {
	if w == nil {
		return
	}
	w.metrics = metrics
}

// Start consumes the scrape queue until context cancellation. Each worker owns
// one shard, so concurrency must match the shard count the queue was declared
// with.
func (w *QueueWorker) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	queueNames := queue.WorkQueueNames(w.concurrency)

	g, groupCtx := errgroup.WithContext(ctx)
	for i, queueName := range queueNames {
		queueName := queueName
		workerID := i + 1

		g.Go(func() error {
			w.logger.Info("worker started",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)

			err := w.consumer.Consume(groupCtx, queueName, w.processMessage)
			if err != nil {
				w.logger.Error("worker stopped with error",
					zap.Int("workerId", workerID),
					zap.String("queue", queueName),
					zap.Error(err),
				)
				return err
			}

			w.logger.Info("worker stopped",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)
			return nil
		})
	}

	return g.Wait()
}

func (w *QueueWorker) processMessage(ctx context.Context, msg queue.LinkMessage) error {
	if msg.RequestID != "" {
		ctx = observability.WithRequestID(ctx, msg.RequestID)
	}
	ctx = observability.WithChatID(observability.WithBatchID(ctx, msg.BatchID), msg.ChatID)
	logger := observability.WithContextLogger(w.logger, ctx).With(zap.Int("index", msg.Index))

	snapshot, err := w.batches.Snapshot(msg.BatchID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logger.Info("batch not found, skipping message")
			w.metrics.IncQueueMessage("skipped")
			return nil
		}
		w.metrics.IncQueueMessage("failed")
		return fmt.Errorf("load batch: %w", err)
	}
	if msg.Index >= len(snapshot.Items) {
		logger.Warn("item index out of range", zap.Int("items", len(snapshot.Items)))
		w.metrics.IncQueueMessage("dropped")
		return fmt.Errorf("%w: item %d out of range", queue.ErrDrop, msg.Index)
	}
	if snapshot.Items[msg.Index].Status.IsTerminal() {
		logger.Info("item already settled, skipping redelivered message")
		w.metrics.IncQueueMessage("skipped")
		return nil
	}

	result, scrapeErr := w.scrape(ctx, logger, msg)
	errMsg := ""
	if scrapeErr != nil {
		errMsg = scrapeErr.Error()
	}

	err = w.batches.ReportItem(ctx, msg.BatchID, msg.Index, result, errMsg, scrapeErr == nil)
	switch {
	case err == nil:
		w.metrics.IncQueueMessage("processed")
		return nil
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrValidation):
		logger.Warn("item report rejected", zap.Error(err))
		w.metrics.IncQueueMessage("dropped")
		return fmt.Errorf("%w: %v", queue.ErrDrop, err)
	default:
		w.metrics.IncQueueMessage("failed")
		return fmt.Errorf("report item: %w", err)
	}
}

// scrape runs the scraper and turns a panic or an empty result into a failed
// outcome so the item is still reported.
func (w *QueueWorker) scrape(ctx context.Context, logger *zap.Logger, msg queue.LinkMessage) (result *domain.ScrapeResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("scrape panicked", zap.Any("panic", r), zap.Stack("stack"))
			result = nil
			err = fmt.Errorf("internal error: %v", r)
		}
	}()

	result, err = w.scraper.Scrape(ctx, msg.URL, msg.UserID)
	if err == nil && result == nil {
		err = &scraper.ScrapeError{URL: msg.URL, Message: "scraper returned no result"}
	}
	return result, err
}
