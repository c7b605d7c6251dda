package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kursadbilgin/linkbot/internal/chat"
	"github.com/kursadbilgin/linkbot/internal/classifier"
	"github.com/kursadbilgin/linkbot/internal/domain"
	"github.com/kursadbilgin/linkbot/internal/extract"
	"github.com/kursadbilgin/linkbot/internal/observability"
	"github.com/kursadbilgin/linkbot/internal/queue"
	"github.com/kursadbilgin/linkbot/internal/render"
	"github.com/kursadbilgin/linkbot/internal/repository"
	"github.com/kursadbilgin/linkbot/internal/scraper"
	"go.uber.org/zap"
)

const (
	defaultItemDelay     = 500 * time.Millisecond
	defaultMaxBatchSize  = 50
	defaultQueueDeadline = 2 * time.Hour

	expiredItemMessage = "queue deadline exceeded"
)

// ContentRouter delivers a scrape result to the user's chat.
type ContentRouter interface {
	Route(ctx context.Context, dest domain.Destination, rawURL string, result *domain.ScrapeResult) error
}

type BatchServiceOptions struct {
	ItemDelay    time.Duration
	MaxBatchSize int
	// QueueDeadline bounds how long a queued batch may wait for item reports.
	// Items still unsettled by then are failed and the batch is finished.
	QueueDeadline time.Duration
}

// TextOutcome describes what HandleText did with a message.
type TextOutcome struct {
	BatchID string
	Total   int
	Mode    domain.SubmitMode
}

// BatchService owns the batch lifecycle: creation, sequential processing,
// status rendering, delivery and eviction.
type BatchService struct {
	store     repository.BatchStore
	scraper   scraper.Scraper
	router    ContentRouter
	janitor   *Janitor
	publisher queue.Publisher
	logger    *zap.Logger
	metrics   *observability.Metrics

	itemDelay     time.Duration
	maxBatchSize  int
	queueDeadline time.Duration
	sleep         func(ctx context.Context, d time.Duration) error
	afterFunc     func(d time.Duration, f func()) (stop func() bool)

	queuedMu   sync.Mutex
	transports map[string]chat.Transport
	deadlines  map[string]func() bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewBatchService(
	store repository.BatchStore,
	gateway scraper.Scraper,
	router ContentRouter,
	janitor *Janitor,
	opts BatchServiceOptions,
	logger *zap.Logger,
) (*BatchService, error) {
	if store == nil {
		return nil, fmt.Errorf("batch store is required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("scrape gateway is required")
	}
	if router == nil {
		return nil, fmt.Errorf("content router is required")
	}
	if janitor == nil {
		return nil, fmt.Errorf("janitor is required")
	}
	if opts.ItemDelay < 0 {
		opts.ItemDelay = 0
	}
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = defaultMaxBatchSize
	}
	if opts.QueueDeadline <= 0 {
		opts.QueueDeadline = defaultQueueDeadline
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &BatchService{
		store:        store,
		scraper:      gateway,
		router:       router,
		janitor:      janitor,
		logger:       logger,
		itemDelay:     opts.ItemDelay,
		maxBatchSize:  opts.MaxBatchSize,
		queueDeadline: opts.QueueDeadline,
		sleep:         sleepContext,
		afterFunc:     afterFuncTimer,
		transports:    make(map[string]chat.Transport),
		deadlines:     make(map[string]func() bool),
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

// DefaultBatchServiceOptions returns the processing defaults.
func DefaultBatchServiceOptions() BatchServiceOptions {
	return BatchServiceOptions{
		ItemDelay:     defaultItemDelay,
		MaxBatchSize:  defaultMaxBatchSize,
		QueueDeadline: defaultQueueDeadline,
	}
}

func (s *BatchService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// SetPublisher switches multi-link messages to the queue submission path.
func (s *BatchService) SetPublisher(publisher queue.Publisher) {
	if s == nil {
		return
	}
	s.publisher = publisher
}

func (s *BatchService) MaxBatchSize() int {
	return s.maxBatchSize
}

func (s *BatchService) CreateBatch(urls []string, chatID string, userID string) (*domain.Batch, error) {
	if len(urls) > s.maxBatchSize {
		return nil, fmt.Errorf("%w: batch has %d urls, limit is %d", domain.ErrValidation, len(urls), s.maxBatchSize)
	}
	return s.store.Create(urls, chatID, userID)
}

func (s *BatchService) Snapshot(batchID string) (domain.BatchSnapshot, error) {
	batch, err := s.store.Get(batchID)
	if err != nil {
		return domain.BatchSnapshot{}, err
	}
	return batch.Snapshot(), nil
}

// SubmitBatch sends the initial status message and processes the batch in the
// background. An unknown batch is a no-op. If the initial status cannot be
// sent, the batch is removed and the error is returned.
func (s *BatchService) SubmitBatch(ctx context.Context, batchID string, transport chat.Transport) error {
	if transport == nil {
		return fmt.Errorf("%w: chat transport is required", domain.ErrValidation)
	}

	batch, err := s.store.Get(batchID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Info("batch not found on submit, skipping", zap.String("batchId", batchID))
			return nil
		}
		return err
	}

	if err := batch.Claim(domain.SubmitModeOrchestrated); err != nil {
		return err
	}

	ctx = observability.WithChatID(observability.WithBatchID(ctx, batch.ID), batch.Destination.ChatID)
	if err := s.sendInitialStatus(ctx, batch, transport); err != nil {
		s.store.Remove(batch.ID)
		return err
	}

	runCtx, cancel := s.detach(ctx)
	mode := domain.SubmitModeOrchestrated.String()
	s.metrics.IncBatchesInFlight(mode)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		defer s.metrics.DecBatchesInFlight(mode)

		s.process(runCtx, batch, transport)
	}()

	return nil
}

// EnqueueBatch sends the initial status message and publishes one queue
// message per item. Items are then settled through UpdateItemStatus.
func (s *BatchService) EnqueueBatch(ctx context.Context, batchID string, transport chat.Transport, publisher queue.Publisher) error {
	if transport == nil {
		return fmt.Errorf("%w: chat transport is required", domain.ErrValidation)
	}
	if publisher == nil {
		return fmt.Errorf("%w: queue publisher is required", domain.ErrValidation)
	}

	batch, err := s.store.Get(batchID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Info("batch not found on enqueue, skipping", zap.String("batchId", batchID))
			return nil
		}
		return err
	}

	if err := batch.Claim(domain.SubmitModeQueued); err != nil {
		return err
	}

	ctx = observability.WithChatID(observability.WithBatchID(ctx, batch.ID), batch.Destination.ChatID)
	if err := s.sendInitialStatus(ctx, batch, transport); err != nil {
		s.store.Remove(batch.ID)
		return err
	}

	s.trackQueued(batch.ID, transport)
	s.metrics.IncBatchesInFlight(domain.SubmitModeQueued.String())

	requestID, _ := observability.RequestIDFromContext(ctx)
	snapshot := batch.Snapshot()
	logger := observability.WithContextLogger(s.logger, ctx)

	for _, item := range snapshot.Items {
		msg := queue.LinkMessage{
			BatchID:   batch.ID,
			Index:     item.Index,
			URL:       item.URL,
			UserID:    snapshot.Destination.UserID,
			ChatID:    snapshot.Destination.ChatID,
			RequestID: requestID,
		}
		if err := publisher.Publish(ctx, queue.ScrapeQueue, msg); err != nil {
			logger.Error("failed to publish batch item",
				zap.Int("index", item.Index),
				zap.Error(err),
			)
			if resolveErr := batch.Resolve(item.Index, nil, fmt.Sprintf("enqueue failed: %v", err), false); resolveErr != nil {
				logger.Warn("failed to mark unpublished item as failed", zap.Error(resolveErr))
			}
			s.metrics.IncItemFailed("enqueue_error")
		}
	}

	if !batch.Done() && batch.Stats().Failed > 0 {
		s.refreshStatus(ctx, batch, transport)
	}
	s.finishIfDone(ctx, batch, transport)

	return nil
}

// UpdateItemStatus settles one item of a queued batch. An unknown batch is a
// no-op; a terminal item is rejected with domain.ErrInvalidTransition.
func (s *BatchService) UpdateItemStatus(
	ctx context.Context,
	batchID string,
	index int,
	result *domain.ScrapeResult,
	errMsg string,
	success bool,
) error {
	batch, err := s.store.Get(batchID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Info("batch not found on item update, skipping",
				zap.String("batchId", batchID),
				zap.Int("index", index),
			)
			return nil
		}
		return err
	}

	if success && result == nil {
		return fmt.Errorf("%w: a successful item report requires a scrape result", domain.ErrValidation)
	}

	if batch.Mode() == domain.SubmitModeNone {
		// Unsubmitted batches may be driven by an external worker.
		if batch.Claim(domain.SubmitModeQueued) == nil {
			s.trackQueued(batch.ID, nil)
			s.metrics.IncBatchesInFlight(domain.SubmitModeQueued.String())
		}
	}
	if mode := batch.Mode(); mode != domain.SubmitModeQueued {
		return fmt.Errorf("%w: batch %s is driven in %s mode", domain.ErrConflict, batch.ID, mode)
	}

	item, err := batch.Item(index)
	if err != nil {
		return err
	}
	if err := batch.Resolve(index, result, errMsg, success); err != nil {
		return err
	}

	if success {
		s.metrics.IncItemCompleted(contentTypeOf(item.URL, result).String())
	} else {
		s.metrics.IncItemFailed("reported")
	}

	ctx = observability.WithChatID(observability.WithBatchID(ctx, batch.ID), batch.Destination.ChatID)
	transport := s.transportFor(batch.ID)
	s.refreshStatus(ctx, batch, transport)
	s.finishIfDone(ctx, batch, transport)

	return nil
}

// ReportItem settles a queued item and, on success, delivers its result.
func (s *BatchService) ReportItem(
	ctx context.Context,
	batchID string,
	index int,
	result *domain.ScrapeResult,
	errMsg string,
	success bool,
) error {
	if err := s.UpdateItemStatus(ctx, batchID, index, result, errMsg, success); err != nil {
		return err
	}
	if !success {
		return nil
	}

	batch, err := s.store.Get(batchID)
	if err != nil {
		// Evicted between update and delivery.
		return nil
	}
	item, err := batch.Item(index)
	if err != nil {
		return nil
	}

	s.deliver(observability.WithBatchID(ctx, batchID), batch.Destination, item.URL, result)
	return nil
}

// HandleText extracts links from a chat message. A single link is scraped and
// delivered directly; several links become a batch.
func (s *BatchService) HandleText(ctx context.Context, text string, dest domain.Destination, transport chat.Transport) (TextOutcome, error) {
	if err := dest.Validate(); err != nil {
		return TextOutcome{}, err
	}
	if transport == nil {
		return TextOutcome{}, fmt.Errorf("%w: chat transport is required", domain.ErrValidation)
	}

	urls := extract.ExtractURLs(text)
	switch {
	case len(urls) == 0:
		return TextOutcome{}, fmt.Errorf("%w: message contains no links", domain.ErrValidation)
	case len(urls) > s.maxBatchSize:
		return TextOutcome{}, fmt.Errorf("%w: message has %d links, limit is %d", domain.ErrValidation, len(urls), s.maxBatchSize)
	case len(urls) == 1:
		runCtx, cancel := s.detach(ctx)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer cancel()

			if err := s.ProcessSingle(runCtx, urls[0], dest); err != nil {
				observability.WithContextLogger(s.logger, runCtx).Warn("single link failed",
					zap.String("url", urls[0]),
					zap.Error(err),
				)
			}
		}()
		return TextOutcome{Total: 1}, nil
	}

	batch, err := s.CreateBatch(urls, dest.ChatID, dest.UserID)
	if err != nil {
		return TextOutcome{}, err
	}

	if s.publisher != nil {
		if err := s.EnqueueBatch(ctx, batch.ID, transport, s.publisher); err != nil {
			return TextOutcome{}, err
		}
		return TextOutcome{BatchID: batch.ID, Total: len(urls), Mode: domain.SubmitModeQueued}, nil
	}

	if err := s.SubmitBatch(ctx, batch.ID, transport); err != nil {
		return TextOutcome{}, err
	}
	return TextOutcome{BatchID: batch.ID, Total: len(urls), Mode: domain.SubmitModeOrchestrated}, nil
}

// ProcessSingle scrapes one link and delivers it without a status message.
func (s *BatchService) ProcessSingle(ctx context.Context, rawURL string, dest domain.Destination) error {
	result, err := s.scraper.Scrape(ctx, rawURL, dest.UserID)
	if err != nil {
		s.metrics.IncItemFailed(failureReason(err))
		return err
	}
	s.metrics.IncItemCompleted(contentTypeOf(rawURL, result).String())

	return s.router.Route(ctx, dest, rawURL, result)
}

// Wait blocks until every background batch has finished.
func (s *BatchService) Wait() {
	s.wg.Wait()
}

// Close cancels in-flight processing and waits for it to stop.
func (s *BatchService) Close() {
	if s == nil {
		return
	}
	s.cancel()
	s.wg.Wait()

	s.queuedMu.Lock()
	for id, stop := range s.deadlines {
		stop()
		delete(s.deadlines, id)
	}
	s.queuedMu.Unlock()
}

func (s *BatchService) process(ctx context.Context, batch *domain.Batch, transport chat.Transport) {
	logger := observability.WithContextLogger(s.logger, ctx)
	logger.Info("batch processing started", zap.Int("items", batch.Len()))

	total := batch.Len()
	for index := 0; index < total; index++ {
		if ctx.Err() != nil {
			s.abandon(ctx, batch, index, total)
			break
		}

		s.processItem(ctx, batch, transport, index)

		if index < total-1 && s.itemDelay > 0 {
			if err := s.sleep(ctx, s.itemDelay); err != nil {
				s.abandon(ctx, batch, index+1, total)
				break
			}
		}
	}

	s.finishIfDone(ctx, batch, transport)
	logger.Info("batch processing finished", zap.Any("stats", batch.Stats()))
}

func (s *BatchService) processItem(ctx context.Context, batch *domain.Batch, transport chat.Transport, index int) {
	logger := observability.WithContextLogger(s.logger, ctx).With(zap.Int("index", index))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("item processing panicked", zap.Any("panic", r), zap.Stack("stack"))
			if err := batch.Resolve(index, nil, fmt.Sprintf("internal error: %v", r), false); err == nil {
				s.metrics.IncItemFailed("panic")
				s.refreshStatus(ctx, batch, transport)
			}
		}
	}()

	item, err := batch.Item(index)
	if err != nil {
		logger.Error("batch item lookup failed", zap.Error(err))
		return
	}
	if err := batch.Begin(index); err != nil {
		logger.Warn("batch item skipped", zap.Error(err))
		return
	}
	s.refreshStatus(ctx, batch, transport)

	result, scrapeErr := s.scraper.Scrape(ctx, item.URL, batch.Destination.UserID)
	if scrapeErr == nil && result == nil {
		scrapeErr = &scraper.ScrapeError{URL: item.URL, Message: "scraper returned no result"}
	}
	if scrapeErr != nil {
		if err := batch.Fail(index, scrapeErr.Error()); err != nil {
			logger.Error("failed to record item failure", zap.Error(err))
		}
		s.metrics.IncItemFailed(failureReason(scrapeErr))
		logger.Info("batch item failed", zap.String("url", item.URL), zap.Error(scrapeErr))
		s.refreshStatus(ctx, batch, transport)
		return
	}

	if err := batch.Complete(index, result); err != nil {
		logger.Error("failed to record item completion", zap.Error(err))
		return
	}
	s.metrics.IncItemCompleted(contentTypeOf(item.URL, result).String())
	s.refreshStatus(ctx, batch, transport)

	s.deliver(ctx, batch.Destination, item.URL, result)
}

// abandon fails every item from index on when processing is canceled.
func (s *BatchService) abandon(ctx context.Context, batch *domain.Batch, from int, total int) {
	for index := from; index < total; index++ {
		if err := batch.Resolve(index, nil, "processing canceled", false); err == nil {
			s.metrics.IncItemFailed("canceled")
		}
	}
	observability.WithContextLogger(s.logger, ctx).Warn("batch processing canceled",
		zap.Int("abandoned", total-from),
	)
}

func (s *BatchService) finishIfDone(ctx context.Context, batch *domain.Batch, transport chat.Transport) {
	if !batch.Finish() {
		return
	}

	s.refreshStatus(ctx, batch, transport)
	if batch.Mode() == domain.SubmitModeQueued {
		s.untrackQueued(batch.ID)
		s.metrics.DecBatchesInFlight(domain.SubmitModeQueued.String())
	}
	s.janitor.Schedule(batch.ID)
}

// expireQueued fails the items of a queued batch that were never reported,
// for example because their messages expired or were dead-lettered.
func (s *BatchService) expireQueued(batchID string) {
	batch, err := s.store.Get(batchID)
	if err != nil {
		s.untrackQueued(batchID)
		return
	}

	ctx, cancel := s.detach(context.Background())
	defer cancel()
	ctx = observability.WithChatID(observability.WithBatchID(ctx, batch.ID), batch.Destination.ChatID)

	expired := 0
	for index := 0; index < batch.Len(); index++ {
		if err := batch.Resolve(index, nil, expiredItemMessage, false); err == nil {
			expired++
			s.metrics.IncItemFailed("expired")
		}
	}
	if expired > 0 {
		observability.WithContextLogger(s.logger, ctx).Warn("queued batch deadline exceeded",
			zap.Int("expired", expired),
			zap.Duration("deadline", s.queueDeadline),
		)
	}

	s.finishIfDone(ctx, batch, s.transportFor(batch.ID))
}

func (s *BatchService) sendInitialStatus(ctx context.Context, batch *domain.Batch, transport chat.Transport) error {
	ref, err := transport.SendMessage(ctx, batch.Destination.ChatID, render.Render(batch.Snapshot()))
	if err != nil {
		return fmt.Errorf("send initial status: %w", err)
	}
	batch.SetStatusMessage(ref)
	return nil
}

// refreshStatus edits the status message in place. Failures are logged only.
func (s *BatchService) refreshStatus(ctx context.Context, batch *domain.Batch, transport chat.Transport) {
	if transport == nil {
		return
	}
	ref, ok := batch.StatusMessage()
	if !ok {
		return
	}

	if err := transport.EditMessage(ctx, ref, render.Render(batch.Snapshot())); err != nil {
		observability.WithContextLogger(s.logger, ctx).Warn("failed to update status message",
			zap.Bool("transient", chat.IsTransient(err)),
			zap.Error(err),
		)
	}
}

// deliver routes a completed item. Failures are logged only.
func (s *BatchService) deliver(ctx context.Context, dest domain.Destination, rawURL string, result *domain.ScrapeResult) {
	if err := s.router.Route(ctx, dest, rawURL, result); err != nil {
		observability.WithContextLogger(s.logger, ctx).Warn("delivery failed",
			zap.String("url", rawURL),
			zap.Error(err),
		)
	}
}

// detach keeps the caller's values but ties cancellation to the service.
func (s *BatchService) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(s.ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

// trackQueued records the transport of a queued batch and arms its deadline.
func (s *BatchService) trackQueued(batchID string, transport chat.Transport) {
	s.queuedMu.Lock()
	defer s.queuedMu.Unlock()

	if transport != nil {
		s.transports[batchID] = transport
	}
	if _, ok := s.deadlines[batchID]; !ok {
		s.deadlines[batchID] = s.afterFunc(s.queueDeadline, func() { s.expireQueued(batchID) })
	}
}

func (s *BatchService) transportFor(batchID string) chat.Transport {
	s.queuedMu.Lock()
	defer s.queuedMu.Unlock()
	return s.transports[batchID]
}

func (s *BatchService) untrackQueued(batchID string) {
	s.queuedMu.Lock()
	stop := s.deadlines[batchID]
	delete(s.deadlines, batchID)
	delete(s.transports, batchID)
	s.queuedMu.Unlock()

	if stop != nil {
		stop()
	}
}

func afterFuncTimer(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

func contentTypeOf(rawURL string, result *domain.ScrapeResult) domain.ContentType {
	hint := ""
	if result != nil {
		hint = result.Type
	}
	return classifier.Classify(rawURL, hint)
}

func failureReason(err error) string {
	var scrapeErr *scraper.ScrapeError
	if errors.As(err, &scrapeErr) {
		return scrapeErr.Reason()
	}
	return "unknown"
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
