package delivery

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/linkbot/internal/chat"
	"github.com/kursadbilgin/linkbot/internal/classifier"
	"github.com/kursadbilgin/linkbot/internal/domain"
	"github.com/kursadbilgin/linkbot/internal/observability"
	"go.uber.org/zap"
)

// Archiver records delivered links. Archive failures never change the
// delivery outcome.
type Archiver interface {
	Archive(ctx context.Context, dest domain.Destination, contentType domain.ContentType, result *domain.ScrapeResult) error
}

// Deliverers groups one deliverer per content type.
type Deliverers struct {
	Instagram Deliverer
	Pinterest Deliverer
	YouTube   Deliverer
	Generic   Deliverer
}

// Router picks a deliverer from the link's content type. A failed
// specialized delivery gets exactly one generic fallback attempt.
type Router struct {
	deliverers Deliverers
	archiver   Archiver
	logger     *zap.Logger
	metrics    *observability.Metrics
}

func NewRouter(deliverers Deliverers, archiver Archiver, logger *zap.Logger) (*Router, error) {
	if deliverers.Instagram == nil || deliverers.Pinterest == nil || deliverers.YouTube == nil || deliverers.Generic == nil {
		return nil, fmt.Errorf("a deliverer is required for every content type")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Router{
		deliverers: deliverers,
		archiver:   archiver,
		logger:     logger,
	}, nil
}

// NewTransportRouter wires the default deliverers on top of a chat transport.
func NewTransportRouter(transport chat.Transport, archiver Archiver, logger *zap.Logger) (*Router, error) {
	if transport == nil {
		return nil, fmt.Errorf("chat transport is required")
	}

	return NewRouter(Deliverers{
		Instagram: NewInstagramDeliverer(transport),
		Pinterest: NewPinterestDeliverer(transport),
		YouTube:   NewYouTubeDeliverer(transport),
		Generic:   NewGenericDeliverer(transport),
	}, archiver, logger)
}

func (r *Router) SetMetrics(metrics *observability.Metrics) {
	if r == nil {
		return
	}
	r.metrics = metrics
}

// Route delivers result to dest. It returns a *DeliveryError when delivery
// could not be completed.
func (r *Router) Route(ctx context.Context, dest domain.Destination, rawURL string, result *domain.ScrapeResult) error {
	payload := domain.ScrapeResult{URL: rawURL}
	if result != nil {
		payload = *result
	}
	if payload.URL == "" {
		payload.URL = rawURL
	}

	contentType := classifier.Classify(rawURL, payload.Type)
	logger := observability.WithContextLogger(r.logger, ctx).With(
		zap.String("url", rawURL),
		zap.String("contentType", contentType.String()),
	)

	err := r.delivererFor(contentType).Deliver(ctx, dest, &payload)
	if err == nil {
		r.metrics.IncDelivery(contentType.String(), "success")
		r.archive(ctx, logger, dest, contentType, &payload)
		return nil
	}

	if contentType == domain.ContentTypeGeneric {
		r.metrics.IncDelivery(contentType.String(), "failed")
		return &DeliveryError{Type: contentType, URL: rawURL, Err: err}
	}

	logger.Warn("delivery failed, falling back to generic", zap.Error(err))
	r.metrics.IncDeliveryFallback(contentType.String())

	fallbackErr := r.deliverers.Generic.Deliver(ctx, dest, &payload)
	if fallbackErr == nil {
		r.metrics.IncDelivery(contentType.String(), "fallback_success")
		r.archive(ctx, logger, dest, contentType, &payload)
		return nil
	}

	r.metrics.IncDelivery(contentType.String(), "failed")
	return &DeliveryError{Type: contentType, URL: rawURL, Err: err, FallbackErr: fallbackErr}
}

func (r *Router) delivererFor(contentType domain.ContentType) Deliverer {
	switch contentType {
	case domain.ContentTypeInstagram:
		return r.deliverers.Instagram
	case domain.ContentTypePinterest:
		return r.deliverers.Pinterest
	case domain.ContentTypeYouTube:
		return r.deliverers.YouTube
	case domain.ContentTypeGeneric:
		return r.deliverers.Generic
	}
	return r.deliverers.Generic
}

func (r *Router) archive(ctx context.Context, logger *zap.Logger, dest domain.Destination, contentType domain.ContentType, result *domain.ScrapeResult) {
	if r.archiver == nil {
		return
	}
	if err := r.archiver.Archive(ctx, dest, contentType, result); err != nil {
		logger.Warn("failed to archive link", zap.Error(err))
	}
}
