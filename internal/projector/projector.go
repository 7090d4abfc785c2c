// Package projector keeps the denormalized search snapshots eventually
// consistent with the ledger. Each event type triggers a targeted partial
// recomputation from current state; only snapshot.full_refresh rebuilds the
// whole document.
package projector

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/quartostays/booking-engine/internal/clock"
	"github.com/quartostays/booking-engine/internal/domain"
	"github.com/quartostays/booking-engine/internal/metrics"
	"go.uber.org/zap"
)

type SnapshotStore interface {
	Get(ctx context.Context, hotelID string) (domain.HotelSnapshot, error)
	UpsertBase(ctx context.Context, hotelID, name, city string, at time.Time) error
	UpdatePricing(ctx context.Context, hotelID string, sum domain.PriceSummary, at time.Time) error
	UpdateRating(ctx context.Context, hotelID string, rating float32, reviewCount int, at time.Time) error
	UpdateAmenities(ctx context.Context, hotelID string, amenities []string, at time.Time) error
	IncrementViews(ctx context.Context, hotelID string, at time.Time) error
	PriceSummary(ctx context.Context, hotelID string, from time.Time) (domain.PriceSummary, error)
}

type SearchIndex interface {
	Upsert(ctx context.Context, documentID string, fields map[string]any) error
}

type Projector struct {
	store  SnapshotStore
	index  SearchIndex
	clock  clock.Clock
	logger *zap.Logger

	maxSyncAttempts int
	syncBackoffBase time.Duration
}

func New(store SnapshotStore, index SearchIndex, clk clock.Clock, logger *zap.Logger, opts ...Option) *Projector {
	p := &Projector{
		store:           store,
		index:           index,
		clock:           clk,
		logger:          logger,
		maxSyncAttempts: 5,
		syncBackoffBase: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type Option func(*Projector)

// WithSyncRetry overrides the search sync retry budget. This budget is
// separate from the consumer's redelivery budget: it runs synchronously
// inside one handler invocation.
func WithSyncRetry(attempts int, base time.Duration) Option {
	return func(p *Projector) {
		if attempts > 0 {
			p.maxSyncAttempts = attempts
		}
		if base > 0 {
			p.syncBackoffBase = base
		}
	}
}

func (p *Projector) Handle(ctx context.Context, env domain.EventEnvelope) error {
	now := p.clock.Now()

	switch env.EventType {
	case domain.EventHotelCreated, domain.EventHotelUpdated:
		var payload domain.HotelUpsertPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return err
		}
		if err := p.store.UpsertBase(ctx, env.HotelID, payload.Name, payload.City, now); err != nil {
			return err
		}

	case domain.EventRoomInventoryChanged, domain.EventBookingCompleted:
		if err := p.recomputePricing(ctx, env.HotelID, now); err != nil {
			return err
		}

	case domain.EventReviewCreated:
		var payload domain.ReviewCreatedPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return err
		}
		if err := p.store.UpdateRating(ctx, env.HotelID, payload.Rating, payload.ReviewCount, now); err != nil {
			return err
		}

	case domain.EventAmenityChanged:
		var payload domain.AmenityChangedPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return err
		}
		if err := p.store.UpdateAmenities(ctx, env.HotelID, payload.Amenities, now); err != nil {
			return err
		}

	case domain.EventHotelViewed:
		if err := p.store.IncrementViews(ctx, env.HotelID, now); err != nil {
			return err
		}

	case domain.EventSnapshotFullRefresh:
		if err := p.recomputePricing(ctx, env.HotelID, now); err != nil {
			return err
		}

	default:
		p.logger.Warn("ignoring unknown event type",
			zap.String("event_type", env.EventType),
			zap.Int64("event_id", env.EventID))
		return nil
	}

	return p.syncIndex(ctx, env.HotelID)
}

func (p *Projector) recomputePricing(ctx context.Context, hotelID string, now time.Time) error {
	sum, err := p.store.PriceSummary(ctx, hotelID, domain.NormalizeDate(now))
	if err != nil {
		return err
	}
	return p.store.UpdatePricing(ctx, hotelID, sum, now)
}

// syncIndex pushes the snapshot document to the search index with bounded
// exponential backoff. Exhausting the budget logs the hotel id for manual
// backfill instead of failing the consumer.
func (p *Projector) syncIndex(ctx context.Context, hotelID string) error {
	snap, err := p.store.Get(ctx, hotelID)
	if err != nil {
		return err
	}
	fields := documentFields(snap)

	var lastErr error
	for attempt := 1; attempt <= p.maxSyncAttempts; attempt++ {
		lastErr = p.index.Upsert(ctx, hotelID, fields)
		if lastErr == nil {
			return nil
		}
		if attempt == p.maxSyncAttempts {
			break
		}
		if err := sleepCtx(ctx, p.syncBackoffBase<<(attempt-1)); err != nil {
			return err
		}
	}

	metrics.SearchSyncFailuresTotal.Inc()
	p.logger.Error("search index sync exhausted retries, manual backfill required",
		zap.String("hotel_id", hotelID),
		zap.Error(lastErr))
	return nil
}

func documentFields(s domain.HotelSnapshot) map[string]any {
	return map[string]any{
		"name":            s.Name,
		"city":            s.City,
		"amenities":       strings.Join(s.Amenities, ","),
		"min_price_cents": s.MinPriceCents,
		"max_price_cents": s.MaxPriceCents,
		"currency":        s.Currency,
		"available":       s.Available,
		"rating":          s.Rating,
		"review_count":    s.ReviewCount,
		"view_count":      s.ViewCount,
		"updated_at":      s.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
