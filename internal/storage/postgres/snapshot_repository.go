package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quartostays/booking-engine/internal/domain"
)

// SnapshotRepository stores the denormalized hotel snapshots and answers the
// ledger aggregation the projector recomputes pricing from.
type SnapshotRepository struct {
	db
}

func NewSnapshotRepository(pool *pgxpool.Pool) *SnapshotRepository {
	return &SnapshotRepository{db: db{pool: pool}}
}

// Get returns the snapshot row, or an empty snapshot for the hotel when none
// exists yet. Events arrive in no guaranteed order, so a missing row is a
// normal state, not an error.
func (r *SnapshotRepository) Get(ctx context.Context, hotelID string) (domain.HotelSnapshot, error) {
	const query = `
SELECT hotel_id, name, city, amenities, min_price_cents, max_price_cents, currency, available, rating, review_count, view_count, updated_at
FROM hotel_snapshots
WHERE hotel_id = $1`

	var s domain.HotelSnapshot
	err := r.queryRow(ctx, query, hotelID).Scan(
		&s.HotelID, &s.Name, &s.City, &s.Amenities, &s.MinPriceCents, &s.MaxPriceCents,
		&s.Currency, &s.Available, &s.Rating, &s.ReviewCount, &s.ViewCount, &s.UpdatedAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.HotelSnapshot{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.HotelSnapshot{HotelID: hotelID}, nil
		}
		return domain.HotelSnapshot{}, fmt.Errorf("get snapshot: %w", err)
	}
	return s, nil
}

func (r *SnapshotRepository) UpsertBase(ctx context.Context, hotelID, name, city string, at time.Time) error {
	const stmt = `
INSERT INTO hotel_snapshots (hotel_id, name, city, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (hotel_id) DO UPDATE SET name = $2, city = $3, updated_at = $4`

	if _, err := r.exec(ctx, stmt, hotelID, name, city, at); err != nil {
		return fmt.Errorf("upsert snapshot base: %w", err)
	}
	return nil
}

func (r *SnapshotRepository) UpdatePricing(ctx context.Context, hotelID string, sum domain.PriceSummary, at time.Time) error {
	const stmt = `
INSERT INTO hotel_snapshots (hotel_id, min_price_cents, max_price_cents, currency, available, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (hotel_id) DO UPDATE SET
	min_price_cents = $2, max_price_cents = $3, currency = $4, available = $5, updated_at = $6`

	if _, err := r.exec(ctx, stmt, hotelID, sum.MinPriceCents, sum.MaxPriceCents, sum.Currency, sum.Available, at); err != nil {
		return fmt.Errorf("update snapshot pricing: %w", err)
	}
	return nil
}

func (r *SnapshotRepository) UpdateRating(ctx context.Context, hotelID string, rating float32, reviewCount int, at time.Time) error {
	const stmt = `
INSERT INTO hotel_snapshots (hotel_id, rating, review_count, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (hotel_id) DO UPDATE SET rating = $2, review_count = $3, updated_at = $4`

	if _, err := r.exec(ctx, stmt, hotelID, rating, reviewCount, at); err != nil {
		return fmt.Errorf("update snapshot rating: %w", err)
	}
	return nil
}

func (r *SnapshotRepository) UpdateAmenities(ctx context.Context, hotelID string, amenities []string, at time.Time) error {
	const stmt = `
INSERT INTO hotel_snapshots (hotel_id, amenities, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (hotel_id) DO UPDATE SET amenities = $2, updated_at = $3`

	if _, err := r.exec(ctx, stmt, hotelID, amenities, at); err != nil {
		return fmt.Errorf("update snapshot amenities: %w", err)
	}
	return nil
}

func (r *SnapshotRepository) IncrementViews(ctx context.Context, hotelID string, at time.Time) error {
	const stmt = `
INSERT INTO hotel_snapshots (hotel_id, view_count, updated_at)
VALUES ($1, 1, $2)
ON CONFLICT (hotel_id) DO UPDATE SET
	view_count = hotel_snapshots.view_count + 1, updated_at = $2`

	if _, err := r.exec(ctx, stmt, hotelID, at); err != nil {
		return fmt.Errorf("increment snapshot views: %w", err)
	}
	return nil
}

// PriceSummary aggregates current ledger rows from the given date forward.
// Recomputing from the ledger, not from event payloads, keeps the projection
// correct under duplicate and out-of-order delivery.
func (r *SnapshotRepository) PriceSummary(ctx context.Context, hotelID string, from time.Time) (domain.PriceSummary, error) {
	const query = `
SELECT
	COALESCE(MIN(price_per_night_cents), 0),
	COALESCE(MAX(price_per_night_cents), 0),
	COALESCE(MIN(currency), ''),
	COALESCE(BOOL_OR(status = 'open' AND booked_rooms + held_rooms < total_rooms), FALSE)
FROM room_inventory
WHERE hotel_id = $1 AND date >= $2`

	var sum domain.PriceSummary
	err := r.queryRow(ctx, query, hotelID, from).Scan(
		&sum.MinPriceCents, &sum.MaxPriceCents, &sum.Currency, &sum.Available,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.PriceSummary{}, domain.ErrInvalidID
		}
		return domain.PriceSummary{}, fmt.Errorf("price summary: %w", err)
	}
	return sum, nil
}
