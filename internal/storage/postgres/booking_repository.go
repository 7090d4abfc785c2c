package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quartostays/booking-engine/internal/domain"
)

// BookingRepository backs the webhook gate and booking finalizer.
type BookingRepository struct {
	db
}

func NewBookingRepository(pool *pgxpool.Pool) *BookingRepository {
	return &BookingRepository{db: db{pool: pool}}
}

// ClaimEvent inserts the webhook event record. The primary key on event_id
// is the idempotency mechanism: a concurrent or repeated delivery fails the
// insert and is reported as ErrDuplicateWebhookEvent.
func (r *BookingRepository) ClaimEvent(ctx context.Context, rec domain.WebhookEventRecord) error {
	const stmt = `
INSERT INTO webhook_events (event_id, event_type, payload, processed_at)
VALUES ($1, $2, $3, $4)`

	_, err := r.exec(ctx, stmt, rec.EventID, rec.Type, rec.Payload, rec.ProcessedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateWebhookEvent
		}
		return fmt.Errorf("claim webhook event: %w", err)
	}
	return nil
}

func (r *BookingRepository) CreateBooking(ctx context.Context, b domain.Booking) error {
	const stmt = `
INSERT INTO bookings (id, hold_id, hotel_id, user_id, event_id, total_cents, currency, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.exec(ctx, stmt,
		b.ID, b.HoldID, b.HotelID, b.UserID, b.EventID,
		b.TotalCents, b.Currency, b.Status, b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create booking: %w", err)
	}
	return nil
}

func (r *BookingRepository) GetBookingForUpdate(ctx context.Context, id string) (domain.Booking, error) {
	const query = `
SELECT id, hold_id, hotel_id, user_id, event_id, total_cents, currency, status, created_at
FROM bookings
WHERE id = $1
FOR UPDATE`

	var (
		b      domain.Booking
		status string
	)
	err := r.queryRow(ctx, query, id).Scan(
		&b.ID, &b.HoldID, &b.HotelID, &b.UserID, &b.EventID,
		&b.TotalCents, &b.Currency, &status, &b.CreatedAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Booking{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Booking{}, domain.ErrBookingNotFound
		}
		return domain.Booking{}, fmt.Errorf("get booking: %w", err)
	}
	b.Status = domain.BookingStatus(status)
	return b, nil
}

func (r *BookingRepository) UpdateBookingStatus(ctx context.Context, id string, status domain.BookingStatus) error {
	const stmt = `UPDATE bookings SET status = $2 WHERE id = $1`

	tag, err := r.exec(ctx, stmt, id, status)
	if err != nil {
		return fmt.Errorf("update booking status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBookingNotFound
	}
	return nil
}

func (r *BookingRepository) GetHold(ctx context.Context, id string) (domain.Hold, error) {
	return getHold(ctx, r.db, id, false)
}

func (r *BookingRepository) GetHoldForUpdate(ctx context.Context, id string) (domain.Hold, error) {
	return getHold(ctx, r.db, id, true)
}

func (r *BookingRepository) TerminateHold(ctx context.Context, id string, to domain.HoldStatus, at time.Time) (bool, error) {
	return terminateHold(ctx, r.db, id, to, at)
}

func (r *BookingRepository) CommitStay(ctx context.Context, rooms []domain.RoomQuantity, nights []time.Time) error {
	return commitStay(ctx, r.db, rooms, nights)
}

func (r *BookingRepository) ReleaseStay(ctx context.Context, rooms []domain.RoomQuantity, nights []time.Time) error {
	return releaseStay(ctx, r.db, rooms, nights)
}

func (r *BookingRepository) UncommitStay(ctx context.Context, rooms []domain.RoomQuantity, nights []time.Time) error {
	return uncommitStay(ctx, r.db, rooms, nights)
}

func (r *BookingRepository) AppendEvent(ctx context.Context, ev domain.DomainEvent) error {
	return appendEvent(ctx, r.db, ev)
}
