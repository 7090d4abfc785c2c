package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quartostays/booking-engine/internal/domain"
	"github.com/quartostays/booking-engine/internal/outbox"
)

func appendEvent(ctx context.Context, d db, ev domain.DomainEvent) error {
	const stmt = `
INSERT INTO outbox_events (event_type, hotel_id, payload, created_at)
VALUES ($1, $2, $3, $4)`

	if _, err := d.exec(ctx, stmt, ev.Type, ev.HotelID, ev.Payload, ev.OccurredAt); err != nil {
		return fmt.Errorf("append outbox event: %w", err)
	}
	return nil
}

// OutboxRepository serves the dispatcher loop. Pending rows are locked with
// SKIP LOCKED so several dispatchers can run without double-publishing.
type OutboxRepository struct {
	db
}

func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{db: db{pool: pool}}
}

func (r *OutboxRepository) ListPending(ctx context.Context, limit int) ([]outbox.Row, error) {
	const query = `
SELECT id, event_type, hotel_id, payload, created_at, attempts
FROM outbox_events
WHERE published_at IS NULL
ORDER BY id
LIMIT $1
FOR UPDATE SKIP LOCKED`

	rows, err := r.query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending outbox events: %w", err)
	}
	defer rows.Close()

	var pending []outbox.Row
	for rows.Next() {
		var (
			row     outbox.Row
			payload json.RawMessage
		)
		if err := rows.Scan(&row.ID, &row.EventType, &row.HotelID, &payload, &row.CreatedAt, &row.Attempts); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		row.Payload = payload
		pending = append(pending, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox events: %w", err)
	}
	return pending, nil
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, id int64, at time.Time) error {
	const stmt = `UPDATE outbox_events SET published_at = $2 WHERE id = $1`

	if _, err := r.exec(ctx, stmt, id, at); err != nil {
		return fmt.Errorf("mark outbox event published: %w", err)
	}
	return nil
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, id int64, reason string) error {
	const stmt = `UPDATE outbox_events SET attempts = attempts + 1, last_error = $2 WHERE id = $1`

	if _, err := r.exec(ctx, stmt, id, reason); err != nil {
		return fmt.Errorf("mark outbox event failed: %w", err)
	}
	return nil
}
