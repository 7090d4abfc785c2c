package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quartostays/booking-engine/internal/domain"
)

type HoldRepository struct {
	db
}

func NewHoldRepository(pool *pgxpool.Pool) *HoldRepository {
	return &HoldRepository{db: db{pool: pool}}
}

func (r *HoldRepository) ClaimStay(ctx context.Context, hotelID string, rooms []domain.RoomQuantity, nights []time.Time, currency string) (int64, error) {
	return claimStay(ctx, r.db, hotelID, rooms, nights, currency)
}

func (r *HoldRepository) ReleaseStay(ctx context.Context, rooms []domain.RoomQuantity, nights []time.Time) error {
	return releaseStay(ctx, r.db, rooms, nights)
}

func (r *HoldRepository) CreateHold(ctx context.Context, hold domain.Hold) error {
	const stmt = `
INSERT INTO holds (id, user_id, hotel_id, check_in, check_out, guests, total_cents, currency, status, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.exec(ctx, stmt,
		hold.ID,
		hold.UserID,
		hold.HotelID,
		hold.CheckIn,
		hold.CheckOut,
		hold.Guests,
		hold.TotalCents,
		hold.Currency,
		hold.Status,
		hold.ExpiresAt,
		hold.CreatedAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create hold: %w", err)
	}

	const roomStmt = `INSERT INTO hold_rooms (hold_id, room_id, quantity) VALUES ($1, $2, $3)`
	for _, room := range hold.Rooms {
		if _, err := r.exec(ctx, roomStmt, hold.ID, room.RoomID, room.Quantity); err != nil {
			return fmt.Errorf("create hold room: %w", err)
		}
	}
	return nil
}

func (r *HoldRepository) GetHold(ctx context.Context, id string) (domain.Hold, error) {
	return getHold(ctx, r.db, id, false)
}

func (r *HoldRepository) GetHoldForUpdate(ctx context.Context, id string) (domain.Hold, error) {
	return getHold(ctx, r.db, id, true)
}

func (r *HoldRepository) TerminateHold(ctx context.Context, id string, to domain.HoldStatus, at time.Time) (bool, error) {
	return terminateHold(ctx, r.db, id, to, at)
}

func (r *HoldRepository) ListHoldsByUser(ctx context.Context, userID string) ([]domain.Hold, error) {
	const query = `
SELECT id, user_id, hotel_id, check_in, check_out, guests, total_cents, currency, status, expires_at, created_at, released_at
FROM holds
WHERE user_id = $1
ORDER BY created_at DESC`

	rows, err := r.query(ctx, query, userID)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("list holds: %w", err)
	}
	defer rows.Close()

	holds, err := scanHolds(rows)
	if err != nil {
		return nil, err
	}
	if err := attachRooms(ctx, r.db, holds); err != nil {
		return nil, err
	}
	return holds, nil
}

func (r *HoldRepository) ListDueHolds(ctx context.Context, now time.Time, limit int) ([]domain.Hold, error) {
	const query = `
SELECT id, user_id, hotel_id, check_in, check_out, guests, total_cents, currency, status, expires_at, created_at, released_at
FROM holds
WHERE status = 'active' AND expires_at < $1
ORDER BY expires_at
LIMIT $2`

	rows, err := r.query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due holds: %w", err)
	}
	defer rows.Close()

	holds, err := scanHolds(rows)
	if err != nil {
		return nil, err
	}
	if err := attachRooms(ctx, r.db, holds); err != nil {
		return nil, err
	}
	return holds, nil
}

func (r *HoldRepository) AppendEvent(ctx context.Context, ev domain.DomainEvent) error {
	return appendEvent(ctx, r.db, ev)
}

func getHold(ctx context.Context, d db, id string, forUpdate bool) (domain.Hold, error) {
	query := `
SELECT id, user_id, hotel_id, check_in, check_out, guests, total_cents, currency, status, expires_at, created_at, released_at
FROM holds
WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var (
		h      domain.Hold
		status string
	)
	err := d.queryRow(ctx, query, id).Scan(
		&h.ID, &h.UserID, &h.HotelID, &h.CheckIn, &h.CheckOut, &h.Guests,
		&h.TotalCents, &h.Currency, &status, &h.ExpiresAt, &h.CreatedAt, &h.ReleasedAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Hold{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Hold{}, domain.ErrHoldNotFound
		}
		return domain.Hold{}, fmt.Errorf("get hold: %w", err)
	}
	h.Status = domain.HoldStatus(status)

	holds := []domain.Hold{h}
	if err := attachRooms(ctx, d, holds); err != nil {
		return domain.Hold{}, err
	}
	return holds[0], nil
}

// terminateHold flips an active hold to a terminal status. Zero rows
// affected means another writer already terminated it.
func terminateHold(ctx context.Context, d db, id string, to domain.HoldStatus, at time.Time) (bool, error) {
	const stmt = `UPDATE holds SET status = $2, released_at = $3 WHERE id = $1 AND status = 'active'`

	tag, err := d.exec(ctx, stmt, id, to, at)
	if err != nil {
		if isInvalidUUID(err) {
			return false, domain.ErrInvalidID
		}
		return false, fmt.Errorf("terminate hold: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanHolds(rows pgx.Rows) ([]domain.Hold, error) {
	var holds []domain.Hold
	for rows.Next() {
		var (
			h      domain.Hold
			status string
		)
		err := rows.Scan(
			&h.ID, &h.UserID, &h.HotelID, &h.CheckIn, &h.CheckOut, &h.Guests,
			&h.TotalCents, &h.Currency, &status, &h.ExpiresAt, &h.CreatedAt, &h.ReleasedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan hold: %w", err)
		}
		h.Status = domain.HoldStatus(status)
		holds = append(holds, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate holds: %w", err)
	}
	return holds, nil
}

func attachRooms(ctx context.Context, d db, holds []domain.Hold) error {
	if len(holds) == 0 {
		return nil
	}

	ids := make([]string, 0, len(holds))
	index := make(map[string]int, len(holds))
	for i, h := range holds {
		ids = append(ids, h.ID)
		index[h.ID] = i
	}

	const query = `SELECT hold_id, room_id, quantity FROM hold_rooms WHERE hold_id = ANY($1) ORDER BY room_id`

	rows, err := d.query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("load hold rooms: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			holdID string
			rq     domain.RoomQuantity
		)
		if err := rows.Scan(&holdID, &rq.RoomID, &rq.Quantity); err != nil {
			return fmt.Errorf("scan hold room: %w", err)
		}
		i := index[holdID]
		holds[i].Rooms = append(holds[i].Rooms, rq)
	}
	return rows.Err()
}
