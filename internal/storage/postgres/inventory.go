package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/quartostays/booking-engine/internal/domain"
)

// stayOp is one (room, date, quantity) ledger mutation. Ops are always
// applied sorted by room id then date so concurrent holds over overlapping
// ranges acquire row locks in the same order and cannot deadlock.
type stayOp struct {
	roomID string
	date   time.Time
	qty    int
}

func stayOps(rooms []domain.RoomQuantity, nights []time.Time) []stayOp {
	ops := make([]stayOp, 0, len(rooms)*len(nights))
	for _, r := range rooms {
		for _, night := range nights {
			ops = append(ops, stayOp{roomID: r.RoomID, date: night, qty: r.Quantity})
		}
	}
	sort.Slice(ops, func(i, j int) bool {
		if ops[i].roomID != ops[j].roomID {
			return ops[i].roomID < ops[j].roomID
		}
		return ops[i].date.Before(ops[j].date)
	})
	return ops
}

// claimStay increments held_rooms for every op, all or nothing. The guard in
// the UPDATE is the single capacity check: a row that cannot absorb the
// quantity matches nothing, which aborts the surrounding transaction.
func claimStay(ctx context.Context, d db, hotelID string, rooms []domain.RoomQuantity, nights []time.Time, currency string) (int64, error) {
	const stmt = `
UPDATE room_inventory
SET held_rooms = held_rooms + $3
WHERE room_id = $1 AND date = $2 AND hotel_id = $4 AND status = 'open'
  AND booked_rooms + held_rooms + $3 <= total_rooms
RETURNING price_per_night_cents, currency`

	var total int64
	for _, op := range stayOps(rooms, nights) {
		var (
			priceCents  int64
			rowCurrency string
		)
		err := d.queryRow(ctx, stmt, op.roomID, op.date, op.qty, hotelID).Scan(&priceCents, &rowCurrency)
		if err != nil {
			if isInvalidUUID(err) {
				return 0, domain.ErrInvalidID
			}
			if err == pgx.ErrNoRows {
				return 0, classifyClaimFailure(ctx, d, hotelID, op)
			}
			return 0, fmt.Errorf("claim stay: %w", err)
		}
		if rowCurrency != currency {
			return 0, domain.ErrCurrencyMismatch
		}
		total += priceCents * int64(op.qty)
	}
	return total, nil
}

func classifyClaimFailure(ctx context.Context, d db, hotelID string, op stayOp) error {
	const query = `
SELECT EXISTS (
	SELECT 1 FROM room_inventory WHERE room_id = $1 AND date = $2 AND hotel_id = $3
)`

	var exists bool
	if err := d.queryRow(ctx, query, op.roomID, op.date, hotelID).Scan(&exists); err != nil {
		return fmt.Errorf("classify claim failure: %w", err)
	}
	if !exists {
		return domain.ErrRoomNotFound
	}
	return domain.ErrInsufficientInventory
}

func releaseStay(ctx context.Context, d db, rooms []domain.RoomQuantity, nights []time.Time) error {
	const stmt = `
UPDATE room_inventory
SET held_rooms = GREATEST(held_rooms - $3, 0),
    status = CASE WHEN status = 'sold_out' THEN 'open' ELSE status END
WHERE room_id = $1 AND date = $2`

	for _, op := range stayOps(rooms, nights) {
		if _, err := d.exec(ctx, stmt, op.roomID, op.date, op.qty); err != nil {
			return fmt.Errorf("release stay: %w", err)
		}
	}
	return nil
}

// commitStay moves held units to booked. A row without enough held units
// means the hold state machine and the ledger disagree; fail loudly rather
// than papering over it.
func commitStay(ctx context.Context, d db, rooms []domain.RoomQuantity, nights []time.Time) error {
	const stmt = `
UPDATE room_inventory
SET held_rooms = held_rooms - $3,
    booked_rooms = booked_rooms + $3,
    status = CASE WHEN status = 'open' AND booked_rooms + $3 >= total_rooms THEN 'sold_out' ELSE status END
WHERE room_id = $1 AND date = $2 AND held_rooms >= $3`

	for _, op := range stayOps(rooms, nights) {
		tag, err := d.exec(ctx, stmt, op.roomID, op.date, op.qty)
		if err != nil {
			return fmt.Errorf("commit stay: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("commit stay: held underflow for room %s on %s", op.roomID, op.date.Format("2006-01-02"))
		}
	}
	return nil
}

func uncommitStay(ctx context.Context, d db, rooms []domain.RoomQuantity, nights []time.Time) error {
	const stmt = `
UPDATE room_inventory
SET booked_rooms = GREATEST(booked_rooms - $3, 0),
    status = CASE WHEN status = 'sold_out' THEN 'open' ELSE status END
WHERE room_id = $1 AND date = $2`

	for _, op := range stayOps(rooms, nights) {
		if _, err := d.exec(ctx, stmt, op.roomID, op.date, op.qty); err != nil {
			return fmt.Errorf("uncommit stay: %w", err)
		}
	}
	return nil
}
