package app

import (
	"context"
	"fmt"
	"time"

	"github.com/quartostays/booking-engine/internal/domain"
)

// fakeLedgerRow mirrors one (room, date) row of the inventory ledger.
type fakeLedgerRow struct {
	totalRooms  int
	bookedRooms int
	heldRooms   int
	priceCents  int64
	currency    string
}

type fakeHoldRepo struct {
	rows   map[domain.RoomDate]*fakeLedgerRow
	holds  map[string]*domain.Hold
	events []domain.DomainEvent
}

func newFakeHoldRepo() *fakeHoldRepo {
	return &fakeHoldRepo{
		rows:  make(map[domain.RoomDate]*fakeLedgerRow),
		holds: make(map[string]*domain.Hold),
	}
}

func (f *fakeHoldRepo) addRoom(roomID string, from, to time.Time, total, booked int, price int64, currency string) {
	for _, night := range domain.StayNights(from, to) {
		f.rows[domain.RoomDate{RoomID: roomID, Date: night}] = &fakeLedgerRow{
			totalRooms:  total,
			bookedRooms: booked,
			priceCents:  price,
			currency:    currency,
		}
	}
}

func (f *fakeHoldRepo) heldOn(roomID string, night time.Time) int {
	row, ok := f.rows[domain.RoomDate{RoomID: roomID, Date: domain.NormalizeDate(night)}]
	if !ok {
		return -1
	}
	return row.heldRooms
}

func (f *fakeHoldRepo) bookedOn(roomID string, night time.Time) int {
	row, ok := f.rows[domain.RoomDate{RoomID: roomID, Date: domain.NormalizeDate(night)}]
	if !ok {
		return -1
	}
	return row.bookedRooms
}

func (f *fakeHoldRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// ClaimStay checks every (room, night) before mutating any, matching the
// all-or-nothing behavior of the real transaction.
func (f *fakeHoldRepo) ClaimStay(_ context.Context, _ string, rooms []domain.RoomQuantity, nights []time.Time, currency string) (int64, error) {
	var total int64
	for _, r := range rooms {
		for _, night := range nights {
			row, ok := f.rows[domain.RoomDate{RoomID: r.RoomID, Date: night}]
			if !ok {
				return 0, domain.ErrRoomNotFound
			}
			if row.currency != currency {
				return 0, domain.ErrCurrencyMismatch
			}
			if row.bookedRooms+row.heldRooms+r.Quantity > row.totalRooms {
				return 0, domain.ErrInsufficientInventory
			}
			total += row.priceCents * int64(r.Quantity)
		}
	}
	for _, r := range rooms {
		for _, night := range nights {
			f.rows[domain.RoomDate{RoomID: r.RoomID, Date: night}].heldRooms += r.Quantity
		}
	}
	return total, nil
}

func (f *fakeHoldRepo) ReleaseStay(_ context.Context, rooms []domain.RoomQuantity, nights []time.Time) error {
	for _, r := range rooms {
		for _, night := range nights {
			row, ok := f.rows[domain.RoomDate{RoomID: r.RoomID, Date: night}]
			if !ok {
				return fmt.Errorf("release of unknown row %s %v", r.RoomID, night)
			}
			row.heldRooms -= r.Quantity
			if row.heldRooms < 0 {
				row.heldRooms = 0
			}
		}
	}
	return nil
}

func (f *fakeHoldRepo) CreateHold(_ context.Context, hold domain.Hold) error {
	cp := hold
	f.holds[hold.ID] = &cp
	return nil
}

func (f *fakeHoldRepo) GetHold(_ context.Context, id string) (domain.Hold, error) {
	hold, ok := f.holds[id]
	if !ok {
		return domain.Hold{}, domain.ErrHoldNotFound
	}
	return *hold, nil
}

func (f *fakeHoldRepo) GetHoldForUpdate(ctx context.Context, id string) (domain.Hold, error) {
	return f.GetHold(ctx, id)
}

func (f *fakeHoldRepo) ListHoldsByUser(_ context.Context, userID string) ([]domain.Hold, error) {
	var out []domain.Hold
	for _, hold := range f.holds {
		if hold.UserID == userID {
			out = append(out, *hold)
		}
	}
	return out, nil
}

func (f *fakeHoldRepo) TerminateHold(_ context.Context, id string, to domain.HoldStatus, at time.Time) (bool, error) {
	hold, ok := f.holds[id]
	if !ok {
		return false, domain.ErrHoldNotFound
	}
	if hold.Status != domain.HoldStatusActive {
		return false, nil
	}
	hold.Status = to
	hold.ReleasedAt = &at
	return true, nil
}

func (f *fakeHoldRepo) ListDueHolds(_ context.Context, now time.Time, limit int) ([]domain.Hold, error) {
	var out []domain.Hold
	for _, hold := range f.holds {
		if hold.Status == domain.HoldStatusActive && hold.ExpiresAt.Before(now) {
			out = append(out, *hold)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeHoldRepo) AppendEvent(_ context.Context, ev domain.DomainEvent) error {
	f.events = append(f.events, ev)
	return nil
}

// fakeWebhookRepo layers booking and idempotency state on the ledger fake.
type fakeWebhookRepo struct {
	*fakeHoldRepo
	claimed  map[string]bool
	bookings map[string]*domain.Booking
}

func newFakeWebhookRepo() *fakeWebhookRepo {
	return &fakeWebhookRepo{
		fakeHoldRepo: newFakeHoldRepo(),
		claimed:      make(map[string]bool),
		bookings:     make(map[string]*domain.Booking),
	}
}

func (f *fakeWebhookRepo) ClaimEvent(_ context.Context, rec domain.WebhookEventRecord) error {
	if f.claimed[rec.EventID] {
		return domain.ErrDuplicateWebhookEvent
	}
	f.claimed[rec.EventID] = true
	return nil
}

func (f *fakeWebhookRepo) CommitStay(_ context.Context, rooms []domain.RoomQuantity, nights []time.Time) error {
	for _, r := range rooms {
		for _, night := range nights {
			row, ok := f.rows[domain.RoomDate{RoomID: r.RoomID, Date: night}]
			if !ok {
				return fmt.Errorf("commit of unknown row %s %v", r.RoomID, night)
			}
			if row.heldRooms < r.Quantity {
				return fmt.Errorf("held underflow on %s %v", r.RoomID, night)
			}
			row.heldRooms -= r.Quantity
			row.bookedRooms += r.Quantity
		}
	}
	return nil
}

func (f *fakeWebhookRepo) UncommitStay(_ context.Context, rooms []domain.RoomQuantity, nights []time.Time) error {
	for _, r := range rooms {
		for _, night := range nights {
			row, ok := f.rows[domain.RoomDate{RoomID: r.RoomID, Date: night}]
			if !ok {
				return fmt.Errorf("uncommit of unknown row %s %v", r.RoomID, night)
			}
			row.bookedRooms -= r.Quantity
			if row.bookedRooms < 0 {
				row.bookedRooms = 0
			}
		}
	}
	return nil
}

func (f *fakeWebhookRepo) CreateBooking(_ context.Context, b domain.Booking) error {
	cp := b
	f.bookings[b.ID] = &cp
	return nil
}

func (f *fakeWebhookRepo) GetBookingForUpdate(_ context.Context, id string) (domain.Booking, error) {
	b, ok := f.bookings[id]
	if !ok {
		return domain.Booking{}, domain.ErrBookingNotFound
	}
	return *b, nil
}

func (f *fakeWebhookRepo) UpdateBookingStatus(_ context.Context, id string, status domain.BookingStatus) error {
	b, ok := f.bookings[id]
	if !ok {
		return domain.ErrBookingNotFound
	}
	b.Status = status
	return nil
}

type fakeNotifier struct {
	confirmed []domain.Booking
}

func (f *fakeNotifier) BookingConfirmed(b domain.Booking) {
	f.confirmed = append(f.confirmed, b)
}
