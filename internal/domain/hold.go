package domain

import "time"

type HoldStatus string

const (
	HoldStatusActive    HoldStatus = "active"
	HoldStatusReleased  HoldStatus = "released"
	HoldStatusExpired   HoldStatus = "expired"
	HoldStatusCompleted HoldStatus = "completed"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s HoldStatus) IsTerminal() bool {
	return s == HoldStatusReleased || s == HoldStatusExpired || s == HoldStatusCompleted
}

// Hold is a time-boxed claim on room capacity made while a buyer completes
// payment. The claim on the ledger is reversed exactly once, by whichever of
// manual release, the expiry sweep, or finalization wins.
type Hold struct {
	ID         string
	UserID     string
	HotelID    string
	CheckIn    time.Time
	CheckOut   time.Time
	Guests     int
	Rooms      []RoomQuantity
	TotalCents int64
	Currency   string
	Status     HoldStatus
	ExpiresAt  time.Time
	CreatedAt  time.Time
	ReleasedAt *time.Time
}

// Nights returns the stay range as individual ledger dates.
func (h Hold) Nights() []time.Time {
	return StayNights(h.CheckIn, h.CheckOut)
}
