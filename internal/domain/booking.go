package domain

import "time"

type BookingStatus string

const (
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusRefunded  BookingStatus = "refunded"
)

// Booking is derived 1:1 from a completed hold plus a successful payment
// event. Immutable after creation except for status transitions.
type Booking struct {
	ID         string
	HoldID     string
	HotelID    string
	UserID     string
	EventID    string
	TotalCents int64
	Currency   string
	Status     BookingStatus
	CreatedAt  time.Time
}
