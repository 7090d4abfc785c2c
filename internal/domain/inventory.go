package domain

import "time"

type RoomStatus string

const (
	RoomStatusOpen        RoomStatus = "open"
	RoomStatusClosed      RoomStatus = "closed"
	RoomStatusSoldOut     RoomStatus = "sold_out"
	RoomStatusMaintenance RoomStatus = "maintenance"
)

// RoomDate identifies a single ledger row. Dates are normalized to midnight
// UTC so the struct is usable as a map key.
type RoomDate struct {
	RoomID string
	Date   time.Time
}

func NormalizeDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// StayNights expands [checkIn, checkOut) into one entry per night.
func StayNights(checkIn, checkOut time.Time) []time.Time {
	checkIn = NormalizeDate(checkIn)
	checkOut = NormalizeDate(checkOut)

	var nights []time.Time
	for d := checkIn; d.Before(checkOut); d = d.AddDate(0, 0, 1) {
		nights = append(nights, d)
	}
	return nights
}

// RoomQuantity is one line of a hold: how many units of a room are claimed
// for every night of the stay.
type RoomQuantity struct {
	RoomID   string
	Quantity int
}
