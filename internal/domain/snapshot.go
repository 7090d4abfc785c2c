package domain

import "time"

// HotelSnapshot is the denormalized, search-optimized copy of hotel
// availability/pricing/rating data, kept eventually consistent with the
// ledger by the projector.
type HotelSnapshot struct {
	HotelID       string
	Name          string
	City          string
	Amenities     []string
	MinPriceCents int64
	MaxPriceCents int64
	Currency      string
	Available     bool
	Rating        float32
	ReviewCount   int
	ViewCount     int64
	UpdatedAt     time.Time
}

// PriceSummary is recomputed from current ledger rows for the partial
// room_inventory.changed projection.
type PriceSummary struct {
	MinPriceCents int64
	MaxPriceCents int64
	Currency      string
	Available     bool
}
