package domain

import (
	"encoding/json"
	"time"
)

// Domain event types consumed by the snapshot projector.
const (
	EventHotelCreated         = "hotel.created"
	EventHotelUpdated         = "hotel.updated"
	EventRoomInventoryChanged = "room_inventory.changed"
	EventBookingCompleted     = "booking.completed"
	EventReviewCreated        = "review.created"
	EventAmenityChanged       = "amenity.changed"
	EventHotelViewed          = "hotel.viewed"
	EventSnapshotFullRefresh  = "snapshot.full_refresh"
)

// DomainEvent is written to the outbox in the same transaction as the domain
// mutation it describes, then published by the dispatcher.
type DomainEvent struct {
	Type       string
	HotelID    string
	Payload    json.RawMessage
	OccurredAt time.Time
}

func NewDomainEvent(eventType, hotelID string, payload any, occurredAt time.Time) (DomainEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return DomainEvent{}, err
	}
	return DomainEvent{
		Type:       eventType,
		HotelID:    hotelID,
		Payload:    raw,
		OccurredAt: occurredAt,
	}, nil
}

// EventEnvelope is the wire form of a DomainEvent on the snapshot topic.
// EventID is the outbox row id, which makes redeliveries recognizable.
type EventEnvelope struct {
	EventID    int64           `json:"event_id"`
	EventType  string          `json:"event_type"`
	HotelID    string          `json:"hotel_id"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
}

type RoomInventoryChangedPayload struct {
	HotelID string   `json:"hotel_id"`
	RoomIDs []string `json:"room_ids"`
	Reason  string   `json:"reason"`
}

type BookingCompletedPayload struct {
	BookingID string `json:"booking_id"`
	HoldID    string `json:"hold_id"`
	HotelID   string `json:"hotel_id"`
}

type HotelUpsertPayload struct {
	HotelID string `json:"hotel_id"`
	Name    string `json:"name"`
	City    string `json:"city"`
}

// ReviewCreatedPayload carries the aggregates recomputed upstream by the
// review service, so applying it is last-write-wins and order-tolerant.
type ReviewCreatedPayload struct {
	HotelID     string  `json:"hotel_id"`
	Rating      float32 `json:"rating"`
	ReviewCount int     `json:"review_count"`
}

type AmenityChangedPayload struct {
	HotelID   string   `json:"hotel_id"`
	Amenities []string `json:"amenities"`
}
