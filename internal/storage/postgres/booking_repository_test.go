package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/quartostays/booking-engine/internal/domain"
	"github.com/quartostays/booking-engine/internal/testutil"
)

func TestBookingRepository(t *testing.T) {
	pool := testutil.NewTestPool(t)
	repo := NewBookingRepository(pool)
	testutil.ApplyMigrations(t, context.Background(), pool)

	checkIn := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	checkOut := time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC)
	nights := domain.StayNights(checkIn, checkOut)

	t.Run("ClaimEvent admits each event id once", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		rec := domain.WebhookEventRecord{
			EventID:     "evt-1",
			Type:        "payment.succeeded",
			Payload:     []byte(`{"id":"evt-1"}`),
			ProcessedAt: time.Now().UTC(),
		}
		if err := repo.ClaimEvent(ctx, rec); err != nil {
			t.Fatalf("first claim: %v", err)
		}
		if err := repo.ClaimEvent(ctx, rec); err != domain.ErrDuplicateWebhookEvent {
			t.Fatalf("expected ErrDuplicateWebhookEvent, got %v", err)
		}
		if err := repo.ClaimEvent(ctx, domain.WebhookEventRecord{
			EventID: "evt-2", Type: rec.Type, Payload: rec.Payload, ProcessedAt: rec.ProcessedAt,
		}); err != nil {
			t.Fatalf("distinct event id: %v", err)
		}
	})

	t.Run("duplicate claim aborts the enclosing transaction", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		rec := domain.WebhookEventRecord{
			EventID: "evt-1", Type: "payment.succeeded", Payload: []byte(`{}`), ProcessedAt: time.Now().UTC(),
		}
		if err := repo.ClaimEvent(ctx, rec); err != nil {
			t.Fatalf("seed claim: %v", err)
		}

		hotelID, roomID := testutil.NewID(), testutil.NewID()
		testutil.InsertInventory(t, ctx, pool, hotelID, roomID, checkIn, checkOut, 5, 0, 10000, "USD")
		holds := NewHoldRepository(pool)

		err := repo.WithTx(ctx, func(txCtx context.Context) error {
			if _, err := holds.ClaimStay(txCtx, hotelID, []domain.RoomQuantity{{RoomID: roomID, Quantity: 1}}, nights, "USD"); err != nil {
				return err
			}
			return repo.ClaimEvent(txCtx, rec)
		})
		if err != domain.ErrDuplicateWebhookEvent {
			t.Fatalf("expected ErrDuplicateWebhookEvent, got %v", err)
		}

		_, held := testutil.InventoryCounts(t, ctx, pool, roomID, checkIn)
		if held != 0 {
			t.Fatalf("expected rollback to undo the claim, got held %d", held)
		}
	})

	t.Run("CommitStay converts held units to booked", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		hotelID, roomID := testutil.NewID(), testutil.NewID()
		testutil.InsertInventory(t, ctx, pool, hotelID, roomID, checkIn, checkOut, 5, 0, 10000, "USD")
		holds := NewHoldRepository(pool)
		rooms := []domain.RoomQuantity{{RoomID: roomID, Quantity: 2}}

		err := repo.WithTx(ctx, func(txCtx context.Context) error {
			if _, err := holds.ClaimStay(txCtx, hotelID, rooms, nights, "USD"); err != nil {
				return err
			}
			return repo.CommitStay(txCtx, rooms, nights)
		})
		if err != nil {
			t.Fatalf("claim and commit: %v", err)
		}

		for _, night := range nights {
			booked, held := testutil.InventoryCounts(t, ctx, pool, roomID, night)
			if booked != 2 || held != 0 {
				t.Fatalf("night %v: expected booked 2 held 0, got booked %d held %d", night, booked, held)
			}
		}
	})

	t.Run("CommitStay without a matching claim fails loudly", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		hotelID, roomID := testutil.NewID(), testutil.NewID()
		testutil.InsertInventory(t, ctx, pool, hotelID, roomID, checkIn, checkOut, 5, 0, 10000, "USD")

		err := repo.WithTx(ctx, func(txCtx context.Context) error {
			return repo.CommitStay(txCtx, []domain.RoomQuantity{{RoomID: roomID, Quantity: 1}}, nights)
		})
		if err == nil {
			t.Fatal("expected commit without held units to fail")
		}
	})

	t.Run("UncommitStay reverses booked units", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		hotelID, roomID := testutil.NewID(), testutil.NewID()
		testutil.InsertInventory(t, ctx, pool, hotelID, roomID, checkIn, checkOut, 5, 3, 10000, "USD")

		if err := repo.UncommitStay(ctx, []domain.RoomQuantity{{RoomID: roomID, Quantity: 2}}, nights); err != nil {
			t.Fatalf("uncommit: %v", err)
		}
		booked, _ := testutil.InventoryCounts(t, ctx, pool, roomID, checkIn)
		if booked != 1 {
			t.Fatalf("expected booked 1, got %d", booked)
		}
	})

	t.Run("booking lifecycle", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		holds := NewHoldRepository(pool)
		hold := domain.Hold{
			ID:         testutil.NewID(),
			UserID:     testutil.NewID(),
			HotelID:    testutil.NewID(),
			CheckIn:    checkIn,
			CheckOut:   checkOut,
			Guests:     2,
			Rooms:      []domain.RoomQuantity{{RoomID: testutil.NewID(), Quantity: 1}},
			TotalCents: 20000,
			Currency:   "USD",
			Status:     domain.HoldStatusActive,
			ExpiresAt:  time.Now().Add(15 * time.Minute).UTC(),
			CreatedAt:  time.Now().UTC(),
		}
		if err := holds.CreateHold(ctx, hold); err != nil {
			t.Fatalf("create hold: %v", err)
		}

		booking := domain.Booking{
			ID:         testutil.NewID(),
			HoldID:     hold.ID,
			HotelID:    hold.HotelID,
			UserID:     hold.UserID,
			EventID:    "evt-1",
			TotalCents: hold.TotalCents,
			Currency:   hold.Currency,
			Status:     domain.BookingStatusConfirmed,
			CreatedAt:  time.Now().UTC(),
		}
		if err := repo.CreateBooking(ctx, booking); err != nil {
			t.Fatalf("create booking: %v", err)
		}

		err := repo.WithTx(ctx, func(txCtx context.Context) error {
			got, err := repo.GetBookingForUpdate(txCtx, booking.ID)
			if err != nil {
				t.Fatalf("get for update: %v", err)
			}
			if got.HoldID != hold.ID || got.Status != domain.BookingStatusConfirmed {
				t.Fatalf("unexpected booking: %+v", got)
			}
			return repo.UpdateBookingStatus(txCtx, booking.ID, domain.BookingStatusRefunded)
		})
		if err != nil {
			t.Fatalf("tx failed: %v", err)
		}

		err = repo.WithTx(ctx, func(txCtx context.Context) error {
			got, err := repo.GetBookingForUpdate(txCtx, booking.ID)
			if err != nil {
				return err
			}
			if got.Status != domain.BookingStatusRefunded {
				t.Fatalf("expected refunded, got %s", got.Status)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("tx failed: %v", err)
		}

		err = repo.WithTx(ctx, func(txCtx context.Context) error {
			_, err := repo.GetBookingForUpdate(txCtx, testutil.NewID())
			return err
		})
		if err != domain.ErrBookingNotFound {
			t.Fatalf("expected ErrBookingNotFound, got %v", err)
		}
	})
}
