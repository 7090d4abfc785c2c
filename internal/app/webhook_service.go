package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/quartostays/booking-engine/internal/clock"
	"github.com/quartostays/booking-engine/internal/domain"
	"github.com/quartostays/booking-engine/internal/metrics"
	"github.com/quartostays/booking-engine/internal/payment"
	"go.uber.org/zap"
)

type WebhookRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	ClaimEvent(ctx context.Context, rec domain.WebhookEventRecord) error
	GetHoldForUpdate(ctx context.Context, id string) (domain.Hold, error)
	TerminateHold(ctx context.Context, id string, to domain.HoldStatus, at time.Time) (bool, error)
	CommitStay(ctx context.Context, rooms []domain.RoomQuantity, nights []time.Time) error
	ReleaseStay(ctx context.Context, rooms []domain.RoomQuantity, nights []time.Time) error
	UncommitStay(ctx context.Context, rooms []domain.RoomQuantity, nights []time.Time) error
	CreateBooking(ctx context.Context, b domain.Booking) error
	GetBookingForUpdate(ctx context.Context, id string) (domain.Booking, error)
	UpdateBookingStatus(ctx context.Context, id string, status domain.BookingStatus) error
	GetHold(ctx context.Context, id string) (domain.Hold, error)
	AppendEvent(ctx context.Context, ev domain.DomainEvent) error
}

// PaymentProvider verifies webhook deliveries and yields typed events.
type PaymentProvider interface {
	VerifyAndParse(payload []byte, signature string) (payment.Event, error)
}

// Notifier submits downstream notification jobs after finalization commits.
// Submission is fire-and-forget and must never block or fail the booking.
type Notifier interface {
	BookingConfirmed(b domain.Booking)
}

// WebhookService is the idempotency gate and booking finalizer. Every
// verified event id is claimed with a unique insert inside the processing
// transaction, so concurrent deliveries resolve to exactly one winner.
type WebhookService struct {
	repo     WebhookRepository
	provider PaymentProvider
	notifier Notifier
	clock    clock.Clock
	logger   *zap.Logger
}

func NewWebhookService(repo WebhookRepository, provider PaymentProvider, notifier Notifier, clk clock.Clock, logger *zap.Logger) *WebhookService {
	return &WebhookService{
		repo:     repo,
		provider: provider,
		notifier: notifier,
		clock:    clk,
		logger:   logger,
	}
}

type ProcessResult struct {
	Duplicate bool
}

// Process verifies, de-duplicates and applies one webhook delivery. A
// duplicate event id is a successful no-op. Transient storage errors roll
// everything back, including the claim, so the sender's retry starts clean.
func (s *WebhookService) Process(ctx context.Context, rawBody []byte, signature string) (ProcessResult, error) {
	ev, err := s.provider.VerifyAndParse(rawBody, signature)
	if err != nil {
		return ProcessResult{}, err
	}

	now := s.clock.Now()
	record := domain.WebhookEventRecord{
		EventID:     ev.ID,
		Type:        ev.Type,
		Payload:     rawBody,
		ProcessedAt: now,
	}

	var confirmed *domain.Booking

	err = s.repo.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.ClaimEvent(txCtx, record); err != nil {
			return err
		}

		switch ev.Type {
		case payment.EventPaymentSucceeded:
			booking, err := s.finalize(txCtx, ev, now)
			if err != nil {
				return err
			}
			confirmed = booking
			return nil
		case payment.EventPaymentFailed:
			return s.releaseFailedPayment(txCtx, ev, now)
		case payment.EventRefundSucceeded:
			return s.refund(txCtx, ev, now)
		default:
			s.logger.Warn("ignoring unknown webhook event type",
				zap.String("event_id", ev.ID),
				zap.String("event_type", ev.Type))
			return nil
		}
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateWebhookEvent) {
			metrics.WebhookEventsTotal.WithLabelValues("duplicate").Inc()
			return ProcessResult{Duplicate: true}, nil
		}
		metrics.WebhookEventsTotal.WithLabelValues("error").Inc()
		return ProcessResult{}, err
	}

	if confirmed != nil {
		s.notifier.BookingConfirmed(*confirmed)
	}

	metrics.WebhookEventsTotal.WithLabelValues("processed").Inc()
	return ProcessResult{}, nil
}

// finalize converts an active hold into a booking exactly once. A hold
// already out of active is an idempotent replay: the claim is kept, nothing
// else is mutated.
func (s *WebhookService) finalize(ctx context.Context, ev payment.Event, now time.Time) (*domain.Booking, error) {
	pc, err := ev.PaymentContext()
	if err != nil {
		s.logPermanent(ev, err)
		return nil, nil
	}

	hold, err := s.repo.GetHoldForUpdate(ctx, pc.HoldID)
	if err != nil {
		if errors.Is(err, domain.ErrHoldNotFound) || errors.Is(err, domain.ErrInvalidID) {
			s.logPermanent(ev, err)
			return nil, nil
		}
		return nil, err
	}
	if hold.Status != domain.HoldStatusActive {
		s.logger.Info("hold already finalized or terminated, skipping",
			zap.String("event_id", ev.ID),
			zap.String("hold_id", hold.ID),
			zap.String("status", string(hold.Status)))
		return nil, nil
	}

	if err := s.repo.CommitStay(ctx, hold.Rooms, hold.Nights()); err != nil {
		return nil, err
	}

	booking := domain.Booking{
		ID:         uuid.NewString(),
		HoldID:     hold.ID,
		HotelID:    hold.HotelID,
		UserID:     hold.UserID,
		EventID:    ev.ID,
		TotalCents: hold.TotalCents,
		Currency:   hold.Currency,
		Status:     domain.BookingStatusConfirmed,
		CreatedAt:  now,
	}
	if err := s.repo.CreateBooking(ctx, booking); err != nil {
		return nil, err
	}
	if _, err := s.repo.TerminateHold(ctx, hold.ID, domain.HoldStatusCompleted, now); err != nil {
		return nil, err
	}

	completed, err := domain.NewDomainEvent(domain.EventBookingCompleted, hold.HotelID, domain.BookingCompletedPayload{
		BookingID: booking.ID,
		HoldID:    hold.ID,
		HotelID:   hold.HotelID,
	}, now)
	if err != nil {
		return nil, err
	}
	if err := s.repo.AppendEvent(ctx, completed); err != nil {
		return nil, err
	}

	metrics.HoldsTerminatedTotal.WithLabelValues("completed").Inc()
	return &booking, nil
}

// releaseFailedPayment releases the hold like a manual release would, but
// emits nothing to the search pipeline.
func (s *WebhookService) releaseFailedPayment(ctx context.Context, ev payment.Event, now time.Time) error {
	pc, err := ev.PaymentContext()
	if err != nil {
		s.logPermanent(ev, err)
		return nil
	}

	hold, err := s.repo.GetHoldForUpdate(ctx, pc.HoldID)
	if err != nil {
		if errors.Is(err, domain.ErrHoldNotFound) || errors.Is(err, domain.ErrInvalidID) {
			s.logPermanent(ev, err)
			return nil
		}
		return err
	}
	if hold.Status.IsTerminal() {
		return nil
	}

	flipped, err := s.repo.TerminateHold(ctx, hold.ID, domain.HoldStatusReleased, now)
	if err != nil {
		return err
	}
	if !flipped {
		return nil
	}
	if err := s.repo.ReleaseStay(ctx, hold.Rooms, hold.Nights()); err != nil {
		return err
	}

	metrics.HoldsTerminatedTotal.WithLabelValues("payment_failed").Inc()
	return nil
}

// refund reverses booked inventory and emits an inventory-changed event.
// Refund failures downstream stay human-actionable: the ledger and booking
// always commit together or not at all.
func (s *WebhookService) refund(ctx context.Context, ev payment.Event, now time.Time) error {
	rc, err := ev.RefundContext()
	if err != nil {
		s.logPermanent(ev, err)
		return nil
	}

	booking, err := s.repo.GetBookingForUpdate(ctx, rc.BookingID)
	if err != nil {
		if errors.Is(err, domain.ErrBookingNotFound) || errors.Is(err, domain.ErrInvalidID) {
			s.logPermanent(ev, err)
			return nil
		}
		return err
	}
	if booking.Status == domain.BookingStatusRefunded {
		return nil
	}

	hold, err := s.repo.GetHold(ctx, booking.HoldID)
	if err != nil {
		return err
	}

	if err := s.repo.UpdateBookingStatus(ctx, booking.ID, domain.BookingStatusRefunded); err != nil {
		return err
	}
	if err := s.repo.UncommitStay(ctx, hold.Rooms, hold.Nights()); err != nil {
		return err
	}

	roomIDs := make([]string, 0, len(hold.Rooms))
	for _, r := range hold.Rooms {
		roomIDs = append(roomIDs, r.RoomID)
	}
	changed, err := domain.NewDomainEvent(domain.EventRoomInventoryChanged, booking.HotelID, domain.RoomInventoryChangedPayload{
		HotelID: booking.HotelID,
		RoomIDs: roomIDs,
		Reason:  "booking_refunded",
	}, now)
	if err != nil {
		return err
	}
	return s.repo.AppendEvent(ctx, changed)
}

func (s *WebhookService) logPermanent(ev payment.Event, err error) {
	s.logger.Error("webhook event permanently unprocessable",
		zap.String("event_id", ev.ID),
		zap.String("event_type", ev.Type),
		zap.Error(err))
}
