package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/quartostays/booking-engine/internal/clock"
	"github.com/quartostays/booking-engine/internal/domain"
	"github.com/quartostays/booking-engine/internal/metrics"
)

type HoldRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	ClaimStay(ctx context.Context, hotelID string, rooms []domain.RoomQuantity, nights []time.Time, currency string) (totalCents int64, err error)
	ReleaseStay(ctx context.Context, rooms []domain.RoomQuantity, nights []time.Time) error
	CreateHold(ctx context.Context, hold domain.Hold) error
	GetHold(ctx context.Context, id string) (domain.Hold, error)
	GetHoldForUpdate(ctx context.Context, id string) (domain.Hold, error)
	ListHoldsByUser(ctx context.Context, userID string) ([]domain.Hold, error)
	TerminateHold(ctx context.Context, id string, to domain.HoldStatus, at time.Time) (bool, error)
	ListDueHolds(ctx context.Context, now time.Time, limit int) ([]domain.Hold, error)
	AppendEvent(ctx context.Context, ev domain.DomainEvent) error
}

type HoldService struct {
	repo    HoldRepository
	clock   clock.Clock
	holdTTL time.Duration
}

const defaultHoldTTL = 15 * time.Minute

func NewHoldService(repo HoldRepository, clk clock.Clock, opts ...HoldServiceOption) *HoldService {
	svc := &HoldService{
		repo:    repo,
		clock:   clk,
		holdTTL: defaultHoldTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type HoldServiceOption func(*HoldService)

// WithHoldTTL overrides the default TTL for new holds.
func WithHoldTTL(d time.Duration) HoldServiceOption {
	return func(s *HoldService) {
		if d > 0 {
			s.holdTTL = d
		}
	}
}

type CreateHoldInput struct {
	UserID   string
	HotelID  string
	CheckIn  time.Time
	CheckOut time.Time
	Guests   int
	Rooms    []domain.RoomQuantity
	Currency string
}

func (in CreateHoldInput) validate() error {
	if !domain.NormalizeDate(in.CheckOut).After(domain.NormalizeDate(in.CheckIn)) {
		return domain.ErrInvalidDateRange
	}
	if in.Guests <= 0 {
		return domain.ErrInvalidGuestCount
	}
	if len(in.Rooms) == 0 {
		return domain.ErrInvalidQuantity
	}
	for _, r := range in.Rooms {
		if r.RoomID == "" || r.Quantity <= 0 {
			return domain.ErrInvalidQuantity
		}
	}
	return nil
}

// CreateHold claims inventory for every (room, night) of the stay and
// persists the hold, all in one transaction. On any failed claim nothing is
// mutated and ErrInsufficientInventory surfaces unchanged.
func (s *HoldService) CreateHold(ctx context.Context, in CreateHoldInput) (domain.Hold, error) {
	if err := in.validate(); err != nil {
		return domain.Hold{}, err
	}

	now := s.clock.Now()
	nights := domain.StayNights(in.CheckIn, in.CheckOut)

	hold := domain.Hold{
		ID:        uuid.NewString(),
		UserID:    in.UserID,
		HotelID:   in.HotelID,
		CheckIn:   domain.NormalizeDate(in.CheckIn),
		CheckOut:  domain.NormalizeDate(in.CheckOut),
		Guests:    in.Guests,
		Rooms:     in.Rooms,
		Currency:  in.Currency,
		Status:    domain.HoldStatusActive,
		ExpiresAt: now.Add(s.holdTTL),
		CreatedAt: now,
	}

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		total, err := s.repo.ClaimStay(txCtx, in.HotelID, in.Rooms, nights, in.Currency)
		if err != nil {
			return err
		}
		hold.TotalCents = total

		if err := s.repo.CreateHold(txCtx, hold); err != nil {
			return err
		}
		return s.appendInventoryChanged(txCtx, hold, "hold_created", now)
	})
	if err != nil {
		return domain.Hold{}, err
	}

	metrics.HoldsCreatedTotal.Inc()
	return hold, nil
}

// Release moves an active hold to released and reverses its ledger claim.
// Terminal holds are a successful no-op so manual release, the expiry sweep
// and finalization are safe to race.
func (s *HoldService) Release(ctx context.Context, holdID, requesterID string) (domain.Hold, error) {
	hold, changed, err := s.terminate(ctx, holdID, requesterID, domain.HoldStatusReleased, "hold_released")
	if err != nil {
		return domain.Hold{}, err
	}
	if changed {
		metrics.HoldsTerminatedTotal.WithLabelValues("released").Inc()
	}
	return hold, nil
}

// Expire drives the same terminal transition as Release, tagged expired.
// Called by the sweeper; ownership is not checked.
func (s *HoldService) Expire(ctx context.Context, holdID string) (domain.Hold, error) {
	hold, changed, err := s.terminate(ctx, holdID, "", domain.HoldStatusExpired, "hold_expired")
	if err != nil {
		return domain.Hold{}, err
	}
	if changed {
		metrics.HoldsTerminatedTotal.WithLabelValues("expired").Inc()
	}
	return hold, nil
}

func (s *HoldService) Get(ctx context.Context, holdID, requesterID string) (domain.Hold, error) {
	hold, err := s.repo.GetHold(ctx, holdID)
	if err != nil {
		return domain.Hold{}, err
	}
	if requesterID != "" && hold.UserID != requesterID {
		return domain.Hold{}, domain.ErrHoldNotOwned
	}
	return hold, nil
}

func (s *HoldService) ListByUser(ctx context.Context, userID string) ([]domain.Hold, error) {
	return s.repo.ListHoldsByUser(ctx, userID)
}

func (s *HoldService) terminate(ctx context.Context, holdID, requesterID string, to domain.HoldStatus, reason string) (domain.Hold, bool, error) {
	now := s.clock.Now()
	var (
		result  domain.Hold
		changed bool
	)

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		hold, err := s.repo.GetHoldForUpdate(txCtx, holdID)
		if err != nil {
			return err
		}
		if requesterID != "" && hold.UserID != requesterID {
			return domain.ErrHoldNotOwned
		}
		if hold.Status.IsTerminal() {
			result = hold
			return nil
		}

		flipped, err := s.repo.TerminateHold(txCtx, holdID, to, now)
		if err != nil {
			return err
		}
		if !flipped {
			// Someone else won the race between our read and the update.
			result, err = s.repo.GetHold(txCtx, holdID)
			return err
		}

		if err := s.repo.ReleaseStay(txCtx, hold.Rooms, hold.Nights()); err != nil {
			return err
		}
		if err := s.appendInventoryChanged(txCtx, hold, reason, now); err != nil {
			return err
		}

		hold.Status = to
		hold.ReleasedAt = &now
		result = hold
		changed = true
		return nil
	})
	if err != nil {
		return domain.Hold{}, false, err
	}
	return result, changed, nil
}

func (s *HoldService) appendInventoryChanged(ctx context.Context, hold domain.Hold, reason string, at time.Time) error {
	roomIDs := make([]string, 0, len(hold.Rooms))
	for _, r := range hold.Rooms {
		roomIDs = append(roomIDs, r.RoomID)
	}
	ev, err := domain.NewDomainEvent(domain.EventRoomInventoryChanged, hold.HotelID, domain.RoomInventoryChangedPayload{
		HotelID: hold.HotelID,
		RoomIDs: roomIDs,
		Reason:  reason,
	}, at)
	if err != nil {
		return err
	}
	return s.repo.AppendEvent(ctx, ev)
}
