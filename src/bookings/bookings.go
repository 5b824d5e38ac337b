// Package bookings drives a booking through its lifecycle:
//
//	pending --approve--> confirmed --complete--> completed
//	pending --reject/expire/cancel--> cancelled
//	confirmed --cancel (unpaid) / payment failure / refund--> cancelled
//
// Payment transitions belong to the payments package. Nothing here writes to the ledger.
package bookings

import (
	"context"
	"errors"
	"lodging/src/apperr"
	"lodging/src/availability"
	"lodging/src/balance"
	"lodging/src/config"
	"lodging/src/lib"
	"lodging/src/models"
	"lodging/src/store"
	"lodging/src/types"
	"lodging/src/utils"
	"log"
	"time"

	"github.com/shopspring/decimal"
)

type Service struct {
	store      store.Store
	index      *availability.Index
	balance    *balance.Projector
	events     lib.Publisher
	retry      lib.RetryConfig
	holdWindow time.Duration
	now        func() time.Time
}

func New(s store.Store, index *availability.Index, b *balance.Projector, cfg *config.Config) *Service {
	return &Service{
		store:      s,
		index:      index,
		balance:    b,
		retry:      lib.RetryConfig{MaxAttempts: cfg.RetryMaxAttempts, BaseDelay: cfg.RetryBaseDelay},
		holdWindow: cfg.HoldWindow,
		now:        time.Now,
	}
}

func (s *Service) WithPublisher(p lib.Publisher) *Service {
	s.events = p
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type CreateParams struct {
	ListingID uint
	GuestID   uint
	CheckIn   time.Time
	CheckOut  time.Time
	Guests    int
	Mode      types.BookingMode
}

// Create validates the request, claims the dates and inserts the booking in one transaction.
// Instant bookings are confirmed right away; request bookings wait for the host.
func (s *Service) Create(ctx context.Context, p CreateParams) (*models.Booking, error) {
	checkIn, checkOut := utils.Day(p.CheckIn), utils.Day(p.CheckOut)
	if !checkIn.Before(checkOut) {
		return nil, apperr.New(apperr.InvalidRange, "check-in must be before check-out")
	}
	if checkIn.Before(utils.Day(s.now())) {
		return nil, apperr.New(apperr.InvalidRange, "check-in is in the past")
	}
	if p.Guests < 1 {
		return nil, apperr.New(apperr.CapacityExceeded, "at least one guest is required")
	}

	var b *models.Booking
	err := s.store.Transaction(ctx, func(tx store.Tx) error {
		listing, err := tx.GetListing(ctx, p.ListingID)
		if err != nil {
			return notFound(err, "listing")
		}
		if !listing.AcceptsGuests(p.Guests) {
			return apperr.New(apperr.CapacityExceeded, "listing sleeps at most %d guests", listing.MaxGuests)
		}
		if listing.HostID == p.GuestID {
			return apperr.New(apperr.Forbidden, "hosts cannot book their own listing")
		}

		mode := types.BOOKING_MODE_REQUEST
		if p.Mode == types.BOOKING_MODE_INSTANT && listing.InstantBooking {
			mode = types.BOOKING_MODE_INSTANT
		}
		status := types.BOOKING_PENDING
		if mode == types.BOOKING_MODE_INSTANT {
			status = types.BOOKING_CONFIRMED
		}
		nights := decimalNights(checkIn, checkOut)
		b = &models.Booking{
			ListingID:     listing.ID,
			GuestID:       p.GuestID,
			HostID:        listing.HostID,
			CheckIn:       checkIn,
			CheckOut:      checkOut,
			Guests:        p.Guests,
			Mode:          mode,
			Status:        status,
			PaymentStatus: types.PAYMENT_UNPAID,
			NightlyPrice:  listing.TotalPrice(),
			Commission:    listing.Commission.Mul(nights),
			Amount:        listing.TotalPrice().Mul(nights),
		}
		return s.index.Hold(ctx, tx, listing, b)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[bookings] created booking %d on listing %d (%s)\n", b.ID, b.ListingID, b.Status)
	s.emit(ctx, lib.EVENT_BOOKING_CREATED, b)
	if b.Status == types.BOOKING_CONFIRMED {
		s.emit(ctx, lib.EVENT_BOOKING_CONFIRMED, b)
	}
	s.balance.Invalidate(ctx)
	return b, nil
}

// HostApprove confirms a pending request. A request whose hold already lapsed cannot be
// approved since its dates may have been taken in the meantime.
func (s *Service) HostApprove(ctx context.Context, hostID, bookingID uint) (*models.Booking, error) {
	b, err := s.transition(ctx, bookingID, func(b *models.Booking) error {
		if b.HostID != hostID {
			return apperr.New(apperr.Forbidden, "booking %d belongs to another host", b.ID)
		}
		if err := requirePendingRequest(b); err != nil {
			return err
		}
		if !b.Holds(s.now(), s.holdWindow) {
			return apperr.Transition(b.ID, "the hold on booking %d has expired", b.ID)
		}
		b.Status = types.BOOKING_CONFIRMED
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, lib.EVENT_BOOKING_CONFIRMED, b)
	return b, nil
}

func (s *Service) HostReject(ctx context.Context, hostID, bookingID uint, reason string) (*models.Booking, error) {
	b, err := s.transition(ctx, bookingID, func(b *models.Booking) error {
		if b.HostID != hostID {
			return apperr.New(apperr.Forbidden, "booking %d belongs to another host", b.ID)
		}
		if err := requirePendingRequest(b); err != nil {
			return err
		}
		b.Status = types.BOOKING_CANCELLED
		b.CancelReason = reasonOr(reason, "rejected by host")
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, lib.EVENT_BOOKING_REJECTED, b)
	return b, nil
}

// Cancel lets the guest withdraw before money has moved. Paid stays are cancelled through a refund.
func (s *Service) Cancel(ctx context.Context, guestID, bookingID uint, reason string) (*models.Booking, error) {
	b, err := s.transition(ctx, bookingID, func(b *models.Booking) error {
		if b.GuestID != guestID {
			return apperr.New(apperr.Forbidden, "booking %d belongs to another guest", b.ID)
		}
		switch {
		case b.Status == types.BOOKING_PENDING:
		case b.Status == types.BOOKING_CONFIRMED &&
			(b.PaymentStatus == types.PAYMENT_UNPAID || b.PaymentStatus == types.PAYMENT_FAILED):
		default:
			return apperr.Transition(b.ID, "cannot cancel a %s booking with payment %s", b.Status, b.PaymentStatus)
		}
		b.Status = types.BOOKING_CANCELLED
		b.CancelReason = reasonOr(reason, "cancelled by guest")
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, lib.EVENT_BOOKING_CANCELLED, b)
	return b, nil
}

// ExpirePendingHolds cancels pending bookings older than the hold window. Safe to run at any
// time: every candidate is re-checked under its lock.
func (s *Service) ExpirePendingHolds(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.holdWindow)
	candidates, err := s.candidates(ctx, store.BookingFilter{
		Statuses:      []types.BookingStatus{types.BOOKING_PENDING},
		CreatedBefore: &cutoff,
	})
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, id := range candidates {
		b, err := s.sweep(ctx, "expire", id, func(b *models.Booking) bool {
			if b.Status != types.BOOKING_PENDING || b.Holds(s.now(), s.holdWindow) {
				return false
			}
			b.Status = types.BOOKING_CANCELLED
			b.CancelReason = "hold expired"
			return true
		})
		if err != nil {
			return expired, err
		}
		if b != nil {
			expired++
			s.emit(ctx, lib.EVENT_BOOKING_EXPIRED, b)
		}
	}
	return expired, nil
}

// SweepCompletions marks paid stays whose check-out day has come as completed, which releases
// the host share from pending to available.
func (s *Service) SweepCompletions(ctx context.Context) (int, error) {
	today := utils.Day(s.now())
	candidates, err := s.candidates(ctx, store.BookingFilter{
		Statuses:        []types.BookingStatus{types.BOOKING_CONFIRMED},
		PaymentStatuses: []types.PaymentStatus{types.PAYMENT_PAID},
		CheckOutBy:      &today,
	})
	if err != nil {
		return 0, err
	}
	completed := 0
	for _, id := range candidates {
		b, err := s.sweep(ctx, "complete", id, func(b *models.Booking) bool {
			if b.Status != types.BOOKING_CONFIRMED || b.PaymentStatus != types.PAYMENT_PAID || b.CheckOut.After(today) {
				return false
			}
			b.Status = types.BOOKING_COMPLETED
			return true
		})
		if err != nil {
			return completed, err
		}
		if b != nil {
			completed++
			s.balance.Invalidate(ctx, b.HostID)
			s.emit(ctx, lib.EVENT_BOOKING_COMPLETED, b)
		}
	}
	return completed, nil
}

func (s *Service) Get(ctx context.Context, bookingID uint) (*models.Booking, error) {
	var b *models.Booking
	err := s.store.Transaction(ctx, func(tx store.Tx) error {
		var err error
		b, err = tx.GetBooking(ctx, bookingID)
		return notFound(err, "booking")
	})
	return b, err
}

func (s *Service) ListForGuest(ctx context.Context, guestID uint) ([]models.Booking, error) {
	return s.list(ctx, store.BookingFilter{GuestID: guestID})
}

func (s *Service) ListForHost(ctx context.Context, hostID uint) ([]models.Booking, error) {
	return s.list(ctx, store.BookingFilter{HostID: hostID})
}

func (s *Service) list(ctx context.Context, f store.BookingFilter) ([]models.Booking, error) {
	var bookings []models.Booking
	err := s.store.Transaction(ctx, func(tx store.Tx) error {
		var err error
		bookings, err = tx.FindBookings(ctx, f)
		return err
	})
	return bookings, err
}

// transition applies fn to the booking under its lock and persists the result.
func (s *Service) transition(ctx context.Context, bookingID uint, fn func(b *models.Booking) error) (*models.Booking, error) {
	var b *models.Booking
	err := s.retry.Do(ctx, "booking transition", func() error {
		return s.store.Transaction(ctx, func(tx store.Tx) error {
			if err := tx.Lock(ctx, store.BookingLock, bookingID); err != nil {
				return err
			}
			var err error
			b, err = tx.GetBooking(ctx, bookingID)
			if err != nil {
				return notFound(err, "booking")
			}
			if err := fn(b); err != nil {
				return err
			}
			return tx.UpdateBooking(ctx, b)
		})
	})
	if err != nil {
		return nil, err
	}
	s.balance.Invalidate(ctx)
	return b, nil
}

func (s *Service) candidates(ctx context.Context, f store.BookingFilter) ([]uint, error) {
	bookings, err := s.list(ctx, f)
	if err != nil {
		return nil, err
	}
	ids := make([]uint, len(bookings))
	for i := range bookings {
		ids[i] = bookings[i].ID
	}
	return ids, nil
}

// sweep re-checks one booking under its lock. It returns the updated booking, or nil when
// apply found nothing to do.
func (s *Service) sweep(ctx context.Context, name string, bookingID uint, apply func(b *models.Booking) bool) (*models.Booking, error) {
	var changed *models.Booking
	err := s.retry.Do(ctx, "sweep "+name, func() error {
		changed = nil
		return s.store.Transaction(ctx, func(tx store.Tx) error {
			if err := tx.Lock(ctx, store.BookingLock, bookingID); err != nil {
				return err
			}
			b, err := tx.GetBooking(ctx, bookingID)
			if err != nil {
				return err
			}
			if !apply(b) {
				return nil
			}
			if err := tx.UpdateBooking(ctx, b); err != nil {
				return err
			}
			changed = b
			return nil
		})
	})
	if err != nil {
		log.Printf("[sweep] %s booking %d: %s\n", name, bookingID, err.Error())
		return nil, err
	}
	return changed, nil
}

func (s *Service) emit(ctx context.Context, t lib.EventType, b *models.Booking) {
	lib.Emit(ctx, s.events, lib.NewEvent(t, b.EventKey(), b.EventPayload()))
}

func requirePendingRequest(b *models.Booking) error {
	if b.Status != types.BOOKING_PENDING || b.Mode != types.BOOKING_MODE_REQUEST {
		return apperr.Transition(b.ID, "booking %d is %s, not a pending request", b.ID, b.Status)
	}
	return nil
}

func reasonOr(reason, fallback string) string {
	if reason == "" {
		return fallback
	}
	return reason
}

func notFound(err error, what string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.New(apperr.NotFound, "%s not found", what)
	}
	return err
}

func decimalNights(checkIn, checkOut time.Time) decimal.Decimal {
	return decimal.NewFromInt(int64(utils.Nights(checkIn, checkOut)))
}
