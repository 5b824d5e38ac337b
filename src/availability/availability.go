// Package availability decides whether a date range of a listing is free and claims it.
//
// A range [in, out) is taken when it overlaps a holding booking or contains a blocked day.
// Holding bookings are the confirmed ones plus pending ones younger than the hold window, so an
// abandoned request stops blocking as soon as the window lapses, sweep or no sweep.
package availability

import (
	"context"
	"errors"
	"lodging/src/apperr"
	"lodging/src/models"
	"lodging/src/store"
	"lodging/src/utils"
	"time"
)

type Index struct {
	store      store.Store
	holdWindow time.Duration
	now        func() time.Time
}

func New(s store.Store, holdWindow time.Duration) *Index {
	return &Index{store: s, holdWindow: holdWindow, now: time.Now}
}

// WithClock replaces the wall clock, for tests.
func (x *Index) WithClock(now func() time.Time) *Index {
	x.now = now
	return x
}

func (x *Index) HoldWindow() time.Duration {
	return x.holdWindow
}

// IsAvailable is a point-in-time answer; only Hold is authoritative.
func (x *Index) IsAvailable(ctx context.Context, listingID uint, checkIn, checkOut time.Time) (bool, error) {
	checkIn, checkOut = utils.Day(checkIn), utils.Day(checkOut)
	if !checkIn.Before(checkOut) {
		return false, apperr.New(apperr.InvalidRange, "check-in must be before check-out")
	}
	err := x.store.Transaction(ctx, func(tx store.Tx) error {
		listing, err := tx.GetListing(ctx, listingID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apperr.New(apperr.NotFound, "listing %d not found", listingID)
			}
			return err
		}
		return x.check(ctx, tx, listing, checkIn, checkOut)
	})
	if apperr.Has(err, apperr.Conflict) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Hold claims the booking's range inside the caller's transaction and inserts the booking.
// The booking id becomes the hold id. The listing lock serializes concurrent holds, so of two
// overlapping attempts exactly one commits.
func (x *Index) Hold(ctx context.Context, tx store.Tx, listing *models.Listing, b *models.Booking) error {
	if err := tx.Lock(ctx, store.ListingLock, listing.ID); err != nil {
		return err
	}
	if err := x.check(ctx, tx, listing, b.CheckIn, b.CheckOut); err != nil {
		return err
	}
	return tx.InsertBooking(ctx, b)
}

func (x *Index) check(ctx context.Context, tx store.Tx, listing *models.Listing, checkIn, checkOut time.Time) error {
	for _, blocked := range listing.BlockedDates {
		day := utils.Day(blocked.Day)
		if utils.Overlaps(checkIn, checkOut, day, day.AddDate(0, 0, 1)) {
			return apperr.BlockedDateConflict(day)
		}
	}
	cutoff := x.now().Add(-x.holdWindow)
	holding, err := tx.FindBookings(ctx, store.BookingFilter{
		ListingID:     listing.ID,
		OverlapFrom:   &checkIn,
		OverlapTo:     &checkOut,
		HoldingCutoff: &cutoff,
		Limit:         1,
	})
	if err != nil {
		return err
	}
	if len(holding) > 0 {
		return apperr.BookingConflict(holding[0].ID)
	}
	return nil
}
