// Package store is the persistence boundary of the engine. Every read and write happens inside
// Store.Transaction; check-then-act sequences take a partition lock first.
package store

import (
	"context"
	"errors"
	"lodging/src/models"
	"lodging/src/types"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate key")
)

// LockScope namespaces partition locks so a listing and a host with the same id never collide.
type LockScope int64

const (
	ListingLock LockScope = iota + 1
	HostLock
	BookingLock
)

type Store interface {
	// Transaction runs fn atomically. A non-nil error from fn rolls everything back.
	Transaction(ctx context.Context, fn func(tx Tx) error) error
}

type Tx interface {
	// Lock blocks until the partition lock for (scope, id) is held. Released at commit or rollback.
	Lock(ctx context.Context, scope LockScope, id uint) error

	GetListing(ctx context.Context, id uint) (*models.Listing, error)

	InsertBooking(ctx context.Context, b *models.Booking) error
	GetBooking(ctx context.Context, id uint) (*models.Booking, error)
	GetBookingByTransaction(ctx context.Context, transactionID string) (*models.Booking, error)
	UpdateBooking(ctx context.Context, b *models.Booking) error
	FindBookings(ctx context.Context, f BookingFilter) ([]models.Booking, error)
	SumBookings(ctx context.Context, f BookingFilter) (*BookingTotals, error)

	AppendEntry(ctx context.Context, e *models.LedgerEntry) error
	FindEntries(ctx context.Context, f LedgerFilter) ([]models.LedgerEntry, error)
	SumEntries(ctx context.Context, f LedgerFilter) (*EntryTotals, error)

	InsertPayout(ctx context.Context, p *models.PayoutRequest) error
	GetPayout(ctx context.Context, id uint) (*models.PayoutRequest, error)
	UpdatePayout(ctx context.Context, p *models.PayoutRequest) error
	FindPayouts(ctx context.Context, f PayoutFilter) ([]models.PayoutRequest, error)
	SumPayouts(ctx context.Context, f PayoutFilter) (decimal.Decimal, error)
}

type BookingFilter struct {
	ListingID       uint
	HostID          uint
	GuestID         uint
	Statuses        []types.BookingStatus
	PaymentStatuses []types.PaymentStatus

	// OverlapFrom and OverlapTo keep bookings intersecting [OverlapFrom, OverlapTo).
	OverlapFrom, OverlapTo *time.Time
	// HoldingCutoff keeps only bookings that hold their dates given this pending cutoff.
	HoldingCutoff *time.Time
	CreatedBefore *time.Time
	// CheckOutBy keeps bookings with check_out <= CheckOutBy.
	CheckOutBy *time.Time
	Limit      int
}

func (f BookingFilter) Match(b *models.Booking) bool {
	if f.ListingID != 0 && b.ListingID != f.ListingID {
		return false
	}
	if f.HostID != 0 && b.HostID != f.HostID {
		return false
	}
	if f.GuestID != 0 && b.GuestID != f.GuestID {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, b.Status) {
		return false
	}
	if len(f.PaymentStatuses) > 0 && !slices.Contains(f.PaymentStatuses, b.PaymentStatus) {
		return false
	}
	if f.OverlapFrom != nil && f.OverlapTo != nil && !b.Overlaps(*f.OverlapFrom, *f.OverlapTo) {
		return false
	}
	if f.HoldingCutoff != nil && !b.HoldsSince(*f.HoldingCutoff) {
		return false
	}
	if f.CreatedBefore != nil && !b.CreatedAt.Before(*f.CreatedBefore) {
		return false
	}
	if f.CheckOutBy != nil && b.CheckOut.After(*f.CheckOutBy) {
		return false
	}
	return true
}

type BookingTotals struct {
	Count      int64
	Amount     decimal.Decimal
	Commission decimal.Decimal
}

// HostShare of the matched bookings.
func (t *BookingTotals) HostShare() decimal.Decimal {
	return t.Amount.Sub(t.Commission)
}

type LedgerFilter struct {
	HostID         uint
	Types          []types.LedgerEntryType
	RefType        types.LedgerRefType
	RefID          uint
	TransactionID  string
	IdempotencyKey string
	// From is inclusive, To exclusive.
	From, To *time.Time
	Limit    int
}

func (f LedgerFilter) Match(e *models.LedgerEntry) bool {
	if f.HostID != 0 && (e.HostID == nil || *e.HostID != f.HostID) {
		return false
	}
	if len(f.Types) > 0 && !slices.Contains(f.Types, e.Type) {
		return false
	}
	if f.RefType != "" && (e.RefType != f.RefType || e.RefID != f.RefID) {
		return false
	}
	if f.TransactionID != "" && (e.TransactionID == nil || *e.TransactionID != f.TransactionID) {
		return false
	}
	if f.IdempotencyKey != "" && (e.IdempotencyKey == nil || *e.IdempotencyKey != f.IdempotencyKey) {
		return false
	}
	if f.From != nil && e.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !e.CreatedAt.Before(*f.To) {
		return false
	}
	return true
}

type EntryTotals struct {
	Count      int64
	Amount     decimal.Decimal
	HostAmount decimal.Decimal
}

type PayoutFilter struct {
	HostID   uint
	Statuses []types.PayoutStatus
	Limit    int
}

func (f PayoutFilter) Match(p *models.PayoutRequest) bool {
	if f.HostID != 0 && p.HostID != f.HostID {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, p.Status) {
		return false
	}
	return true
}
