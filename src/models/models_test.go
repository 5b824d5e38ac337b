package models

import (
	"lodging/src/types"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func day(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func TestBookingHolds(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	window := 30 * time.Minute

	tests := []struct {
		name    string
		status  types.BookingStatus
		created time.Time
		want    bool
	}{
		{"confirmed always holds", types.BOOKING_CONFIRMED, now.Add(-48 * time.Hour), true},
		{"fresh pending holds", types.BOOKING_PENDING, now.Add(-10 * time.Minute), true},
		{"pending at the cutoff holds", types.BOOKING_PENDING, now.Add(-window), true},
		{"stale pending releases", types.BOOKING_PENDING, now.Add(-window - time.Second), false},
		{"cancelled never holds", types.BOOKING_CANCELLED, now, false},
		{"completed never holds", types.BOOKING_COMPLETED, now, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Booking{Status: tt.status}
			b.CreatedAt = tt.created
			assert.Equal(t, tt.want, b.Holds(now, window))
			assert.Equal(t, tt.want, b.HoldsSince(now.Add(-window)))
		})
	}
}

func TestBookingAmounts(t *testing.T) {
	b := Booking{
		CheckIn:    day("2026-03-01"),
		CheckOut:   day("2026-03-04"),
		Amount:     decimal.RequireFromString("165.00"),
		Commission: decimal.RequireFromString("15.00"),
	}
	assert.Equal(t, 3, b.Nights())
	assert.True(t, b.HostShare().Equal(decimal.NewFromInt(150)))

	assert.True(t, b.Overlaps(day("2026-03-03"), day("2026-03-05")))
	assert.False(t, b.Overlaps(day("2026-03-04"), day("2026-03-06")))
	assert.False(t, b.Overlaps(day("2026-02-27"), day("2026-03-01")))
}

func TestBookingEvent(t *testing.T) {
	txn := "cs_test_1"
	b := Booking{ID: 9, ListingID: 1, CheckIn: day("2026-03-01"), CheckOut: day("2026-03-02"), Status: types.BOOKING_CONFIRMED}
	assert.Equal(t, "", b.Transaction())
	b.TransactionID = &txn
	assert.Equal(t, "cs_test_1", b.Transaction())

	assert.Equal(t, "booking:9", b.EventKey())
	payload := b.EventPayload()
	assert.Equal(t, "2026-03-01", payload["check_in"])
	assert.Equal(t, types.BOOKING_CONFIRMED, payload["status"])
}

func TestListing(t *testing.T) {
	l := Listing{BasePrice: decimal.NewFromInt(50), Commission: decimal.NewFromInt(5), MaxGuests: 2}
	assert.True(t, l.TotalPrice().Equal(decimal.NewFromInt(55)))
	assert.True(t, l.AcceptsGuests(2))
	assert.False(t, l.AcceptsGuests(3))
	assert.False(t, l.AcceptsGuests(0))

	l.MaxGuests = 0
	assert.True(t, l.AcceptsGuests(12))
}

func TestLedgerEntryRef(t *testing.T) {
	var e LedgerEntry
	assert.Equal(t, NoRef, e.Ref())

	e.SetRef(BookingRef(4))
	assert.Equal(t, Ref{Type: types.REF_BOOKING, ID: 4}, e.Ref())

	e.SetRef(Ref{Type: types.REF_NONE, ID: 99})
	assert.Equal(t, NoRef, e.Ref())
	assert.Zero(t, e.RefID)

	e.SetRef(Ref{})
	assert.Equal(t, types.REF_NONE, e.RefType)
}

func TestPayoutEvent(t *testing.T) {
	p := PayoutRequest{ID: 3, HostID: 10, Amount: decimal.RequireFromString("12.50"), Status: types.PAYOUT_PENDING}
	p.Method.Kind = types.PAYOUT_METHOD_BANK
	assert.Equal(t, "host:10", p.EventKey())
	assert.Equal(t, "12.5", p.EventPayload()["amount"])
	assert.Equal(t, types.PAYOUT_METHOD_BANK, p.EventPayload()["method"])
}
