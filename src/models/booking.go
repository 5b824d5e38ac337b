package models

import (
	"fmt"
	"lodging/src/types"
	"lodging/src/utils"
	"time"

	"github.com/shopspring/decimal"
)

type Booking struct {
	ID            uint                `gorm:"primarykey" json:"id"`
	ListingID     uint                `gorm:"index:idx_bookings_listing_range" json:"listing_id"`
	GuestID       uint                `gorm:"index" json:"guest_id"`
	HostID        uint                `gorm:"index" json:"host_id"`
	CheckIn       time.Time           `gorm:"type:date;index:idx_bookings_listing_range" json:"check_in"`
	CheckOut      time.Time           `gorm:"type:date;index:idx_bookings_listing_range" json:"check_out"`
	Guests        int                 `json:"guests"`
	Mode          types.BookingMode   `gorm:"type:varchar(16)" json:"mode"`
	Status        types.BookingStatus `gorm:"type:varchar(16);index" json:"status"`
	PaymentStatus types.PaymentStatus `gorm:"type:varchar(16);index" json:"payment_status"`
	NightlyPrice  decimal.Decimal     `gorm:"type:numeric(14,2)" json:"nightly_price"`
	Commission    decimal.Decimal     `gorm:"type:numeric(14,2)" json:"commission"`
	Amount        decimal.Decimal     `gorm:"type:numeric(14,2)" json:"amount"`
	TransactionID *string             `gorm:"uniqueIndex" json:"transaction_id,omitempty"`
	CancelReason  string              `json:"cancel_reason,omitempty"`

	types.Timestamps
}

func (b *Booking) Nights() int {
	return utils.Nights(b.CheckIn, b.CheckOut)
}

// HostShare is the part of the amount owed to the host once the booking is paid.
func (b *Booking) HostShare() decimal.Decimal {
	return b.Amount.Sub(b.Commission)
}

// Holds reports whether the booking still blocks its dates. Pending bookings stop holding once
// they are older than the hold window, even before the expiry sweep cancels them.
func (b *Booking) Holds(now time.Time, holdWindow time.Duration) bool {
	return b.HoldsSince(now.Add(-holdWindow))
}

// HoldsSince is Holds expressed with the pending cutoff instead of the window.
func (b *Booking) HoldsSince(cutoff time.Time) bool {
	switch b.Status {
	case types.BOOKING_CONFIRMED:
		return true
	case types.BOOKING_PENDING:
		return !b.CreatedAt.Before(cutoff)
	}
	return false
}

func (b *Booking) Overlaps(checkIn, checkOut time.Time) bool {
	return utils.Overlaps(checkIn, checkOut, b.CheckIn, b.CheckOut)
}

func (b *Booking) Transaction() string {
	if b.TransactionID == nil {
		return ""
	}
	return *b.TransactionID
}

func (b *Booking) EventKey() string {
	return fmt.Sprintf("booking:%d", b.ID)
}

func (b *Booking) EventPayload() map[string]any {
	return map[string]any{
		"booking_id":     b.ID,
		"listing_id":     b.ListingID,
		"guest_id":       b.GuestID,
		"host_id":        b.HostID,
		"check_in":       utils.FormatDay(b.CheckIn),
		"check_out":      utils.FormatDay(b.CheckOut),
		"status":         b.Status,
		"payment_status": b.PaymentStatus,
		"amount":         b.Amount.String(),
	}
}
