package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Listing is owned by listing management; the engine only reads it.
type Listing struct {
	ID             uint            `gorm:"primarykey" json:"id"`
	HostID         uint            `gorm:"index" json:"host_id"`
	Title          string          `json:"title,omitempty"`
	BasePrice      decimal.Decimal `gorm:"type:numeric(14,2)" json:"base_price"`
	Commission     decimal.Decimal `gorm:"type:numeric(14,2)" json:"commission"`
	InstantBooking bool            `json:"instant_booking"`
	MaxGuests      int             `json:"max_guests,omitempty"`

	BlockedDates []ListingBlockedDate `gorm:"foreignKey:ListingID" json:"blocked_dates,omitempty"`
}

type ListingBlockedDate struct {
	ListingID uint      `gorm:"primaryKey" json:"-"`
	Day       time.Time `gorm:"primaryKey;type:date" json:"day"`
}

// TotalPrice is what a guest pays per night.
func (l *Listing) TotalPrice() decimal.Decimal {
	return l.BasePrice.Add(l.Commission)
}

func (l *Listing) AcceptsGuests(n int) bool {
	if n < 1 {
		return false
	}
	return l.MaxGuests <= 0 || n <= l.MaxGuests
}
