package scopes

import (
	"lodging/src/types"
	"time"

	"gorm.io/gorm"
)

func WithID(id uint) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("id = ?", id)
	}
}

// Holding matches bookings that still block their dates: confirmed ones, and pending ones
// created at or after cutoff.
func Holding(cutoff time.Time) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(
			"(status = ? OR (status = ? AND created_at >= ?))",
			types.BOOKING_CONFIRMED, types.BOOKING_PENDING, cutoff,
		)
	}
}

// Overlapping matches bookings whose [check_in, check_out) intersects [from, to).
func Overlapping(from, to time.Time) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("check_in < ? AND check_out > ?", to, from)
	}
}

func CreatedBefore(t time.Time) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("created_at < ?", t)
	}
}

func CreatedFrom(t time.Time) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("created_at >= ?", t)
	}
}

func CheckOutOnOrBefore(day time.Time) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("check_out <= ?", day)
	}
}
