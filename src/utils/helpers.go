package utils

import (
	"lodging/src/config"
	"time"
)

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func ParseDay(s string) (time.Time, error) {
	d, err := time.Parse(config.DATE_FORMAT, s)
	if err != nil {
		return time.Time{}, err
	}
	return Day(d), nil
}

func FormatDay(t time.Time) string {
	return Day(t).Format(config.DATE_FORMAT)
}

// Nights counts the nights between check-in and check-out. Zero or negative when the range is empty.
func Nights(checkIn, checkOut time.Time) int {
	return int(Day(checkOut).Sub(Day(checkIn)).Hours() / 24)
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}
