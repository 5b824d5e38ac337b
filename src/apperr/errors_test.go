package apperr

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	err := fmt.Errorf("create booking: %w", BookingConflict(7))

	assert.Equal(t, Conflict, CodeOf(err))
	assert.True(t, Has(err, Conflict))
	assert.False(t, Has(err, InvalidRange))
	assert.Equal(t, Code(""), CodeOf(errors.New("boom")))
	assert.False(t, Has(nil, Conflict))

	var e *Error
	assert.True(t, errors.As(err, &e))
	assert.Equal(t, uint(7), e.BookingID)
}

func TestIsMatchesByCode(t *testing.T) {
	err := New(InsufficientBalance, "available %s", "10.00")

	assert.True(t, errors.Is(err, New(InsufficientBalance, "")))
	assert.False(t, errors.Is(err, New(Conflict, "")))
	assert.Equal(t, "insufficient_balance: available 10.00", err.Error())
}

func TestBlockedDateConflict(t *testing.T) {
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	err := BlockedDateConflict(day)

	assert.Equal(t, Conflict, err.Code)
	assert.Equal(t, uint(0), err.BookingID)
	assert.True(t, err.Date.Equal(day))
	assert.Contains(t, err.Error(), "2026-03-14")
}
