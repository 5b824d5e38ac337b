// Package apperr holds the caller-facing errors of the booking and ledger engine.
// Every error here is recoverable; infrastructure failures are never wrapped in one.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

type Code string

const (
	Conflict            Code = "conflict"
	InvalidRange        Code = "invalid_range"
	CapacityExceeded    Code = "capacity_exceeded"
	IllegalTransition   Code = "illegal_transition"
	UnknownTransaction  Code = "unknown_transaction"
	InsufficientBalance Code = "insufficient_balance"
	AlreadyProcessed    Code = "already_processed"
	NotFound            Code = "not_found"
	Forbidden           Code = "forbidden"
	BadInput            Code = "bad_input"
)

type Error struct {
	Code    Code
	Message string

	// BookingID is the conflicting or affected booking, when there is one.
	BookingID uint
	// Date is set when a conflict comes from a blocked date.
	Date *time.Time
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any *Error with the same code, so errors.Is(err, apperr.New(apperr.Conflict, "")) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func BookingConflict(bookingID uint) *Error {
	return &Error{
		Code:      Conflict,
		Message:   fmt.Sprintf("dates overlap booking %d", bookingID),
		BookingID: bookingID,
	}
}

func BlockedDateConflict(day time.Time) *Error {
	d := day
	return &Error{
		Code:    Conflict,
		Message: fmt.Sprintf("%s is blocked by the host", day.Format("2006-01-02")),
		Date:    &d,
	}
}

func Transition(bookingID uint, format string, args ...any) *Error {
	return &Error{
		Code:      IllegalTransition,
		Message:   fmt.Sprintf(format, args...),
		BookingID: bookingID,
	}
}

// CodeOf extracts the code of err, or "" when err is not an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func Has(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
