// Package payments links bookings to gateway transactions and applies gateway outcomes exactly
// once. Callbacks may arrive late, twice, or out of order; each one is checked against the
// booking's current payment status under the booking lock before anything changes.
package payments

import (
	"context"
	"errors"
	"fmt"
	"lodging/src/apperr"
	"lodging/src/balance"
	"lodging/src/config"
	"lodging/src/ledger"
	"lodging/src/lib"
	"lodging/src/models"
	"lodging/src/store"
	"lodging/src/types"
	"log"
	"time"
)

// checkoutTTL bounds how long a hosted checkout stays open.
const checkoutTTL = time.Hour

type Gateway interface {
	CreateSession(ctx context.Context, p lib.CheckoutParams) (*lib.CheckoutSession, error)
	Refund(ctx context.Context, transactionID string) error
}

type Result struct {
	BookingID        uint                `json:"booking_id"`
	Status           types.BookingStatus `json:"status"`
	PaymentStatus    types.PaymentStatus `json:"payment_status"`
	AlreadyProcessed bool                `json:"already_processed"`
}

type Reconciler struct {
	store    store.Store
	ledger   *ledger.Ledger
	balance  *balance.Projector
	gateway  Gateway
	events   lib.Publisher
	retry    lib.RetryConfig
	policy   config.FailurePolicy
	currency string
	now      func() time.Time
}

func New(s store.Store, l *ledger.Ledger, b *balance.Projector, g Gateway, cfg *config.Config) *Reconciler {
	return &Reconciler{
		store:    s,
		ledger:   l,
		balance:  b,
		gateway:  g,
		retry:    lib.RetryConfig{MaxAttempts: cfg.RetryMaxAttempts, BaseDelay: cfg.RetryBaseDelay},
		policy:   cfg.FailurePolicy,
		currency: config.CURRENCY,
		now:      time.Now,
	}
}

func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

func (r *Reconciler) WithPublisher(p lib.Publisher) *Reconciler {
	r.events = p
	return r
}

// payable reports whether the guest may open a checkout for b. Under the keep policy a failed
// payment can be retried.
func (r *Reconciler) payable(b *models.Booking, guestID uint) error {
	if b.GuestID != guestID {
		return apperr.New(apperr.Forbidden, "booking %d belongs to another guest", b.ID)
	}
	if b.Status != types.BOOKING_CONFIRMED {
		return apperr.Transition(b.ID, "booking %d is %s, only confirmed bookings can be paid", b.ID, b.Status)
	}
	switch b.PaymentStatus {
	case types.PAYMENT_UNPAID:
		return nil
	case types.PAYMENT_FAILED:
		if r.policy == config.FAILURE_KEEP {
			return nil
		}
	}
	return apperr.Transition(b.ID, "booking %d payment is %s", b.ID, b.PaymentStatus)
}

// OpenSession creates a gateway checkout for a confirmed, unpaid booking and records its
// transaction id. The gateway call happens outside any transaction; the booking is re-checked
// under its lock before the id is attached.
func (r *Reconciler) OpenSession(ctx context.Context, guestID, bookingID uint) (*lib.CheckoutSession, error) {
	var b *models.Booking
	err := r.store.Transaction(ctx, func(tx store.Tx) error {
		var err error
		b, err = tx.GetBooking(ctx, bookingID)
		if err != nil {
			return notFound(err)
		}
		return r.payable(b, guestID)
	})
	if err != nil {
		return nil, err
	}

	session, err := r.gateway.CreateSession(ctx, lib.CheckoutParams{
		BookingID:   b.ID,
		Amount:      b.Amount,
		Currency:    r.currency,
		Description: fmt.Sprintf("Booking #%d, %d nights", b.ID, b.Nights()),
		ExpiresAt:   r.now().Add(checkoutTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	err = r.retry.Do(ctx, "attach transaction", func() error {
		return r.store.Transaction(ctx, func(tx store.Tx) error {
			if err := tx.Lock(ctx, store.BookingLock, bookingID); err != nil {
				return err
			}
			cur, err := tx.GetBooking(ctx, bookingID)
			if err != nil {
				return notFound(err)
			}
			if err := r.payable(cur, guestID); err != nil {
				return err
			}
			cur.TransactionID = &session.ID
			cur.PaymentStatus = types.PAYMENT_PENDING
			if err := tx.UpdateBooking(ctx, cur); err != nil {
				if errors.Is(err, store.ErrDuplicate) {
					return apperr.New(apperr.AlreadyProcessed, "transaction %s is already attached", session.ID)
				}
				return err
			}
			return nil
		})
	})
	if err != nil {
		log.Printf("[payments] dropping checkout session %s for booking %d: %s\n", session.ID, bookingID, err.Error())
		return nil, err
	}
	log.Printf("[payments] booking %d awaiting payment on %s\n", bookingID, session.ID)
	return session, nil
}

// OnGatewayCallback applies a gateway outcome for transactionID. A repeated outcome returns the
// current state together with an AlreadyProcessed error and changes nothing.
func (r *Reconciler) OnGatewayCallback(ctx context.Context, transactionID string, outcome types.PaymentOutcome) (*Result, error) {
	switch outcome {
	case types.OUTCOME_SUCCEEDED, types.OUTCOME_FAILED, types.OUTCOME_REFUNDED:
	default:
		return nil, apperr.New(apperr.BadInput, "unknown payment outcome %q", outcome)
	}

	var (
		result    *Result
		applied   *models.Booking
		cancelled bool
	)
	err := r.retry.Do(ctx, "payment callback", func() error {
		applied, cancelled = nil, false
		return r.store.Transaction(ctx, func(tx store.Tx) error {
			b, err := tx.GetBookingByTransaction(ctx, transactionID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return apperr.New(apperr.UnknownTransaction, "no booking for transaction %s", transactionID)
				}
				return err
			}
			if outcome == types.OUTCOME_REFUNDED {
				if err := tx.Lock(ctx, store.HostLock, b.HostID); err != nil {
					return err
				}
			}
			if err := tx.Lock(ctx, store.BookingLock, b.ID); err != nil {
				return err
			}
			if b, err = tx.GetBooking(ctx, b.ID); err != nil {
				return err
			}

			var done error
			switch outcome {
			case types.OUTCOME_SUCCEEDED:
				done = r.succeed(ctx, tx, b)
			case types.OUTCOME_FAILED:
				cancelled, done = r.fail(ctx, tx, b)
			case types.OUTCOME_REFUNDED:
				cancelled, done = r.refund(ctx, tx, b)
			}
			result = &Result{BookingID: b.ID, Status: b.Status, PaymentStatus: b.PaymentStatus}
			if apperr.Has(done, apperr.AlreadyProcessed) {
				result.AlreadyProcessed = true
				return nil
			}
			if done != nil {
				return done
			}
			applied = b
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if result.AlreadyProcessed {
		return result, apperr.New(apperr.AlreadyProcessed, "transaction %s already %s", transactionID, result.PaymentStatus)
	}

	log.Printf("[payments] %s: booking %d is %s/%s\n", transactionID, applied.ID, applied.Status, applied.PaymentStatus)
	r.balance.Invalidate(ctx, applied.HostID)
	switch outcome {
	case types.OUTCOME_SUCCEEDED:
		r.emit(ctx, lib.EVENT_PAYMENT_SUCCEEDED, applied)
	case types.OUTCOME_FAILED:
		r.emit(ctx, lib.EVENT_PAYMENT_FAILED, applied)
	case types.OUTCOME_REFUNDED:
		r.emit(ctx, lib.EVENT_PAYMENT_REFUNDED, applied)
	}
	if cancelled {
		r.emit(ctx, lib.EVENT_BOOKING_CANCELLED, applied)
	}
	return result, nil
}

func (r *Reconciler) succeed(ctx context.Context, tx store.Tx, b *models.Booking) error {
	switch b.PaymentStatus {
	case types.PAYMENT_PAID, types.PAYMENT_REFUNDING, types.PAYMENT_REFUNDED:
		return apperr.New(apperr.AlreadyProcessed, "")
	}
	if b.Status != types.BOOKING_CONFIRMED {
		log.Printf("[payments] payment captured for %s booking %d, needs a refund\n", b.Status, b.ID)
		return apperr.Transition(b.ID, "booking %d is %s and cannot take a payment", b.ID, b.Status)
	}
	b.PaymentStatus = types.PAYMENT_PAID
	if err := tx.UpdateBooking(ctx, b); err != nil {
		return err
	}
	if _, err := r.ledger.RecordCommission(ctx, tx, b); err != nil && !apperr.Has(err, apperr.AlreadyProcessed) {
		return err
	}
	return nil
}

func (r *Reconciler) fail(ctx context.Context, tx store.Tx, b *models.Booking) (bool, error) {
	switch b.PaymentStatus {
	case types.PAYMENT_FAILED, types.PAYMENT_PAID, types.PAYMENT_REFUNDING, types.PAYMENT_REFUNDED:
		return false, apperr.New(apperr.AlreadyProcessed, "")
	}
	b.PaymentStatus = types.PAYMENT_FAILED
	cancelled := false
	if r.policy == config.FAILURE_RELEASE && b.Status == types.BOOKING_CONFIRMED {
		b.Status = types.BOOKING_CANCELLED
		b.CancelReason = "payment failed"
		cancelled = true
	}
	return cancelled, tx.UpdateBooking(ctx, b)
}

// refund records a gateway refund. A booking in refunding already had its host share reserved
// when the refund was started, so its reversal is always recorded.
func (r *Reconciler) refund(ctx context.Context, tx store.Tx, b *models.Booking) (bool, error) {
	reserved := false
	switch b.PaymentStatus {
	case types.PAYMENT_REFUNDED:
		return false, apperr.New(apperr.AlreadyProcessed, "")
	case types.PAYMENT_REFUNDING:
		reserved = true
	case types.PAYMENT_PAID:
	default:
		return false, apperr.Transition(b.ID, "booking %d payment is %s, nothing to refund", b.ID, b.PaymentStatus)
	}
	b.PaymentStatus = types.PAYMENT_REFUNDED
	cancelled := false
	if b.Status != types.BOOKING_COMPLETED {
		b.Status = types.BOOKING_CANCELLED
		b.CancelReason = "refunded"
		cancelled = true
	}
	if err := tx.UpdateBooking(ctx, b); err != nil {
		return false, err
	}
	if _, err := r.ledger.RecordRefund(ctx, tx, b); err != nil && !apperr.Has(err, apperr.AlreadyProcessed) {
		return false, err
	}
	if reserved {
		return cancelled, nil
	}
	s, err := r.balance.Compute(ctx, tx, b.HostID)
	if err != nil {
		return false, err
	}
	if s.AvailableBalance.IsNegative() {
		return false, apperr.New(apperr.InsufficientBalance, "refund of booking %d exceeds the available balance of host %d", b.ID, b.HostID)
	}
	return cancelled, nil
}

// Refund is the operator path. The host share is reserved by moving the booking to refunding
// under the host lock, so no payout can take it while the gateway refund is in flight. The
// refund is then reconciled like a gateway callback.
func (r *Reconciler) Refund(ctx context.Context, operatorID, bookingID uint) (*Result, error) {
	var (
		txn    string
		hostID uint
	)
	err := r.store.Transaction(ctx, func(tx store.Tx) error {
		b, err := tx.GetBooking(ctx, bookingID)
		if err != nil {
			return notFound(err)
		}
		if err := tx.Lock(ctx, store.HostLock, b.HostID); err != nil {
			return err
		}
		if err := tx.Lock(ctx, store.BookingLock, b.ID); err != nil {
			return err
		}
		if b, err = tx.GetBooking(ctx, b.ID); err != nil {
			return err
		}
		if b.PaymentStatus != types.PAYMENT_PAID || b.Status != types.BOOKING_CONFIRMED {
			return apperr.Transition(b.ID, "booking %d is %s/%s and cannot be refunded", b.ID, b.Status, b.PaymentStatus)
		}
		b.PaymentStatus = types.PAYMENT_REFUNDING
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return err
		}
		s, err := r.balance.Compute(ctx, tx, b.HostID)
		if err != nil {
			return err
		}
		if s.AvailableBalance.IsNegative() {
			return apperr.New(apperr.InsufficientBalance, "refund of booking %d exceeds the available balance of host %d", b.ID, b.HostID)
		}
		txn, hostID = b.Transaction(), b.HostID
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.balance.Invalidate(ctx, hostID)

	if err := r.gateway.Refund(ctx, txn); err != nil {
		r.release(ctx, bookingID)
		return nil, fmt.Errorf("gateway refund: %w", err)
	}
	log.Printf("[payments] operator %d refunded booking %d (%s)\n", operatorID, bookingID, txn)

	result, err := r.OnGatewayCallback(ctx, txn, types.OUTCOME_REFUNDED)
	if apperr.Has(err, apperr.AlreadyProcessed) {
		return result, nil
	}
	return result, err
}

// release puts a booking whose gateway refund failed back to paid. If that fails too the
// booking stays in refunding, which keeps the host share withheld until an operator retries.
func (r *Reconciler) release(ctx context.Context, bookingID uint) {
	var hostID uint
	err := r.retry.Do(ctx, "refund release", func() error {
		return r.store.Transaction(ctx, func(tx store.Tx) error {
			b, err := tx.GetBooking(ctx, bookingID)
			if err != nil {
				return err
			}
			if err := tx.Lock(ctx, store.BookingLock, b.ID); err != nil {
				return err
			}
			if b, err = tx.GetBooking(ctx, b.ID); err != nil {
				return err
			}
			hostID = b.HostID
			if b.PaymentStatus != types.PAYMENT_REFUNDING {
				return nil
			}
			b.PaymentStatus = types.PAYMENT_PAID
			return tx.UpdateBooking(ctx, b)
		})
	})
	if err != nil {
		log.Printf("[payments] Error releasing refund of booking %d: %s\n", bookingID, err.Error())
		return
	}
	r.balance.Invalidate(ctx, hostID)
}

func (r *Reconciler) emit(ctx context.Context, t lib.EventType, b *models.Booking) {
	lib.Emit(ctx, r.events, lib.NewEvent(t, b.EventKey(), b.EventPayload()))
}

func notFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.New(apperr.NotFound, "booking not found")
	}
	return err
}
