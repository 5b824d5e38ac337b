// Package ledger is the append-only record of money movements. Entries are never updated or
// deleted; corrections are new entries. Idempotency keys make replayed writes harmless.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"lodging/src/apperr"
	"lodging/src/balance"
	"lodging/src/models"
	"lodging/src/store"
	"lodging/src/types"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Uploader stores exported statements.
type Uploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

type Ledger struct {
	store    store.Store
	balance  *balance.Projector
	uploader Uploader
	now      func() time.Time
}

func New(s store.Store, b *balance.Projector) *Ledger {
	return &Ledger{store: s, balance: b, now: time.Now}
}

func (l *Ledger) WithUploader(u Uploader) *Ledger {
	l.uploader = u
	return l
}

func CommissionKey(transactionID string) string { return "commission:" + transactionID }
func RefundKey(transactionID string) string     { return "refund:" + transactionID }
func PayoutKey(payoutID uint) string            { return fmt.Sprintf("payout:%d", payoutID) }

// Append validates e and inserts it inside tx. A repeated idempotency key yields
// AlreadyProcessed and leaves the ledger untouched.
func (l *Ledger) Append(ctx context.Context, tx store.Tx, e *models.LedgerEntry) (uuid.UUID, error) {
	return l.append(ctx, tx, e, false)
}

func (l *Ledger) append(ctx context.Context, tx store.Tx, e *models.LedgerEntry, reversal bool) (uuid.UUID, error) {
	if err := validate(e, reversal); err != nil {
		return uuid.Nil, err
	}
	if e.IdempotencyKey != nil {
		seen, err := tx.FindEntries(ctx, store.LedgerFilter{IdempotencyKey: *e.IdempotencyKey, Limit: 1})
		if err != nil {
			return uuid.Nil, err
		}
		if len(seen) > 0 {
			return seen[0].ID, apperr.New(apperr.AlreadyProcessed, "entry %s already recorded", *e.IdempotencyKey)
		}
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.now().UTC()
	}
	if err := tx.AppendEntry(ctx, e); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return uuid.Nil, apperr.New(apperr.AlreadyProcessed, "entry already recorded")
		}
		return uuid.Nil, err
	}
	return e.ID, nil
}

func validate(e *models.LedgerEntry, reversal bool) error {
	switch e.Type {
	case types.LEDGER_COMMISSION:
		if e.HostID == nil || e.RefType != types.REF_BOOKING {
			return apperr.New(apperr.BadInput, "commission entries reference a booking and its host")
		}
		if !reversal && (e.Amount.IsNegative() || e.HostAmount.IsNegative()) {
			return apperr.New(apperr.BadInput, "commission must not be negative")
		}
		if reversal && (e.Amount.IsPositive() || e.HostAmount.IsPositive()) {
			return apperr.New(apperr.BadInput, "refund reversal must not be positive")
		}
	case types.LEDGER_PAYOUT:
		if e.HostID == nil || e.RefType != types.REF_PAYOUT {
			return apperr.New(apperr.BadInput, "payout entries reference a payout request and its host")
		}
		if !e.Amount.IsNegative() {
			return apperr.New(apperr.BadInput, "payout amount must be negative")
		}
	case types.LEDGER_SPEND:
		if !e.Amount.IsNegative() {
			return apperr.New(apperr.BadInput, "spend amount must be negative")
		}
		if !e.HostAmount.IsZero() {
			return apperr.New(apperr.BadInput, "spend does not touch host earnings")
		}
	case types.LEDGER_ADJUSTMENT:
		if e.Amount.IsZero() && e.HostAmount.IsZero() {
			return apperr.New(apperr.BadInput, "adjustment must move money")
		}
		if e.HostID == nil && !e.HostAmount.IsZero() {
			return apperr.New(apperr.BadInput, "host amount needs a host")
		}
	default:
		return apperr.New(apperr.BadInput, "unknown entry type %q", e.Type)
	}
	if e.RefType == "" {
		e.SetRef(models.NoRef)
	}
	return nil
}

// RecordCommission books the platform commission of a paid booking, keyed on its transaction.
func (l *Ledger) RecordCommission(ctx context.Context, tx store.Tx, b *models.Booking) (uuid.UUID, error) {
	txn := b.Transaction()
	key := CommissionKey(txn)
	hostID := b.HostID
	e := &models.LedgerEntry{
		Type:           types.LEDGER_COMMISSION,
		Amount:         b.Commission,
		HostAmount:     b.HostShare(),
		HostID:         &hostID,
		TransactionID:  &txn,
		IdempotencyKey: &key,
	}
	e.SetRef(models.BookingRef(b.ID))
	return l.append(ctx, tx, e, false)
}

// RecordRefund reverses the commission entry of a refunded booking.
func (l *Ledger) RecordRefund(ctx context.Context, tx store.Tx, b *models.Booking) (uuid.UUID, error) {
	txn := b.Transaction()
	key := RefundKey(txn)
	hostID := b.HostID
	e := &models.LedgerEntry{
		Type:           types.LEDGER_COMMISSION,
		Amount:         b.Commission.Neg(),
		HostAmount:     b.HostShare().Neg(),
		HostID:         &hostID,
		TransactionID:  &txn,
		IdempotencyKey: &key,
		Note:           "refund",
	}
	e.SetRef(models.BookingRef(b.ID))
	return l.append(ctx, tx, e, true)
}

// RecordPayout debits an approved payout request.
func (l *Ledger) RecordPayout(ctx context.Context, tx store.Tx, p *models.PayoutRequest) (uuid.UUID, error) {
	key := PayoutKey(p.ID)
	hostID := p.HostID
	e := &models.LedgerEntry{
		Type:           types.LEDGER_PAYOUT,
		Amount:         p.Amount.Neg(),
		HostAmount:     p.Amount.Neg(),
		HostID:         &hostID,
		IdempotencyKey: &key,
		Note:           p.Note,
	}
	e.SetRef(models.PayoutRef(p.ID))
	return l.append(ctx, tx, e, false)
}

// RecordSpend books platform spending. amount is the positive sum spent.
func (l *Ledger) RecordSpend(ctx context.Context, amount decimal.Decimal, note string) (*models.LedgerEntry, error) {
	if !amount.IsPositive() {
		return nil, apperr.New(apperr.BadInput, "spend amount must be positive")
	}
	if strings.TrimSpace(note) == "" {
		return nil, apperr.New(apperr.BadInput, "spend needs a note")
	}
	e := &models.LedgerEntry{
		Type:   types.LEDGER_SPEND,
		Amount: amount.Neg(),
		Note:   note,
	}
	err := l.store.Transaction(ctx, func(tx store.Tx) error {
		_, err := l.Append(ctx, tx, e)
		return err
	})
	if err != nil {
		return nil, err
	}
	l.balance.Invalidate(ctx)
	return e, nil
}

// RecordAdjustment books an operator correction. A host debit is refused when it would leave
// the host's available balance negative.
func (l *Ledger) RecordAdjustment(ctx context.Context, hostID *uint, amount, hostAmount decimal.Decimal, note string) (*models.LedgerEntry, error) {
	if strings.TrimSpace(note) == "" {
		return nil, apperr.New(apperr.BadInput, "adjustment needs a note")
	}
	e := &models.LedgerEntry{
		Type:       types.LEDGER_ADJUSTMENT,
		Amount:     amount,
		HostAmount: hostAmount,
		HostID:     hostID,
		Note:       note,
	}
	err := l.store.Transaction(ctx, func(tx store.Tx) error {
		if hostID != nil {
			if err := tx.Lock(ctx, store.HostLock, *hostID); err != nil {
				return err
			}
		}
		if _, err := l.Append(ctx, tx, e); err != nil {
			return err
		}
		if hostID == nil || !hostAmount.IsNegative() {
			return nil
		}
		s, err := l.balance.Compute(ctx, tx, *hostID)
		if err != nil {
			return err
		}
		if s.AvailableBalance.IsNegative() {
			return apperr.New(apperr.InsufficientBalance, "adjustment exceeds available balance of host %d", *hostID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if hostID != nil {
		l.balance.Invalidate(ctx, *hostID)
	} else {
		l.balance.Invalidate(ctx)
	}
	return e, nil
}

type Query struct {
	Types []types.LedgerEntryType
	// From is inclusive, To exclusive.
	From, To *time.Time
	Limit    int
}

func (q Query) filter(hostID uint) store.LedgerFilter {
	return store.LedgerFilter{
		HostID: hostID,
		Types:  q.Types,
		From:   q.From,
		To:     q.To,
		Limit:  q.Limit,
	}
}

func (l *Ledger) QueryByHost(ctx context.Context, hostID uint, q Query) ([]models.LedgerEntry, error) {
	if hostID == 0 {
		return nil, apperr.New(apperr.BadInput, "host id required")
	}
	return l.find(ctx, q.filter(hostID))
}

// Query lists entries across the platform, optionally narrowed to one host.
func (l *Ledger) Query(ctx context.Context, hostID uint, q Query) ([]models.LedgerEntry, error) {
	return l.find(ctx, q.filter(hostID))
}

func (l *Ledger) find(ctx context.Context, f store.LedgerFilter) ([]models.LedgerEntry, error) {
	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return nil, apperr.New(apperr.InvalidRange, "from must be before to")
	}
	var entries []models.LedgerEntry
	err := l.store.Transaction(ctx, func(tx store.Tx) error {
		var err error
		entries, err = tx.FindEntries(ctx, f)
		return err
	})
	return entries, err
}
