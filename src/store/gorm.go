package store

import (
	"context"
	"errors"
	"lodging/src/models"
	"lodging/src/models/scopes"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormStore keeps engine state in postgres. Partition locks are transaction-scoped advisory locks.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
}

type gormTx struct {
	db *gorm.DB
}

// LockKey packs scope and id into the single bigint key space of pg_advisory_xact_lock.
func LockKey(scope LockScope, id uint) int64 {
	return int64(scope)<<40 | int64(id)
}

func (t *gormTx) Lock(ctx context.Context, scope LockScope, id uint) error {
	return translate(t.db.WithContext(ctx).Exec("SELECT pg_advisory_xact_lock(?)", LockKey(scope, id)).Error)
}

func (t *gormTx) GetListing(ctx context.Context, id uint) (*models.Listing, error) {
	var listing models.Listing
	if err := t.db.WithContext(ctx).
		Preload("BlockedDates").
		Scopes(scopes.WithID(id)).
		First(&listing).
		Error; err != nil {
		return nil, translate(err)
	}
	return &listing, nil
}

func (t *gormTx) InsertBooking(ctx context.Context, b *models.Booking) error {
	return translate(t.db.WithContext(ctx).Create(b).Error)
}

func (t *gormTx) GetBooking(ctx context.Context, id uint) (*models.Booking, error) {
	var b models.Booking
	if err := t.db.WithContext(ctx).Scopes(scopes.WithID(id)).First(&b).Error; err != nil {
		return nil, translate(err)
	}
	return &b, nil
}

func (t *gormTx) GetBookingByTransaction(ctx context.Context, transactionID string) (*models.Booking, error) {
	var b models.Booking
	if err := t.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		First(&b).
		Error; err != nil {
		return nil, translate(err)
	}
	return &b, nil
}

func (t *gormTx) UpdateBooking(ctx context.Context, b *models.Booking) error {
	res := t.db.WithContext(ctx).
		Model(b).
		Select("status", "payment_status", "transaction_id", "cancel_reason", "updated_at").
		Updates(b)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *gormTx) FindBookings(ctx context.Context, f BookingFilter) ([]models.Booking, error) {
	var bookings []models.Booking
	q := t.db.WithContext(ctx).Scopes(bookingFilter(f)).Order("id")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if err := q.Find(&bookings).Error; err != nil {
		return nil, translate(err)
	}
	return bookings, nil
}

func (t *gormTx) SumBookings(ctx context.Context, f BookingFilter) (*BookingTotals, error) {
	var totals BookingTotals
	if err := t.db.WithContext(ctx).
		Model(&models.Booking{}).
		Scopes(bookingFilter(f)).
		Select("COUNT(*) AS count, COALESCE(SUM(amount), 0) AS amount, COALESCE(SUM(commission), 0) AS commission").
		Scan(&totals).
		Error; err != nil {
		return nil, translate(err)
	}
	return &totals, nil
}

func (t *gormTx) AppendEntry(ctx context.Context, e *models.LedgerEntry) error {
	return translate(t.db.WithContext(ctx).Create(e).Error)
}

func (t *gormTx) FindEntries(ctx context.Context, f LedgerFilter) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	q := t.db.WithContext(ctx).Scopes(ledgerFilter(f)).Order("created_at, id")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, translate(err)
	}
	return entries, nil
}

func (t *gormTx) SumEntries(ctx context.Context, f LedgerFilter) (*EntryTotals, error) {
	var totals EntryTotals
	if err := t.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Scopes(ledgerFilter(f)).
		Select("COUNT(*) AS count, COALESCE(SUM(amount), 0) AS amount, COALESCE(SUM(host_amount), 0) AS host_amount").
		Scan(&totals).
		Error; err != nil {
		return nil, translate(err)
	}
	return &totals, nil
}

func (t *gormTx) InsertPayout(ctx context.Context, p *models.PayoutRequest) error {
	return translate(t.db.WithContext(ctx).Create(p).Error)
}

func (t *gormTx) GetPayout(ctx context.Context, id uint) (*models.PayoutRequest, error) {
	var p models.PayoutRequest
	if err := t.db.WithContext(ctx).Scopes(scopes.WithID(id)).First(&p).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (t *gormTx) UpdatePayout(ctx context.Context, p *models.PayoutRequest) error {
	res := t.db.WithContext(ctx).
		Model(p).
		Select("status", "reviewed_by", "note", "updated_at").
		Updates(p)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *gormTx) FindPayouts(ctx context.Context, f PayoutFilter) ([]models.PayoutRequest, error) {
	var payouts []models.PayoutRequest
	q := t.db.WithContext(ctx).Scopes(payoutFilter(f)).Order("id")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if err := q.Find(&payouts).Error; err != nil {
		return nil, translate(err)
	}
	return payouts, nil
}

func (t *gormTx) SumPayouts(ctx context.Context, f PayoutFilter) (decimal.Decimal, error) {
	var total amountTotal
	if err := t.db.WithContext(ctx).
		Model(&models.PayoutRequest{}).
		Scopes(payoutFilter(f)).
		Select("COALESCE(SUM(amount), 0) AS amount").
		Scan(&total).
		Error; err != nil {
		return decimal.Zero, translate(err)
	}
	return total.Amount, nil
}

type amountTotal struct {
	Amount decimal.Decimal
}

func bookingFilter(f BookingFilter) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if f.ListingID != 0 {
			db = db.Where("listing_id = ?", f.ListingID)
		}
		if f.HostID != 0 {
			db = db.Where("host_id = ?", f.HostID)
		}
		if f.GuestID != 0 {
			db = db.Where("guest_id = ?", f.GuestID)
		}
		if len(f.Statuses) > 0 {
			db = db.Where("status IN ?", f.Statuses)
		}
		if len(f.PaymentStatuses) > 0 {
			db = db.Where("payment_status IN ?", f.PaymentStatuses)
		}
		if f.OverlapFrom != nil && f.OverlapTo != nil {
			db = db.Scopes(scopes.Overlapping(*f.OverlapFrom, *f.OverlapTo))
		}
		if f.HoldingCutoff != nil {
			db = db.Scopes(scopes.Holding(*f.HoldingCutoff))
		}
		if f.CreatedBefore != nil {
			db = db.Scopes(scopes.CreatedBefore(*f.CreatedBefore))
		}
		if f.CheckOutBy != nil {
			db = db.Scopes(scopes.CheckOutOnOrBefore(*f.CheckOutBy))
		}
		return db
	}
}

func ledgerFilter(f LedgerFilter) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if f.HostID != 0 {
			db = db.Where("host_id = ?", f.HostID)
		}
		if len(f.Types) > 0 {
			db = db.Where("type IN ?", f.Types)
		}
		if f.RefType != "" {
			db = db.Where("ref_type = ? AND ref_id = ?", f.RefType, f.RefID)
		}
		if f.TransactionID != "" {
			db = db.Where("transaction_id = ?", f.TransactionID)
		}
		if f.IdempotencyKey != "" {
			db = db.Where("idempotency_key = ?", f.IdempotencyKey)
		}
		if f.From != nil {
			db = db.Scopes(scopes.CreatedFrom(*f.From))
		}
		if f.To != nil {
			db = db.Scopes(scopes.CreatedBefore(*f.To))
		}
		return db
	}
}

func payoutFilter(f PayoutFilter) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if f.HostID != 0 {
			db = db.Where("host_id = ?", f.HostID)
		}
		if len(f.Statuses) > 0 {
			db = db.Where("status IN ?", f.Statuses)
		}
		return db
	}
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return ErrDuplicate
	}
	return err
}
