package store

import (
	"context"
	"errors"
	"lodging/src/models"
	"lodging/src/types"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockStore(t *testing.T) (*GormStore, *gorm.DB, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return NewGormStore(gormDB), gormDB, mock
}

func TestGormLockTakesAdvisoryLock(t *testing.T) {
	s, _, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock($1)")).
		WithArgs(LockKey(ListingLock, 9)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := s.Transaction(context.Background(), func(tx Tx) error {
		return tx.Lock(context.Background(), ListingLock, 9)
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockKeysDoNotCollideAcrossScopes(t *testing.T) {
	assert.NotEqual(t, LockKey(ListingLock, 1), LockKey(HostLock, 1))
	assert.NotEqual(t, LockKey(HostLock, 1), LockKey(BookingLock, 1))
	assert.Equal(t, LockKey(ListingLock, 1), LockKey(ListingLock, 1))
}

func TestGormGetBookingNotFound(t *testing.T) {
	s, _, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "bookings" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	err := s.Transaction(context.Background(), func(tx Tx) error {
		_, err := tx.GetBooking(context.Background(), 42)
		return err
	})

	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormAppendEntryDuplicate(t *testing.T) {
	s, _, mock := newMockStore(t)
	key := "commission:cs_test_1"

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "ledger_entries"`).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})
	mock.ExpectRollback()

	err := s.Transaction(context.Background(), func(tx Tx) error {
		return tx.AppendEntry(context.Background(), &models.LedgerEntry{
			ID:             uuid.New(),
			Type:           types.LEDGER_COMMISSION,
			Amount:         decimal.NewFromInt(1500),
			RefType:        types.REF_BOOKING,
			RefID:          1,
			IdempotencyKey: &key,
		})
	})

	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormSumEntries(t *testing.T) {
	s, _, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT\(\*\) AS count, COALESCE\(SUM\(amount\), 0\) AS amount, COALESCE\(SUM\(host_amount\), 0\) AS host_amount FROM "ledger_entries" WHERE host_id = \$1 AND type IN \(\$2,\$3\)`).
		WithArgs(7, types.LEDGER_COMMISSION, types.LEDGER_ADJUSTMENT).
		WillReturnRows(sqlmock.NewRows([]string{"count", "amount", "host_amount"}).AddRow(2, "1500.00", "15000.00"))
	mock.ExpectCommit()

	var totals *EntryTotals
	err := s.Transaction(context.Background(), func(tx Tx) error {
		var err error
		totals, err = tx.SumEntries(context.Background(), LedgerFilter{
			HostID: 7,
			Types:  []types.LedgerEntryType{types.LEDGER_COMMISSION, types.LEDGER_ADJUSTMENT},
		})
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, int64(2), totals.Count)
	assert.True(t, decimal.NewFromInt(1500).Equal(totals.Amount))
	assert.True(t, decimal.NewFromInt(15000).Equal(totals.HostAmount))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormFindHoldingBookings(t *testing.T) {
	s, _, mock := newMockStore(t)
	from := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 3)
	cutoff := from.Add(-24 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "bookings" WHERE listing_id = \$1 AND \(check_in < \$2 AND check_out > \$3\) AND .*status = \$4 OR \(status = \$5 AND created_at >= \$6\).* ORDER BY id LIMIT \$7`).
		WithArgs(3, to, from, types.BOOKING_CONFIRMED, types.BOOKING_PENDING, cutoff, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "listing_id", "status"}).AddRow(11, 3, "confirmed"))
	mock.ExpectCommit()

	var found []models.Booking
	err := s.Transaction(context.Background(), func(tx Tx) error {
		var err error
		found, err = tx.FindBookings(context.Background(), BookingFilter{
			ListingID:     3,
			OverlapFrom:   &from,
			OverlapTo:     &to,
			HoldingCutoff: &cutoff,
			Limit:         1,
		})
		return err
	})

	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, uint(11), found[0].ID)
	assert.Equal(t, types.BOOKING_CONFIRMED, found[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormUpdateBookingMissingRow(t *testing.T) {
	s, _, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "bookings" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.Transaction(context.Background(), func(tx Tx) error {
		return tx.UpdateBooking(context.Background(), &models.Booking{
			ID:            99,
			Status:        types.BOOKING_CANCELLED,
			PaymentStatus: types.PAYMENT_UNPAID,
		})
	})

	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerEntriesRefuseUpdates(t *testing.T) {
	_, gormDB, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := gormDB.Model(&models.LedgerEntry{ID: uuid.New()}).Update("note", "edited").Error

	assert.True(t, errors.Is(err, models.ErrLedgerImmutable))
	assert.NoError(t, mock.ExpectationsWereMet())
}
