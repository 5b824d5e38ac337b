package store

import (
	"context"
	"lodging/src/models"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemoryStore is an in-process Store. Transactions are serialized and work on a staged copy
// that replaces the committed state only when fn succeeds, so Lock has nothing left to do.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
	now   func() time.Time
}

type memState struct {
	listings    map[uint]models.Listing
	bookings    map[uint]models.Booking
	entries     []models.LedgerEntry
	payouts     map[uint]models.PayoutRequest
	nextBooking uint
	nextPayout  uint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: &memState{
			listings: map[uint]models.Listing{},
			bookings: map[uint]models.Booking{},
			payouts:  map[uint]models.PayoutRequest{},
		},
		now: time.Now,
	}
}

// WithClock sets the clock used for created/updated timestamps the caller left empty.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

// PutListing stands in for listing management.
func (s *MemoryStore) PutListing(l models.Listing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.listings[l.ID] = cloneListing(l)
}

func (s *MemoryStore) Transaction(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	staged := s.state.clone()
	if err := fn(&memTx{st: staged, now: s.now}); err != nil {
		return err
	}
	s.state = staged
	return nil
}

func (st *memState) clone() *memState {
	c := &memState{
		listings:    make(map[uint]models.Listing, len(st.listings)),
		bookings:    make(map[uint]models.Booking, len(st.bookings)),
		entries:     make([]models.LedgerEntry, len(st.entries)),
		payouts:     make(map[uint]models.PayoutRequest, len(st.payouts)),
		nextBooking: st.nextBooking,
		nextPayout:  st.nextPayout,
	}
	for k, v := range st.listings {
		c.listings[k] = v
	}
	for k, v := range st.bookings {
		c.bookings[k] = v
	}
	copy(c.entries, st.entries)
	for k, v := range st.payouts {
		c.payouts[k] = v
	}
	return c
}

func cloneListing(l models.Listing) models.Listing {
	l.BlockedDates = append([]models.ListingBlockedDate(nil), l.BlockedDates...)
	return l
}

type memTx struct {
	st  *memState
	now func() time.Time
}

func (t *memTx) Lock(ctx context.Context, scope LockScope, id uint) error {
	return ctx.Err()
}

func (t *memTx) GetListing(ctx context.Context, id uint) (*models.Listing, error) {
	l, ok := t.st.listings[id]
	if !ok {
		return nil, ErrNotFound
	}
	l = cloneListing(l)
	return &l, nil
}

func (t *memTx) InsertBooking(ctx context.Context, b *models.Booking) error {
	if b.TransactionID != nil && t.transactionTaken(*b.TransactionID, 0) {
		return ErrDuplicate
	}
	t.st.nextBooking++
	b.ID = t.st.nextBooking
	now := t.now()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = b.CreatedAt
	}
	t.st.bookings[b.ID] = *b
	return nil
}

func (t *memTx) transactionTaken(transactionID string, except uint) bool {
	for id, b := range t.st.bookings {
		if id != except && b.TransactionID != nil && *b.TransactionID == transactionID {
			return true
		}
	}
	return false
}

func (t *memTx) GetBooking(ctx context.Context, id uint) (*models.Booking, error) {
	b, ok := t.st.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (t *memTx) GetBookingByTransaction(ctx context.Context, transactionID string) (*models.Booking, error) {
	for _, b := range t.st.bookings {
		if b.TransactionID != nil && *b.TransactionID == transactionID {
			return &b, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) UpdateBooking(ctx context.Context, b *models.Booking) error {
	cur, ok := t.st.bookings[b.ID]
	if !ok {
		return ErrNotFound
	}
	if b.TransactionID != nil && t.transactionTaken(*b.TransactionID, b.ID) {
		return ErrDuplicate
	}
	cur.Status = b.Status
	cur.PaymentStatus = b.PaymentStatus
	cur.TransactionID = b.TransactionID
	cur.CancelReason = b.CancelReason
	cur.UpdatedAt = t.now()
	b.UpdatedAt = cur.UpdatedAt
	t.st.bookings[b.ID] = cur
	return nil
}

func (t *memTx) FindBookings(ctx context.Context, f BookingFilter) ([]models.Booking, error) {
	var out []models.Booking
	for id := uint(1); id <= t.st.nextBooking; id++ {
		b, ok := t.st.bookings[id]
		if !ok || !f.Match(&b) {
			continue
		}
		out = append(out, b)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (t *memTx) SumBookings(ctx context.Context, f BookingFilter) (*BookingTotals, error) {
	f.Limit = 0
	bookings, _ := t.FindBookings(ctx, f)
	totals := &BookingTotals{}
	for _, b := range bookings {
		totals.Count++
		totals.Amount = totals.Amount.Add(b.Amount)
		totals.Commission = totals.Commission.Add(b.Commission)
	}
	return totals, nil
}

func (t *memTx) AppendEntry(ctx context.Context, e *models.LedgerEntry) error {
	if e.IdempotencyKey != nil {
		for _, cur := range t.st.entries {
			if cur.IdempotencyKey != nil && *cur.IdempotencyKey == *e.IdempotencyKey {
				return ErrDuplicate
			}
		}
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = t.now()
	}
	t.st.entries = append(t.st.entries, *e)
	return nil
}

func (t *memTx) FindEntries(ctx context.Context, f LedgerFilter) ([]models.LedgerEntry, error) {
	var out []models.LedgerEntry
	for i := range t.st.entries {
		if !f.Match(&t.st.entries[i]) {
			continue
		}
		out = append(out, t.st.entries[i])
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (t *memTx) SumEntries(ctx context.Context, f LedgerFilter) (*EntryTotals, error) {
	f.Limit = 0
	entries, _ := t.FindEntries(ctx, f)
	totals := &EntryTotals{}
	for _, e := range entries {
		totals.Count++
		totals.Amount = totals.Amount.Add(e.Amount)
		totals.HostAmount = totals.HostAmount.Add(e.HostAmount)
	}
	return totals, nil
}

func (t *memTx) InsertPayout(ctx context.Context, p *models.PayoutRequest) error {
	t.st.nextPayout++
	p.ID = t.st.nextPayout
	if p.CreatedAt.IsZero() {
		p.CreatedAt = t.now()
	}
	p.UpdatedAt = p.CreatedAt
	t.st.payouts[p.ID] = *p
	return nil
}

func (t *memTx) GetPayout(ctx context.Context, id uint) (*models.PayoutRequest, error) {
	p, ok := t.st.payouts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (t *memTx) UpdatePayout(ctx context.Context, p *models.PayoutRequest) error {
	cur, ok := t.st.payouts[p.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Status = p.Status
	cur.ReviewedBy = p.ReviewedBy
	cur.Note = p.Note
	cur.UpdatedAt = t.now()
	p.UpdatedAt = cur.UpdatedAt
	t.st.payouts[p.ID] = cur
	return nil
}

func (t *memTx) FindPayouts(ctx context.Context, f PayoutFilter) ([]models.PayoutRequest, error) {
	var out []models.PayoutRequest
	for id := uint(1); id <= t.st.nextPayout; id++ {
		p, ok := t.st.payouts[id]
		if !ok || !f.Match(&p) {
			continue
		}
		out = append(out, p)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (t *memTx) SumPayouts(ctx context.Context, f PayoutFilter) (decimal.Decimal, error) {
	f.Limit = 0
	payouts, _ := t.FindPayouts(ctx, f)
	total := decimal.Zero
	for _, p := range payouts {
		total = total.Add(p.Amount)
	}
	return total, nil
}
