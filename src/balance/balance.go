// Package balance derives host balances from the ledger and the booking table. Nothing here is
// stored: every number is recomputed from source, and the redis copy only serves dashboards.
package balance

import (
	"context"
	"fmt"
	"lodging/src/config"
	"lodging/src/lib"
	"lodging/src/models"
	"lodging/src/store"
	"lodging/src/types"
	"time"

	"github.com/shopspring/decimal"
)

type Summary struct {
	HostID        uint            `json:"host_id"`
	TotalEarnings decimal.Decimal `json:"total_earnings"`
	PendingAmount decimal.Decimal `json:"pending_amount"`
	PaidOut       decimal.Decimal `json:"paid_out"`
	// OutstandingRequests is the sum of payout requests still waiting for review.
	OutstandingRequests decimal.Decimal `json:"outstanding_requests"`
	AvailableBalance    decimal.Decimal `json:"available_balance"`
}

type Stats struct {
	CommissionRevenue decimal.Decimal               `json:"commission_revenue"`
	Spend             decimal.Decimal               `json:"spend"`
	Adjustments       decimal.Decimal               `json:"adjustments"`
	Payouts           decimal.Decimal               `json:"payouts"`
	Net               decimal.Decimal               `json:"net"`
	Bookings          map[types.BookingStatus]int64 `json:"bookings"`
	GeneratedAt       time.Time                     `json:"generated_at"`
}

type Projector struct {
	store    store.Store
	withhold config.WithholdPolicy
	cache    *lib.Cache
	ttl      time.Duration
}

func New(s store.Store, withhold config.WithholdPolicy) *Projector {
	return &Projector{store: s, withhold: withhold}
}

func (p *Projector) WithCache(c *lib.Cache, ttl time.Duration) *Projector {
	p.cache = c
	p.ttl = ttl
	return p
}

// Compute derives the host's balance inside tx. Writers that admit money movements call it
// while holding the host lock so the answer cannot go stale before they commit.
func (p *Projector) Compute(ctx context.Context, tx store.Tx, hostID uint) (*Summary, error) {
	earned, err := tx.SumEntries(ctx, store.LedgerFilter{
		HostID: hostID,
		Types:  []types.LedgerEntryType{types.LEDGER_COMMISSION, types.LEDGER_ADJUSTMENT},
	})
	if err != nil {
		return nil, err
	}
	paid, err := tx.SumEntries(ctx, store.LedgerFilter{
		HostID: hostID,
		Types:  []types.LedgerEntryType{types.LEDGER_PAYOUT},
	})
	if err != nil {
		return nil, err
	}
	pending, err := p.pending(ctx, tx, hostID)
	if err != nil {
		return nil, err
	}
	outstanding, err := tx.SumPayouts(ctx, store.PayoutFilter{
		HostID:   hostID,
		Statuses: []types.PayoutStatus{types.PAYOUT_PENDING},
	})
	if err != nil {
		return nil, err
	}

	s := &Summary{
		HostID:              hostID,
		TotalEarnings:       earned.HostAmount,
		PendingAmount:       pending,
		PaidOut:             paid.Amount.Neg(),
		OutstandingRequests: outstanding,
	}
	s.AvailableBalance = s.TotalEarnings.Sub(s.PendingAmount).Sub(s.PaidOut).Sub(s.OutstandingRequests)
	return s, nil
}

// pending is the host share still withheld. Under the completion policy a paid stay is held
// back until it completes; under the payment policy nothing is withheld once paid. A refund
// in flight is always withheld.
func (p *Projector) pending(ctx context.Context, tx store.Tx, hostID uint) (decimal.Decimal, error) {
	withheld := []types.PaymentStatus{types.PAYMENT_REFUNDING}
	if p.withhold == config.WITHHOLD_UNTIL_COMPLETION {
		withheld = append(withheld, types.PAYMENT_PAID)
	}
	totals, err := tx.SumBookings(ctx, store.BookingFilter{
		HostID:          hostID,
		Statuses:        []types.BookingStatus{types.BOOKING_CONFIRMED},
		PaymentStatuses: withheld,
	})
	if err != nil {
		return decimal.Zero, err
	}
	return totals.HostShare(), nil
}

func (p *Projector) Summary(ctx context.Context, hostID uint) (*Summary, error) {
	var s *Summary
	err := p.store.Transaction(ctx, func(tx store.Tx) error {
		var err error
		s, err = p.Compute(ctx, tx, hostID)
		return err
	})
	return s, err
}

func (p *Projector) TotalEarnings(ctx context.Context, hostID uint) (decimal.Decimal, error) {
	s, err := p.Summary(ctx, hostID)
	if err != nil {
		return decimal.Zero, err
	}
	return s.TotalEarnings, nil
}

func (p *Projector) PendingAmount(ctx context.Context, hostID uint) (decimal.Decimal, error) {
	s, err := p.Summary(ctx, hostID)
	if err != nil {
		return decimal.Zero, err
	}
	return s.PendingAmount, nil
}

func (p *Projector) AvailableBalance(ctx context.Context, hostID uint) (decimal.Decimal, error) {
	s, err := p.Summary(ctx, hostID)
	if err != nil {
		return decimal.Zero, err
	}
	return s.AvailableBalance, nil
}

func hostKey(hostID uint) string {
	return fmt.Sprintf("host:%d", hostID)
}

const statsKey = "stats"

// CachedSummary is the dashboard read. Never use it to admit a payout.
func (p *Projector) CachedSummary(ctx context.Context, hostID uint) (*Summary, error) {
	var s Summary
	if p.cache.GetJSON(ctx, hostKey(hostID), &s) {
		return &s, nil
	}
	fresh, err := p.Summary(ctx, hostID)
	if err != nil {
		return nil, err
	}
	p.cache.SetJSON(ctx, hostKey(hostID), fresh, p.ttl)
	return fresh, nil
}

// Invalidate drops cached summaries of the given hosts and the platform stats.
func (p *Projector) Invalidate(ctx context.Context, hostIDs ...uint) {
	if p == nil {
		return
	}
	keys := []string{statsKey}
	for _, id := range hostIDs {
		if id != 0 {
			keys = append(keys, hostKey(id))
		}
	}
	p.cache.Invalidate(ctx, keys...)
}

func (p *Projector) PlatformStats(ctx context.Context) (*Stats, error) {
	var cached Stats
	if p.cache.GetJSON(ctx, statsKey, &cached) {
		return &cached, nil
	}
	stats := &Stats{Bookings: map[types.BookingStatus]int64{}}
	err := p.store.Transaction(ctx, func(tx store.Tx) error {
		sums := map[types.LedgerEntryType]*decimal.Decimal{
			types.LEDGER_COMMISSION: &stats.CommissionRevenue,
			types.LEDGER_SPEND:      &stats.Spend,
			types.LEDGER_ADJUSTMENT: &stats.Adjustments,
			types.LEDGER_PAYOUT:     &stats.Payouts,
		}
		for t, dst := range sums {
			totals, err := tx.SumEntries(ctx, store.LedgerFilter{Types: []types.LedgerEntryType{t}})
			if err != nil {
				return err
			}
			*dst = totals.Amount
			// payouts are host money passing through
			if t != types.LEDGER_PAYOUT {
				stats.Net = stats.Net.Add(totals.Amount)
			}
		}
		for _, status := range []types.BookingStatus{
			types.BOOKING_PENDING,
			types.BOOKING_CONFIRMED,
			types.BOOKING_CANCELLED,
			types.BOOKING_COMPLETED,
		} {
			totals, err := tx.SumBookings(ctx, store.BookingFilter{Statuses: []types.BookingStatus{status}})
			if err != nil {
				return err
			}
			stats.Bookings[status] = totals.Count
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	stats.GeneratedAt = time.Now().UTC()
	p.cache.SetJSON(ctx, statsKey, stats, p.ttl)
	return stats, nil
}

// Withheld reports whether the host share of b currently counts as pending.
func (p *Projector) Withheld(b *models.Booking) bool {
	if b.Status != types.BOOKING_CONFIRMED {
		return false
	}
	switch b.PaymentStatus {
	case types.PAYMENT_REFUNDING:
		return true
	case types.PAYMENT_PAID:
		return p.withhold == config.WITHHOLD_UNTIL_COMPLETION
	}
	return false
}
