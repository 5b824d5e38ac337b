// Package payouts handles host withdrawal requests. A request reserves part of the available
// balance while it waits for review; approval debits the ledger, rejection gives it back.
package payouts

import (
	"context"
	"errors"
	"lodging/src/apperr"
	"lodging/src/balance"
	"lodging/src/ledger"
	"lodging/src/lib"
	"lodging/src/models"
	"lodging/src/store"
	"lodging/src/types"
	"log"
	"strings"

	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
)

type Service struct {
	store   store.Store
	ledger  *ledger.Ledger
	balance *balance.Projector
	events  lib.Publisher
}

func New(s store.Store, l *ledger.Ledger, b *balance.Projector) *Service {
	return &Service{store: s, ledger: l, balance: b}
}

func (s *Service) WithPublisher(p lib.Publisher) *Service {
	s.events = p
	return s
}

// NormalizeMethod checks the payout destination and returns it in its stored form.
func NormalizeMethod(m types.PayoutMethod) (types.PayoutMethod, error) {
	m.AccountNumber = strings.TrimSpace(m.AccountNumber)
	m.AccountName = strings.TrimSpace(m.AccountName)
	if m.AccountNumber == "" {
		return m, apperr.New(apperr.BadInput, "account number is required")
	}
	switch m.Kind {
	case types.PAYOUT_METHOD_WALLET:
		m.Provider = slug.Make(m.Provider)
		if m.Provider == "" {
			return m, apperr.New(apperr.BadInput, "wallet provider is required")
		}
		m.BankName, m.Branch = "", ""
	case types.PAYOUT_METHOD_BANK:
		m.BankName = strings.TrimSpace(m.BankName)
		m.Branch = strings.TrimSpace(m.Branch)
		if m.BankName == "" || m.AccountName == "" {
			return m, apperr.New(apperr.BadInput, "bank transfers need a bank and an account name")
		}
		m.Provider = ""
	default:
		return m, apperr.New(apperr.BadInput, "unknown payout method %q", m.Kind)
	}
	return m, nil
}

// RequestPayout admits a request only when the host's available balance covers it. The host
// lock makes the check and the insert one step, so two requests cannot spend the same money.
func (s *Service) RequestPayout(ctx context.Context, hostID uint, amount decimal.Decimal, method types.PayoutMethod) (*models.PayoutRequest, error) {
	if hostID == 0 {
		return nil, apperr.New(apperr.BadInput, "host id required")
	}
	if !amount.IsPositive() {
		return nil, apperr.New(apperr.BadInput, "payout amount must be positive")
	}
	if amount.Exponent() < -2 {
		return nil, apperr.New(apperr.BadInput, "payout amount has more than two decimals")
	}
	method, err := NormalizeMethod(method)
	if err != nil {
		return nil, err
	}

	p := &models.PayoutRequest{
		HostID: hostID,
		Amount: amount,
		Method: method,
		Status: types.PAYOUT_PENDING,
	}
	err = s.store.Transaction(ctx, func(tx store.Tx) error {
		if err := tx.Lock(ctx, store.HostLock, hostID); err != nil {
			return err
		}
		summary, err := s.balance.Compute(ctx, tx, hostID)
		if err != nil {
			return err
		}
		if summary.AvailableBalance.LessThan(amount) {
			return apperr.New(apperr.InsufficientBalance, "requested %s but only %s is available", amount.StringFixed(2), summary.AvailableBalance.StringFixed(2))
		}
		return tx.InsertPayout(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[payouts] host %d requested %s (#%d)\n", hostID, amount.StringFixed(2), p.ID)
	s.balance.Invalidate(ctx, hostID)
	s.emit(ctx, lib.EVENT_PAYOUT_REQUESTED, p)
	return p, nil
}

// Approve settles a pending request and debits the ledger in the same transaction.
func (s *Service) Approve(ctx context.Context, operatorID, payoutID uint) (*models.PayoutRequest, error) {
	p, err := s.review(ctx, payoutID, func(tx store.Tx, p *models.PayoutRequest) error {
		p.Status = types.PAYOUT_APPROVED
		p.ReviewedBy = &operatorID
		if err := tx.UpdatePayout(ctx, p); err != nil {
			return err
		}
		_, err := s.ledger.RecordPayout(ctx, tx, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[payouts] operator %d approved payout %d\n", operatorID, p.ID)
	s.emit(ctx, lib.EVENT_PAYOUT_APPROVED, p)
	return p, nil
}

// Reject releases the reserved amount back to the host's available balance.
func (s *Service) Reject(ctx context.Context, operatorID, payoutID uint, note string) (*models.PayoutRequest, error) {
	p, err := s.review(ctx, payoutID, func(tx store.Tx, p *models.PayoutRequest) error {
		p.Status = types.PAYOUT_REJECTED
		p.ReviewedBy = &operatorID
		p.Note = strings.TrimSpace(note)
		return tx.UpdatePayout(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[payouts] operator %d rejected payout %d\n", operatorID, p.ID)
	s.emit(ctx, lib.EVENT_PAYOUT_REJECTED, p)
	return p, nil
}

func (s *Service) review(ctx context.Context, payoutID uint, fn func(tx store.Tx, p *models.PayoutRequest) error) (*models.PayoutRequest, error) {
	var p *models.PayoutRequest
	err := s.store.Transaction(ctx, func(tx store.Tx) error {
		cur, err := tx.GetPayout(ctx, payoutID)
		if err != nil {
			return notFound(err)
		}
		if err := tx.Lock(ctx, store.HostLock, cur.HostID); err != nil {
			return err
		}
		if p, err = tx.GetPayout(ctx, payoutID); err != nil {
			return notFound(err)
		}
		if p.Status != types.PAYOUT_PENDING {
			return apperr.New(apperr.IllegalTransition, "payout %d is already %s", p.ID, p.Status)
		}
		return fn(tx, p)
	})
	if err != nil {
		return nil, err
	}
	s.balance.Invalidate(ctx, p.HostID)
	return p, nil
}

func (s *Service) Get(ctx context.Context, payoutID uint) (*models.PayoutRequest, error) {
	var p *models.PayoutRequest
	err := s.store.Transaction(ctx, func(tx store.Tx) error {
		var err error
		p, err = tx.GetPayout(ctx, payoutID)
		return notFound(err)
	})
	return p, err
}

func (s *Service) ListForHost(ctx context.Context, hostID uint) ([]models.PayoutRequest, error) {
	return s.list(ctx, store.PayoutFilter{HostID: hostID})
}

// ListPending is the operator review queue.
func (s *Service) ListPending(ctx context.Context) ([]models.PayoutRequest, error) {
	return s.list(ctx, store.PayoutFilter{Statuses: []types.PayoutStatus{types.PAYOUT_PENDING}})
}

func (s *Service) list(ctx context.Context, f store.PayoutFilter) ([]models.PayoutRequest, error) {
	var out []models.PayoutRequest
	err := s.store.Transaction(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.FindPayouts(ctx, f)
		return err
	})
	return out, err
}

func (s *Service) emit(ctx context.Context, t lib.EventType, p *models.PayoutRequest) {
	lib.Emit(ctx, s.events, lib.NewEvent(t, p.EventKey(), p.EventPayload()))
}

func notFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.New(apperr.NotFound, "payout request not found")
	}
	return err
}
