package models

import (
	"errors"
	"lodging/src/types"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var ErrLedgerImmutable = errors.New("ledger entries are append-only")

type LedgerEntry struct {
	ID uuid.UUID `gorm:"primarykey;type:uuid" json:"id"`

	Type           types.LedgerEntryType `gorm:"type:varchar(16);index" json:"type"`
	Amount         decimal.Decimal       `gorm:"type:numeric(14,2)" json:"amount"`
	HostAmount     decimal.Decimal       `gorm:"type:numeric(14,2)" json:"host_amount"`
	HostID         *uint                 `gorm:"index" json:"host_id,omitempty"`
	RefType        types.LedgerRefType   `gorm:"type:varchar(16)" json:"ref_type"`
	RefID          uint                  `json:"ref_id,omitempty"`
	TransactionID  *string               `gorm:"index" json:"transaction_id,omitempty"`
	IdempotencyKey *string               `gorm:"uniqueIndex" json:"-"`
	Note           string                `json:"note,omitempty"`
	CreatedAt      time.Time             `gorm:"autoCreateTime;index" json:"created_at"`
}

func (e *LedgerEntry) BeforeUpdate(tx *gorm.DB) error {
	return ErrLedgerImmutable
}

func (e *LedgerEntry) BeforeDelete(tx *gorm.DB) error {
	return ErrLedgerImmutable
}

// Ref is the tagged reference of an entry: a booking, a payout request, or nothing.
type Ref struct {
	Type types.LedgerRefType
	ID   uint
}

var NoRef = Ref{Type: types.REF_NONE}

func BookingRef(id uint) Ref { return Ref{Type: types.REF_BOOKING, ID: id} }
func PayoutRef(id uint) Ref  { return Ref{Type: types.REF_PAYOUT, ID: id} }

func (e *LedgerEntry) Ref() Ref {
	if e.RefType == "" || e.RefType == types.REF_NONE {
		return NoRef
	}
	return Ref{Type: e.RefType, ID: e.RefID}
}

func (e *LedgerEntry) SetRef(r Ref) {
	if r.Type == "" {
		r = NoRef
	}
	e.RefType = r.Type
	e.RefID = r.ID
	if r.Type == types.REF_NONE {
		e.RefID = 0
	}
}
