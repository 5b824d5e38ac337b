package types

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type Timestamps struct {
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at,omitempty"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at,omitempty"`
}

type Environment string

const (
	Local      Environment = "local"
	Test       Environment = "test"
	Production Environment = "production"
)

type Role string

const (
	ROLE_GUEST    Role = "guest"
	ROLE_HOST     Role = "host"
	ROLE_OPERATOR Role = "operator"
)

type BookingStatus string

const (
	BOOKING_PENDING   BookingStatus = "pending"
	BOOKING_CONFIRMED BookingStatus = "confirmed"
	BOOKING_CANCELLED BookingStatus = "cancelled"
	BOOKING_COMPLETED BookingStatus = "completed"
)

type PaymentStatus string

const (
	PAYMENT_UNPAID    PaymentStatus = "unpaid"
	PAYMENT_PENDING   PaymentStatus = "pending"
	PAYMENT_PAID      PaymentStatus = "paid"
	PAYMENT_FAILED    PaymentStatus = "failed"
	PAYMENT_REFUNDING PaymentStatus = "refunding"
	PAYMENT_REFUNDED  PaymentStatus = "refunded"
)

type BookingMode string

const (
	BOOKING_MODE_INSTANT BookingMode = "instant"
	BOOKING_MODE_REQUEST BookingMode = "request"
)

type LedgerEntryType string

const (
	LEDGER_COMMISSION LedgerEntryType = "commission"
	LEDGER_PAYOUT     LedgerEntryType = "payout"
	LEDGER_SPEND      LedgerEntryType = "spend"
	LEDGER_ADJUSTMENT LedgerEntryType = "adjustment"
)

type LedgerRefType string

const (
	REF_NONE    LedgerRefType = "none"
	REF_BOOKING LedgerRefType = "booking"
	REF_PAYOUT  LedgerRefType = "payout"
)

type PayoutStatus string

const (
	PAYOUT_PENDING  PayoutStatus = "pending"
	PAYOUT_APPROVED PayoutStatus = "approved"
	PAYOUT_REJECTED PayoutStatus = "rejected"
)

// PaymentOutcome is what the gateway reports for a transaction.
type PaymentOutcome string

const (
	OUTCOME_SUCCEEDED PaymentOutcome = "succeeded"
	OUTCOME_FAILED    PaymentOutcome = "failed"
	OUTCOME_REFUNDED  PaymentOutcome = "refunded"
)

type PayoutMethodKind string

const (
	PAYOUT_METHOD_WALLET PayoutMethodKind = "wallet"
	PAYOUT_METHOD_BANK   PayoutMethodKind = "bank"
)

// PayoutMethod is stored as jsonb on the payout request.
type PayoutMethod struct {
	Kind          PayoutMethodKind `json:"kind" binding:"required,oneof=wallet bank"`
	Provider      string           `json:"provider,omitempty"`
	AccountNumber string           `json:"account_number" binding:"required"`
	AccountName   string           `json:"account_name,omitempty"`
	BankName      string           `json:"bank_name,omitempty"`
	Branch        string           `json:"branch,omitempty"`
}

func (m PayoutMethod) Value() (driver.Value, error) {
	valueString, err := json.Marshal(m)
	return string(valueString), err
}
func (m *PayoutMethod) Scan(value any) error {
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(b, m)
}

type SimpleRequestParams struct {
	ID uint `uri:"id" binding:"required"`
}

type CreateBookingRequestBody struct {
	ListingID uint   `json:"listing_id" binding:"required"`
	CheckIn   string `json:"check_in" binding:"required,isodate"`
	CheckOut  string `json:"check_out" binding:"required,isodate,afterdate=CheckIn"`
	Guests    int    `json:"guests" binding:"required,min=1"`
	Mode      string `json:"mode,omitempty" binding:"omitempty,oneof=instant request"`
}

type AvailabilityQuery struct {
	CheckIn  string `form:"check_in" binding:"required,isodate"`
	CheckOut string `form:"check_out" binding:"required,isodate,afterdate=CheckIn"`
}

type ReasonRequestBody struct {
	Reason string `json:"reason,omitempty"`
}

type CreatePayoutRequestBody struct {
	Amount decimal.Decimal `json:"amount"`
	Method PayoutMethod    `json:"method" binding:"required"`
}

type CreateSpendRequestBody struct {
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note" binding:"required"`
}

type CreateAdjustmentRequestBody struct {
	HostID     *uint           `json:"host_id,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	HostAmount decimal.Decimal `json:"host_amount"`
	Note       string          `json:"note" binding:"required"`
}

type LedgerQueryFilters struct {
	Type   []string `form:"type" binding:"omitempty,dive,oneof=commission payout spend adjustment"`
	From   string   `form:"from" binding:"omitempty,isodate"`
	To     string   `form:"to" binding:"omitempty,isodate"`
	HostID uint     `form:"host_id"`
	Limit  int      `form:"limit" binding:"omitempty,min=1,max=1000"`
}

type BookingQueryFilters struct {
	As string `form:"as" binding:"omitempty,oneof=guest host"`
}
