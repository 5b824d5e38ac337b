package models

import (
	"fmt"
	"lodging/src/types"

	"github.com/shopspring/decimal"
)

type PayoutRequest struct {
	ID         uint               `gorm:"primarykey" json:"id"`
	HostID     uint               `gorm:"index" json:"host_id"`
	Amount     decimal.Decimal    `gorm:"type:numeric(14,2)" json:"amount"`
	Method     types.PayoutMethod `gorm:"type:jsonb" json:"method"`
	Status     types.PayoutStatus `gorm:"type:varchar(16);index" json:"status"`
	ReviewedBy *uint              `json:"reviewed_by,omitempty"`
	Note       string             `json:"note,omitempty"`

	types.Timestamps
}

func (p *PayoutRequest) EventKey() string {
	return fmt.Sprintf("host:%d", p.HostID)
}

func (p *PayoutRequest) EventPayload() map[string]any {
	return map[string]any{
		"payout_id": p.ID,
		"host_id":   p.HostID,
		"amount":    p.Amount.String(),
		"method":    p.Method.Kind,
		"status":    p.Status,
	}
}
