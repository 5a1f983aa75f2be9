package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// VirtualAccount holds a single balance: the chama's main account when
// MemberID is nil, or a per-member sub-account otherwise.
type VirtualAccount struct {
	ID        int64           `json:"id"`
	ChamaID   int64           `json:"chama_id"`
	MemberID  *int64          `json:"member_id,omitempty"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
}

func (a *VirtualAccount) IsMain() bool {
	return a.MemberID == nil
}
