package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuditLog mirrors exactly one committed Transaction. Entries are
// append-only: the store rejects every update and delete.
type AuditLog struct {
	ID            int64           `json:"id"`
	TransactionID int64           `json:"transaction_id"`
	ChamaID       int64           `json:"chama_id"`
	ActorUserID   *int64          `json:"actor_user_id,omitempty"`
	Action        TransactionKind `json:"action"`
	Amount        decimal.Decimal `json:"amount"`
	ReferenceNo   string          `json:"reference_no"`
	CreatedAt     time.Time       `json:"created_at"`
}
