package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Transaction struct {
	ID          int64           `json:"id"`
	ChamaID     int64           `json:"chama_id"`
	MemberID    *int64          `json:"member_id,omitempty"`
	Initiator   string          `json:"initiator"`
	Amount      decimal.Decimal `json:"amount"`
	CheckoutID  string          `json:"checkout_id"`
	ProviderRef string          `json:"provider_ref"`
	PhoneNumber string          `json:"phone_number"`
	Status      StatusType      `json:"status"`
	Kind        TransactionKind `json:"kind"`
	CreatedAt   time.Time       `json:"created_at"`
}

type TransactionKind string

const (
	KindDeposit    TransactionKind = "deposit"
	KindWithdrawal TransactionKind = "withdrawal"
)

type StatusType string

const (
	StatusSimulated StatusType = "Simulated"
	StatusCompleted StatusType = "Completed"
	StatusFailed    StatusType = "Failed"
)
