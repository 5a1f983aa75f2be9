package repository

import (
	"context"

	"github.com/jmwangi/chamaledger/internal/models"
	"github.com/shopspring/decimal"
)

// TransactionFilter narrows history listings. Nil fields match everything.
type TransactionFilter struct {
	Kind     *models.TransactionKind
	MemberID *int64
}

type TransactionRepository interface {
	Create(ctx context.Context, tx Tx, txn *models.Transaction) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Transaction, error)
	GetByCheckoutID(ctx context.Context, checkoutID string) (*models.Transaction, error)
	ListByChama(ctx context.Context, chamaID int64, filter TransactionFilter) ([]models.Transaction, error)
	TotalByChama(ctx context.Context, chamaID int64, filter TransactionFilter) (decimal.Decimal, error)
}
