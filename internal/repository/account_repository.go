package repository

import (
	"context"

	"github.com/jmwangi/chamaledger/internal/models"
	"github.com/shopspring/decimal"
)

type AccountRepository interface {
	// GetMainAccount resolves the chama's main account (member_id absent).
	GetMainAccount(ctx context.Context, chamaID int64) (*models.VirtualAccount, error)
	GetMemberAccount(ctx context.Context, chamaID, memberID int64) (*models.VirtualAccount, error)

	// GetMainAccountForUpdate resolves the main account under an
	// exclusive row lock held until tx resolves. Lock wait is bounded;
	// a timeout surfaces as ErrConcurrencyConflict.
	GetMainAccountForUpdate(ctx context.Context, tx Tx, chamaID int64) (*models.VirtualAccount, error)
	UpdateBalance(ctx context.Context, tx Tx, accountID int64, balance decimal.Decimal) error
}
