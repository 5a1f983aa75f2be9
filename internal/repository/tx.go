package repository

import "context"

// Tx is one unit of work. Every mutation the ledger performs for a
// single request happens inside one Tx and commits or rolls back as a
// whole. *sql.Tx satisfies this interface.
type Tx interface {
	Commit() error
	Rollback() error
}

type TxBeginner interface {
	BeginTx(ctx context.Context) (Tx, error)
}
