package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/jmwangi/chamaledger/internal/repository"
	pkgerrors "github.com/jmwangi/chamaledger/pkg/errors"
	"github.com/lib/pq"
)

const (
	pqUniqueViolation  = "23505"
	pqLockNotAvailable = "55P03"
)

// Store owns the database handle and hands out explicit units of work.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) BeginTx(ctx context.Context) (repository.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("failed to begin unit of work", "error", err)
		return nil, fmt.Errorf("failed to begin unit of work: %w", err)
	}
	return tx, nil
}

func sqlTx(tx repository.Tx) (*sql.Tx, error) {
	dbTx, ok := tx.(*sql.Tx)
	if !ok {
		return nil, fmt.Errorf("unexpected unit of work type %T", tx)
	}
	return dbTx, nil
}

// mapPQError translates driver error codes into the ledger taxonomy.
func mapPQError(err error) error {
	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return pkgerrors.ErrDuplicateReference
		case pqLockNotAvailable:
			return pkgerrors.ErrConcurrencyConflict
		}
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return pkgerrors.ErrConcurrencyConflict
	}
	return err
}
