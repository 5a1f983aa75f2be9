package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmwangi/chamaledger/internal/infrastructure/observability"
	"github.com/jmwangi/chamaledger/internal/models"
	"github.com/jmwangi/chamaledger/internal/repository"
	pkgerrors "github.com/jmwangi/chamaledger/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type PostgresAccountRepository struct {
	db          *sql.DB
	lockTimeout time.Duration
}

func NewPostgresAccountRepository(db *sql.DB, lockTimeout time.Duration) *PostgresAccountRepository {
	return &PostgresAccountRepository{db: db, lockTimeout: lockTimeout}
}

func (r *PostgresAccountRepository) GetMainAccount(ctx context.Context, chamaID int64) (*models.VirtualAccount, error) {
	query := `SELECT id, chama_id, member_id, balance, created_at FROM virtual_accounts WHERE chama_id = $1 AND member_id IS NULL`
	return r.scanAccount(r.db.QueryRowContext(ctx, query, chamaID))
}

func (r *PostgresAccountRepository) GetMemberAccount(ctx context.Context, chamaID, memberID int64) (*models.VirtualAccount, error) {
	query := `SELECT id, chama_id, member_id, balance, created_at FROM virtual_accounts WHERE chama_id = $1 AND member_id = $2`
	return r.scanAccount(r.db.QueryRowContext(ctx, query, chamaID, memberID))
}

// GetMainAccountForUpdate locks the main account row for the duration
// of tx. Lock wait is bounded by SET LOCAL lock_timeout so a contended
// row surfaces as ErrConcurrencyConflict instead of blocking forever.
func (r *PostgresAccountRepository) GetMainAccountForUpdate(ctx context.Context, tx repository.Tx, chamaID int64) (*models.VirtualAccount, error) {
	var err error
	tracer := otel.Tracer("account-repository")
	ctx, span := tracer.Start(ctx, "GetMainAccountForUpdate")
	span.SetAttributes(attribute.Int64("chama_id", chamaID))
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("GetMainAccountForUpdate", status).Inc()
		observability.RepositoryDuration.WithLabelValues("GetMainAccountForUpdate").Observe(time.Since(start).Seconds())
	}()

	dbTx, err := sqlTx(tx)
	if err != nil {
		return nil, err
	}

	if _, err = dbTx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())); err != nil {
		slog.Error("failed to set lock timeout", "method", "GetMainAccountForUpdate", "chama_id", chamaID, "error", err)
		return nil, fmt.Errorf("failed to set lock timeout: %w", err)
	}

	query := `SELECT id, chama_id, member_id, balance, created_at FROM virtual_accounts WHERE chama_id = $1 AND member_id IS NULL FOR UPDATE`
	account, scanErr := r.scanAccount(dbTx.QueryRowContext(ctx, query, chamaID))
	if scanErr != nil {
		err = mapPQError(scanErr)
		slog.Error("failed to lock main account", "method", "GetMainAccountForUpdate", "chama_id", chamaID, "error", err)
		return nil, err
	}
	return account, nil
}

func (r *PostgresAccountRepository) UpdateBalance(ctx context.Context, tx repository.Tx, accountID int64, balance decimal.Decimal) error {
	dbTx, err := sqlTx(tx)
	if err != nil {
		return err
	}

	res, err := dbTx.ExecContext(ctx, `UPDATE virtual_accounts SET balance = $1 WHERE id = $2`, balance, accountID)
	if err != nil {
		slog.Error("failed to update balance", "method", "UpdateBalance", "account_id", accountID, "error", err)
		return fmt.Errorf("failed to update balance: %w", mapPQError(err))
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	if rows == 0 {
		return pkgerrors.ErrAccountNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PostgresAccountRepository) scanAccount(row rowScanner) (*models.VirtualAccount, error) {
	var account models.VirtualAccount
	var memberID sql.NullInt64
	err := row.Scan(&account.ID, &account.ChamaID, &memberID, &account.Balance, &account.CreatedAt)
	switch {
	case stderrors.Is(err, sql.ErrNoRows):
		return nil, pkgerrors.ErrAccountNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if memberID.Valid {
		account.MemberID = &memberID.Int64
	}
	return &account, nil
}
