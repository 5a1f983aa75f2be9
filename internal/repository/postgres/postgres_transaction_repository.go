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

type PostgresTransactionRepository struct {
	db *sql.DB
}

func NewPostgresTransactionRepository(db *sql.DB) *PostgresTransactionRepository {
	return &PostgresTransactionRepository{db: db}
}

// Create appends one transaction inside the caller's unit of work.
// Transactions are immutable once committed; there is no update path.
func (r *PostgresTransactionRepository) Create(ctx context.Context, tx repository.Tx, txn *models.Transaction) (int64, error) {
	var err error
	tracer := otel.Tracer("transaction-repository")
	ctx, span := tracer.Start(ctx, "CreateTransaction")
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("CreateTransaction", status).Inc()
		observability.RepositoryDuration.WithLabelValues("CreateTransaction").Observe(time.Since(start).Seconds())
	}()

	if txn == nil {
		err = pkgerrors.ErrNilTransaction
		slog.Error("failed to create transaction", "method", "Create", "error", err)
		return 0, err
	}

	if txn.Kind != models.KindDeposit && txn.Kind != models.KindWithdrawal {
		err = pkgerrors.ErrInvalidTransactionKind
		slog.Error("invalid transaction kind", "method", "Create", "kind", txn.Kind, "error", err)
		return 0, err
	}

	if txn.Status != models.StatusSimulated && txn.Status != models.StatusCompleted && txn.Status != models.StatusFailed {
		err = pkgerrors.ErrInvalidTransactionStatus
		slog.Error("invalid transaction status", "method", "Create", "status", txn.Status, "error", err)
		return 0, err
	}

	if txn.Amount.Sign() <= 0 {
		err = pkgerrors.ErrInvalidAmount
		slog.Error("amount must be positive", "method", "Create", "amount", txn.Amount, "error", err)
		return 0, err
	}

	span.SetAttributes(
		attribute.Int64("chama_id", txn.ChamaID),
		attribute.String("amount", txn.Amount.String()),
		attribute.String("kind", string(txn.Kind)),
		attribute.String("status", string(txn.Status)),
	)

	dbTx, err := sqlTx(tx)
	if err != nil {
		return 0, err
	}

	query := `INSERT INTO transactions (chama_id, member_id, initiator, amount, checkout_id, provider_ref, phone_number, status, kind) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id, created_at`
	var memberID sql.NullInt64
	if txn.MemberID != nil {
		memberID = sql.NullInt64{Int64: *txn.MemberID, Valid: true}
	}
	err = dbTx.QueryRowContext(ctx, query, txn.ChamaID, memberID, txn.Initiator, txn.Amount, txn.CheckoutID, txn.ProviderRef, txn.PhoneNumber, txn.Status, txn.Kind).Scan(&txn.ID, &txn.CreatedAt)
	if err != nil {
		err = mapPQError(err)
		slog.Error("failed to create transaction", "method", "Create", "chama_id", txn.ChamaID, "kind", txn.Kind, "error", err)
		return 0, fmt.Errorf("failed to create transaction: %w", err)
	}

	slog.Info("transaction created", "method", "Create", "id", txn.ID, "chama_id", txn.ChamaID, "kind", txn.Kind, "amount", txn.Amount, "provider_ref", txn.ProviderRef)
	return txn.ID, nil
}

func (r *PostgresTransactionRepository) GetByID(ctx context.Context, id int64) (*models.Transaction, error) {
	query := `SELECT id, chama_id, member_id, initiator, amount, checkout_id, provider_ref, phone_number, status, kind, created_at FROM transactions WHERE id = $1`
	return r.scanTransaction(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresTransactionRepository) GetByCheckoutID(ctx context.Context, checkoutID string) (*models.Transaction, error) {
	query := `SELECT id, chama_id, member_id, initiator, amount, checkout_id, provider_ref, phone_number, status, kind, created_at FROM transactions WHERE checkout_id = $1`
	return r.scanTransaction(r.db.QueryRowContext(ctx, query, checkoutID))
}

func (r *PostgresTransactionRepository) ListByChama(ctx context.Context, chamaID int64, filter repository.TransactionFilter) ([]models.Transaction, error) {
	query := `SELECT id, chama_id, member_id, initiator, amount, checkout_id, provider_ref, phone_number, status, kind, created_at FROM transactions WHERE chama_id = $1`
	args := []any{chamaID}
	query, args = applyFilter(query, args, filter)
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Error("failed to list transactions", "method", "ListByChama", "chama_id", chamaID, "error", err)
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txns []models.Transaction
	for rows.Next() {
		var txn models.Transaction
		var memberID sql.NullInt64
		if err := rows.Scan(&txn.ID, &txn.ChamaID, &memberID, &txn.Initiator, &txn.Amount, &txn.CheckoutID, &txn.ProviderRef, &txn.PhoneNumber, &txn.Status, &txn.Kind, &txn.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		if memberID.Valid {
			txn.MemberID = &memberID.Int64
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

func (r *PostgresTransactionRepository) TotalByChama(ctx context.Context, chamaID int64, filter repository.TransactionFilter) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE chama_id = $1`
	args := []any{chamaID}
	query, args = applyFilter(query, args, filter)

	var total decimal.Decimal
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		slog.Error("failed to total transactions", "method", "TotalByChama", "chama_id", chamaID, "error", err)
		return decimal.Zero, fmt.Errorf("failed to total transactions: %w", err)
	}
	return total, nil
}

func applyFilter(query string, args []any, filter repository.TransactionFilter) (string, []any) {
	if filter.Kind != nil {
		args = append(args, *filter.Kind)
		query += fmt.Sprintf(" AND kind = $%d", len(args))
	}
	if filter.MemberID != nil {
		args = append(args, *filter.MemberID)
		query += fmt.Sprintf(" AND member_id = $%d", len(args))
	}
	return query, args
}

func (r *PostgresTransactionRepository) scanTransaction(row rowScanner) (*models.Transaction, error) {
	var txn models.Transaction
	var memberID sql.NullInt64
	err := row.Scan(&txn.ID, &txn.ChamaID, &memberID, &txn.Initiator, &txn.Amount, &txn.CheckoutID, &txn.ProviderRef, &txn.PhoneNumber, &txn.Status, &txn.Kind, &txn.CreatedAt)
	switch {
	case stderrors.Is(err, sql.ErrNoRows):
		return nil, pkgerrors.ErrTransactionNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	if memberID.Valid {
		txn.MemberID = &memberID.Int64
	}
	return &txn, nil
}
