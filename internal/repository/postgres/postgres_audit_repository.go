package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmwangi/chamaledger/internal/infrastructure/observability"
	"github.com/jmwangi/chamaledger/internal/models"
	"github.com/jmwangi/chamaledger/internal/repository"
	pkgerrors "github.com/jmwangi/chamaledger/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PostgresAuditRepository is append-only. The audit_logs_immutable
// trigger backs the same invariant inside the database, so nothing that
// reaches the table directly can rewrite history either.
type PostgresAuditRepository struct {
	db *sql.DB
}

func NewPostgresAuditRepository(db *sql.DB) *PostgresAuditRepository {
	return &PostgresAuditRepository{db: db}
}

func (r *PostgresAuditRepository) Create(ctx context.Context, tx repository.Tx, entry *models.AuditLog) (int64, error) {
	var err error
	tracer := otel.Tracer("audit-repository")
	ctx, span := tracer.Start(ctx, "CreateAuditLog")
	span.SetAttributes(attribute.Int64("transaction_id", entry.TransactionID))
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("CreateAuditLog", status).Inc()
		observability.RepositoryDuration.WithLabelValues("CreateAuditLog").Observe(time.Since(start).Seconds())
	}()

	dbTx, err := sqlTx(tx)
	if err != nil {
		return 0, err
	}

	var actorID sql.NullInt64
	if entry.ActorUserID != nil {
		actorID = sql.NullInt64{Int64: *entry.ActorUserID, Valid: true}
	}

	query := `INSERT INTO audit_logs (transaction_id, chama_id, actor_user_id, action, amount, reference_no) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`
	err = dbTx.QueryRowContext(ctx, query, entry.TransactionID, entry.ChamaID, actorID, entry.Action, entry.Amount, entry.ReferenceNo).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		err = mapPQError(err)
		slog.Error("failed to create audit log", "method", "Create", "transaction_id", entry.TransactionID, "error", err)
		return 0, fmt.Errorf("failed to create audit log: %w", err)
	}

	slog.Info("audit log created", "method", "Create", "id", entry.ID, "transaction_id", entry.TransactionID, "reference_no", entry.ReferenceNo)
	return entry.ID, nil
}

func (r *PostgresAuditRepository) ListByChama(ctx context.Context, chamaID int64) ([]models.AuditLog, error) {
	query := `SELECT id, transaction_id, chama_id, actor_user_id, action, amount, reference_no, created_at FROM audit_logs WHERE chama_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, chamaID)
	if err != nil {
		slog.Error("failed to list audit logs", "method", "ListByChama", "chama_id", chamaID, "error", err)
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditLog
	for rows.Next() {
		var entry models.AuditLog
		var actorID sql.NullInt64
		if err := rows.Scan(&entry.ID, &entry.TransactionID, &entry.ChamaID, &actorID, &entry.Action, &entry.Amount, &entry.ReferenceNo, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		if actorID.Valid {
			entry.ActorUserID = &actorID.Int64
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Update always fails. Audit entries are immutable.
func (r *PostgresAuditRepository) Update(ctx context.Context, entry *models.AuditLog) error {
	slog.Error("rejected attempt to update audit log", "method", "Update", "id", entry.ID)
	return pkgerrors.ErrImmutableRecord
}

// Delete always fails. Audit entries are immutable.
func (r *PostgresAuditRepository) Delete(ctx context.Context, id int64) error {
	slog.Error("rejected attempt to delete audit log", "method", "Delete", "id", id)
	return pkgerrors.ErrImmutableRecord
}
