package repository

import (
	"context"

	"github.com/jmwangi/chamaledger/internal/models"
)

// AuditRepository is append-only. Update and Delete exist so that no
// caller path can bypass the invariant silently: both fail
// unconditionally with ErrImmutableRecord, and the database trigger
// enforces the same for anything reaching the tables directly.
type AuditRepository interface {
	Create(ctx context.Context, tx Tx, entry *models.AuditLog) (int64, error)
	ListByChama(ctx context.Context, chamaID int64) ([]models.AuditLog, error)
	Update(ctx context.Context, entry *models.AuditLog) error
	Delete(ctx context.Context, id int64) error
}
