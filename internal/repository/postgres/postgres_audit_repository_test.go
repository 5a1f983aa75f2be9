package repository_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmwangi/chamaledger/internal/models"
	repository "github.com/jmwangi/chamaledger/internal/repository/postgres"
	pkgerrors "github.com/jmwangi/chamaledger/pkg/errors"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPostgresAuditRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresAuditRepository(db)
	store := repository.NewStore(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		actor := int64(3)
		entry := &models.AuditLog{
			TransactionID: 7,
			ChamaID:       42,
			ActorUserID:   &actor,
			Action:        models.KindWithdrawal,
			Amount:        decimal.RequireFromString("400.00"),
			ReferenceNo:   "AUD-ABCDEFGHJK",
		}
		createdAt := time.Now().UTC()

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO audit_logs (transaction_id, chama_id, actor_user_id, action, amount, reference_no) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`)).
			WithArgs(entry.TransactionID, entry.ChamaID, actor, entry.Action, entry.Amount, entry.ReferenceNo).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(11), createdAt))
		mock.ExpectCommit()

		tx, err := store.BeginTx(ctx)
		assert.NoError(t, err)

		id, err := repo.Create(ctx, tx, entry)
		assert.NoError(t, err)
		assert.Equal(t, int64(11), id)
		assert.Equal(t, int64(11), entry.ID)

		assert.NoError(t, tx.Commit())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DuplicateReference", func(t *testing.T) {
		entry := &models.AuditLog{
			TransactionID: 7,
			ChamaID:       42,
			Action:        models.KindDeposit,
			Amount:        decimal.RequireFromString("250.00"),
			ReferenceNo:   "AUD-ABCDEFGHJK",
		}

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO audit_logs`)).
			WithArgs(entry.TransactionID, entry.ChamaID, nil, entry.Action, entry.Amount, entry.ReferenceNo).
			WillReturnError(&pq.Error{Code: "23505"})
		mock.ExpectRollback()

		tx, err := store.BeginTx(ctx)
		assert.NoError(t, err)

		id, err := repo.Create(ctx, tx, entry)
		assert.Equal(t, int64(0), id)
		assert.ErrorIs(t, err, pkgerrors.ErrDuplicateReference)

		assert.NoError(t, tx.Rollback())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresAuditRepository_Immutability(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresAuditRepository(db)
	ctx := context.Background()

	// no expectations set: any SQL reaching the database fails the test

	t.Run("UpdateRejected", func(t *testing.T) {
		entry := &models.AuditLog{ID: 11, TransactionID: 7, ChamaID: 42}
		err := repo.Update(ctx, entry)
		assert.ErrorIs(t, err, pkgerrors.ErrImmutableRecord)
	})

	t.Run("DeleteRejected", func(t *testing.T) {
		err := repo.Delete(ctx, 11)
		assert.ErrorIs(t, err, pkgerrors.ErrImmutableRecord)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAuditRepository_ListByChama(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresAuditRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		chamaID := int64(42)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, transaction_id, chama_id, actor_user_id, action, amount, reference_no, created_at FROM audit_logs WHERE chama_id = $1 ORDER BY created_at DESC`)).
			WithArgs(chamaID).
			WillReturnRows(sqlmock.NewRows([]string{"id", "transaction_id", "chama_id", "actor_user_id", "action", "amount", "reference_no", "created_at"}).
				AddRow(int64(11), int64(7), chamaID, int64(3), "withdrawal", "400.00", "AUD-ABCDEFGHJK", time.Now().UTC()).
				AddRow(int64(10), int64(6), chamaID, nil, "deposit", "250.00", "AUD-KJHGFEDCBA", time.Now().UTC()))

		entries, err := repo.ListByChama(ctx, chamaID)
		assert.NoError(t, err)
		assert.Len(t, entries, 2)
		assert.Equal(t, models.KindWithdrawal, entries[0].Action)
		assert.Equal(t, int64(3), *entries[0].ActorUserID)
		assert.Nil(t, entries[1].ActorUserID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
