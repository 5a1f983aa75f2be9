package repository_test

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	repository "github.com/jmwangi/chamaledger/internal/repository/postgres"
	pkgerrors "github.com/jmwangi/chamaledger/pkg/errors"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPostgresAccountRepository_GetMainAccount(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresAccountRepository(db, 3*time.Second)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		chamaID := int64(42)
		createdAt := time.Now().UTC()
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, chama_id, member_id, balance, created_at FROM virtual_accounts WHERE chama_id = $1 AND member_id IS NULL`)).
			WithArgs(chamaID).
			WillReturnRows(sqlmock.NewRows([]string{"id", "chama_id", "member_id", "balance", "created_at"}).
				AddRow(int64(1), chamaID, nil, "1000.00", createdAt))

		account, err := repo.GetMainAccount(ctx, chamaID)
		assert.NoError(t, err)
		assert.Equal(t, int64(1), account.ID)
		assert.Equal(t, chamaID, account.ChamaID)
		assert.Nil(t, account.MemberID)
		assert.True(t, account.IsMain())
		assert.True(t, account.Balance.Equal(decimal.RequireFromString("1000.00")))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("AccountNotFound", func(t *testing.T) {
		chamaID := int64(42)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, chama_id, member_id, balance, created_at FROM virtual_accounts WHERE chama_id = $1 AND member_id IS NULL`)).
			WithArgs(chamaID).
			WillReturnError(sql.ErrNoRows)

		account, err := repo.GetMainAccount(ctx, chamaID)
		assert.Nil(t, account)
		assert.ErrorIs(t, err, pkgerrors.ErrAccountNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DatabaseError", func(t *testing.T) {
		chamaID := int64(42)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, chama_id, member_id, balance, created_at FROM virtual_accounts`)).
			WithArgs(chamaID).
			WillReturnError(fmt.Errorf("database error"))

		account, err := repo.GetMainAccount(ctx, chamaID)
		assert.Nil(t, account)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to get account")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresAccountRepository_GetMemberAccount(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresAccountRepository(db, 3*time.Second)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		chamaID := int64(42)
		memberID := int64(7)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, chama_id, member_id, balance, created_at FROM virtual_accounts WHERE chama_id = $1 AND member_id = $2`)).
			WithArgs(chamaID, memberID).
			WillReturnRows(sqlmock.NewRows([]string{"id", "chama_id", "member_id", "balance", "created_at"}).
				AddRow(int64(2), chamaID, memberID, "250.00", time.Now().UTC()))

		account, err := repo.GetMemberAccount(ctx, chamaID, memberID)
		assert.NoError(t, err)
		assert.NotNil(t, account.MemberID)
		assert.Equal(t, memberID, *account.MemberID)
		assert.False(t, account.IsMain())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresAccountRepository_GetMainAccountForUpdate(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresAccountRepository(db, 3*time.Second)
	store := repository.NewStore(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		chamaID := int64(42)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`SET LOCAL lock_timeout = '3000ms'`)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, chama_id, member_id, balance, created_at FROM virtual_accounts WHERE chama_id = $1 AND member_id IS NULL FOR UPDATE`)).
			WithArgs(chamaID).
			WillReturnRows(sqlmock.NewRows([]string{"id", "chama_id", "member_id", "balance", "created_at"}).
				AddRow(int64(1), chamaID, nil, "1000.00", time.Now().UTC()))
		mock.ExpectCommit()

		tx, err := store.BeginTx(ctx)
		assert.NoError(t, err)

		account, err := repo.GetMainAccountForUpdate(ctx, tx, chamaID)
		assert.NoError(t, err)
		assert.True(t, account.Balance.Equal(decimal.RequireFromString("1000.00")))

		assert.NoError(t, tx.Commit())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("LockTimeout", func(t *testing.T) {
		chamaID := int64(42)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`SET LOCAL lock_timeout = '3000ms'`)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE`)).
			WithArgs(chamaID).
			WillReturnError(&pq.Error{Code: "55P03"})
		mock.ExpectRollback()

		tx, err := store.BeginTx(ctx)
		assert.NoError(t, err)

		account, err := repo.GetMainAccountForUpdate(ctx, tx, chamaID)
		assert.Nil(t, account)
		assert.ErrorIs(t, err, pkgerrors.ErrConcurrencyConflict)

		assert.NoError(t, tx.Rollback())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("AccountNotFound", func(t *testing.T) {
		chamaID := int64(42)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`SET LOCAL lock_timeout = '3000ms'`)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE`)).
			WithArgs(chamaID).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		tx, err := store.BeginTx(ctx)
		assert.NoError(t, err)

		account, err := repo.GetMainAccountForUpdate(ctx, tx, chamaID)
		assert.Nil(t, account)
		assert.ErrorIs(t, err, pkgerrors.ErrAccountNotFound)

		assert.NoError(t, tx.Rollback())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresAccountRepository_UpdateBalance(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresAccountRepository(db, 3*time.Second)
	store := repository.NewStore(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		balance := decimal.RequireFromString("600.00")
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE virtual_accounts SET balance = $1 WHERE id = $2`)).
			WithArgs(balance, int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		tx, err := store.BeginTx(ctx)
		assert.NoError(t, err)

		assert.NoError(t, repo.UpdateBalance(ctx, tx, 1, balance))
		assert.NoError(t, tx.Commit())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("AccountGone", func(t *testing.T) {
		balance := decimal.RequireFromString("600.00")
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE virtual_accounts SET balance = $1 WHERE id = $2`)).
			WithArgs(balance, int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		tx, err := store.BeginTx(ctx)
		assert.NoError(t, err)

		err = repo.UpdateBalance(ctx, tx, 1, balance)
		assert.ErrorIs(t, err, pkgerrors.ErrAccountNotFound)
		assert.NoError(t, tx.Rollback())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
