package repository_test

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmwangi/chamaledger/internal/models"
	repository "github.com/jmwangi/chamaledger/internal/repository/postgres"
	pkgerrors "github.com/jmwangi/chamaledger/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestPostgresMemberRepository_RoleOf(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresMemberRepository(db)
	ctx := context.Background()

	t.Run("Leader", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT role FROM members WHERE user_id = $1 AND chama_id = $2`)).
			WithArgs(int64(3), int64(42)).
			WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("leader"))

		role, err := repo.RoleOf(ctx, 3, 42)
		assert.NoError(t, err)
		assert.Equal(t, models.RoleLeader, role)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NotMember", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT role FROM members`)).
			WithArgs(int64(9), int64(42)).
			WillReturnError(sql.ErrNoRows)

		role, err := repo.RoleOf(ctx, 9, 42)
		assert.Empty(t, role)
		assert.ErrorIs(t, err, pkgerrors.ErrNotMember)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresMemberRepository_GetByUserAndChama(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresMemberRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		joinedAt := time.Now().UTC()
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, user_id, chama_id, role, joined_at FROM members WHERE user_id = $1 AND chama_id = $2`)).
			WithArgs(int64(3), int64(42)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "chama_id", "role", "joined_at"}).
				AddRow(int64(7), int64(3), int64(42), "leader", joinedAt))

		member, err := repo.GetByUserAndChama(ctx, 3, 42)
		assert.NoError(t, err)
		assert.Equal(t, int64(7), member.ID)
		assert.Equal(t, models.RoleLeader, member.Role)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NotMember", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, user_id, chama_id, role, joined_at FROM members`)).
			WithArgs(int64(9), int64(42)).
			WillReturnError(sql.ErrNoRows)

		member, err := repo.GetByUserAndChama(ctx, 9, 42)
		assert.Nil(t, member)
		assert.ErrorIs(t, err, pkgerrors.ErrNotMember)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
