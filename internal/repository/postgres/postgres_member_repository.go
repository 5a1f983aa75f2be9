package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/jmwangi/chamaledger/internal/models"
	pkgerrors "github.com/jmwangi/chamaledger/pkg/errors"
)

// PostgresMemberRepository is the read-only view of the membership
// roster the authorization gate consults. Member management itself
// lives elsewhere.
type PostgresMemberRepository struct {
	db *sql.DB
}

func NewPostgresMemberRepository(db *sql.DB) *PostgresMemberRepository {
	return &PostgresMemberRepository{db: db}
}

func (r *PostgresMemberRepository) RoleOf(ctx context.Context, userID, chamaID int64) (models.Role, error) {
	var role models.Role
	query := `SELECT role FROM members WHERE user_id = $1 AND chama_id = $2`
	err := r.db.QueryRowContext(ctx, query, userID, chamaID).Scan(&role)
	switch {
	case stderrors.Is(err, sql.ErrNoRows):
		return "", pkgerrors.ErrNotMember
	case err != nil:
		return "", fmt.Errorf("failed to get member role: %w", err)
	}
	return role, nil
}

func (r *PostgresMemberRepository) GetByUserAndChama(ctx context.Context, userID, chamaID int64) (*models.Member, error) {
	query := `SELECT id, user_id, chama_id, role, joined_at FROM members WHERE user_id = $1 AND chama_id = $2`
	var member models.Member
	err := r.db.QueryRowContext(ctx, query, userID, chamaID).Scan(
		&member.ID,
		&member.UserID,
		&member.ChamaID,
		&member.Role,
		&member.JoinedAt,
	)
	switch {
	case stderrors.Is(err, sql.ErrNoRows):
		return nil, pkgerrors.ErrNotMember
	case err != nil:
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return &member, nil
}
