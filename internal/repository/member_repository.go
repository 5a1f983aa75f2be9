package repository

import (
	"context"

	"github.com/jmwangi/chamaledger/internal/models"
)

type MemberRepository interface {
	// RoleOf returns the user's role within the chama, or ErrNotMember.
	RoleOf(ctx context.Context, userID, chamaID int64) (models.Role, error)
	GetByUserAndChama(ctx context.Context, userID, chamaID int64) (*models.Member, error)
}
