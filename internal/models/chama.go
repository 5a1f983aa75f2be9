package models

import "time"

type Role string

const (
	RoleLeader Role = "leader"
	RoleMember Role = "member"
)

type Chama struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	CreatedBy     int64     `json:"created_by"`
	AccountNumber string    `json:"account_number"`
	CreatedAt     time.Time `json:"created_at"`
}

type Member struct {
	ID       int64     `json:"id"`
	UserID   int64     `json:"user_id"`
	ChamaID  int64     `json:"chama_id"`
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}
