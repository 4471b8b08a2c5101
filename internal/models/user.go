package models

import "time"

// Role determines what a user may do. Roles are fixed at creation.
type Role string

const (
	RoleEmployee Role = "employee"
	RoleApprover Role = "approver"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleEmployee || r == RoleApprover
}

// User represents a registered account. Email comparison is
// case-insensitive; the password hash never leaves the server.
type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name,omitempty"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Session represents an issued credential. Sessions are never mutated:
// they are created at login and deleted at logout or expiry.
type Session struct {
	Token     string    `json:"token"`
	UserID    int64     `json:"user_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
