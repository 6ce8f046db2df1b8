package user

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Role represents user role in the system (matches user_role enum)
type Role string

const (
	RoleCustomer Role = "customer"
	RoleCashier  Role = "cashier"
	RoleAdmin    Role = "admin"
)

// User represents a user account
type User struct {
	ID           uuid.UUID      `db:"id"`
	Email        string         `db:"email"`
	PasswordHash string         `db:"password_hash"`
	Name         string         `db:"name"`
	Phone        sql.NullString `db:"phone"`
	Role         Role           `db:"role"`
	IsActive     bool           `db:"is_active"`
	LastLoginAt  sql.NullTime   `db:"last_login_at"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

// IsAdmin returns true if user is an admin
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// IsStaff returns true for cashiers and admins
func (u *User) IsStaff() bool {
	return u.Role == RoleCashier || u.Role == RoleAdmin
}
