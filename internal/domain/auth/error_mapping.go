package auth

import (
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/qahwa/cafe-api/internal/domain/user"
)

// DBErrorDetails contains diagnostics extracted from PostgreSQL errors.
type DBErrorDetails struct {
	SQLState   string
	Constraint string
	Table      string
	Column     string
	Detail     string
}

func extractDBErrorDetails(err error) *DBErrorDetails {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return nil
	}

	return &DBErrorDetails{
		SQLState:   string(pqErr.Code),
		Constraint: pqErr.Constraint,
		Table:      pqErr.Table,
		Column:     pqErr.Column,
		Detail:     pqErr.Detail,
	}
}

func isEmailAlreadyExistsError(err error) bool {
	if errors.Is(err, ErrEmailAlreadyExists) || errors.Is(err, user.ErrEmailTaken) {
		return true
	}
	details := extractDBErrorDetails(err)
	if details == nil || details.SQLState != "23505" {
		return false
	}
	return details.Constraint == "users_email_key" || (details.Table == "users" && details.Column == "email")
}

func wrapRegisterError(step string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("register step %s: %w", step, err)
}
