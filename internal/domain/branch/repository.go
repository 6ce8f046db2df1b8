package branch

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const queryTimeout = 3 * time.Second

// Repository defines branch data access
type Repository interface {
	ListActive(ctx context.Context, city string) ([]Branch, error)
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates branch repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) ListActive(ctx context.Context, city string) ([]Branch, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		SELECT id, name, name_ar, address, city, latitude, longitude, phone, opening_hours, is_active, created_at
		FROM branches
		WHERE is_active`
	args := []interface{}{}
	if city != "" {
		query += ` AND city ILIKE $1`
		args = append(args, city)
	}
	query += ` ORDER BY city, name`

	items := make([]Branch, 0)
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	return items, nil
}
