package discount

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const queryTimeout = 3 * time.Second

const discountColumns = `id, user_id, reward_id, description, kind, value, status, order_id, created_at, used_at`

// Repository handles discount persistence
type Repository interface {
	CreateTx(ctx context.Context, tx *sqlx.Tx, d *Discount) error
	GetByID(ctx context.Context, id uuid.UUID) (*Discount, error)
	ListByUser(ctx context.Context, userID uuid.UUID, status *Status) ([]Discount, error)
	LockAvailableTx(ctx context.Context, tx *sqlx.Tx, id, userID uuid.UUID) (*Discount, error)
	MarkUsedTx(ctx context.Context, tx *sqlx.Tx, id, orderID uuid.UUID, at time.Time) error
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates discount repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateTx(ctx context.Context, tx *sqlx.Tx, d *Discount) error {
	_, err := tx.NamedExecContext(ctx, `
		INSERT INTO discounts (id, user_id, reward_id, description, kind, value, status, created_at)
		VALUES (:id, :user_id, :reward_id, :description, :kind, :value, :status, :created_at)
	`, d)
	if err != nil {
		return fmt.Errorf("create discount: %w", err)
	}
	return nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Discount, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var d Discount
	err := r.db.GetContext(ctx, &d, `SELECT `+discountColumns+` FROM discounts WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get discount: %w", err)
	}
	return &d, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, status *Status) ([]Discount, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `SELECT ` + discountColumns + ` FROM discounts WHERE user_id = $1`
	args := []interface{}{userID}
	if status != nil {
		query += ` AND status = $2`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at DESC`

	items := make([]Discount, 0)
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list discounts: %w", err)
	}
	return items, nil
}

// LockAvailableTx locks the user's discount for checkout
func (r *repository) LockAvailableTx(ctx context.Context, tx *sqlx.Tx, id, userID uuid.UUID) (*Discount, error) {
	var d Discount
	err := tx.GetContext(ctx, &d, `
		SELECT `+discountColumns+` FROM discounts WHERE id = $1 AND user_id = $2 FOR UPDATE
	`, id, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDiscountNotFound
		}
		return nil, fmt.Errorf("lock discount: %w", err)
	}
	if !d.IsAvailable() {
		return nil, ErrDiscountUsed
	}
	return &d, nil
}

// MarkUsedTx flips an available discount to used; a second use fails
func (r *repository) MarkUsedTx(ctx context.Context, tx *sqlx.Tx, id, orderID uuid.UUID, at time.Time) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE discounts SET status = 'used', order_id = $2, used_at = $3
		WHERE id = $1 AND status = 'available'
	`, id, orderID, at)
	if err != nil {
		return fmt.Errorf("mark discount used: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return ErrDiscountUsed
	}
	return nil
}
