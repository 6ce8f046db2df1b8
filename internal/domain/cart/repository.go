package cart

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

const itemColumns = `id, user_id, product_id, product_name, quantity, unit_price, reward_id, created_at`

// Repository defines cart data access
type Repository interface {
	List(ctx context.Context, userID uuid.UUID) ([]Item, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Item, error)
	Add(ctx context.Context, item *Item) (*Item, error)
	UpdateQuantity(ctx context.Context, id, userID uuid.UUID, quantity int) error
	Remove(ctx context.Context, id, userID uuid.UUID) error

	AddRewardLineTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, rewardID, sku string, at time.Time) (*Item, error)
	ListForCheckoutTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) ([]Item, error)
	ClearTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) error
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates cart repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) List(ctx context.Context, userID uuid.UUID) ([]Item, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	items := make([]Item, 0)
	err := r.db.SelectContext(ctx, &items, `
		SELECT `+itemColumns+` FROM cart_items WHERE user_id = $1 ORDER BY created_at, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list cart: %w", err)
	}
	return items, nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Item, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var item Item
	err := r.db.GetContext(ctx, &item, `SELECT `+itemColumns+` FROM cart_items WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cart item: %w", err)
	}
	return &item, nil
}

// Add inserts a paid line or merges it into the existing line for the same product
func (r *repository) Add(ctx context.Context, item *Item) (*Item, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var out Item
	err := r.db.GetContext(ctx, &out, `
		INSERT INTO cart_items (id, user_id, product_id, product_name, quantity, unit_price, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, product_id) WHERE reward_id IS NULL
		DO UPDATE SET quantity = LEAST(cart_items.quantity + EXCLUDED.quantity, $8),
		              unit_price = EXCLUDED.unit_price,
		              product_name = EXCLUDED.product_name
		RETURNING `+itemColumns,
		item.ID, item.UserID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice, item.CreatedAt, MaxQuantity,
	)
	if err != nil {
		return nil, fmt.Errorf("add cart item: %w", err)
	}
	return &out, nil
}

func (r *repository) UpdateQuantity(ctx context.Context, id, userID uuid.UUID, quantity int) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := r.db.ExecContext(ctx, `
		UPDATE cart_items SET quantity = $3 WHERE id = $1 AND user_id = $2 AND reward_id IS NULL
	`, id, userID, quantity)
	if err != nil {
		return fmt.Errorf("update cart item: %w", err)
	}
	return expectOne(result)
}

func (r *repository) Remove(ctx context.Context, id, userID uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := r.db.ExecContext(ctx, `
		DELETE FROM cart_items WHERE id = $1 AND user_id = $2 AND reward_id IS NULL
	`, id, userID)
	if err != nil {
		return fmt.Errorf("remove cart item: %w", err)
	}
	return expectOne(result)
}

// AddRewardLineTx adds a zero-price line for the product with the given SKU.
// Nothing is inserted when the product is missing, deleted or unavailable.
func (r *repository) AddRewardLineTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, rewardID, sku string, at time.Time) (*Item, error) {
	var out Item
	err := tx.GetContext(ctx, &out, `
		INSERT INTO cart_items (id, user_id, product_id, product_name, quantity, unit_price, reward_id, created_at)
		SELECT $1, $2, p.id, p.name, 1, 0, $3, $5
		FROM products p
		WHERE p.sku = $4 AND p.is_available AND p.deleted_at IS NULL
		RETURNING `+itemColumns,
		uuid.New(), userID, rewardID, sku, at,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRewardProductUnavailable
		}
		return nil, fmt.Errorf("add reward line: %w", err)
	}
	return &out, nil
}

// ListForCheckoutTx locks the cart lines for the order being placed
func (r *repository) ListForCheckoutTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) ([]Item, error) {
	items := make([]Item, 0)
	err := tx.SelectContext(ctx, &items, `
		SELECT `+itemColumns+` FROM cart_items WHERE user_id = $1 ORDER BY created_at, id FOR UPDATE
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("lock cart: %w", err)
	}
	return items, nil
}

func (r *repository) ClearTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

func expectOne(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return ErrItemNotFound
	}
	return nil
}
