package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/qahwa/cafe-api/internal/pkg/database"
)

const queryTimeout = 3 * time.Second

const orderColumns = `id, user_id, cashier_id, branch_id, status, channel, subtotal, discount_amount, total,
	discount_id, points_earned, request_id, notes, created_at, updated_at`

const itemColumns = `id, order_id, product_id, product_name, quantity, unit_price, line_total, reward_id`

// Repository defines order data access
type Repository interface {
	InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
	CreateTx(ctx context.Context, tx *sqlx.Tx, o *Order) error
	SetPointsEarnedTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, points int) error

	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	FindByRequest(ctx context.Context, userID uuid.UUID, requestID string) (*Order, error)
	List(ctx context.Context, f ListFilter) ([]Order, int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, at time.Time) error
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates order repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return database.InTx(ctx, r.db, fn)
}

// CreateTx inserts the order with its lines. A reused request id returns ErrDuplicateRequest.
func (r *repository) CreateTx(ctx context.Context, tx *sqlx.Tx, o *Order) error {
	_, err := tx.NamedExecContext(ctx, `
		INSERT INTO orders (id, user_id, cashier_id, branch_id, status, channel, subtotal, discount_amount, total,
			discount_id, points_earned, request_id, notes, created_at, updated_at)
		VALUES (:id, :user_id, :cashier_id, :branch_id, :status, :channel, :subtotal, :discount_amount, :total,
			:discount_id, :points_earned, :request_id, :notes, :created_at, :updated_at)
	`, o)
	if err != nil {
		if database.IsUniqueViolation(err, "orders_user_request_key") {
			return ErrDuplicateRequest
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range o.Items {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, product_name, quantity, unit_price, line_total, reward_id)
			VALUES (:id, :order_id, :product_id, :product_name, :quantity, :unit_price, :line_total, :reward_id)
		`, &o.Items[i])
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (r *repository) SetPointsEarnedTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, points int) error {
	_, err := tx.ExecContext(ctx, `UPDATE orders SET points_earned = $2 WHERE id = $1`, id, points)
	if err != nil {
		return fmt.Errorf("set points earned: %w", err)
	}
	return nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (r *repository) FindByRequest(ctx context.Context, userID uuid.UUID, requestID string) (*Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id = $1 AND request_id = $2`, userID, requestID)
}

func (r *repository) getOne(ctx context.Context, query string, args ...interface{}) (*Order, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var o Order
	if err := r.db.GetContext(ctx, &o, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	orders := []Order{o}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func (r *repository) List(ctx context.Context, f ListFilter) ([]Order, int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var conds []string
	var args []interface{}
	if f.UserID != nil {
		args = append(args, *f.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if f.Status != nil {
		args = append(args, *f.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.BranchID != nil {
		args = append(args, *f.BranchID)
		conds = append(conds, fmt.Sprintf("branch_id = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM orders`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit, f.Offset)
	query := fmt.Sprintf(`SELECT `+orderColumns+` FROM orders%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args))

	orders := make([]Order, 0)
	if err := r.db.SelectContext(ctx, &orders, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// UpdateStatus moves an order from one status to the next; a concurrent move wins and this returns ErrInvalidTransition
func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := r.db.ExecContext(ctx, `
		UPDATE orders SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2
	`, id, from, to, at)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if n == 0 {
		return ErrInvalidTransition
	}
	return nil
}

func (r *repository) attachItems(ctx context.Context, orders []Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	index := make(map[uuid.UUID]int, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID.String()
		index[orders[i].ID] = i
		orders[i].Items = make([]Item, 0)
	}

	var items []Item
	err := r.db.SelectContext(ctx, &items, `
		SELECT `+itemColumns+` FROM order_items WHERE order_id = ANY($1::uuid[]) ORDER BY order_id, id
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("list order items: %w", err)
	}
	for _, it := range items {
		if i, ok := index[it.OrderID]; ok {
			orders[i].Items = append(orders[i].Items, it)
		}
	}
	return nil
}
