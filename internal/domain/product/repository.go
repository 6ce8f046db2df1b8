package product

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/qahwa/cafe-api/internal/pkg/database"
)

const queryTimeout = 3 * time.Second

const productColumns = `id, sku, name, name_ar, description, category, price, image_url, thumbnail_url,
	is_available, deleted_at, created_at, updated_at`

// Repository defines product data access
type Repository interface {
	Create(ctx context.Context, p *Product) error
	GetByID(ctx context.Context, id uuid.UUID) (*Product, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Product, error)
	List(ctx context.Context, f ListFilter) ([]Product, int, error)
	Update(ctx context.Context, p *Product) error
	SetImages(ctx context.Context, id uuid.UUID, imageURL, thumbURL string, at time.Time) error
	SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates product repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, p *Product) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO products (id, sku, name, name_ar, description, category, price, is_available, created_at, updated_at)
		VALUES (:id, :sku, :name, :name_ar, :description, :category, :price, :is_available, :created_at, :updated_at)
	`, p)
	if err != nil {
		if database.IsUniqueViolation(err, "products_sku_key") {
			return ErrSKUTaken
		}
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

// GetByID returns a live product, nil when missing or deleted
func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Product, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var p Product
	err := r.db.GetContext(ctx, &p, `
		SELECT `+productColumns+` FROM products WHERE id = $1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &p, nil
}

// GetByIDs returns the live products among ids keyed by id
func (r *repository) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Product, error) {
	out := make(map[uuid.UUID]*Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}

	var items []Product
	err := r.db.SelectContext(ctx, &items, `
		SELECT `+productColumns+` FROM products WHERE id = ANY($1::uuid[]) AND deleted_at IS NULL
	`, pq.Array(keys))
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	for i := range items {
		out[items[i].ID] = &items[i]
	}
	return out, nil
}

func (r *repository) List(ctx context.Context, f ListFilter) ([]Product, int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	where := ` WHERE deleted_at IS NULL`
	args := make([]interface{}, 0, 5)
	idx := 1

	if f.Category != nil {
		where += fmt.Sprintf(" AND category = $%d", idx)
		args = append(args, *f.Category)
		idx++
	}
	if f.Search != "" {
		where += fmt.Sprintf(" AND (name ILIKE $%d OR name_ar ILIKE $%d)", idx, idx)
		args = append(args, "%"+f.Search+"%")
		idx++
	}
	if f.AvailableOnly {
		where += " AND is_available"
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM products`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	query := `SELECT ` + productColumns + ` FROM products` + where +
		fmt.Sprintf(" ORDER BY category, name LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, f.Offset)

	items := make([]Product, 0)
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	return items, total, nil
}

func (r *repository) Update(ctx context.Context, p *Product) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := r.db.NamedExecContext(ctx, `
		UPDATE products
		SET sku = :sku, name = :name, name_ar = :name_ar, description = :description,
		    category = :category, price = :price, is_available = :is_available, updated_at = :updated_at
		WHERE id = :id AND deleted_at IS NULL
	`, p)
	if err != nil {
		if database.IsUniqueViolation(err, "products_sku_key") {
			return ErrSKUTaken
		}
		return fmt.Errorf("update product: %w", err)
	}
	return expectOne(result)
}

func (r *repository) SetImages(ctx context.Context, id uuid.UUID, imageURL, thumbURL string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := r.db.ExecContext(ctx, `
		UPDATE products SET image_url = $2, thumbnail_url = $3, updated_at = $4
		WHERE id = $1 AND deleted_at IS NULL
	`, id, imageURL, thumbURL, at)
	if err != nil {
		return fmt.Errorf("set product images: %w", err)
	}
	return expectOne(result)
}

// SoftDelete hides the product; past orders keep pointing at it
func (r *repository) SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := r.db.ExecContext(ctx, `
		UPDATE products SET deleted_at = $2, is_available = FALSE, updated_at = $2
		WHERE id = $1 AND deleted_at IS NULL
	`, id, at)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	return expectOne(result)
}

func expectOne(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return ErrProductNotFound
	}
	return nil
}
