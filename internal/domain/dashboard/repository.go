package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const queryTimeout = 5 * time.Second

// Repository aggregates sales and loyalty figures
type Repository interface {
	Sales(ctx context.Context, from, to time.Time) (*SalesStats, error)
	Points(ctx context.Context, from, to time.Time) (*PointsStats, error)
	Members(ctx context.Context) (*MemberStats, error)
	TopProducts(ctx context.Context, from, to time.Time, limit int) ([]ProductSales, error)
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates dashboard repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Sales(ctx context.Context, from, to time.Time) (*SalesStats, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	stats := &SalesStats{ByStatus: map[string]int{}, ByChannel: map[string]int{}}
	err := r.db.QueryRowxContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total), 0), COALESCE(SUM(discount_amount), 0)
		FROM orders WHERE created_at >= $1 AND created_at < $2
	`, from, to).Scan(&stats.Orders, &stats.Revenue, &stats.Discounts)
	if err != nil {
		return nil, fmt.Errorf("sales totals: %w", err)
	}
	if stats.Orders > 0 {
		stats.AverageTicket = stats.Revenue.Div(decimal.NewFromInt(int64(stats.Orders))).Round(2)
	}

	if err := r.countBy(ctx, "status", from, to, stats.ByStatus); err != nil {
		return nil, err
	}
	if err := r.countBy(ctx, "channel", from, to, stats.ByChannel); err != nil {
		return nil, err
	}
	return stats, nil
}

// countBy groups orders by a fixed column name; column is never user input
func (r *repository) countBy(ctx context.Context, column string, from, to time.Time, into map[string]int) error {
	var rows []struct {
		Key   string `db:"key"`
		Count int    `db:"count"`
	}
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+column+` AS key, COUNT(*) AS count
		FROM orders WHERE created_at >= $1 AND created_at < $2
		GROUP BY `+column, from, to)
	if err != nil {
		return fmt.Errorf("orders by %s: %w", column, err)
	}
	for _, row := range rows {
		into[row.Key] = row.Count
	}
	return nil
}

func (r *repository) Points(ctx context.Context, from, to time.Time) (*PointsStats, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	stats := &PointsStats{}
	err := r.db.QueryRowxContext(ctx, `
		SELECT
			COALESCE(SUM(points) FILTER (WHERE type = 'earned'), 0),
			COALESCE(-SUM(points) FILTER (WHERE type = 'used'), 0),
			COALESCE(-SUM(points) FILTER (WHERE type = 'expired'), 0),
			COUNT(*) FILTER (WHERE source = 'redemption' AND points < 0)
		FROM loyalty_points WHERE created_at >= $1 AND created_at < $2
	`, from, to).Scan(&stats.Issued, &stats.Redeemed, &stats.Expired, &stats.Redemptions)
	if err != nil {
		return nil, fmt.Errorf("points totals: %w", err)
	}

	err = r.db.GetContext(ctx, &stats.Outstanding, `
		SELECT COALESCE(SUM(available_points), 0) FROM loyalty_profiles WHERE is_active
	`)
	if err != nil {
		return nil, fmt.Errorf("outstanding points: %w", err)
	}
	return stats, nil
}

func (r *repository) Members(ctx context.Context) (*MemberStats, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var rows []struct {
		Tier  string `db:"tier"`
		Count int    `db:"count"`
	}
	err := r.db.SelectContext(ctx, &rows, `
		SELECT tier, COUNT(*) AS count FROM loyalty_profiles WHERE is_active GROUP BY tier
	`)
	if err != nil {
		return nil, fmt.Errorf("members by tier: %w", err)
	}

	stats := &MemberStats{ByTier: map[string]int{}}
	for _, row := range rows {
		stats.ByTier[row.Tier] = row.Count
		stats.Active += row.Count
	}
	return stats, nil
}

func (r *repository) TopProducts(ctx context.Context, from, to time.Time, limit int) ([]ProductSales, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	items := make([]ProductSales, 0, limit)
	err := r.db.SelectContext(ctx, &items, `
		SELECT oi.product_id, MAX(oi.product_name) AS product_name,
			SUM(oi.quantity) AS quantity, SUM(oi.line_total) AS revenue
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.created_at >= $1 AND o.created_at < $2
		GROUP BY oi.product_id
		ORDER BY quantity DESC, revenue DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("top products: %w", err)
	}
	return items, nil
}
