package dashboard

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SalesStats are order totals for a period
type SalesStats struct {
	Orders        int             `json:"orders"`
	Revenue       decimal.Decimal `json:"revenue"`
	Discounts     decimal.Decimal `json:"discounts"`
	AverageTicket decimal.Decimal `json:"average_ticket"`
	ByStatus      map[string]int  `json:"by_status"`
	ByChannel     map[string]int  `json:"by_channel"`
}

// PointsStats are ledger movements for a period plus the current liability
type PointsStats struct {
	Issued      int `json:"issued"`
	Redeemed    int `json:"redeemed"`
	Expired     int `json:"expired"`
	Redemptions int `json:"redemptions"`
	Outstanding int `json:"outstanding"`
}

// MemberStats counts active loyalty members
type MemberStats struct {
	Active int            `json:"active"`
	ByTier map[string]int `json:"by_tier"`
}

// ProductSales is one best-selling menu item
type ProductSales struct {
	ProductID   uuid.UUID       `db:"product_id" json:"product_id"`
	ProductName string          `db:"product_name" json:"product_name"`
	Quantity    int             `db:"quantity" json:"quantity"`
	Revenue     decimal.Decimal `db:"revenue" json:"revenue"`
}

// Stats is the admin dashboard payload
type Stats struct {
	From        time.Time      `json:"from"`
	To          time.Time      `json:"to"`
	Sales       *SalesStats    `json:"sales"`
	Points      *PointsStats   `json:"points"`
	Members     *MemberStats   `json:"members"`
	TopProducts []ProductSales `json:"top_products"`
}

// Service provides dashboard statistics
type Service struct {
	repo Repository
}

// NewService creates dashboard service
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// GetStats aggregates the period [from, to)
func (s *Service) GetStats(ctx context.Context, from, to time.Time) (*Stats, error) {
	stats := &Stats{From: from, To: to}

	var err error
	if stats.Sales, err = s.repo.Sales(ctx, from, to); err != nil {
		return nil, err
	}
	if stats.Points, err = s.repo.Points(ctx, from, to); err != nil {
		return nil, err
	}
	if stats.Members, err = s.repo.Members(ctx); err != nil {
		return nil, err
	}
	if stats.TopProducts, err = s.repo.TopProducts(ctx, from, to, 5); err != nil {
		return nil, err
	}
	return stats, nil
}
