package loyalty

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PointsValidityMonths is how long earned points stay spendable
const PointsValidityMonths = 6

// EntryType classifies a ledger entry
type EntryType string

const (
	EntryEarned  EntryType = "earned"
	EntryUsed    EntryType = "used"
	EntryExpired EntryType = "expired"
)

// EntrySource records what produced a ledger entry
type EntrySource string

const (
	SourcePurchase   EntrySource = "purchase"
	SourceBonus      EntrySource = "bonus"
	SourceRedemption EntrySource = "redemption"
	SourceExpiry     EntrySource = "expiry"
)

// LoyaltyPoint is one immutable ledger entry. Points are positive for
// earned entries and negative for used and expired ones, except a used entry
// that refunds a free item the cafe could not serve.
type LoyaltyPoint struct {
	ID          uuid.UUID      `db:"id"`
	UserID      uuid.UUID      `db:"user_id"`
	Points      int            `db:"points"`
	Type        EntryType      `db:"type"`
	Source      EntrySource    `db:"source"`
	Description string         `db:"description"`
	OrderID     uuid.NullUUID  `db:"order_id"`
	RequestID   sql.NullString `db:"request_id"`
	CreatedAt   time.Time      `db:"created_at"`
	ExpiresAt   sql.NullTime   `db:"expires_at"`
}

// Profile is the per-user aggregate of the ledger
type Profile struct {
	UserID          uuid.UUID       `db:"user_id"`
	TotalPoints     int             `db:"total_points"`
	AvailablePoints int             `db:"available_points"`
	UsedPoints      int             `db:"used_points"`
	ExpiredPoints   int             `db:"expired_points"`
	Tier            Tier            `db:"tier"`
	JoinDate        time.Time       `db:"join_date"`
	LastActivity    time.Time       `db:"last_activity"`
	TotalSpent      decimal.Decimal `db:"total_spent"`
	TotalOrders     int             `db:"total_orders"`
	IsActive        bool            `db:"is_active"`
}

// Balanced reports whether lifetime points equal available + used + expired
func (p *Profile) Balanced() bool {
	return p.TotalPoints == p.AvailablePoints+p.UsedPoints+p.ExpiredPoints
}

// Lot is the unconsumed remainder of one earned entry
type Lot struct {
	EntryID   uuid.UUID `db:"entry_id"`
	UserID    uuid.UUID `db:"user_id"`
	Remaining int       `db:"remaining"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}

// Redemption links a redemption request to the ledger entry and the effect it produced
type Redemption struct {
	ID         uuid.UUID     `db:"id"`
	UserID     uuid.UUID     `db:"user_id"`
	RewardID   string        `db:"reward_id"`
	Points     int           `db:"points"`
	RequestID  string        `db:"request_id"`
	EntryID    uuid.UUID     `db:"entry_id"`
	DiscountID uuid.NullUUID `db:"discount_id"`
	CartItemID uuid.NullUUID `db:"cart_item_id"`
	CreatedAt  time.Time     `db:"created_at"`
	RefundedAt sql.NullTime  `db:"refunded_at"`
}

// Pagination controls simple list pagination.
type Pagination struct {
	Limit  int
	Offset int
}

// SearchFilters provides admin-facing ledger filtering.
type SearchFilters struct {
	UserID   *uuid.UUID
	Type     *EntryType
	Source   *EntrySource
	DateFrom *time.Time
	DateTo   *time.Time
	Limit    int
	Offset   int
}

// ExpiresAtFor returns the expiry of points earned at t
func ExpiresAtFor(t time.Time) time.Time {
	return t.AddDate(0, PointsValidityMonths, 0)
}
