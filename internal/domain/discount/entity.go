package discount

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind is how a discount reduces an order
type Kind string

const (
	KindPercentage Kind = "percentage"
	KindFixed      Kind = "fixed"
)

// Status of a discount
type Status string

const (
	StatusAvailable Status = "available"
	StatusUsed      Status = "used"
)

var hundred = decimal.NewFromInt(100)

// Discount is a single-use reduction issued by a reward redemption
type Discount struct {
	ID          uuid.UUID       `db:"id"`
	UserID      uuid.UUID       `db:"user_id"`
	RewardID    string          `db:"reward_id"`
	Description string          `db:"description"`
	Kind        Kind            `db:"kind"`
	Value       decimal.Decimal `db:"value"`
	Status      Status          `db:"status"`
	OrderID     uuid.NullUUID   `db:"order_id"`
	CreatedAt   time.Time       `db:"created_at"`
	UsedAt      sql.NullTime    `db:"used_at"`
}

// IsAvailable reports whether the discount can still be applied
func (d *Discount) IsAvailable() bool {
	return d.Status == StatusAvailable
}

// AmountFor returns how much the discount takes off subtotal. The result never
// exceeds the subtotal, so an order total cannot go negative.
func (d *Discount) AmountFor(subtotal decimal.Decimal) decimal.Decimal {
	if !subtotal.IsPositive() || !d.Value.IsPositive() {
		return decimal.Zero
	}

	var amount decimal.Decimal
	switch d.Kind {
	case KindFixed:
		amount = d.Value
	case KindPercentage:
		pct := decimal.Min(d.Value, hundred)
		amount = subtotal.Mul(pct).Div(hundred).Round(2)
	default:
		return decimal.Zero
	}

	return decimal.Min(amount, subtotal)
}
