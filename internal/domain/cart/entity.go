package cart

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxQuantity caps a single cart line
const MaxQuantity = 20

// Item is one cart line. Reward lines carry the reward id, cost nothing and
// cannot be edited by the customer.
type Item struct {
	ID          uuid.UUID       `db:"id"`
	UserID      uuid.UUID       `db:"user_id"`
	ProductID   uuid.UUID       `db:"product_id"`
	ProductName string          `db:"product_name"`
	Quantity    int             `db:"quantity"`
	UnitPrice   decimal.Decimal `db:"unit_price"`
	RewardID    sql.NullString  `db:"reward_id"`
	CreatedAt   time.Time       `db:"created_at"`
}

// IsReward reports whether the line came from a free_item redemption
func (i *Item) IsReward() bool {
	return i.RewardID.Valid
}

// LineTotal is unit price times quantity
func (i *Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Subtotal sums the line totals
func Subtotal(items []Item) decimal.Decimal {
	total := decimal.Zero
	for i := range items {
		total = total.Add(items[i].LineTotal())
	}
	return total
}
