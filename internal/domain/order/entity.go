package order

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is where an order is in the kitchen flow
type Status string

const (
	StatusPending   Status = "pending"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusCompleted Status = "completed"
)

// Channel is where an order was placed
type Channel string

const (
	ChannelApp Channel = "app"
	ChannelPOS Channel = "pos"
)

var nextStatus = map[Status]Status{
	StatusPending:   StatusPreparing,
	StatusPreparing: StatusReady,
	StatusReady:     StatusCompleted,
}

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPreparing, StatusReady, StatusCompleted:
		return true
	}
	return false
}

// CanTransition reports whether an order may move from s to next. Orders only
// move forward one step at a time.
func (s Status) CanTransition(next Status) bool {
	return nextStatus[s] == next
}

// Order is a placed order
type Order struct {
	ID             uuid.UUID       `db:"id"`
	UserID         uuid.UUID       `db:"user_id"`
	CashierID      uuid.NullUUID   `db:"cashier_id"`
	BranchID       uuid.NullUUID   `db:"branch_id"`
	Status         Status          `db:"status"`
	Channel        Channel         `db:"channel"`
	Subtotal       decimal.Decimal `db:"subtotal"`
	DiscountAmount decimal.Decimal `db:"discount_amount"`
	Total          decimal.Decimal `db:"total"`
	DiscountID     uuid.NullUUID   `db:"discount_id"`
	PointsEarned   int             `db:"points_earned"`
	RequestID      string          `db:"request_id"`
	Notes          string          `db:"notes"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`

	Items []Item `db:"-"`
}

// Item is one order line with the price frozen at checkout
type Item struct {
	ID          uuid.UUID       `db:"id"`
	OrderID     uuid.UUID       `db:"order_id"`
	ProductID   uuid.UUID       `db:"product_id"`
	ProductName string          `db:"product_name"`
	Quantity    int             `db:"quantity"`
	UnitPrice   decimal.Decimal `db:"unit_price"`
	LineTotal   decimal.Decimal `db:"line_total"`
	RewardID    sql.NullString  `db:"reward_id"`
}

// ListFilter narrows the staff order listing
type ListFilter struct {
	Status   *Status
	BranchID *uuid.UUID
	UserID   *uuid.UUID
	Limit    int
	Offset   int
}
