package product

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Category groups menu items
type Category string

const (
	CategoryHotDrinks  Category = "hot_drinks"
	CategoryColdDrinks Category = "cold_drinks"
	CategoryDesserts   Category = "desserts"
	CategoryFood       Category = "food"
	CategoryBeans      Category = "beans"
)

// Product is a menu item
type Product struct {
	ID           uuid.UUID       `db:"id"`
	SKU          string          `db:"sku"`
	Name         string          `db:"name"`
	NameAr       string          `db:"name_ar"`
	Description  string          `db:"description"`
	Category     Category        `db:"category"`
	Price        decimal.Decimal `db:"price"`
	ImageURL     sql.NullString  `db:"image_url"`
	ThumbnailURL sql.NullString  `db:"thumbnail_url"`
	IsAvailable  bool            `db:"is_available"`
	DeletedAt    sql.NullTime    `db:"deleted_at"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

// CanOrder reports whether the item can be put in a cart or an order
func (p *Product) CanOrder() bool {
	return p.IsAvailable && !p.DeletedAt.Valid
}

// ListFilter narrows the menu listing
type ListFilter struct {
	Category      *Category
	Search        string
	AvailableOnly bool
	Limit         int
	Offset        int
}
