package branch

import (
	"time"

	"github.com/google/uuid"
)

// Branch is a café location
type Branch struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	NameAr       string    `db:"name_ar" json:"name_ar,omitempty"`
	Address      string    `db:"address" json:"address"`
	City         string    `db:"city" json:"city"`
	Latitude     float64   `db:"latitude" json:"latitude"`
	Longitude    float64   `db:"longitude" json:"longitude"`
	Phone        string    `db:"phone" json:"phone,omitempty"`
	OpeningHours string    `db:"opening_hours" json:"opening_hours,omitempty"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// WithDistance is a branch annotated with its distance from a point
type WithDistance struct {
	Branch
	DistanceKm float64 `json:"distance_km"`
}
