package models

import "time"

// Typology is one floor plan offered by a project in its latest period.
// Typologies are replaced as a set whenever their project is re-imported.
type Typology struct {
	ID        uint `gorm:"primaryKey" json:"id"`
	ProjectID uint `gorm:"not null;index" json:"project_id"`

	// Parent identity, resolved to ProjectID before insertion
	Project ProjectKey `gorm:"-" json:"-"`

	Name         *string `json:"name"`
	TypologyCode string  `gorm:"not null" json:"typology_code"`
	Bedrooms     *int    `json:"bedrooms"`
	Bathrooms    *int    `json:"bathrooms"`

	SurfaceTotal   *float64 `json:"surface_total"`
	SurfaceIndoor  *float64 `json:"surface_indoor"`
	SurfaceTerrace *float64 `json:"surface_terrace"`
	LandSurface    *float64 `json:"land_surface"`
	KitchenType    *string  `json:"kitchen_type"`
	ParkingSpots   *int     `json:"parking_spots"`

	AvgPriceUF     *float64 `gorm:"column:avg_price_uf" json:"avg_price_uf"`
	PricePerM2UF   *float64 `gorm:"column:price_per_m2_uf" json:"price_per_m2_uf"`
	MinPriceUF     *float64 `gorm:"column:min_price_uf" json:"min_price_uf"`
	MaxPriceUF     *float64 `gorm:"column:max_price_uf" json:"max_price_uf"`
	CurrentPriceUF *float64 `gorm:"column:current_price_uf" json:"current_price_uf"`

	Stock      *int `json:"stock"`
	TotalUnits *int `json:"total_units"`

	CreatedAt time.Time `json:"created_at"`
}

func (Typology) TableName() string { return "project_typologies" }
