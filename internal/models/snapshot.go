package models

import "time"

// ProjectSnapshot keeps the aggregated metrics of one project for one
// reporting period, including periods older than the canonical record.
type ProjectSnapshot struct {
	ID        uint `gorm:"primaryKey" json:"id"`
	ProjectID uint `gorm:"not null;uniqueIndex:idx_snapshots_period" json:"project_id"`

	Project ProjectKey `gorm:"-" json:"-"`

	Year   int    `gorm:"not null;uniqueIndex:idx_snapshots_period" json:"year"`
	Period string `gorm:"not null;uniqueIndex:idx_snapshots_period" json:"period"`

	InitialStock      *int     `json:"initial_stock"`
	AvailableUnits    *int     `json:"available_units"`
	SoldUnits         *int     `json:"sold_units"`
	PeriodOffer       *int     `json:"period_offer"`
	SalesSpeedMonthly *float64 `json:"sales_speed_monthly"`
	VelocityProjected *float64 `json:"velocity_projected"`
	MinPriceUF        *float64 `gorm:"column:min_price_uf" json:"min_price_uf"`
	MaxPriceUF        *float64 `gorm:"column:max_price_uf" json:"max_price_uf"`
	AvgPriceUF        *float64 `gorm:"column:avg_price_uf" json:"avg_price_uf"`
	AvgPriceM2UF      *float64 `gorm:"column:avg_price_m2_uf" json:"avg_price_m2_uf"`
	Typologies        int      `json:"typologies"`

	UpdatedAt time.Time `json:"updated_at"`
}

func (ProjectSnapshot) TableName() string { return "project_metrics_history" }
