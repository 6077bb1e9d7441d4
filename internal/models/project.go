package models

import "time"

// ProjectKey identifies a project across periods and imports.
type ProjectKey struct {
	Name    string `json:"name"`
	Commune string `json:"commune"`
}

func (k ProjectKey) String() string {
	return k.Name + " (" + k.Commune + ")"
}

// Project is the canonical, latest-period view of one real-estate project.
// Nil pointer fields are absent and are never written over stored values.
type Project struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	Name    string `gorm:"not null;uniqueIndex:idx_projects_identity" json:"name"`
	Commune string `gorm:"not null;uniqueIndex:idx_projects_identity" json:"commune"`

	Region             *string `json:"region"`
	Zone               *string `gorm:"column:zona" json:"zona"`
	Address            *string `json:"address"`
	StreetNumber       *string `json:"street_number"`
	Developer          *string `json:"developer"`
	Seller             *string `json:"seller"`
	Builder            *string `json:"builder"`
	PropertyType       *string `json:"property_type"`
	Category           *string `json:"category"`
	ProjectStatus      *string `json:"project_status"`
	ConstructionStatus *string `json:"construction_status"`
	SubsidyType        *string `json:"subsidy_type"`

	Latitude  *float64 `gorm:"index:idx_projects_coordinates" json:"latitude"`
	Longitude *float64 `gorm:"index:idx_projects_coordinates" json:"longitude"`

	// Snapshot the record was aggregated from
	Year   *int    `json:"year"`
	Period *string `json:"period"`

	SalesStartDate *string `json:"sales_start_date"`
	DeliveryDate   *string `json:"delivery_date"`

	InitialStock    *int `json:"initial_stock"`
	TotalUnits      *int `json:"total_units"`
	AvailableUnits  *int `json:"available_units"`
	SoldUnits       *int `json:"sold_units"`
	PeriodOffer     *int `json:"period_offer"`
	TotalFloors     *int `json:"total_floors"`
	TotalApartments *int `json:"total_apartments"`
	ParkingCount    *int `json:"parking_count"`

	SalesSpeedMonthly *float64 `json:"sales_speed_monthly"`
	VelocityProjected *float64 `json:"velocity_projected"`
	MonthsToSellOut   *float64 `json:"months_to_sell_out"`
	MonthsOnSale      *float64 `json:"months_on_sale"`

	MinPriceUF   *float64 `gorm:"column:min_price_uf" json:"min_price_uf"`
	MaxPriceUF   *float64 `gorm:"column:max_price_uf" json:"max_price_uf"`
	AvgPriceUF   *float64 `gorm:"column:avg_price_uf" json:"avg_price_uf"`
	AvgPriceM2UF *float64 `gorm:"column:avg_price_m2_uf" json:"avg_price_m2_uf"`
	ParkingPrice *float64 `json:"parking_price"`
	StoragePrice *float64 `json:"storage_price"`

	PilotAvailable     *bool    `json:"pilot_available"`
	SalesRoom          *bool    `json:"sales_room"`
	DiscountPercentage *float64 `json:"discount_percentage"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Project) TableName() string { return "projects" }

func (p *Project) Key() ProjectKey {
	return ProjectKey{Name: p.Name, Commune: p.Commune}
}

// HasCoordinates reports whether both latitude and longitude are present.
func (p *Project) HasCoordinates() bool {
	return p.Latitude != nil && p.Longitude != nil
}
