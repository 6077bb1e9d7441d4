package models

// RawRecord is one export row with every recognised column kept as the
// trimmed source text. Parsing into typed values happens during aggregation.
type RawRecord struct {
	Line int

	Name               string
	Commune            string
	Region             string
	Zone               string
	Address            string
	StreetNumber       string
	Developer          string
	Seller             string
	Builder            string
	PropertyType       string
	Category           string
	ProjectStatus      string
	ConstructionStatus string
	SubsidyType        string

	Latitude  string
	Longitude string

	Year   string
	Period string

	Stock          string
	Sold           string
	Available      string
	PeriodOffer    string
	VelocityPeriod string
	VelocityAnnual string
	MonthsToSell   string
	MonthsOnSale   string

	MinPrice    string
	MaxPrice    string
	AvgPrice    string
	AvgPriceM2  string
	ParkingCnt  string
	ParkingCost string
	StorageCost string
	Floors      string

	TypologyCode string
	TypologyName string
	Surface      string
	Terrace      string
	LandSurface  string
	KitchenType  string
	ParkingSpots string

	PilotAvailable string
	SalesRoom      string
	Discount       string
	SalesStart     string
	Delivery       string
}

func (r *RawRecord) Key() ProjectKey {
	return ProjectKey{Name: r.Name, Commune: r.Commune}
}
