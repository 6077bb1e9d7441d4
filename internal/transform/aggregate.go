package transform

import (
	"math"
	"regexp"
	"strconv"

	"tinsa/importer/internal/geo"
	"tinsa/importer/internal/locale"
	"tinsa/importer/internal/models"
)

// Typology codes look like "2D-2B" or "1D+1B": bedrooms, then bathrooms.
var typologyCode = regexp.MustCompile(`^(\d+)D[+-](\d+)B`)

// metrics are the numeric aggregates shared by projects and snapshots.
type metrics struct {
	stock, available, sold, offer  *int
	velocityAnnual, velocityPeriod *float64
	minPrice, maxPrice             *float64
	avgPrice, avgPriceM2           *float64
}

func collect(rows []models.RawRecord) metrics {
	return metrics{
		stock:          sumPositive(rows, func(r *models.RawRecord) string { return r.Stock }),
		available:      sumPositive(rows, func(r *models.RawRecord) string { return r.Available }),
		sold:           sumPositive(rows, func(r *models.RawRecord) string { return r.Sold }),
		offer:          sumPositive(rows, func(r *models.RawRecord) string { return r.PeriodOffer }),
		velocityAnnual: meanPositive(rows, func(r *models.RawRecord) string { return r.VelocityAnnual }),
		velocityPeriod: meanPositive(rows, func(r *models.RawRecord) string { return r.VelocityPeriod }),
		minPrice:       minPositive(rows, func(r *models.RawRecord) string { return r.MinPrice }),
		maxPrice:       maxPositive(rows, func(r *models.RawRecord) string { return r.MaxPrice }),
		avgPrice:       meanPositive(rows, func(r *models.RawRecord) string { return r.AvgPrice }),
		avgPriceM2:     meanPositive(rows, func(r *models.RawRecord) string { return r.AvgPriceM2 }),
	}
}

// Aggregate collapses the rows of one project's latest period into the
// canonical project and one typology per row carrying a typology code.
//
// Unit counts are summed, velocities and average prices are averaged, and
// price bounds take the min of minimums and max of maximums. Only positive
// values take part; a metric without any is left absent. Descriptive fields
// come from the first row of the period.
func Aggregate(g ProjectGroup) (models.Project, []models.Typology) {
	first := &g.Rows[0]
	m := collect(g.Rows)

	p := models.Project{
		Name:    g.Key.Name,
		Commune: g.Key.Commune,

		Region:             locale.Text(first.Region),
		Zone:               locale.Text(first.Zone),
		Address:            locale.Text(first.Address),
		StreetNumber:       locale.Text(first.StreetNumber),
		Developer:          locale.Text(first.Developer),
		Seller:             locale.Text(first.Seller),
		Builder:            locale.Text(first.Builder),
		PropertyType:       locale.Text(first.PropertyType),
		Category:           locale.Text(first.Category),
		ProjectStatus:      locale.Text(first.ProjectStatus),
		ConstructionStatus: locale.Text(first.ConstructionStatus),
		SubsidyType:        locale.Text(first.SubsidyType),

		Period: locale.Text(g.Period),

		SalesStartDate: locale.Date(first.SalesStart),
		DeliveryDate:   locale.Date(first.Delivery),

		InitialStock:    m.stock,
		TotalUnits:      cloneInt(m.stock),
		TotalApartments: cloneInt(m.stock),
		AvailableUnits:  m.available,
		SoldUnits:       m.sold,
		PeriodOffer:     m.offer,

		SalesSpeedMonthly: m.velocityAnnual,
		VelocityProjected: m.velocityPeriod,
		MonthsToSellOut:   locale.Number(first.MonthsToSell),
		MonthsOnSale:      locale.Number(first.MonthsOnSale),

		MinPriceUF:   m.minPrice,
		MaxPriceUF:   m.maxPrice,
		AvgPriceUF:   m.avgPrice,
		AvgPriceM2UF: m.avgPriceM2,

		TotalFloors:  locale.Int(first.Floors),
		ParkingCount: locale.Int(first.ParkingCnt),
		ParkingPrice: locale.Number(first.ParkingCost),
		StoragePrice: locale.Number(first.StorageCost),

		PilotAvailable:     locale.Bool(first.PilotAvailable),
		SalesRoom:          locale.Bool(first.SalesRoom),
		DiscountPercentage: locale.Percent(first.Discount),
	}
	if g.Year > 0 {
		year := g.Year
		p.Year = &year
	}
	if pt, ok := geo.Repair(first.Latitude, first.Longitude); ok {
		lat, lon := pt.Lat(), pt.Lon()
		p.Latitude, p.Longitude = &lat, &lon
	}

	var typologies []models.Typology
	for i := range g.Rows {
		if t, ok := buildTypology(g.Key, &g.Rows[i]); ok {
			typologies = append(typologies, t)
		}
	}
	return p, typologies
}

// Snapshot aggregates one period of a project for the metrics history.
func Snapshot(g ProjectGroup) models.ProjectSnapshot {
	m := collect(g.Rows)
	s := models.ProjectSnapshot{
		Project:           g.Key,
		Year:              g.Year,
		Period:            g.Period,
		InitialStock:      m.stock,
		AvailableUnits:    m.available,
		SoldUnits:         m.sold,
		PeriodOffer:       m.offer,
		SalesSpeedMonthly: m.velocityAnnual,
		VelocityProjected: m.velocityPeriod,
		MinPriceUF:        m.minPrice,
		MaxPriceUF:        m.maxPrice,
		AvgPriceUF:        m.avgPrice,
		AvgPriceM2UF:      m.avgPriceM2,
	}
	for i := range g.Rows {
		if locale.Text(g.Rows[i].TypologyCode) != nil {
			s.Typologies++
		}
	}
	return s
}

func buildTypology(key models.ProjectKey, rec *models.RawRecord) (models.Typology, bool) {
	code := locale.Text(rec.TypologyCode)
	if code == nil {
		return models.Typology{}, false
	}

	surface := locale.Number(rec.Surface)
	terrace := locale.Number(rec.Terrace)

	t := models.Typology{
		Project:        key,
		TypologyCode:   *code,
		Name:           locale.Text(rec.TypologyName),
		SurfaceTotal:   surface,
		SurfaceIndoor:  indoorSurface(surface, terrace),
		SurfaceTerrace: terrace,
		LandSurface:    locale.Number(rec.LandSurface),
		KitchenType:    locale.Text(rec.KitchenType),
		ParkingSpots:   locale.Int(rec.ParkingSpots),
		AvgPriceUF:     locale.Number(rec.AvgPrice),
		CurrentPriceUF: locale.Number(rec.AvgPrice),
		PricePerM2UF:   locale.Number(rec.AvgPriceM2),
		MinPriceUF:     locale.Number(rec.MinPrice),
		MaxPriceUF:     locale.Number(rec.MaxPrice),
		Stock:          locale.Int(rec.Available),
		TotalUnits:     locale.Int(rec.Stock),
	}
	if t.Name == nil {
		name := *code
		t.Name = &name
	}
	if m := typologyCode.FindStringSubmatch(*code); m != nil {
		beds, errBeds := strconv.Atoi(m[1])
		baths, errBaths := strconv.Atoi(m[2])
		if errBeds == nil && errBaths == nil {
			t.Bedrooms, t.Bathrooms = &beds, &baths
		}
	}
	return t, true
}

// indoorSurface subtracts the terrace from the total when both are known.
// Otherwise the terrace cannot be separated and the total is used as is.
func indoorSurface(total, terrace *float64) *float64 {
	if total == nil {
		return nil
	}
	v := *total
	if terrace != nil && *total > 0 && *terrace > 0 {
		v = locale.Round(*total-*terrace, 2)
	}
	return &v
}

func positives(rows []models.RawRecord, field func(*models.RawRecord) string) []float64 {
	var vals []float64
	for i := range rows {
		if v := locale.Number(field(&rows[i])); v != nil && *v > 0 {
			vals = append(vals, *v)
		}
	}
	return vals
}

func sumPositive(rows []models.RawRecord, field func(*models.RawRecord) string) *int {
	total, n := 0, 0
	for i := range rows {
		if v := locale.Int(field(&rows[i])); v != nil && *v > 0 {
			total += *v
			n++
		}
	}
	if n == 0 {
		return nil
	}
	return &total
}

func meanPositive(rows []models.RawRecord, field func(*models.RawRecord) string) *float64 {
	vals := positives(rows, field)
	if len(vals) == 0 {
		return nil
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	mean := locale.Round(sum/float64(len(vals)), 2)
	return &mean
}

func minPositive(rows []models.RawRecord, field func(*models.RawRecord) string) *float64 {
	vals := positives(rows, field)
	if len(vals) == 0 {
		return nil
	}
	lo := math.Inf(1)
	for _, v := range vals {
		lo = math.Min(lo, v)
	}
	return &lo
}

func maxPositive(rows []models.RawRecord, field func(*models.RawRecord) string) *float64 {
	vals := positives(rows, field)
	if len(vals) == 0 {
		return nil
	}
	hi := math.Inf(-1)
	for _, v := range vals {
		hi = math.Max(hi, v)
	}
	return &hi
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
