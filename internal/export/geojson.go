// Package export writes stored projects as GeoJSON for map clients.
package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"tinsa/importer/internal/models"
)

// ProjectFeatures returns one point feature per project with coordinates, in
// the order given. Absent attributes are left out of the properties.
func ProjectFeatures(projects []models.Project) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i := range projects {
		p := &projects[i]
		if !p.HasCoordinates() {
			continue
		}

		feature := geojson.NewFeature(orb.Point{*p.Longitude, *p.Latitude})
		feature.ID = p.ID
		feature.Properties = geojson.Properties{
			"name":    p.Name,
			"commune": p.Commune,
		}
		setString(feature.Properties, "region", p.Region)
		setString(feature.Properties, "developer", p.Developer)
		setString(feature.Properties, "project_status", p.ProjectStatus)
		setString(feature.Properties, "period", p.Period)
		setInt(feature.Properties, "year", p.Year)
		setInt(feature.Properties, "total_units", p.TotalUnits)
		setInt(feature.Properties, "available_units", p.AvailableUnits)
		setInt(feature.Properties, "sold_units", p.SoldUnits)
		setFloat(feature.Properties, "sales_speed_monthly", p.SalesSpeedMonthly)
		setFloat(feature.Properties, "min_price_uf", p.MinPriceUF)
		setFloat(feature.Properties, "max_price_uf", p.MaxPriceUF)
		setFloat(feature.Properties, "avg_price_uf", p.AvgPriceUF)
		setFloat(feature.Properties, "avg_price_m2_uf", p.AvgPriceM2UF)

		fc.Append(feature)
	}
	return fc
}

// WriteGeoJSON writes the project features to w and returns how many were
// written.
func WriteGeoJSON(w io.Writer, projects []models.Project) (int, error) {
	fc := ProjectFeatures(projects)
	if err := write(w, fc); err != nil {
		return 0, err
	}
	return len(fc.Features), nil
}

func write(w io.Writer, fc *geojson.FeatureCollection) error {
	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal GeoJSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write GeoJSON: %w", err)
	}
	return nil
}

func setString(props geojson.Properties, key string, v *string) {
	if v != nil {
		props[key] = *v
	}
}

func setInt(props geojson.Properties, key string, v *int) {
	if v != nil {
		props[key] = *v
	}
}

func setFloat(props geojson.Properties, key string, v *float64) {
	if v != nil {
		props[key] = *v
	}
}
