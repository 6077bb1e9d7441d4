package export

import (
	"io"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"tinsa/importer/internal/models"
)

// CommuneHulls returns, per commune, the convex hull of its located projects
// as a polygon feature. Communes with fewer than three distinct,
// non-collinear points have no area and are left out.
func CommuneHulls(projects []models.Project) *geojson.FeatureCollection {
	points := make(map[string][]orb.Point)
	var communes []string
	for i := range projects {
		p := &projects[i]
		if !p.HasCoordinates() {
			continue
		}
		if _, ok := points[p.Commune]; !ok {
			communes = append(communes, p.Commune)
		}
		points[p.Commune] = append(points[p.Commune], orb.Point{*p.Longitude, *p.Latitude})
	}
	sort.Strings(communes)

	fc := geojson.NewFeatureCollection()
	for _, commune := range communes {
		hull := convexHull(points[commune])
		if hull == nil {
			continue
		}
		feature := geojson.NewFeature(orb.Polygon{hull})
		feature.Properties = geojson.Properties{
			"commune":       commune,
			"project_count": len(points[commune]),
			"geometry_type": "hull",
		}
		fc.Append(feature)
	}
	return fc
}

// WriteCommuneHulls writes the commune hulls to w and returns how many were
// written.
func WriteCommuneHulls(w io.Writer, projects []models.Project) (int, error) {
	fc := CommuneHulls(projects)
	if err := write(w, fc); err != nil {
		return 0, err
	}
	return len(fc.Features), nil
}

// convexHull is Andrew's monotone chain. The ring is closed and
// counter-clockwise, or nil when the points span no area.
func convexHull(in []orb.Point) orb.Ring {
	pts := make([]orb.Point, len(in))
	copy(pts, in)
	sort.Slice(pts, func(i, j int) bool {
		if pts[i][0] != pts[j][0] {
			return pts[i][0] < pts[j][0]
		}
		return pts[i][1] < pts[j][1]
	})

	uniq := pts[:0]
	for i, p := range pts {
		if i == 0 || !p.Equal(uniq[len(uniq)-1]) {
			uniq = append(uniq, p)
		}
	}
	pts = uniq
	if len(pts) < 3 {
		return nil
	}

	hull := make([]orb.Point, 0, 2*len(pts))
	for _, p := range pts {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(pts) - 2; i >= 0; i-- {
		p := pts[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}

	// hull ends with its first point again, so a triangle has four entries.
	if len(hull) < 4 {
		return nil
	}
	return orb.Ring(hull)
}

func cross(o, a, b orb.Point) float64 {
	return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
}
