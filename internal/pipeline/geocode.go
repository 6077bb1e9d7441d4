package pipeline

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"

	"tinsa/importer/internal/geocoding"
	"tinsa/importer/internal/models"
)

// GeoStore lists projects missing a location and stores found ones.
type GeoStore interface {
	ProjectsWithoutCoordinates(ctx context.Context, limit int) ([]models.Project, error)
	UpdateCoordinates(ctx context.Context, id uint, lat, lon float64) error
}

// Locator resolves an address to a point.
type Locator interface {
	Geocode(ctx context.Context, address, commune, region string) (orb.Point, error)
	Stats() geocoding.Stats
}

type GeocodeReport struct {
	Apply      bool
	Candidates int
	Geocoded   int
	Failed     int
	Updated    int
	Stats      geocoding.Stats
}

// Geocode looks up projects without coordinates. Found locations are only
// written when apply is set; otherwise the run is a dry run.
func (d *Driver) Geocode(ctx context.Context, store GeoStore, locator Locator, limit int, apply bool) (*GeocodeReport, error) {
	projects, err := store.ProjectsWithoutCoordinates(ctx, limit)
	if err != nil {
		return nil, err
	}

	r := &GeocodeReport{Apply: apply, Candidates: len(projects)}
	for i := range projects {
		if err := ctx.Err(); err != nil {
			r.Stats = locator.Stats()
			r.Print(d.out)
			return r, err
		}

		p := &projects[i]
		log := d.logger.WithFields(logrus.Fields{"project": p.Key().String(), "id": p.ID})

		pt, err := locator.Geocode(ctx, streetAddress(p), p.Commune, deref(p.Region))
		if err != nil {
			r.Failed++
			log.WithError(err).Warn("Could not geocode project")
			continue
		}
		r.Geocoded++

		if !apply {
			continue
		}
		if err := store.UpdateCoordinates(ctx, p.ID, pt.Lat(), pt.Lon()); err != nil {
			log.WithError(err).Error("Failed to store coordinates")
			continue
		}
		r.Updated++
	}

	r.Stats = locator.Stats()
	r.Print(d.out)
	return r, nil
}

// streetAddress joins the street and its number, which exports keep apart.
func streetAddress(p *models.Project) string {
	parts := []string{deref(p.Address), deref(p.StreetNumber)}
	return strings.TrimSpace(strings.Join(parts, " "))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (r *GeocodeReport) Print(w io.Writer) {
	mode := "DRY RUN"
	if r.Apply {
		mode = "APPLY"
	}
	fmt.Fprintf(w, "\n%s\n  GEOCODE (%s)\n%s\n", rule, mode, rule)
	fmt.Fprintf(w, "  Projects without coordinates: %d\n", r.Candidates)
	fmt.Fprintf(w, "  Geocoded:                     %d\n", r.Geocoded)
	fmt.Fprintf(w, "  Failed:                       %d\n", r.Failed)
	if r.Apply {
		fmt.Fprintf(w, "  Updated:                      %d\n", r.Updated)
	}
	fmt.Fprintf(w, "  Cache hits: %d, lookups: %d, failures: %d (%.1f%% success)\n",
		r.Stats.CacheHits, r.Stats.Successes, r.Stats.Failures, r.Stats.SuccessRate())
	if !r.Apply && r.Geocoded > 0 {
		fmt.Fprintln(w, "\n  Nothing was written. Run again with --apply to store the coordinates.")
	}
}
