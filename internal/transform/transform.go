// Package transform turns parsed export rows into canonical projects,
// typologies and per-period snapshots.
package transform

import (
	"sort"

	"tinsa/importer/internal/models"
)

// Output is the result of transforming one file.
type Output struct {
	Projects   []models.Project
	Typologies []models.Typology
	Snapshots  []models.ProjectSnapshot
	// Rows dropped for lacking a name or commune
	Skipped int
}

// Build groups the records, aggregates each project's latest period, and
// aggregates every identifiable period into a snapshot.
func Build(records []models.RawRecord) *Output {
	groups, skipped := GroupLatest(records)
	out := &Output{
		Projects: make([]models.Project, 0, len(groups)),
		Skipped:  skipped,
	}
	for _, g := range groups {
		p, typologies := Aggregate(g)
		out.Projects = append(out.Projects, p)
		out.Typologies = append(out.Typologies, typologies...)
	}

	periods, _ := GroupPeriods(records)
	for _, g := range periods {
		// A snapshot without a period cannot be told apart from another one.
		if g.Year == 0 || g.Period == "" {
			continue
		}
		out.Snapshots = append(out.Snapshots, Snapshot(g))
	}
	return out
}

// WithCoordinates counts projects whose location was repaired.
func (o *Output) WithCoordinates() int {
	n := 0
	for i := range o.Projects {
		if o.Projects[i].HasCoordinates() {
			n++
		}
	}
	return n
}

// Communes returns the distinct communes of the projects, sorted.
func (o *Output) Communes() []string {
	seen := make(map[string]struct{})
	var communes []string
	for _, p := range o.Projects {
		if _, ok := seen[p.Commune]; ok {
			continue
		}
		seen[p.Commune] = struct{}{}
		communes = append(communes, p.Commune)
	}
	sort.Strings(communes)
	return communes
}
