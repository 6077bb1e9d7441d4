package transform

import (
	"sort"
	"strings"

	"tinsa/importer/internal/locale"
	"tinsa/importer/internal/models"
)

// ProjectGroup holds the rows of one project for one reporting period.
type ProjectGroup struct {
	Key    models.ProjectKey
	Year   int
	Period string
	Rows   []models.RawRecord
}

type rankedRow struct {
	rec    models.RawRecord
	year   int
	rank   int
	period string
}

// GroupLatest groups records by project identity and keeps, per project, only
// the rows of its most recent (year, period). Rows without a name or commune
// cannot be identified and are counted in skipped. Groups come out in the
// order their identity first appears.
func GroupLatest(records []models.RawRecord) (groups []ProjectGroup, skipped int) {
	keys, byKey, skipped := partition(records)
	groups = make([]ProjectGroup, 0, len(keys))
	for _, key := range keys {
		rows := byKey[key]
		sortLatestFirst(rows)
		latest, _ := takePeriod(key, rows)
		groups = append(groups, latest)
	}
	return groups, skipped
}

// GroupPeriods is GroupLatest without the period filter: every (year, period)
// of every project becomes its own group, latest first within a project.
func GroupPeriods(records []models.RawRecord) (groups []ProjectGroup, skipped int) {
	keys, byKey, skipped := partition(records)
	for _, key := range keys {
		rows := byKey[key]
		sortLatestFirst(rows)
		for len(rows) > 0 {
			var g ProjectGroup
			g, rows = takePeriod(key, rows)
			groups = append(groups, g)
		}
	}
	return groups, skipped
}

func partition(records []models.RawRecord) ([]models.ProjectKey, map[models.ProjectKey][]rankedRow, int) {
	var keys []models.ProjectKey
	byKey := make(map[models.ProjectKey][]rankedRow)
	skipped := 0

	for _, rec := range records {
		name := locale.Text(rec.Name)
		commune := locale.Text(rec.Commune)
		if name == nil || commune == nil {
			skipped++
			continue
		}
		rec.Name, rec.Commune = *name, *commune
		key := rec.Key()
		if _, ok := byKey[key]; !ok {
			keys = append(keys, key)
		}
		byKey[key] = append(byKey[key], rankedRow{
			rec:    rec,
			year:   parseYear(rec.Year),
			rank:   periodRank(rec.Period),
			period: strings.TrimSpace(rec.Period),
		})
	}
	return keys, byKey, skipped
}

// sortLatestFirst orders rows by descending (year, period rank), keeping the
// input order among equal ranks.
func sortLatestFirst(rows []rankedRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].year != rows[j].year {
			return rows[i].year > rows[j].year
		}
		return rows[i].rank > rows[j].rank
	})
}

// takePeriod collects the rows sharing the first row's exact (year, period
// label) and returns the remaining rows in their original order. rows must
// already be sorted latest first. Rows with the same rank but another label
// stay in rest.
func takePeriod(key models.ProjectKey, rows []rankedRow) (g ProjectGroup, rest []rankedRow) {
	head := rows[0]
	g = ProjectGroup{Key: key, Year: head.year, Period: head.period}
	for _, r := range rows {
		if r.year == head.year && r.period == head.period {
			g.Rows = append(g.Rows, r.rec)
		} else {
			rest = append(rest, r)
		}
	}
	return g, rest
}

func parseYear(raw string) int {
	if y := locale.Int(raw); y != nil {
		return *y
	}
	return 0
}

// periodRank reads the leading digit of a period label ("2P" ranks 2).
func periodRank(label string) int {
	s := strings.TrimSpace(label)
	if s == "" || s[0] < '0' || s[0] > '9' {
		return 0
	}
	return int(s[0] - '0')
}
