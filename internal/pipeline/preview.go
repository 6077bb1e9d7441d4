package pipeline

import (
	"fmt"
	"io"
	"strings"

	"tinsa/importer/internal/geo"
	"tinsa/importer/internal/ingest"
	"tinsa/importer/internal/locale"
	"tinsa/importer/internal/models"
)

const (
	coordinateSamples = 3
	sampleWidth       = 50
)

type ColumnSample struct {
	Header string
	// Canonical field the header was bound to, "" when unused
	Field  string
	Sample string
}

type CoordinateSample struct {
	Latitude  string
	Longitude string
	Repaired  bool
	Lat, Lon  float64
}

// Preview describes a file's layout without transforming it.
type Preview struct {
	File        string
	Encoding    string
	Delimiter   string
	Columns     []ColumnSample
	RawRows     int
	Projects    int
	Communes    int
	Periods     []string
	Coordinates []CoordinateSample
}

// Preview reads the first rows of a file for its layout and sample values,
// then the whole file for row, project and commune counts.
func (d *Driver) Preview(path string) (*Preview, error) {
	head, err := d.reader.ReadFile(path, d.cfg.Import.PreviewRows)
	if err != nil {
		return nil, err
	}
	full, err := d.reader.ReadFile(path, 0)
	if err != nil {
		return nil, err
	}

	p := &Preview{
		File:      path,
		Encoding:  head.Encoding,
		Delimiter: head.DelimiterName(),
		Columns:   columnSamples(head),
		RawRows:   len(full.Records),
	}
	p.Projects, p.Communes, p.Periods = countIdentities(full.Records)
	p.Coordinates = sampleCoordinates(full.Records, coordinateSamples)

	p.Print(d.out)
	return p, nil
}

// PreviewAll previews every file, skipping missing ones.
func (d *Driver) PreviewAll(paths []string) ([]*Preview, error) {
	var previews []*Preview
	for _, path := range paths {
		if !d.exists(path) {
			continue
		}
		p, err := d.Preview(path)
		if err != nil {
			return previews, err
		}
		previews = append(previews, p)
	}
	return previews, nil
}

func columnSamples(t *ingest.Table) []ColumnSample {
	fieldOf := make(map[string]string, len(t.Columns))
	for field, header := range t.Columns {
		fieldOf[header] = field
	}
	cols := make([]ColumnSample, len(t.Headers))
	for i, h := range t.Headers {
		cols[i] = ColumnSample{Header: h, Field: fieldOf[h]}
		if i < len(t.Samples) {
			cols[i].Sample = t.Samples[i]
		}
	}
	return cols
}

func countIdentities(records []models.RawRecord) (projects, communes int, periods []string) {
	seenProject := make(map[models.ProjectKey]struct{})
	seenCommune := make(map[string]struct{})
	seenPeriod := make(map[string]struct{})
	for _, rec := range records {
		name, commune := locale.Text(rec.Name), locale.Text(rec.Commune)
		if commune != nil {
			seenCommune[*commune] = struct{}{}
		}
		if name != nil && commune != nil {
			seenProject[models.ProjectKey{Name: *name, Commune: *commune}] = struct{}{}
		}

		label := strings.TrimSpace(strings.TrimSpace(rec.Year) + " " + strings.TrimSpace(rec.Period))
		if label == "" {
			continue
		}
		if _, ok := seenPeriod[label]; !ok {
			seenPeriod[label] = struct{}{}
			periods = append(periods, label)
		}
	}
	return len(seenProject), len(seenCommune), periods
}

func sampleCoordinates(records []models.RawRecord, n int) []CoordinateSample {
	var out []CoordinateSample
	for _, rec := range records {
		if len(out) == n {
			break
		}
		if locale.IsAbsent(rec.Latitude) || locale.IsAbsent(rec.Longitude) {
			continue
		}
		s := CoordinateSample{Latitude: rec.Latitude, Longitude: rec.Longitude}
		if pt, ok := geo.Repair(rec.Latitude, rec.Longitude); ok {
			s.Repaired, s.Lat, s.Lon = true, pt.Lat(), pt.Lon()
		}
		out = append(out, s)
	}
	return out
}

func (p *Preview) Print(w io.Writer) {
	fmt.Fprintf(w, "\n%s\n  PREVIEW: %s\n%s\n", rule, p.File, rule)
	fmt.Fprintf(w, "  Encoding: %s, delimiter: %s\n", p.Encoding, p.Delimiter)

	fmt.Fprintf(w, "\n  Columns (%d):\n", len(p.Columns))
	for i, c := range p.Columns {
		sample := c.Sample
		if sample == "" {
			sample = "(empty)"
		}
		if r := []rune(sample); len(r) > sampleWidth {
			sample = string(r[:sampleWidth])
		}
		field := ""
		if c.Field != "" {
			field = " [" + c.Field + "]"
		}
		fmt.Fprintf(w, "    %2d. %-40s -> %s%s\n", i+1, c.Header, sample, field)
	}

	fmt.Fprintf(w, "\n  Total rows:       %d\n", p.RawRows)
	fmt.Fprintf(w, "  Unique projects:  %d\n", p.Projects)
	fmt.Fprintf(w, "  Communes:         %d\n", p.Communes)
	fmt.Fprintf(w, "  Periods:          [%s]\n", strings.Join(p.Periods, ", "))

	if len(p.Coordinates) > 0 {
		fmt.Fprintln(w, "\n  Coordinate sample:")
		for _, c := range p.Coordinates {
			fixed := "not repairable"
			if c.Repaired {
				fixed = fmt.Sprintf("lat=%.6f, lon=%.6f", c.Lat, c.Lon)
			}
			fmt.Fprintf(w, "    RAW: lat=%s, lon=%s  ->  %s\n", c.Latitude, c.Longitude, fixed)
		}
	}
}
