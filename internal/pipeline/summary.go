package pipeline

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"tinsa/importer/internal/ingest"
	"tinsa/importer/internal/models"
	"tinsa/importer/internal/processor"
	"tinsa/importer/internal/transform"
)

const (
	rule            = "======================================================================"
	communesPrinted = 10
	failuresPrinted = 20
)

// Summary reports one file run. The write counters stay zero in simulate
// mode.
type Summary struct {
	RunID     uuid.UUID
	File      string
	Mode      Mode
	Encoding  string
	Delimiter string

	RawRows         int
	Projects        int
	Typologies      int
	Snapshots       int
	Skipped         int
	WithCoordinates int
	CoordinatePct   float64
	Communes        []string
	SampleProject   *models.Project

	Inserted           int
	Resolved           int
	TypologiesDeleted  int64
	TypologiesInserted int
	SnapshotsWritten   int
	Unresolved         int
	Errors             int
	Failed             []processor.Failure
}

func newSummary(path string, mode Mode, table *ingest.Table, out *transform.Output) *Summary {
	s := &Summary{
		File:            path,
		Mode:            mode,
		Encoding:        table.Encoding,
		Delimiter:       table.DelimiterName(),
		RawRows:         len(table.Records),
		Projects:        len(out.Projects),
		Typologies:      len(out.Typologies),
		Snapshots:       len(out.Snapshots),
		Skipped:         out.Skipped,
		WithCoordinates: out.WithCoordinates(),
		Communes:        out.Communes(),
	}
	if s.Projects > 0 {
		s.CoordinatePct = 100 * float64(s.WithCoordinates) / float64(s.Projects)
		sample := out.Projects[0]
		s.SampleProject = &sample
	}
	return s
}

func (s *Summary) apply(res *processor.Result) {
	if res == nil {
		return
	}
	s.Inserted = res.ProjectsWritten
	s.Resolved = len(res.ProjectIDs)
	s.TypologiesDeleted = res.TypologiesDeleted
	s.TypologiesInserted = res.TypologiesInserted
	s.SnapshotsWritten = res.SnapshotsWritten
	s.Unresolved = res.Unresolved
	s.Errors += res.Errors
	s.Failed = append(s.Failed, res.Failed...)
}

func (s *Summary) importRun(started, finished time.Time) *models.ImportRun {
	return &models.ImportRun{
		ID:                 uuid.New(),
		File:               s.File,
		Encoding:           s.Encoding,
		Delimiter:          s.Delimiter,
		RawRows:            s.RawRows,
		Projects:           s.Projects,
		Typologies:         s.Typologies,
		Skipped:            s.Skipped,
		WithCoordinates:    s.WithCoordinates,
		ProjectsWritten:    s.Inserted,
		TypologiesInserted: s.TypologiesInserted,
		SnapshotsWritten:   s.SnapshotsWritten,
		Unresolved:         s.Unresolved,
		Errors:             s.Errors,
		StartedAt:          started,
		FinishedAt:         finished,
	}
}

func (s *Summary) Print(w io.Writer) {
	fmt.Fprintf(w, "\n%s\n  %s: %s\n%s\n", rule, strings.ToUpper(s.Mode.String()), s.File, rule)
	fmt.Fprintf(w, "  Encoding:          %s (delimiter %s)\n", s.Encoding, s.Delimiter)
	fmt.Fprintf(w, "  Raw rows:          %d\n", s.RawRows)
	fmt.Fprintf(w, "  Projects:          %d\n", s.Projects)
	fmt.Fprintf(w, "  Typologies:        %d\n", s.Typologies)
	fmt.Fprintf(w, "  Period snapshots:  %d\n", s.Snapshots)
	fmt.Fprintf(w, "  Skipped rows:      %d\n", s.Skipped)
	fmt.Fprintf(w, "  With coordinates:  %d/%d (%.1f%%)\n", s.WithCoordinates, s.Projects, s.CoordinatePct)

	communes := s.Communes
	more := ""
	if len(communes) > communesPrinted {
		communes, more = communes[:communesPrinted], ", ..."
	}
	fmt.Fprintf(w, "  Communes:          %d [%s%s]\n", len(s.Communes), strings.Join(communes, ", "), more)

	if s.SampleProject != nil {
		printProject(w, s.SampleProject)
	}

	if s.Mode != Commit {
		fmt.Fprintln(w, "\n  Simulation only, nothing was written.")
		return
	}

	fmt.Fprintf(w, "\n  Projects written:     %d (%d ids resolved)\n", s.Inserted, s.Resolved)
	fmt.Fprintf(w, "  Typologies replaced:  %d deleted, %d inserted\n", s.TypologiesDeleted, s.TypologiesInserted)
	fmt.Fprintf(w, "  Snapshots written:    %d\n", s.SnapshotsWritten)
	fmt.Fprintf(w, "  Unresolved parents:   %d\n", s.Unresolved)
	fmt.Fprintf(w, "  Errors:               %d\n", s.Errors)
	for i, f := range s.Failed {
		if i == failuresPrinted {
			fmt.Fprintf(w, "    ... %d more\n", len(s.Failed)-failuresPrinted)
			break
		}
		fmt.Fprintf(w, "    %s\n", f)
	}
	if s.RunID != uuid.Nil {
		fmt.Fprintf(w, "  Run:                  %s\n", s.RunID)
	}
}

func printProject(w io.Writer, p *models.Project) {
	fmt.Fprintf(w, "\n  Sample project:\n")
	row := func(k string, v interface{}) {
		fmt.Fprintf(w, "    %-22s = %v\n", k, v)
	}
	row("name", p.Name)
	row("commune", p.Commune)
	if p.Developer != nil {
		row("developer", *p.Developer)
	}
	if p.Year != nil && p.Period != nil {
		row("period", fmt.Sprintf("%d %s", *p.Year, *p.Period))
	}
	if p.AvailableUnits != nil {
		row("available_units", *p.AvailableUnits)
	}
	if p.SoldUnits != nil {
		row("sold_units", *p.SoldUnits)
	}
	if p.SalesSpeedMonthly != nil {
		row("sales_speed_monthly", *p.SalesSpeedMonthly)
	}
	if p.AvgPriceUF != nil {
		row("avg_price_uf", *p.AvgPriceUF)
	}
	if p.HasCoordinates() {
		row("location", fmt.Sprintf("%.6f, %.6f", *p.Latitude, *p.Longitude))
	}
}
