// Package pipeline sequences reading, transforming, and storing export files
// and reports what each run did.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"tinsa/importer/config"
	"tinsa/importer/internal/ingest"
	"tinsa/importer/internal/models"
	"tinsa/importer/internal/processor"
	"tinsa/importer/internal/transform"
)

// ErrNoStore is returned when a commit is requested without storage.
var ErrNoStore = errors.New("commit mode requires a store")

type Mode int

const (
	// Simulate runs every step except the storage writes.
	Simulate Mode = iota
	Commit
)

func (m Mode) String() string {
	switch m {
	case Simulate:
		return "simulate"
	case Commit:
		return "commit"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Store is what a commit writes to.
type Store interface {
	processor.Store
	RecordImportRun(ctx context.Context, run *models.ImportRun) error
}

type Driver struct {
	cfg    *config.Config
	reader *ingest.Reader
	store  Store
	logger *logrus.Logger
	out    io.Writer
	now    func() time.Time
}

// NewDriver builds a driver that prints its reports to out. store may be nil
// when only previews and simulations are run.
func NewDriver(cfg *config.Config, store Store, logger *logrus.Logger, out io.Writer) *Driver {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = logrus.New()
	}
	if out == nil {
		out = io.Discard
	}
	return &Driver{
		cfg:    cfg,
		reader: ingest.NewReader(cfg.Import.MinColumns),
		store:  store,
		logger: logger,
		out:    out,
		now:    time.Now,
	}
}

// Run reads, groups and aggregates one file and, in commit mode, reconciles
// the result into the store. The summary is printed even when the
// reconciliation stops early; a read failure is fatal and returns no summary.
func (d *Driver) Run(ctx context.Context, path string, mode Mode) (*Summary, error) {
	if mode == Commit && d.store == nil {
		return nil, ErrNoStore
	}

	log := d.logger.WithFields(logrus.Fields{"file": path, "mode": mode.String()})
	started := d.now()

	table, err := d.reader.ReadFile(path, 0)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"encoding":  table.Encoding,
		"delimiter": table.DelimiterName(),
		"rows":      len(table.Records),
	}).Info("File read")

	out := transform.Build(table.Records)
	s := newSummary(path, mode, table, out)
	log.WithFields(logrus.Fields{
		"projects":   s.Projects,
		"typologies": s.Typologies,
		"skipped":    s.Skipped,
	}).Info("Records aggregated")

	if mode == Commit && len(out.Projects) > 0 {
		err = d.commit(ctx, s, out, started)
	}

	s.Print(d.out)
	return s, err
}

func (d *Driver) commit(ctx context.Context, s *Summary, out *transform.Output, started time.Time) error {
	rec := processor.NewReconciler(d.store, d.cfg, d.logger)
	res, err := rec.Reconcile(ctx, out.Projects, out.Typologies, out.Snapshots)
	s.apply(res)
	if err != nil {
		return fmt.Errorf("import of %s interrupted: %w", s.File, err)
	}

	run := s.importRun(started, d.now())
	if err := d.store.RecordImportRun(ctx, run); err != nil {
		s.Errors++
		d.logger.WithError(err).WithField("file", s.File).Error("Failed to record import run")
		return nil
	}
	s.RunID = run.ID
	return nil
}

// RunAll runs every file in order. Missing files are skipped with a warning;
// any other failure stops the remaining files.
func (d *Driver) RunAll(ctx context.Context, paths []string, mode Mode) ([]*Summary, error) {
	var summaries []*Summary
	for _, path := range paths {
		if !d.exists(path) {
			continue
		}
		s, err := d.Run(ctx, path, mode)
		if s != nil {
			summaries = append(summaries, s)
		}
		if err != nil {
			return summaries, err
		}
	}
	return summaries, nil
}

func (d *Driver) exists(path string) bool {
	if _, err := os.Stat(path); err != nil {
		d.logger.WithError(err).WithField("file", path).Warn("Skipping missing file")
		fmt.Fprintf(d.out, "\nSkipping %s: not found\n", path)
		return false
	}
	return true
}
