package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"tinsa/importer/config"
	"tinsa/importer/internal/database"
	"tinsa/importer/internal/export"
	"tinsa/importer/internal/geocoding"
	"tinsa/importer/internal/pipeline"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app carries what the Before hook builds into the command actions.
type app struct {
	cfg    *config.Config
	logger *logrus.Logger
}

func newApp() *cli.App {
	a := &app{}

	fileFlag := &cli.StringFlag{
		Name:    "file",
		Aliases: []string{"f"},
		Usage:   "Export file to process",
	}
	allFlag := &cli.BoolFlag{
		Name:  "all",
		Usage: "Process the default file set (DEFAULT_FILES in DATA_DIR)",
	}

	return &cli.App{
		Name:  "importer",
		Usage: "Normalize TINSA market exports into the projects database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error); overrides LOG_LEVEL",
			},
			&cli.StringFlag{
				Name:  "db",
				Usage: "Path to the SQLite database; overrides DB_PATH",
			},
		},
		Before: a.setup,
		Commands: []*cli.Command{
			{
				Name:   "preview",
				Usage:  "Show the detected layout, counts and sample coordinates of export files",
				Action: a.preview,
				Flags:  []cli.Flag{fileFlag},
			},
			{
				Name:   "simulate",
				Usage:  "Transform export files and report the result without writing",
				Action: a.run(pipeline.Simulate),
				Flags:  []cli.Flag{fileFlag, allFlag},
			},
			{
				Name:   "commit",
				Usage:  "Transform export files and write them to the database",
				Action: a.run(pipeline.Commit),
				Flags:  []cli.Flag{fileFlag, allFlag},
			},
			{
				Name:   "geocode",
				Usage:  "Look up coordinates for stored projects that have none",
				Action: a.geocode,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of projects to look up (0 for all)",
					},
					&cli.BoolFlag{
						Name:  "apply",
						Usage: "Store the coordinates found; without it the run is a dry run",
					},
				},
			},
			{
				Name:   "export",
				Usage:  "Write stored projects with coordinates as GeoJSON",
				Action: a.export,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "out",
						Aliases:  []string{"o"},
						Usage:    "GeoJSON file to write",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "commune",
						Usage: "Only export projects of this commune",
					},
					&cli.StringFlag{
						Name:  "hulls",
						Usage: "Also write per-commune convex hulls to this file",
					},
				},
			},
		},
	}
}

func (a *app) setup(c *cli.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.IsSet("db") {
		cfg.DBPath = c.String("db")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	a.cfg, a.logger = cfg, logger
	return nil
}

func newLogger(level, format string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(lvl)
	switch strings.ToLower(format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("invalid log format %q: must be text or json", format)
	}
	return logger, nil
}

func (a *app) openDatabase() (*database.Database, error) {
	a.logger.Infof("Using database at: %s", a.cfg.DBPath)
	db, err := database.NewDatabase(a.cfg.DBPath, a.logger)
	if err != nil {
		return nil, err
	}
	if err := db.RunMigrations(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (a *app) files(c *cli.Context, allowDefault bool) ([]string, error) {
	if f := c.String("file"); f != "" {
		if c.Bool("all") {
			return nil, errors.New("--file and --all cannot be combined")
		}
		return []string{f}, nil
	}
	if allowDefault || c.Bool("all") {
		return a.cfg.DefaultPaths(), nil
	}
	return nil, errors.New("either --file or --all is required")
}

func (a *app) preview(c *cli.Context) error {
	paths, err := a.files(c, true)
	if err != nil {
		return err
	}
	d := pipeline.NewDriver(a.cfg, nil, a.logger, c.App.Writer)
	_, err = d.PreviewAll(paths)
	return err
}

func (a *app) run(mode pipeline.Mode) cli.ActionFunc {
	return func(c *cli.Context) error {
		paths, err := a.files(c, false)
		if err != nil {
			return err
		}

		var store pipeline.Store
		if mode == pipeline.Commit {
			db, err := a.openDatabase()
			if err != nil {
				return err
			}
			defer db.Close()
			store = db
		}

		d := pipeline.NewDriver(a.cfg, store, a.logger, c.App.Writer)
		if c.String("file") != "" {
			_, err = d.Run(c.Context, paths[0], mode)
			return err
		}
		_, err = d.RunAll(c.Context, paths, mode)
		return err
	}
}

func (a *app) geocode(c *cli.Context) error {
	if c.Int("limit") < 0 {
		return errors.New("--limit must not be negative")
	}
	db, err := a.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	geocoder := geocoding.NewGeocoder(a.logger, a.cfg)
	d := pipeline.NewDriver(a.cfg, nil, a.logger, c.App.Writer)
	_, err = d.Geocode(c.Context, db, geocoder, c.Int("limit"), c.Bool("apply"))
	return err
}

func (a *app) export(c *cli.Context) error {
	db, err := a.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	projects, err := db.ListProjects(c.Context, database.ProjectFilter{
		Commune:         c.String("commune"),
		WithCoordinates: true,
	})
	if err != nil {
		return err
	}

	n, err := writeFile(c.String("out"), func(f *os.File) (int, error) {
		return export.WriteGeoJSON(f, projects)
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Exported %d projects to %s\n", n, c.String("out"))

	if hulls := c.String("hulls"); hulls != "" {
		n, err := writeFile(hulls, func(f *os.File) (int, error) {
			return export.WriteCommuneHulls(f, projects)
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Exported %d commune hulls to %s\n", n, hulls)
	}
	return nil
}

func writeFile(path string, write func(*os.File) (int, error)) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", path, err)
	}
	n, err := write(f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close %s: %w", path, cerr)
	}
	return n, err
}
