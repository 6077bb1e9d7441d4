package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v6"
)

type Config struct {
	// Path of the SQLite database holding projects and typologies
	DBPath string `env:"DB_PATH" envDefault:"database/tinsa.db"`

	// Directory the default export files are resolved against
	DataDir string `env:"DATA_DIR" envDefault:"data"`

	// Files imported when no --file is given
	DefaultFiles []string `env:"DEFAULT_FILES" envSeparator:"," envDefault:"tinsa_norte_sur.csv,tinsa_rm.csv"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	Import struct {
		// Number of records written per storage call
		BatchSize int `env:"BATCH_SIZE" envDefault:"50"`

		// A sniffed CSV must have more columns than this to be accepted
		MinColumns int `env:"MIN_COLUMNS" envDefault:"5"`

		// Rows read when previewing the column layout
		PreviewRows int `env:"PREVIEW_ROWS" envDefault:"5"`
	}

	Geocoder struct {
		URL       string        `env:"GEOCODER_URL" envDefault:"https://nominatim.openstreetmap.org/search"`
		UserAgent string        `env:"GEOCODER_USER_AGENT" envDefault:"mercado-inmobiliario-chile/1.0"`
		CacheDir  string        `env:"GEOCODER_CACHE_DIR" envDefault:""`
		Delay     time.Duration `env:"GEOCODER_DELAY" envDefault:"1s"`
		Timeout   time.Duration `env:"GEOCODER_TIMEOUT" envDefault:"10s"`
	}
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the importer cannot run with.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH must not be empty")
	}
	if c.Import.BatchSize <= 0 {
		return fmt.Errorf("BATCH_SIZE must be positive, got %d", c.Import.BatchSize)
	}
	if c.Import.MinColumns < 0 {
		return fmt.Errorf("MIN_COLUMNS must not be negative, got %d", c.Import.MinColumns)
	}
	return nil
}

// DefaultPaths returns the default export files resolved against DataDir.
func (c *Config) DefaultPaths() []string {
	paths := make([]string, 0, len(c.DefaultFiles))
	for _, f := range c.DefaultFiles {
		if f == "" {
			continue
		}
		if filepath.IsAbs(f) {
			paths = append(paths, f)
			continue
		}
		paths = append(paths, filepath.Join(c.DataDir, f))
	}
	return paths
}

// Default returns a configuration with every default applied, ignoring the
// environment.
func Default() *Config {
	cfg := &Config{}
	_ = env.Parse(cfg, env.Options{Environment: map[string]string{}})
	return cfg
}
