package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"

	"tinsa/importer/config"
	"tinsa/importer/internal/geo"
)

var (
	ErrNotFound    = errors.New("no results found")
	ErrOutOfBounds = errors.New("result outside Chile")
)

const cacheFileName = "geocode_cache.json"

// Stats counts lookups since the geocoder was created.
type Stats struct {
	CacheHits int
	Successes int
	Failures  int
}

// SuccessRate is the share of lookups that produced coordinates, in percent.
func (s Stats) SuccessRate() float64 {
	total := s.CacheHits + s.Successes + s.Failures
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits+s.Successes) / float64(total) * 100
}

type Geocoder struct {
	logger    *logrus.Logger
	url       string
	userAgent string
	delay     time.Duration
	cacheDir  string
	cache     map[string][]float64
	cacheLock sync.RWMutex
	client    *http.Client

	stats       Stats
	lastRequest time.Time
}

func NewGeocoder(logger *logrus.Logger, cfg *config.Config) *Geocoder {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg == nil {
		cfg = config.Default()
	}

	g := &Geocoder{
		logger:    logger,
		url:       cfg.Geocoder.URL,
		userAgent: cfg.Geocoder.UserAgent,
		delay:     cfg.Geocoder.Delay,
		cacheDir:  cfg.Geocoder.CacheDir,
		cache:     make(map[string][]float64),
		client:    &http.Client{Timeout: cfg.Geocoder.Timeout},
	}

	if g.cacheDir != "" {
		if err := os.MkdirAll(g.cacheDir, 0o755); err != nil {
			logger.WithError(err).Warn("Could not create geocode cache directory")
		}
		g.loadCache()
	}
	return g
}

func (g *Geocoder) loadCache() {
	data, err := os.ReadFile(filepath.Join(g.cacheDir, cacheFileName))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			g.logger.Warnf("Could not load geocode cache: %v", err)
		}
		return
	}

	if err := json.Unmarshal(data, &g.cache); err != nil {
		g.logger.Errorf("Failed to parse geocode cache: %v", err)
		return
	}

	g.logger.Infof("Loaded %d cached addresses", len(g.cache))
}

// SaveCache writes the cache to disk. It is a no-op without a cache directory.
func (g *Geocoder) SaveCache() error {
	if g.cacheDir == "" {
		return nil
	}

	g.cacheLock.RLock()
	data, err := json.MarshalIndent(g.cache, "", "  ")
	g.cacheLock.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal geocode cache: %w", err)
	}

	if err := os.WriteFile(filepath.Join(g.cacheDir, cacheFileName), data, 0o644); err != nil {
		return fmt.Errorf("failed to save geocode cache: %w", err)
	}
	return nil
}

func (g *Geocoder) Stats() Stats {
	return g.stats
}

// BuildAddress joins the parts Nominatim is queried with. The Metropolitan
// Region is left out since Santiago addresses resolve without it.
func BuildAddress(address, commune, region string) string {
	var parts []string
	if a := strings.TrimSpace(address); a != "" {
		parts = append(parts, a)
	}
	if c := strings.TrimSpace(commune); c != "" {
		parts = append(parts, c)
	}
	if r := strings.TrimSpace(region); r != "" && r != "RM" {
		parts = append(parts, r)
	}
	parts = append(parts, "Chile")
	return strings.Join(parts, ", ")
}

func cacheKey(address, commune, region string) string {
	return strings.ToLower(strings.TrimSpace(address + "|" + commune + "|" + region))
}

type nominatimResponse []struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Geocode returns the location of an address, from the cache when possible.
// Results outside Chile are rejected with ErrOutOfBounds.
func (g *Geocoder) Geocode(ctx context.Context, address, commune, region string) (orb.Point, error) {
	key := cacheKey(address, commune, region)
	fullAddress := BuildAddress(address, commune, region)

	g.cacheLock.RLock()
	coords, ok := g.cache[key]
	g.cacheLock.RUnlock()
	if ok && len(coords) == 2 {
		g.stats.CacheHits++
		g.logger.WithFields(logrus.Fields{
			"address":   fullAddress,
			"latitude":  coords[0],
			"longitude": coords[1],
			"source":    "cache",
		}).Debug("Found coordinates in cache")
		return orb.Point{coords[1], coords[0]}, nil
	}

	p, err := g.lookup(ctx, fullAddress)
	if err != nil {
		g.stats.Failures++
		return orb.Point{}, err
	}
	g.stats.Successes++

	g.cacheLock.Lock()
	g.cache[key] = []float64{p.Lat(), p.Lon()}
	g.cacheLock.Unlock()
	if err := g.SaveCache(); err != nil {
		g.logger.WithError(err).Warn("Could not persist geocode cache")
	}
	return p, nil
}

func (g *Geocoder) lookup(ctx context.Context, fullAddress string) (orb.Point, error) {
	if err := g.wait(ctx); err != nil {
		return orb.Point{}, err
	}

	g.logger.WithField("address", fullAddress).Info("Geocoding address with Nominatim")

	params := url.Values{
		"q":            []string{fullAddress},
		"format":       []string{"json"},
		"limit":        []string{"1"},
		"countrycodes": []string{"cl"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.url, nil)
	if err != nil {
		return orb.Point{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.URL.RawQuery = params.Encode()
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("Accept-Language", "es-CL,es;q=0.9,en;q=0.5")

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.WithError(err).WithField("address", fullAddress).Error("Geocoding request failed")
		return orb.Point{}, fmt.Errorf("geocoding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return orb.Point{}, fmt.Errorf("geocoding request failed: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return orb.Point{}, fmt.Errorf("failed to read response: %w", err)
	}

	var result nominatimResponse
	if err := json.Unmarshal(body, &result); err != nil {
		g.logger.WithError(err).WithField("address", fullAddress).Error("Failed to parse response")
		return orb.Point{}, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(result) == 0 {
		g.logger.WithField("address", fullAddress).Warn("No results found")
		return orb.Point{}, fmt.Errorf("%s: %w", fullAddress, ErrNotFound)
	}

	lat, errLat := strconv.ParseFloat(result[0].Lat, 64)
	lon, errLon := strconv.ParseFloat(result[0].Lon, 64)
	if errLat != nil || errLon != nil {
		return orb.Point{}, fmt.Errorf("invalid coordinates %q, %q for %s", result[0].Lat, result[0].Lon, fullAddress)
	}

	p := orb.Point{lon, lat}
	if !geo.InChile(p) {
		return orb.Point{}, fmt.Errorf("%s at (%f, %f): %w", fullAddress, lat, lon, ErrOutOfBounds)
	}

	g.logger.WithFields(logrus.Fields{
		"address":   fullAddress,
		"latitude":  lat,
		"longitude": lon,
		"source":    "nominatim",
	}).Info("Successfully geocoded address")
	return p, nil
}

// wait enforces the delay between requests that Nominatim's usage policy
// asks for.
func (g *Geocoder) wait(ctx context.Context) error {
	defer func() { g.lastRequest = time.Now() }()
	if g.lastRequest.IsZero() || g.delay <= 0 {
		return ctx.Err()
	}
	remaining := g.delay - time.Since(g.lastRequest)
	if remaining <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
