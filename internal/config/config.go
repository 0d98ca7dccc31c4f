// Package config holds the muf-rt run configuration. Defaults come from the
// environment; command-line flags override them in main.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/KI7MT/muf-rt/internal/bmp565"
	"github.com/KI7MT/muf-rt/internal/geo"
	"github.com/KI7MT/muf-rt/internal/interp"
	"github.com/KI7MT/muf-rt/internal/render"
	"github.com/KI7MT/muf-rt/internal/station"
)

// DefaultProduct is the product tag in published file names.
const DefaultProduct = "MUF-RT"

// Config holds every setting for one run.
type Config struct {
	// Input
	URL        string
	Timeout    time.Duration
	ReplayPath string // Parquet snapshot to use instead of the live feed

	// Output
	OutDir   string
	BasePath string
	Width    int
	Height   int
	Alpha    float64
	Product  string

	// Interpolation
	GridWidth   int
	GridHeight  int
	K           int
	Power       float64
	InfluenceKm float64
	UseSolar    bool
	Workers     int

	// Optional sinks; empty disables them.
	ArchiveDir         string
	ClickHouseHost     string
	ClickHousePort     int
	ClickHouseDatabase string
	ClickHouseUser     string
	ClickHousePassword string
	MetricsFile        string

	LogLevel string
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		URL:        getEnv("MUFRT_URL", station.DefaultURL),
		Timeout:    getEnvDuration("MUFRT_TIMEOUT", station.DefaultTimeout),
		ReplayPath: getEnv("MUFRT_REPLAY", ""),

		OutDir:   getEnv("MUFRT_OUTDIR", ""),
		BasePath: getEnv("MUFRT_BASE", ""),
		Alpha:    render.DefaultAlpha,
		Product:  DefaultProduct,

		GridWidth:   geo.DefaultGridWidth,
		GridHeight:  geo.DefaultGridHeight,
		K:           interp.DefaultK,
		Power:       interp.DefaultPower,
		InfluenceKm: interp.DefaultInfluenceKm,

		ArchiveDir:         getEnv("MUFRT_ARCHIVE_DIR", ""),
		ClickHouseHost:     getEnv("CLICKHOUSE_HOST", ""),
		ClickHousePort:     9000,
		ClickHouseDatabase: getEnv("CLICKHOUSE_DATABASE", "muf"),
		ClickHouseUser:     getEnv("CLICKHOUSE_USER", "default"),
		ClickHousePassword: getEnv("CLICKHOUSE_PASSWORD", ""),
		MetricsFile:        getEnv("MUFRT_METRICS_FILE", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Width <= 0 || c.Height <= 0 {
		add("output size %dx%d: width and height must be positive", c.Width, c.Height)
	}
	if c.GridWidth < 2 || c.GridHeight < 2 {
		add("grid %dx%d: each dimension must be >= 2", c.GridWidth, c.GridHeight)
	}
	if c.OutDir == "" {
		add("output directory is required")
	}
	if c.BasePath == "" {
		add("base map is required")
	}
	if c.ReplayPath == "" && c.URL == "" {
		add("feed URL is required unless replaying a snapshot")
	}
	if c.Timeout <= 0 {
		add("timeout %v must be positive", c.Timeout)
	}
	if c.Alpha < 0 || c.Alpha > 1 {
		add("alpha %v outside [0, 1]", c.Alpha)
	}
	if c.K < 1 {
		add("k %d must be >= 1", c.K)
	}
	if c.Power <= 0 {
		add("power %v must be positive", c.Power)
	}
	if c.InfluenceKm <= 0 {
		add("influence radius %v km must be positive", c.InfluenceKm)
	}
	if c.Workers < 0 {
		add("workers %d must be >= 0", c.Workers)
	}
	if c.Product == "" || strings.ContainsAny(c.Product, `/\`) {
		add("product %q must be a non-empty file name component", c.Product)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Grid returns the interpolation grid.
func (c *Config) Grid() (geo.Grid, error) {
	return geo.NewGrid(c.GridWidth, c.GridHeight)
}

// Interp derives interpolation parameters evaluated at t.
func (c *Config) Interp(t time.Time) interp.Params {
	return interp.Params{
		K:           c.K,
		Power:       c.Power,
		InfluenceKm: c.InfluenceKm,
		UseSolar:    c.UseSolar,
		Time:        t,
		Workers:     c.Workers,
	}
}

// FileName is the published bitmap name.
func (c *Config) FileName() string {
	return bmp565.FileName(c.Width, c.Height, c.Product)
}

// ClickHouseEnabled reports whether the ClickHouse sinks should run.
func (c *Config) ClickHouseEnabled() bool {
	return c.ClickHouseHost != ""
}

// ClickHouseAddr returns host:port, adding the default native port when the
// host has none.
func (c *Config) ClickHouseAddr() string {
	if _, _, err := net.SplitHostPort(c.ClickHouseHost); err == nil {
		return c.ClickHouseHost
	}
	return net.JoinHostPort(c.ClickHouseHost, fmt.Sprint(c.ClickHousePort))
}

// ParseLevel maps a LOG_LEVEL value onto a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level %q: %w", s, err)
	}
	return lvl, nil
}

// NewLogger builds the text logger used by every package.
func (c *Config) NewLogger() *slog.Logger {
	lvl, _ := ParseLevel(c.LogLevel)
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}
