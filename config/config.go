// Package config loads process configuration from .env files, environment variables and flags.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

// ErrHelp is returned by Load when --help was requested.
var ErrHelp = errors.New("help requested")

// AppConfig holds all application configuration with support for environment variables and command-line flags
type AppConfig struct {
	// HTTP server
	Port        string   `long:"port" env:"PORT" default:"8082" description:"HTTP server port"`
	CORSOrigins []string `long:"cors-origin" env:"CORS_ORIGINS" env-delim:"," description:"Allowed CORS origin (repeatable, all origins when empty)"`
	RateLimit   float64  `long:"rate-limit" env:"RATE_LIMIT" default:"2" description:"API requests per second per client"`
	RateBurst   int      `long:"rate-burst" env:"RATE_BURST" default:"5" description:"API request burst per client"`

	// Storage
	DataDir      string `long:"data-dir" env:"DATA_DIR" default:"./data" description:"Directory for the database and statistics"`
	DBPath       string `long:"db-path" env:"DB_PATH" description:"SQLite database file (defaults to <data-dir>/seo.db)"`
	SettingsPath string `long:"settings" env:"SETTINGS_FILE" description:"YAML settings file (built-in defaults when empty)"`

	// Analysis
	SiteCacheTTL         time.Duration `long:"site-cache-ttl" env:"SITE_CACHE_TTL" default:"30m" description:"How long a fetched site page is reused"`
	LinkCheckConcurrency int           `long:"link-concurrency" env:"LINK_CONCURRENCY" default:"10" description:"Concurrent broken-link probes"`
	LinkCacheTTL         time.Duration `long:"link-cache-ttl" env:"LINK_CACHE_TTL" default:"10m" description:"How long a link probe result is reused"`
	LinkRate             float64       `long:"link-rate" env:"LINK_RATE" default:"0" description:"Link probes per second (0 for unlimited)"`
	AuditURL             string        `long:"audit-url" description:"Audit a single URL, print the JSON results and exit"`
	AuditSchedule        string        `long:"audit-schedule" env:"AUDIT_SCHEDULE" description:"Cron schedule for the home page audit (disabled when empty)"`
	StatsRetainMonths    int           `long:"stats-retain-months" env:"STATS_RETAIN_MONTHS" default:"12" description:"Months of statistics to keep"`

	// Logging
	LogLevel  string `long:"log-level" env:"LOG_LEVEL" default:"info" description:"Log level (debug, info, warn, error)"`
	LogFormat string `long:"log-format" env:"LOG_FORMAT" default:"text" description:"Log format (text, json)"`
}

// DatabasePath is the SQLite file to open.
func (c *AppConfig) DatabasePath() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	return filepath.Join(c.DataDir, "seo.db")
}

func (c *AppConfig) validate() error {
	if c.Port == "" {
		return errors.New("port must not be empty")
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("rate limit must be positive, got %v", c.RateLimit)
	}
	if c.RateBurst < 1 {
		return fmt.Errorf("rate burst must be at least 1, got %d", c.RateBurst)
	}
	if c.LinkCheckConcurrency < 1 {
		return fmt.Errorf("link concurrency must be at least 1, got %d", c.LinkCheckConcurrency)
	}
	if c.LinkRate < 0 {
		return fmt.Errorf("link rate must not be negative, got %v", c.LinkRate)
	}
	if c.DataDir == "" {
		return errors.New("data directory must not be empty")
	}
	return nil
}

// LoadEnv loads .env.development when present, .env otherwise. Variables already set win.
func LoadEnv() {
	if err := godotenv.Load(".env.development"); err != nil {
		if err := godotenv.Load(); err != nil {
			slog.Debug("No .env file found, using environment variables")
		}
	}
}

// SetupGinMode applies GIN_MODE, defaulting to release mode.
func SetupGinMode() {
	mode := os.Getenv("GIN_MODE")
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)
}

// Load parses args (without the program name) on top of the environment.
func Load(args []string) (*AppConfig, error) {
	var cfg AppConfig

	parser := flags.NewParser(&cfg, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			parser.WriteHelp(os.Stdout)
			return nil, ErrHelp
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}
