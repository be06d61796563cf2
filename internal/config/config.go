// Package config loads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/swellwatch/swellwatch/internal/buoy/ndbc"
	"github.com/swellwatch/swellwatch/internal/station"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	Port            string
	Environment     string
	LogLevel        zerolog.Level
	ShutdownTimeout time.Duration
	RequireTLS      bool

	OTelEnabled     bool
	OTLPEndpoint    string
	OTelSampleRatio float64

	// Upstream feeds.
	BuoyURLTemplate        string
	CoastalWindURLTemplate string
	FetchTimeout           time.Duration
	FetchMaxRetries        uint64
	UserAgent              string

	// Aggregation. A zero concurrency runs every station at once.
	AggregateTimeout time.Duration
	FetchConcurrency int

	// Cache.
	CacheLiveTTL    time.Duration
	CacheHistoryTTL time.Duration

	PrimaryStationID string

	// Refresher. A zero interval disables scheduled warm-ups.
	RefreshInterval    time.Duration
	PubSubProjectID    string
	PubSubSubscription string

	CORSAllowedOrigins []string
}

// PubSubEnabled reports whether the refresh subscription is configured.
func (c *Config) PubSubEnabled() bool {
	return c.PubSubProjectID != "" && c.PubSubSubscription != ""
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	var errs []error

	durationOf := func(key string, def time.Duration, allowZero bool) time.Duration {
		d, err := parseDuration(key, def, allowZero)
		if err != nil {
			errs = append(errs, err)
		}
		return d
	}

	logLevel, err := zerolog.ParseLevel(strings.ToLower(envOrDefault("LOG_LEVEL", "info")))
	if err != nil || logLevel == zerolog.NoLevel {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q", os.Getenv("LOG_LEVEL")))
		logLevel = zerolog.InfoLevel
	}

	concurrency, err := parsePositiveInt("FETCH_CONCURRENCY", 0)
	if err != nil {
		errs = append(errs, err)
	}

	maxRetries, err := parseRetries("FETCH_MAX_RETRIES", 0)
	if err != nil {
		errs = append(errs, err)
	}

	sampleRatio, err := parseRatio("OTEL_SAMPLE_RATIO", 1)
	if err != nil {
		errs = append(errs, err)
	}

	cfg := &Config{
		Port:            envOrDefault("APP_PORT", "8080"),
		Environment:     envOrDefault("APP_ENV", "development"),
		LogLevel:        logLevel,
		ShutdownTimeout: durationOf("SHUTDOWN_TIMEOUT", 30*time.Second, false),
		RequireTLS:      os.Getenv("REQUIRE_TLS") == "true",

		OTelEnabled:     os.Getenv("OTEL_ENABLED") == "true",
		OTLPEndpoint:    envOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTelSampleRatio: sampleRatio,

		BuoyURLTemplate:        envOrDefault("BUOY_URL_TEMPLATE", ndbc.DefaultBuoyURLTemplate),
		CoastalWindURLTemplate: envOrDefault("CWIND_URL_TEMPLATE", ndbc.DefaultCoastalWindURLTemplate),
		FetchTimeout:           durationOf("FETCH_TIMEOUT", ndbc.DefaultTimeout, false),
		FetchMaxRetries:        maxRetries,
		UserAgent:              envOrDefault("FETCH_USER_AGENT", "swellwatch/1.0"),

		AggregateTimeout: durationOf("AGGREGATE_TIMEOUT", 20*time.Second, false),
		FetchConcurrency: concurrency,

		CacheLiveTTL:    durationOf("CACHE_LIVE_TTL", 5*time.Minute, false),
		CacheHistoryTTL: durationOf("CACHE_HISTORY_TTL", 30*time.Minute, false),

		PrimaryStationID: envOrDefault("PRIMARY_STATION_ID", station.DefaultPrimaryID),

		RefreshInterval:    durationOf("REFRESH_INTERVAL", 0, true),
		PubSubProjectID:    os.Getenv("PUBSUB_PROJECT_ID"),
		PubSubSubscription: os.Getenv("PUBSUB_SUBSCRIPTION"),

		CORSAllowedOrigins: parseList(envOrDefault("CORS_ALLOWED_ORIGINS", "*")),
	}

	for key, tmpl := range map[string]string{
		"BUOY_URL_TEMPLATE":  cfg.BuoyURLTemplate,
		"CWIND_URL_TEMPLATE": cfg.CoastalWindURLTemplate,
	} {
		if !strings.Contains(tmpl, ndbc.StationPlaceholder) {
			errs = append(errs, fmt.Errorf("%s must contain %s", key, ndbc.StationPlaceholder))
		}
	}
	if cfg.AggregateTimeout < cfg.FetchTimeout {
		errs = append(errs, errors.New("AGGREGATE_TIMEOUT must not be shorter than FETCH_TIMEOUT"))
	}
	if (cfg.PubSubProjectID == "") != (cfg.PubSubSubscription == "") {
		errs = append(errs, errors.New("PUBSUB_PROJECT_ID and PUBSUB_SUBSCRIPTION must be set together"))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func parseDuration(key string, def time.Duration, allowZero bool) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 || (d == 0 && !allowZero) {
		return def, fmt.Errorf("invalid %s %q", key, s)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def, fmt.Errorf("invalid %s %q", key, s)
	}
	return n, nil
}

func parseRetries(key string, def uint64) (uint64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return def, fmt.Errorf("invalid %s %q", key, s)
	}
	return n, nil
}

func parseRatio(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || f > 1 {
		return def, fmt.Errorf("invalid %s %q", key, s)
	}
	return f, nil
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
