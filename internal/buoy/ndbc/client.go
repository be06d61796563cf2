// Package ndbc fetches and parses NOAA National Data Buoy Center realtime tables.
package ndbc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/swellwatch/swellwatch/internal/buoy"
	"github.com/swellwatch/swellwatch/internal/observability"
	"github.com/swellwatch/swellwatch/internal/provider/resilience"
)

const (
	// ProviderName identifies this feed provider.
	ProviderName = "ndbc"

	// StationPlaceholder is replaced by the station ID in URL templates.
	StationPlaceholder = "{station}"

	// DefaultBuoyURLTemplate is the standard meteorological realtime file.
	DefaultBuoyURLTemplate = "https://www.ndbc.noaa.gov/data/realtime2/{station}.txt"

	// DefaultCoastalWindURLTemplate is the continuous winds realtime file.
	DefaultCoastalWindURLTemplate = "https://www.ndbc.noaa.gov/data/realtime2/{station}.cwind"

	// DefaultTimeout bounds a single fetch.
	DefaultTimeout = 10 * time.Second

	// Realtime files cover 45 days; anything far beyond that is not a feed.
	maxBodyBytes = 8 << 20

	tracerName = "github.com/swellwatch/swellwatch/internal/buoy/ndbc"
)

// HTTPDoer is satisfied by *http.Client and *resilience.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the NDBC client.
type ClientConfig struct {
	// BuoyURLTemplate is the buoy feed URL with a {station} placeholder (optional).
	BuoyURLTemplate string

	// CoastalWindURLTemplate is the coastal wind feed URL with a {station} placeholder (optional).
	CoastalWindURLTemplate string

	// BuoyHTTPClient and CoastalWindHTTPClient perform requests per feed (optional).
	// If nil, a resilient client with defaults is created for each feed.
	BuoyHTTPClient        HTTPDoer
	CoastalWindHTTPClient HTTPDoer

	// Timeout bounds each fetch including reading the body (default: 10 seconds).
	Timeout time.Duration

	// MaxRetries and UserAgent apply to default clients only.
	MaxRetries uint64
	UserAgent  string

	// Registry receives feed health when default clients are created (optional).
	Registry *resilience.Registry

	// Metrics is optional.
	Metrics *observability.Metrics

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client fetches NDBC realtime tables. It implements buoy.Provider.
type Client struct {
	templates map[buoy.Feed]string
	doers     map[buoy.Feed]HTTPDoer
	timeout   time.Duration
	metrics   *observability.Metrics
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewClient creates a new NDBC client.
func NewClient(cfg ClientConfig) *Client {
	buoyTemplate := cfg.BuoyURLTemplate
	if buoyTemplate == "" {
		buoyTemplate = DefaultBuoyURLTemplate
	}

	windTemplate := cfg.CoastalWindURLTemplate
	if windTemplate == "" {
		windTemplate = DefaultCoastalWindURLTemplate
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	buoyDoer := cfg.BuoyHTTPClient
	if buoyDoer == nil {
		buoyDoer = newFeedClient(cfg, "ndbc-buoy", timeout)
	}

	windDoer := cfg.CoastalWindHTTPClient
	if windDoer == nil {
		windDoer = newFeedClient(cfg, "ndbc-cwind", timeout)
	}

	return &Client{
		templates: map[buoy.Feed]string{
			buoy.FeedBuoy:        buoyTemplate,
			buoy.FeedCoastalWind: windTemplate,
		},
		doers: map[buoy.Feed]HTTPDoer{
			buoy.FeedBuoy:        buoyDoer,
			buoy.FeedCoastalWind: windDoer,
		},
		timeout: timeout,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		tracer:  otel.Tracer(tracerName),
	}
}

func newFeedClient(cfg ClientConfig, name string, timeout time.Duration) *resilience.Client {
	clientCfg := resilience.DefaultClientConfig(name)
	clientCfg.Timeout = timeout
	clientCfg.MaxRetries = cfg.MaxRetries
	clientCfg.UserAgent = cfg.UserAgent
	clientCfg.Registry = cfg.Registry

	logger, metrics := cfg.Logger, cfg.Metrics
	clientCfg.OnStateChange = func(change resilience.StateChange) {
		metrics.BreakerTransition(change.Feed, change.To.String())
		event := logger.Info()
		if change.To == gobreaker.StateOpen {
			event = logger.Warn()
		}
		event.Str("feed", change.Feed).
			Str("target", change.Target).
			Str("from", change.From.String()).
			Str("to", change.To.String()).
			Msg("circuit breaker state changed")
	}

	return resilience.NewClient(clientCfg)
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// URL returns the feed URL for a station.
func (c *Client) URL(feed buoy.Feed, stationID string) (string, error) {
	tmpl, ok := c.templates[feed]
	if !ok {
		return "", fmt.Errorf("unsupported feed %q", feed)
	}
	if stationID == "" || strings.ContainsAny(stationID, "/?#") {
		return "", fmt.Errorf("invalid station id %q", stationID)
	}
	return strings.ReplaceAll(tmpl, StationPlaceholder, stationID), nil
}

// FetchDocument fetches and parses one feed for a station.
func (c *Client) FetchDocument(ctx context.Context, feed buoy.Feed, stationID string) (*buoy.Document, error) {
	body, err := c.Fetch(ctx, feed, stationID)
	if err != nil {
		return nil, err
	}

	doc, err := Parse(feed, stationID, body)
	if err != nil {
		c.logger.Warn().Err(err).
			Str("station_id", stationID).
			Str("feed", string(feed)).
			Msg("failed to parse feed")
		return nil, err
	}

	if doc.SkippedRows > 0 {
		c.metrics.AddSkippedRows(string(feed), doc.SkippedRows)
		c.logger.Debug().
			Str("station_id", stationID).
			Str("feed", string(feed)).
			Int("skipped_rows", doc.SkippedRows).
			Msg("dropped malformed rows")
	}

	return doc, nil
}

// Fetch returns the raw table for one station. Every failure is a *buoy.FetchError.
func (c *Client) Fetch(ctx context.Context, feed buoy.Feed, stationID string) ([]byte, error) {
	url, err := c.URL(feed, stationID)
	if err != nil {
		return nil, &buoy.FetchError{StationID: stationID, Feed: feed, Err: err}
	}

	ctx, span := c.tracer.Start(ctx, "ndbc.fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("buoy.station_id", stationID),
			attribute.String("buoy.feed", string(feed)),
			attribute.String("url.full", url),
		),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	body, fetchErr := c.do(ctx, feed, stationID, url)
	elapsed := time.Since(start)

	if fetchErr != nil {
		c.metrics.ObserveFetch(string(feed), fetchErr.Outcome(), elapsed)
		span.RecordError(fetchErr)
		span.SetStatus(codes.Error, fetchErr.Outcome())
		c.logger.Warn().Err(fetchErr).
			Str("station_id", stationID).
			Str("feed", string(feed)).
			Dur("elapsed", elapsed).
			Msg("feed fetch failed")
		return nil, fetchErr
	}

	c.metrics.ObserveFetch(string(feed), "success", elapsed)
	span.SetAttributes(attribute.Int("http.response.body.size", len(body)))
	c.logger.Debug().
		Str("station_id", stationID).
		Str("feed", string(feed)).
		Int("bytes", len(body)).
		Dur("elapsed", elapsed).
		Msg("fetched feed")

	return body, nil
}

func (c *Client) do(ctx context.Context, feed buoy.Feed, stationID, url string) ([]byte, *buoy.FetchError) {
	fail := func(err error) *buoy.FetchError {
		return &buoy.FetchError{StationID: stationID, Feed: feed, Timeout: isTimeout(ctx, err), Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fail(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Accept", "text/plain")

	resp, err := c.doers[feed].Do(req)
	if err != nil {
		return nil, fail(fmt.Errorf("executing request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &buoy.FetchError{StationID: stationID, Feed: feed, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fail(fmt.Errorf("reading body: %w", err))
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, &buoy.FetchError{StationID: stationID, Feed: feed, Empty: true}
	}

	return body, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
