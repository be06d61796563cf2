// Package buoy turns raw buoy feeds into surf condition reports.
package buoy

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/swellwatch/swellwatch/internal/cache"
	"github.com/swellwatch/swellwatch/internal/observability"
	"github.com/swellwatch/swellwatch/internal/station"
)

// MaxHistoryHours bounds history requests to the 45 days NDBC keeps in its realtime files.
const MaxHistoryHours = 45 * 24

// DefaultHistoryHours is the history window used when none is requested.
const DefaultHistoryHours = 24

// Provider fetches and parses upstream feeds.
type Provider interface {
	// FetchDocument retrieves one feed for a station. Failures are
	// *FetchError, *ParseError, or ErrNoData.
	FetchDocument(ctx context.Context, feed Feed, stationID string) (*Document, error)

	// Name returns the provider name for logging.
	Name() string
}

// ServiceConfig holds configuration for the buoy service.
type ServiceConfig struct {
	// Provider is the upstream feed provider.
	Provider Provider

	// Stations is the monitored station set (default: station.DefaultRegistry).
	Stations *station.Registry

	// Cache stores reports between requests (default: in-memory TTL store).
	Cache cache.Store

	// Clock is the time source (default: wall clock).
	Clock clockwork.Clock

	// Logger for service operations.
	Logger zerolog.Logger

	// Metrics is optional.
	Metrics *observability.Metrics

	// LiveTTL is how long latest reports and coastal wind are cached (default: 5 minutes).
	LiveTTL time.Duration

	// HistoryTTL is how long history series are cached (default: 30 minutes).
	HistoryTTL time.Duration

	// AggregateTimeout bounds an all-stations request (default: 20 seconds).
	AggregateTimeout time.Duration

	// FlightTimeout bounds one shared upstream load, independent of the
	// callers waiting on it (default: AggregateTimeout).
	FlightTimeout time.Duration

	// Concurrency caps parallel station pipelines in an all-stations request
	// (default: one per station).
	Concurrency int

	// Trend controls wave trend classification.
	Trend TrendPolicy
}

// Service provides station reports with caching and request coalescing.
type Service struct {
	provider         Provider
	stations         *station.Registry
	cache            cache.Store
	clock            clockwork.Clock
	logger           zerolog.Logger
	metrics          *observability.Metrics
	liveTTL          time.Duration
	historyTTL       time.Duration
	aggregateTimeout time.Duration
	flightTimeout    time.Duration
	concurrency      int
	trend            TrendPolicy

	inflight singleflight.Group
}

// NewService creates a new buoy service.
func NewService(cfg ServiceConfig) *Service {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	stations := cfg.Stations
	if stations == nil {
		stations = station.DefaultRegistry()
	}

	store := cfg.Cache
	if store == nil {
		store = cache.New(clock)
	}

	liveTTL := cfg.LiveTTL
	if liveTTL == 0 {
		liveTTL = 5 * time.Minute
	}

	historyTTL := cfg.HistoryTTL
	if historyTTL == 0 {
		historyTTL = 30 * time.Minute
	}

	aggregateTimeout := cfg.AggregateTimeout
	if aggregateTimeout == 0 {
		aggregateTimeout = 20 * time.Second
	}

	flightTimeout := cfg.FlightTimeout
	if flightTimeout == 0 {
		flightTimeout = aggregateTimeout
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = stations.Len()
	}

	return &Service{
		provider:         cfg.Provider,
		stations:         stations,
		cache:            store,
		clock:            clock,
		logger:           cfg.Logger,
		metrics:          cfg.Metrics,
		liveTTL:          liveTTL,
		historyTTL:       historyTTL,
		aggregateTimeout: aggregateTimeout,
		flightTimeout:    flightTimeout,
		concurrency:      concurrency,
		trend:            cfg.Trend.normalized(),
	}
}

// Stations returns the monitored stations in registry order.
func (s *Service) Stations() []station.Station {
	return s.stations.All()
}

// GetStation returns the latest report for one station.
func (s *Service) GetStation(ctx context.Context, stationID string) (*StationReport, error) {
	st, ok := s.stations.Get(stationID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStationNotFound, stationID)
	}
	return s.report(ctx, st)
}

// GetAll returns a report for every station in registry order. Station
// failures are carried in the report's Err and never abort the others.
func (s *Service) GetAll(ctx context.Context) []*StationReport {
	start := s.clock.Now()
	defer func() {
		s.metrics.ObserveAggregate(s.clock.Since(start))
	}()

	ctx, cancel := context.WithTimeout(ctx, s.aggregateTimeout)
	defer cancel()

	stations := s.stations.All()
	reports := make([]*StationReport, len(stations))

	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for i, st := range stations {
		g.Go(func() error {
			rep, err := s.report(ctx, st)
			if err != nil {
				rep = s.failedReport(st, err)
			}
			reports[i] = rep
			return nil
		})
	}

	_ = g.Wait()

	return reports
}

// GetHistory returns the derived observations of the last hours for one station.
func (s *Service) GetHistory(ctx context.Context, stationID string, hours int) (*History, error) {
	if hours < 1 || hours > MaxHistoryHours {
		return nil, fmt.Errorf("%w: hours must be between 1 and %d", ErrInvalidHours, MaxHistoryHours)
	}

	st, ok := s.stations.Get(stationID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStationNotFound, stationID)
	}

	key := cache.Key{StationID: st.ID, Kind: cache.KindHistory, Params: fmt.Sprintf("hours=%d", hours)}

	return loadCached(ctx, s, key, s.historyTTL, func(ctx context.Context) (*History, error) {
		doc, err := s.fetch(ctx, FeedBuoy, st.ID)
		if err != nil {
			return nil, err
		}

		now := s.clock.Now()
		since := now.Add(-time.Duration(hours) * time.Hour)

		all := Derive(doc.Rows, s.trend)
		obs := make([]Observation, 0, len(all))
		for _, o := range all {
			if !o.Time.Before(since) {
				obs = append(obs, o)
			}
		}

		return &History{
			Station:      st,
			Hours:        hours,
			Observations: obs,
			FetchedAt:    now,
		}, nil
	})
}

// RefreshStation rebuilds and stores the latest report for one station,
// regardless of what is cached.
func (s *Service) RefreshStation(ctx context.Context, stationID string) error {
	st, ok := s.stations.Get(stationID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrStationNotFound, stationID)
	}

	key := latestKey(st.ID)
	_, err := awaitFlight(ctx, s, key, func(ctx context.Context) (any, error) {
		rep, err := s.buildReport(ctx, st)
		if err != nil {
			return nil, err
		}
		s.cache.Put(key, rep, s.liveTTL)
		return rep, nil
	})
	return err
}

// ClearCache drops every cached report, history, and wind reading.
func (s *Service) ClearCache() {
	s.cache.Clear()
	s.metrics.SetCacheEntries(0)
	s.logger.Info().Msg("buoy cache cleared")
}

// CacheSize returns the number of cached entries.
func (s *Service) CacheSize() int {
	return s.cache.Len()
}

// SweepCache drops expired entries when the store supports it.
func (s *Service) SweepCache() int {
	sweeper, ok := s.cache.(interface{ Sweep() int })
	if !ok {
		return 0
	}
	removed := sweeper.Sweep()
	s.metrics.SetCacheEntries(s.cache.Len())
	if removed > 0 {
		s.logger.Debug().Int("expired_entries", removed).Msg("swept expired cache entries")
	}
	return removed
}

func latestKey(stationID string) cache.Key {
	return cache.Key{StationID: stationID, Kind: cache.KindLatest}
}

func (s *Service) report(ctx context.Context, st station.Station) (*StationReport, error) {
	return loadCached(ctx, s, latestKey(st.ID), s.liveTTL, func(ctx context.Context) (*StationReport, error) {
		return s.buildReport(ctx, st)
	})
}

func (s *Service) buildReport(ctx context.Context, st station.Station) (*StationReport, error) {
	doc, err := s.fetch(ctx, FeedBuoy, st.ID)
	if err != nil {
		return nil, err
	}

	obs := Derive(doc.Rows, s.trend)

	latest := -1
	for i := len(obs) - 1; i >= 0; i-- {
		if obs[i].HasWaves() {
			latest = i
			break
		}
	}
	if latest < 0 {
		return nil, fmt.Errorf("%w: station %s has no wave readings", ErrNoData, st.ID)
	}

	current := obs[latest]
	return &StationReport{
		Station:     st,
		Observation: &current,
		Wind:        s.resolveWind(ctx, st, current.Row),
		FetchedAt:   s.clock.Now(),
	}, nil
}

// resolveWind prefers the buoy's own reading and falls back to the nearby
// coastal station. A failed fallback degrades to unavailable wind.
func (s *Service) resolveWind(ctx context.Context, st station.Station, row Row) Wind {
	if row.HasWind() {
		observedAt := row.Time
		s.metrics.WindResolved(string(WindNative))
		return Wind{
			SpeedMS:         row.WindSpeedMS,
			DirDeg:          row.WindDirDeg,
			GustMS:          row.WindGustMS,
			ObservedAt:      &observedAt,
			Source:          WindNative,
			SourceStationID: st.ID,
		}
	}

	if !st.HasWindFallback() {
		s.metrics.WindResolved(string(WindUnavailable))
		return Wind{Source: WindUnavailable}
	}

	w, err := s.coastalWind(ctx, st.WindFallbackID)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("station_id", st.ID).
			Str("fallback_station_id", st.WindFallbackID).
			Msg("coastal wind fallback failed")
		s.metrics.WindResolved(string(WindUnavailable))
		return Wind{Source: WindUnavailable}
	}

	s.metrics.WindResolved(string(WindFallback))
	return w
}

func (s *Service) coastalWind(ctx context.Context, coastalID string) (Wind, error) {
	key := cache.Key{StationID: coastalID, Kind: cache.KindCoastalWind}

	return loadCached(ctx, s, key, s.liveTTL, func(ctx context.Context) (Wind, error) {
		doc, err := s.fetch(ctx, FeedCoastalWind, coastalID)
		if err != nil {
			return Wind{}, err
		}

		row, ok := doc.LatestWhere(Row.HasWind)
		if !ok {
			return Wind{}, fmt.Errorf("%w: coastal station %s has no wind readings", ErrNoData, coastalID)
		}

		observedAt := row.Time
		return Wind{
			SpeedMS:         row.WindSpeedMS,
			DirDeg:          row.WindDirDeg,
			GustMS:          row.WindGustMS,
			ObservedAt:      &observedAt,
			Source:          WindFallback,
			SourceStationID: coastalID,
		}, nil
	})
}

func (s *Service) fetch(ctx context.Context, feed Feed, stationID string) (*Document, error) {
	s.logger.Debug().
		Str("station_id", stationID).
		Str("feed", string(feed)).
		Str("provider", s.provider.Name()).
		Msg("fetching feed from provider")

	doc, err := s.provider.FetchDocument(ctx, feed, stationID)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Service) failedReport(st station.Station, err error) *StationReport {
	kind := KindOf(err)
	s.metrics.StationError(string(kind))
	s.logger.Warn().Err(err).
		Str("station_id", st.ID).
		Str("error_kind", string(kind)).
		Msg("station report failed")

	return &StationReport{
		Station:   st,
		Wind:      Wind{Source: WindUnavailable},
		FetchedAt: s.clock.Now(),
		Err:       err,
	}
}

// loadCached serves key from the cache or runs load once per key across
// concurrent callers, storing a successful result for ttl. Failures are
// never cached.
func loadCached[T any](ctx context.Context, s *Service, key cache.Key, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	if v, ok := s.cache.Get(key); ok {
		if typed, ok := v.(T); ok {
			s.metrics.CacheLookup(string(key.Kind), true)
			return typed, nil
		}
	}
	s.metrics.CacheLookup(string(key.Kind), false)

	v, err := awaitFlight(ctx, s, key, func(ctx context.Context) (any, error) {
		// Double-check cache
		if v, ok := s.cache.Get(key); ok {
			if typed, ok := v.(T); ok {
				return typed, nil
			}
		}

		result, err := load(ctx)
		if err != nil {
			return nil, err
		}
		s.cache.Put(key, result, ttl)
		s.metrics.SetCacheEntries(s.cache.Len())
		return result, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// awaitFlight joins or starts the shared load for key. The load runs on a
// context detached from any single caller and bounded by flightTimeout, so
// one caller going away does not fail the others. Each caller stops
// waiting when its own ctx ends.
func awaitFlight(ctx context.Context, s *Service, key cache.Key, load func(context.Context) (any, error)) (any, error) {
	ch := s.inflight.DoChan(key.String(), func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.flightTimeout)
		defer cancel()
		return load(flightCtx)
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for %s: %w", key, ctx.Err())
	}
}
