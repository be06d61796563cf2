package worker

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/swellwatch/swellwatch/internal/buoy"
	"github.com/swellwatch/swellwatch/internal/observability"
	"github.com/swellwatch/swellwatch/internal/station"
)

// StationRefresher is the part of the buoy service the job drives.
type StationRefresher interface {
	Stations() []station.Station
	RefreshStation(ctx context.Context, stationID string) error
	SweepCache() int
}

// RefreshJob rebuilds cached station reports ahead of client requests.
type RefreshJob struct {
	config  RefreshConfig
	service StationRefresher
	clock   clockwork.Clock
	logger  zerolog.Logger
	metrics *observability.Metrics

	stats *RefreshStats
}

// RefreshStats tracks refresh job statistics.
type RefreshStats struct {
	mu sync.RWMutex

	Runs               int64
	StationsRefreshed  int64
	StationsFailed     int64
	EntriesSwept       int64
	LastRunAt          time.Time
	LastRunDuration    time.Duration
	LastRunTrigger     string
	ConsecutiveFailing int64
}

// RefreshJobConfig holds configuration for creating a RefreshJob.
type RefreshJobConfig struct {
	Config  RefreshConfig
	Service StationRefresher
	Clock   clockwork.Clock
	Logger  zerolog.Logger
	Metrics *observability.Metrics
}

// NewRefreshJob creates a new refresh job.
func NewRefreshJob(cfg RefreshJobConfig) *RefreshJob {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &RefreshJob{
		config:  cfg.Config.withDefaults(),
		service: cfg.Service,
		clock:   clock,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		stats:   &RefreshStats{},
	}
}

// RefreshResult contains the result of a refresh run.
type RefreshResult struct {
	Trigger    string
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Total      int
	Successful int
	Failed     int
	Swept      int
	Errors     []RefreshError
}

// RefreshError records one station that could not be refreshed.
type RefreshError struct {
	StationID string
	Kind      buoy.ErrorKind
	Error     string
}

// Start runs a refresh immediately and then on every interval until ctx
// is cancelled. With a zero interval it only runs the initial refresh.
func (j *RefreshJob) Start(ctx context.Context) {
	j.Run(ctx, TriggerStartup)

	if j.config.Interval == 0 {
		return
	}

	ticker := j.clock.NewTicker(j.config.Interval)
	defer ticker.Stop()

	j.logger.Info().
		Dur("interval", j.config.Interval).
		Msg("cache refresher scheduled")

	for {
		select {
		case <-ctx.Done():
			j.logger.Info().Msg("cache refresher stopped")
			return
		case <-ticker.Chan():
			j.Run(ctx, TriggerSchedule)
		}
	}
}

// Run refreshes the given stations, or the configured set when none are
// given, then drops expired cache entries.
func (j *RefreshJob) Run(ctx context.Context, trigger string, stationIDs ...string) *RefreshResult {
	start := j.clock.Now()

	ids := stationIDs
	if len(ids) == 0 {
		ids = j.targets()
	}

	result := &RefreshResult{
		Trigger:   trigger,
		StartTime: start,
		Total:     len(ids),
	}

	j.logger.Debug().
		Str("trigger", trigger).
		Int("stations", len(ids)).
		Int("concurrency", j.config.Concurrency).
		Msg("starting cache refresh")

	idChan := make(chan string, len(ids))
	resultsChan := make(chan *RefreshError, len(ids))

	var wg sync.WaitGroup
	for i := 0; i < min(j.config.Concurrency, len(ids)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.refreshWorker(ctx, idChan, resultsChan)
		}()
	}

	for _, id := range ids {
		idChan <- id
	}
	close(idChan)

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	for failure := range resultsChan {
		if failure == nil {
			result.Successful++
			continue
		}
		result.Failed++
		result.Errors = append(result.Errors, *failure)
	}
	// Stations skipped after cancellation count as failed.
	if skipped := result.Total - result.Successful - result.Failed; skipped > 0 {
		result.Failed += skipped
	}

	result.Swept = j.service.SweepCache()
	result.EndTime = j.clock.Now()
	result.Duration = result.EndTime.Sub(start)

	j.metrics.RefreshRun(trigger)
	j.updateStats(result)

	event := j.logger.Info()
	if result.Failed > 0 {
		event = j.logger.Warn()
	}
	event.
		Str("trigger", trigger).
		Dur("duration", result.Duration).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Int("swept", result.Swept).
		Msg("cache refresh completed")

	return result
}

func (j *RefreshJob) targets() []string {
	if len(j.config.StationIDs) > 0 {
		return j.config.StationIDs
	}
	stations := j.service.Stations()
	ids := make([]string, 0, len(stations))
	for _, st := range stations {
		ids = append(ids, st.ID)
	}
	return ids
}

func (j *RefreshJob) refreshWorker(ctx context.Context, ids <-chan string, results chan<- *RefreshError) {
	for id := range ids {
		select {
		case <-ctx.Done():
			return
		default:
			results <- j.refreshStation(ctx, id)
		}
	}
}

func (j *RefreshJob) refreshStation(ctx context.Context, stationID string) *RefreshError {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	if err := j.service.RefreshStation(ctx, stationID); err != nil {
		j.logger.Debug().Err(err).
			Str("station_id", stationID).
			Msg("station refresh failed")
		return &RefreshError{
			StationID: stationID,
			Kind:      buoy.KindOf(err),
			Error:     buoy.Message(err),
		}
	}
	return nil
}

func (j *RefreshJob) updateStats(result *RefreshResult) {
	j.stats.mu.Lock()
	defer j.stats.mu.Unlock()

	j.stats.Runs++
	j.stats.StationsRefreshed += int64(result.Successful)
	j.stats.StationsFailed += int64(result.Failed)
	j.stats.EntriesSwept += int64(result.Swept)
	j.stats.LastRunAt = result.EndTime
	j.stats.LastRunDuration = result.Duration
	j.stats.LastRunTrigger = result.Trigger

	if result.Total > 0 && result.Successful == 0 {
		j.stats.ConsecutiveFailing++
	} else {
		j.stats.ConsecutiveFailing = 0
	}
}

// GetStats returns a copy of the current statistics.
func (j *RefreshJob) GetStats() RefreshStats {
	j.stats.mu.RLock()
	defer j.stats.mu.RUnlock()

	return RefreshStats{
		Runs:               j.stats.Runs,
		StationsRefreshed:  j.stats.StationsRefreshed,
		StationsFailed:     j.stats.StationsFailed,
		EntriesSwept:       j.stats.EntriesSwept,
		LastRunAt:          j.stats.LastRunAt,
		LastRunDuration:    j.stats.LastRunDuration,
		LastRunTrigger:     j.stats.LastRunTrigger,
		ConsecutiveFailing: j.stats.ConsecutiveFailing,
	}
}
