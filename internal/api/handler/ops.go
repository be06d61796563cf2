// Package handler provides HTTP handlers for the SwellWatch API.
package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/swellwatch/swellwatch/internal/api/models"
	"github.com/swellwatch/swellwatch/internal/api/response"
	"github.com/swellwatch/swellwatch/internal/provider/resilience"
)

// CacheInspector reports how many entries the station cache holds.
type CacheInspector interface {
	CacheSize() int
}

// OpsHandlerConfig holds the dependencies of the ops endpoints.
type OpsHandlerConfig struct {
	Version      string
	BuildTime    string
	Feeds        *resilience.Registry
	Cache        CacheInspector
	StationCount int
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version      string
	buildTime    string
	feeds        *resilience.Registry
	cache        CacheInspector
	stationCount int
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsHandlerConfig) *OpsHandler {
	return &OpsHandler{
		version:      cfg.Version,
		buildTime:    cfg.BuildTime,
		feeds:        cfg.Feeds,
		cache:        cfg.Cache,
		stationCount: cfg.StationCount,
	}
}

// HealthCheck handles GET /api/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]any{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	})
}

// ReadinessCheck handles GET /api/ops/ready. The service is ready once it
// has stations to serve and its feed clients are registered; upstream
// outages do not make it unready since failures are reported per station.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	}

	if h.stationCount == 0 || h.feeds == nil || h.feeds.Len() == 0 {
		health.Status = models.HealthStatusFail
		response.JSON(w, r, http.StatusServiceUnavailable, health)
		return
	}
	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /api/ops/status - feed circuit state and cache size.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(time.Now()),
		Subsystems: h.subsystems(),
		Providers:  []models.ProviderStatus{},
	}

	if h.feeds != nil {
		open := 0
		for _, health := range h.feeds.Snapshot() {
			ps := providerStatus(health)
			switch ps.Status {
			case models.HealthStatusFail:
				open++
				status.Status = models.HealthStatusDegraded
			case models.HealthStatusDegraded:
				status.Status = models.HealthStatusDegraded
			}
			status.Providers = append(status.Providers, ps)
		}
		if open > 0 && open == len(status.Providers) {
			status.Status = models.HealthStatusFail
		}
	}

	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) subsystems() []models.SubsystemStatus {
	stations := fmt.Sprintf("%d stations", h.stationCount)
	out := []models.SubsystemStatus{
		{Name: "station-registry", Status: models.HealthStatusOK, Detail: &stations},
	}
	if h.cache != nil {
		entries := fmt.Sprintf("%d entries", h.cache.CacheSize())
		out = append(out, models.SubsystemStatus{Name: "cache", Status: models.HealthStatusOK, Detail: &entries})
	}
	return out
}

func providerStatus(health resilience.FeedHealth) models.ProviderStatus {
	ps := models.ProviderStatus{
		Provider:      health.Name,
		Status:        models.HealthStatusOK,
		CircuitState:  health.State.String(),
		LastSuccessAt: models.NewTimestamp(health.LastSuccessAt),
		LastFailureAt: models.NewTimestamp(health.LastFailureAt),
		FailureStreak: health.FailureStreak,
		OpenTargets:   health.OpenTargets,
	}

	switch health.Level() {
	case resilience.LevelDown:
		ps.Status = models.HealthStatusFail
	case resilience.LevelProbing:
		ps.Status = models.HealthStatusDegraded
	}

	if health.LastError != "" {
		msg := health.LastError
		ps.Message = &msg
	}
	return ps
}
