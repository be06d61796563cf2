package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/swellwatch/swellwatch/internal/api/models"
	"github.com/swellwatch/swellwatch/internal/api/response"
	"github.com/swellwatch/swellwatch/internal/buoy"
	"github.com/swellwatch/swellwatch/internal/station"
)

// BuoyService is the station data the buoy endpoints serve.
type BuoyService interface {
	Stations() []station.Station
	GetStation(ctx context.Context, stationID string) (*buoy.StationReport, error)
	GetAll(ctx context.Context) []*buoy.StationReport
	GetHistory(ctx context.Context, stationID string, hours int) (*buoy.History, error)
	ClearCache()
}

// BuoyHandler handles station status endpoints.
type BuoyHandler struct {
	service   BuoyService
	primaryID string
	logger    zerolog.Logger
	now       func() time.Time
}

// NewBuoyHandler creates a new BuoyHandler. primaryID is served by GetPrimary.
func NewBuoyHandler(service BuoyService, primaryID string, logger zerolog.Logger) *BuoyHandler {
	if primaryID == "" {
		primaryID = station.DefaultPrimaryID
	}
	return &BuoyHandler{
		service:   service,
		primaryID: primaryID,
		logger:    logger,
		now:       time.Now,
	}
}

// GetPrimary handles GET /api/buoy-status - the primary station's latest record.
func (h *BuoyHandler) GetPrimary(w http.ResponseWriter, r *http.Request) {
	h.writeStation(w, r, h.primaryID)
}

// GetStation handles GET /api/buoy-status/{stationId}.
func (h *BuoyHandler) GetStation(w http.ResponseWriter, r *http.Request) {
	h.writeStation(w, r, chi.URLParam(r, "stationId"))
}

// ListAll handles GET /api/buoy-status/all - every station in registry order.
// Failed stations appear as error entries; the request itself succeeds.
func (h *BuoyHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	reports := h.service.GetAll(r.Context())

	out := make([]models.StationStatus, 0, len(reports))
	for _, rep := range reports {
		out = append(out, toStationStatus(rep))
	}

	w.Header().Set("Cache-Control", "public, max-age=60")
	response.JSON(w, r, http.StatusOK, out)
}

// GetHistory handles GET /api/buoy-status/{stationId}/history?hours=N.
func (h *BuoyHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	hours := buoy.DefaultHistoryHours
	if raw := r.URL.Query().Get("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			response.BadRequest(w, r, "hours must be an integer", []models.FieldError{
				{Field: "hours", Message: "must be an integer", Code: "INVALID_FORMAT"},
			})
			return
		}
		hours = n
	}

	history, err := h.service.GetHistory(r.Context(), chi.URLParam(r, "stationId"), hours)
	if err != nil {
		h.logFailure(r, err)
		response.StationError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=300")
	response.JSON(w, r, http.StatusOK, toStationHistory(history))
}

// ClearCache handles GET|POST /api/cache/clear.
func (h *BuoyHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	h.service.ClearCache()
	response.JSON(w, r, http.StatusOK, models.CacheCleared{
		Message:   "Cache cleared",
		Timestamp: models.Timestamp(h.now()),
	})
}

// ListStations handles GET /api/stations.
func (h *BuoyHandler) ListStations(w http.ResponseWriter, r *http.Request) {
	stations := h.service.Stations()

	list := models.StationList{
		Primary:  h.primaryID,
		Stations: make([]models.StationInfo, 0, len(stations)),
	}
	for _, st := range stations {
		info := models.StationInfo{ID: st.ID, Name: st.Name, Lat: st.Lat, Lon: st.Lon}
		if st.HasWindFallback() {
			fallback := st.WindFallbackID
			info.WindFallbackStation = &fallback
		}
		list.Stations = append(list.Stations, info)
	}

	w.Header().Set("Cache-Control", "public, max-age=3600")
	response.JSON(w, r, http.StatusOK, list)
}

func (h *BuoyHandler) writeStation(w http.ResponseWriter, r *http.Request, stationID string) {
	rep, err := h.service.GetStation(r.Context(), stationID)
	if err != nil {
		h.logFailure(r, err)
		response.StationError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=60")
	response.JSON(w, r, http.StatusOK, toStationStatus(rep))
}

func (h *BuoyHandler) logFailure(r *http.Request, err error) {
	h.logger.Warn().Err(err).
		Str("station_id", chi.URLParam(r, "stationId")).
		Str("error_kind", string(buoy.KindOf(err))).
		Msg("station request failed")
}

func toStationStatus(rep *buoy.StationReport) models.StationStatus {
	st := rep.Station
	status := models.StationStatus{
		Station: st.ID,
		Name:    st.Name,
		Lat:     st.Lat,
		Lon:     st.Lon,
	}

	if !rep.OK() {
		status.Error = buoy.Message(rep.Err)
		status.ErrorKind = string(buoy.KindOf(rep.Err))
		return status
	}

	obs := rep.Observation
	status.Reading = &models.Reading{
		TimestampUTC:      models.Timestamp(obs.Time),
		WaveHeightM:       obs.WaveHeightM,
		DominantPeriodSec: obs.DominantPeriodS,
		AveragePeriodSec:  obs.AveragePeriodS,
		MeanWaveDir:       obs.MeanWaveDirDeg,
		WaterTempC:        obs.WaterTempC,
		AirTempC:          obs.AirTempC,
		PressureHPa:       obs.PressureHPa,
		DewPointC:         obs.DewPointC,
		SurfFaceHeightM:   obs.SurfFaceHeightM,
		WaveEnergyIndex:   obs.WaveEnergyIndex,
		WaveTrend:         trendString(obs.WaveTrend),
		WindSpeedMS:       rep.Wind.SpeedMS,
		WindDirDeg:        rep.Wind.DirDeg,
		WindGustMS:        rep.Wind.GustMS,
		WindSource:        string(rep.Wind.Source),
		WindStation:       rep.Wind.SourceStationID,
		FetchedAt:         models.NewTimestamp(rep.FetchedAt),
	}
	if rep.Wind.ObservedAt != nil {
		status.WindObservedAt = models.NewTimestamp(*rep.Wind.ObservedAt)
	}
	return status
}

func toStationHistory(history *buoy.History) models.StationHistory {
	st := history.Station
	out := models.StationHistory{
		Station:      st.ID,
		Name:         st.Name,
		Lat:          st.Lat,
		Lon:          st.Lon,
		Hours:        history.Hours,
		Count:        len(history.Observations),
		Observations: make([]models.HistoryPoint, 0, len(history.Observations)),
		FetchedAt:    models.NewTimestamp(history.FetchedAt),
	}

	for _, obs := range history.Observations {
		out.Observations = append(out.Observations, models.HistoryPoint{
			TimestampUTC:      models.Timestamp(obs.Time),
			WaveHeightM:       obs.WaveHeightM,
			DominantPeriodSec: obs.DominantPeriodS,
			AveragePeriodSec:  obs.AveragePeriodS,
			MeanWaveDir:       obs.MeanWaveDirDeg,
			WaterTempC:        obs.WaterTempC,
			AirTempC:          obs.AirTempC,
			PressureHPa:       obs.PressureHPa,
			DewPointC:         obs.DewPointC,
			SurfFaceHeightM:   obs.SurfFaceHeightM,
			WaveEnergyIndex:   obs.WaveEnergyIndex,
			WaveTrend:         trendString(obs.WaveTrend),
			WindSpeedMS:       obs.WindSpeedMS,
			WindDirDeg:        obs.WindDirDeg,
			WindGustMS:        obs.WindGustMS,
		})
	}
	return out
}

func trendString(t *buoy.Trend) *string {
	if t == nil {
		return nil
	}
	s := string(*t)
	return &s
}
