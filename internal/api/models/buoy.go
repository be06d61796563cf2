package models

// StationStatus is the latest record for one station. Failed stations carry
// only the station metadata plus Error and ErrorKind; the embedded Reading is
// nil and its fields are omitted.
//
// Metric fields are null when the upstream value is missing. A null is never
// reported as zero.
type StationStatus struct {
	Station string  `json:"station"`
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`

	*Reading

	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

// Reading carries the observed and derived values of a station record.
type Reading struct {
	TimestampUTC Timestamp `json:"timestamp_utc"`

	WaveHeightM       *float64 `json:"wave_height_m"`
	DominantPeriodSec *float64 `json:"dominant_period_sec"`
	AveragePeriodSec  *float64 `json:"average_period_sec"`
	MeanWaveDir       *float64 `json:"mean_wave_dir"`
	WaterTempC        *float64 `json:"water_temp_c"`
	AirTempC          *float64 `json:"air_temp_c"`
	PressureHPa       *float64 `json:"pressure_hpa"`
	DewPointC         *float64 `json:"dew_point_c"`

	SurfFaceHeightM *float64 `json:"surf_face_height_m"`
	WaveEnergyIndex *float64 `json:"wave_energy_index"`
	WaveTrend       *string  `json:"wave_trend"`

	WindSpeedMS    *float64   `json:"wind_speed_ms"`
	WindDirDeg     *float64   `json:"wind_dir_deg"`
	WindGustMS     *float64   `json:"wind_gust_ms"`
	WindSource     string     `json:"wind_source"`
	WindStation    string     `json:"wind_station,omitempty"`
	WindObservedAt *Timestamp `json:"wind_observed_at,omitempty"`

	FetchedAt *Timestamp `json:"fetched_at,omitempty"`
}

// HistoryPoint is one derived observation in a station time series. Wind is
// the buoy's own measurement; history does not consult fallback stations.
type HistoryPoint struct {
	TimestampUTC Timestamp `json:"timestamp_utc"`

	WaveHeightM       *float64 `json:"wave_height_m"`
	DominantPeriodSec *float64 `json:"dominant_period_sec"`
	AveragePeriodSec  *float64 `json:"average_period_sec"`
	MeanWaveDir       *float64 `json:"mean_wave_dir"`
	WaterTempC        *float64 `json:"water_temp_c"`
	AirTempC          *float64 `json:"air_temp_c"`
	PressureHPa       *float64 `json:"pressure_hpa"`
	DewPointC         *float64 `json:"dew_point_c"`

	SurfFaceHeightM *float64 `json:"surf_face_height_m"`
	WaveEnergyIndex *float64 `json:"wave_energy_index"`
	WaveTrend       *string  `json:"wave_trend"`

	WindSpeedMS *float64 `json:"wind_speed_ms"`
	WindDirDeg  *float64 `json:"wind_dir_deg"`
	WindGustMS  *float64 `json:"wind_gust_ms"`
}

// StationHistory is the trailing time series for one station, oldest first.
type StationHistory struct {
	Station      string         `json:"station"`
	Name         string         `json:"name"`
	Lat          float64        `json:"lat"`
	Lon          float64        `json:"lon"`
	Hours        int            `json:"hours"`
	Count        int            `json:"count"`
	Observations []HistoryPoint `json:"observations"`
	FetchedAt    *Timestamp     `json:"fetched_at,omitempty"`
}

// StationInfo describes a monitored station.
type StationInfo struct {
	ID                  string  `json:"id"`
	Name                string  `json:"name"`
	Lat                 float64 `json:"lat"`
	Lon                 float64 `json:"lon"`
	WindFallbackStation *string `json:"wind_fallback_station,omitempty"`
}

// StationList is the station registry.
type StationList struct {
	Primary  string        `json:"primary"`
	Stations []StationInfo `json:"stations"`
}

// CacheCleared acknowledges a cache clear.
type CacheCleared struct {
	Message   string    `json:"message"`
	Timestamp Timestamp `json:"timestamp"`
}
