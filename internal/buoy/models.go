package buoy

import (
	"time"

	"github.com/swellwatch/swellwatch/internal/station"
)

// Feed identifies an upstream observation feed.
type Feed string

const (
	// FeedBuoy is the standard meteorological feed of an offshore buoy.
	FeedBuoy Feed = "buoy"
	// FeedCoastalWind is the continuous wind feed of a coastal station.
	FeedCoastalWind Feed = "coastal-wind"
)

// Row is one observation record. Nil fields were missing upstream.
type Row struct {
	Time time.Time

	WaveHeightM     *float64 // significant wave height
	DominantPeriodS *float64
	AveragePeriodS  *float64
	MeanWaveDirDeg  *float64

	WindDirDeg  *float64
	WindSpeedMS *float64
	WindGustMS  *float64

	PressureHPa *float64
	AirTempC    *float64
	WaterTempC  *float64
	DewPointC   *float64
}

// HasWaves reports whether the row carries both wave height and dominant period.
func (r Row) HasWaves() bool {
	return r.WaveHeightM != nil && r.DominantPeriodS != nil
}

// HasWind reports whether the row carries a wind speed.
func (r Row) HasWind() bool {
	return r.WindSpeedMS != nil
}

// Document is a parsed feed for one station, rows ordered oldest first.
type Document struct {
	StationID   string
	Feed        Feed
	Rows        []Row
	SkippedRows int
}

// LatestWhere returns the most recent row satisfying keep.
func (d *Document) LatestWhere(keep func(Row) bool) (Row, bool) {
	for i := len(d.Rows) - 1; i >= 0; i-- {
		if keep(d.Rows[i]) {
			return d.Rows[i], true
		}
	}
	return Row{}, false
}

// Trend describes recent wave height movement.
type Trend string

const (
	TrendRising  Trend = "rising"
	TrendFalling Trend = "falling"
	TrendHolding Trend = "holding"
)

// Observation is a row enriched with derived surf metrics.
type Observation struct {
	Row

	SurfFaceHeightM *float64
	WaveEnergyIndex *float64
	WaveTrend       *Trend
}

// WindSource records where a station's wind reading came from.
type WindSource string

const (
	WindNative      WindSource = "native"
	WindFallback    WindSource = "fallback"
	WindUnavailable WindSource = "unavailable"
)

// Wind is the resolved wind reading attached to a station report.
type Wind struct {
	SpeedMS    *float64
	DirDeg     *float64
	GustMS     *float64
	ObservedAt *time.Time

	Source          WindSource
	SourceStationID string
}

// StationReport is the latest status of one station.
// Exactly one of Observation and Err is set.
type StationReport struct {
	Station     station.Station
	Observation *Observation
	Wind        Wind
	FetchedAt   time.Time
	Err         error
}

// OK reports whether the report carries data.
func (r *StationReport) OK() bool {
	return r.Err == nil && r.Observation != nil
}

// History is a time-windowed series of observations for one station.
type History struct {
	Station      station.Station
	Hours        int
	Observations []Observation
	FetchedAt    time.Time
}
