package ndbc

import (
	"fmt"
	"math"
	"strings"

	"github.com/swellwatch/swellwatch/internal/buoy"
)

// missingToken marks an absent value in every NDBC realtime table.
const missingToken = "MM"

// isMissing reports whether a raw value token means "no value". Some
// mirrors and older archives write NaN instead of MM.
func isMissing(raw string) bool {
	return raw == missingToken || strings.EqualFold(raw, "nan")
}

// column maps one positional value column onto a Row field.
type column struct {
	// aliases are the header names accepted for this position, canonical first.
	aliases []string
	// assign stores the value; nil for columns that are validated but dropped.
	assign func(r *buoy.Row, v *float64)
	// missing lists numeric sentinels that mean "no value".
	missing []float64
	// min and max bound physically plausible values.
	min, max float64
	// unbounded disables the range check.
	unbounded bool
}

func (c column) value(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	for _, s := range c.missing {
		if v == s {
			return nil
		}
	}
	if !c.unbounded && (v < c.min || v > c.max) {
		return nil
	}
	return &v
}

// schema is the fixed positional layout of one feed.
type schema struct {
	feed    buoy.Feed
	columns []column
}

// Time columns precede the value columns in every feed. The lowercase
// aliases are the unit-line names some archives use as the header.
var timeAliases = [5][]string{
	{"YY", "YYYY", "yr"},
	{"MM", "mo"},
	{"DD", "dy"},
	{"hh", "hr"},
	{"mm", "mn"},
}

func (s schema) width() int {
	return len(timeAliases) + len(s.columns)
}

// checkHeader verifies the header names against the layout so a reordered
// or foreign table is rejected instead of silently mis-mapped.
func (s schema) checkHeader(names []string) error {
	if len(names) != s.width() {
		return fmt.Errorf("header has %d columns, want %d", len(names), s.width())
	}
	for i, name := range names {
		var accepted []string
		if i < len(timeAliases) {
			accepted = timeAliases[i]
		} else {
			accepted = s.columns[i-len(timeAliases)].aliases
		}
		if !matchesAlias(name, accepted) {
			return fmt.Errorf("unexpected header column %q at position %d, want %s", name, i+1, accepted[0])
		}
	}
	return nil
}

func matchesAlias(name string, aliases []string) bool {
	for _, a := range aliases {
		if name == a {
			return true
		}
	}
	return false
}

func setWaveHeight(r *buoy.Row, v *float64) { r.WaveHeightM = v }
func setDominantPeriod(r *buoy.Row, v *float64) { r.DominantPeriodS = v }
func setAveragePeriod(r *buoy.Row, v *float64) { r.AveragePeriodS = v }
func setMeanWaveDir(r *buoy.Row, v *float64) { r.MeanWaveDirDeg = v }
func setWindDir(r *buoy.Row, v *float64) { r.WindDirDeg = v }
func setWindSpeed(r *buoy.Row, v *float64) { r.WindSpeedMS = v }
func setWindGust(r *buoy.Row, v *float64) { r.WindGustMS = v }
func setPressure(r *buoy.Row, v *float64) { r.PressureHPa = v }
func setAirTemp(r *buoy.Row, v *float64) { r.AirTempC = v }
func setWaterTemp(r *buoy.Row, v *float64) { r.WaterTempC = v }
func setDewPoint(r *buoy.Row, v *float64) { r.DewPointC = v }

// Standard meteorological feed (realtime2/{station}.txt):
//
//	#YY  MM DD hh mm WDIR WSPD GST  WVHT   DPD   APD MWD   PRES  ATMP  WTMP  DEWP  VIS PTDY  TIDE
//	#yr  mo dy hr mn degT m/s  m/s     m   sec   sec degT   hPa  degC  degC  degC  nmi  hPa    ft
var stdmetSchema = schema{
	feed: buoy.FeedBuoy,
	columns: []column{
		{aliases: []string{"WDIR", "WD"}, assign: setWindDir, missing: []float64{999}, min: 0, max: 360},
		{aliases: []string{"WSPD"}, assign: setWindSpeed, missing: []float64{99}, min: 0, max: 75},
		{aliases: []string{"GST"}, assign: setWindGust, missing: []float64{99}, min: 0, max: 100},
		{aliases: []string{"WVHT", "waveHs", "Hs", "wave_height"}, assign: setWaveHeight, missing: []float64{99}, min: 0, max: 30},
		{aliases: []string{"DPD", "waveTp", "Tp", "peak_period"}, assign: setDominantPeriod, missing: []float64{99}, min: 0, max: 40},
		{aliases: []string{"APD", "waveTa", "Ta", "average_period"}, assign: setAveragePeriod, missing: []float64{99}, min: 0, max: 40},
		{aliases: []string{"MWD", "waveDp", "Dp", "mean_wave_dir"}, assign: setMeanWaveDir, missing: []float64{999}, min: 0, max: 360},
		{aliases: []string{"PRES", "BAR"}, assign: setPressure, missing: []float64{9999}, min: 800, max: 1100},
		{aliases: []string{"ATMP"}, assign: setAirTemp, missing: []float64{999}, min: -60, max: 60},
		{aliases: []string{"WTMP"}, assign: setWaterTemp, missing: []float64{999}, min: -5, max: 40},
		{aliases: []string{"DEWP"}, assign: setDewPoint, missing: []float64{999}, min: -60, max: 60},
		{aliases: []string{"VIS"}, missing: []float64{99}, unbounded: true},
		{aliases: []string{"PTDY"}, missing: []float64{99}, unbounded: true},
		{aliases: []string{"TIDE"}, missing: []float64{99}, unbounded: true},
	},
}

// Continuous winds feed (realtime2/{station}.cwind):
//
//	#YY  MM DD hh mm WDIR WSPD GDR GST GTIME
//	#yr  mo dy hr mn degT m/s degT m/s hhmm
var cwindSchema = schema{
	feed: buoy.FeedCoastalWind,
	columns: []column{
		{aliases: []string{"WDIR"}, assign: setWindDir, missing: []float64{999}, min: 0, max: 360},
		{aliases: []string{"WSPD"}, assign: setWindSpeed, missing: []float64{99}, min: 0, max: 75},
		{aliases: []string{"GDR"}, missing: []float64{999}, unbounded: true},
		{aliases: []string{"GST"}, assign: setWindGust, missing: []float64{99}, min: 0, max: 100},
		{aliases: []string{"GTIME"}, missing: []float64{9999}, unbounded: true},
	},
}

func schemaFor(feed buoy.Feed) (schema, bool) {
	switch feed {
	case buoy.FeedBuoy:
		return stdmetSchema, true
	case buoy.FeedCoastalWind:
		return cwindSchema, true
	default:
		return schema{}, false
	}
}

// headerNames splits a "#"-prefixed header line into column names.
func headerNames(line string) []string {
	return strings.Fields(strings.TrimPrefix(line, "#"))
}
