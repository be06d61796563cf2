package buoy

import "math"

// FaceHeightFactor scales significant wave height into a breaking-face estimate.
const FaceHeightFactor = 0.7

// FaceHeight estimates breaking wave face height in meters as
// 0.7 * h * sqrt(T). It returns nil unless both inputs are present and T > 0.
func FaceHeight(heightM, periodS *float64) *float64 {
	if !validWaveInputs(heightM, periodS) {
		return nil
	}
	v := FaceHeightFactor * *heightM * math.Sqrt(*periodS)
	return &v
}

// EnergyIndex is a relative wave energy measure, h^2 * T. It returns nil
// unless both inputs are present and T > 0.
func EnergyIndex(heightM, periodS *float64) *float64 {
	if !validWaveInputs(heightM, periodS) {
		return nil
	}
	h := *heightM
	v := h * h * *periodS
	return &v
}

func validWaveInputs(heightM, periodS *float64) bool {
	if heightM == nil || periodS == nil {
		return false
	}
	h, t := *heightM, *periodS
	if math.IsNaN(h) || math.IsNaN(t) || math.IsInf(h, 0) || math.IsInf(t, 0) {
		return false
	}
	return h >= 0 && t > 0
}

// TrendPolicy controls wave trend classification.
type TrendPolicy struct {
	// Window is how many of the latest valid wave height readings are considered.
	Window int
	// DeadBandM is the change in meters below which the trend is holding.
	DeadBandM float64
}

// DefaultTrendPolicy compares the latest of five readings against the
// mean of the others with a 5 cm dead-band.
func DefaultTrendPolicy() TrendPolicy {
	return TrendPolicy{Window: 5, DeadBandM: 0.05}
}

func (p TrendPolicy) normalized() TrendPolicy {
	def := DefaultTrendPolicy()
	if p.Window < 2 {
		p.Window = def.Window
	}
	if p.DeadBandM < 0 || math.IsNaN(p.DeadBandM) {
		p.DeadBandM = def.DeadBandM
	}
	return p
}

// Classify labels the movement of heights, which must be chronological and
// free of missing readings. The last element is the reading being classified.
// Fewer than two readings yields nil.
func (p TrendPolicy) Classify(heights []float64) *Trend {
	p = p.normalized()

	if len(heights) > p.Window {
		heights = heights[len(heights)-p.Window:]
	}
	if len(heights) < 2 {
		return nil
	}

	latest := heights[len(heights)-1]
	prior := heights[:len(heights)-1]
	var sum float64
	for _, h := range prior {
		sum += h
	}
	delta := latest - sum/float64(len(prior))

	var t Trend
	switch {
	case delta > p.DeadBandM:
		t = TrendRising
	case delta < -p.DeadBandM:
		t = TrendFalling
	default:
		t = TrendHolding
	}
	return &t
}

// ClassifyTrend applies DefaultTrendPolicy to a series that may contain
// missing readings. Nil entries are dropped before windowing.
func ClassifyTrend(heights []*float64) *Trend {
	valid := make([]float64, 0, len(heights))
	for _, h := range heights {
		if h != nil {
			valid = append(valid, *h)
		}
	}
	return DefaultTrendPolicy().Classify(valid)
}

// Derive enriches chronological rows with face height, energy index, and
// trend. The trend of a row uses only readings at or before it, and rows
// without a wave height get no trend.
func Derive(rows []Row, policy TrendPolicy) []Observation {
	policy = policy.normalized()

	out := make([]Observation, len(rows))
	valid := make([]float64, 0, len(rows))

	for i, row := range rows {
		obs := Observation{
			Row:             row,
			SurfFaceHeightM: FaceHeight(row.WaveHeightM, row.DominantPeriodS),
			WaveEnergyIndex: EnergyIndex(row.WaveHeightM, row.DominantPeriodS),
		}
		if row.WaveHeightM != nil {
			valid = append(valid, *row.WaveHeightM)
			obs.WaveTrend = policy.Classify(valid)
		}
		out[i] = obs
	}

	return out
}
