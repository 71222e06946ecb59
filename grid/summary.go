package grid

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// DefaultDispersionThresholdDeg flags grid points whose contributing phases
// spread by more than this many degrees (RMS).
const DefaultDispersionThresholdDeg = 15.0

// BatchSummary describes the merged points of one batch
type BatchSummary struct {
	Count            int     `json:"count"`
	MeanMagnitude    float64 `json:"meanMagnitude"`
	MeanDispersion   float64 `json:"meanDispersion"`
	MedianDispersion float64 `json:"medianDispersion"`
	P95Dispersion    float64 `json:"p95Dispersion"`
	MaxDispersion    float64 `json:"maxDispersion"`
	ThresholdRad     float64 `json:"thresholdRad"`
	Flagged          int     `json:"flagged"`
	FlaggedIndices   []int   `json:"flaggedIndices,omitempty"`
}

// DegToRad converts degrees to radians
func DegToRad(deg float64) float64 {
	return deg * math.Pi / 180
}

// Summarize computes dispersion statistics over points and flags every point
// whose PhaseDispersion exceeds thresholdRad.
func Summarize(points []MergedGridPoint, thresholdRad float64) BatchSummary {
	s := BatchSummary{Count: len(points), ThresholdRad: thresholdRad}
	if len(points) == 0 {
		return s
	}

	ch := SplitChannels(points)
	s.MeanMagnitude = stat.Mean(ch.Magnitude, nil)
	s.MeanDispersion = stat.Mean(ch.PhaseDispersion, nil)

	for i, d := range ch.PhaseDispersion {
		if d > thresholdRad {
			s.Flagged++
			s.FlaggedIndices = append(s.FlaggedIndices, i)
		}
	}

	// ch.PhaseDispersion is owned here, sorting it in place is safe
	sorted := ch.PhaseDispersion
	sort.Float64s(sorted)
	s.MedianDispersion = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	s.P95Dispersion = stat.Quantile(0.95, stat.Empirical, sorted, nil)
	s.MaxDispersion = sorted[len(sorted)-1]

	return s
}
