package grid

import "math"

// Epsilon keeps the weighting and dispersion divisions finite when distances,
// confidences or weight sums are exactly zero.
const Epsilon = 1e-30

// normalization returns S = Σ (c_j+ε)/(d_j+ε) for a group.
func normalization(samples []Sample) float64 {
	var s float64
	for _, smp := range samples {
		s += (smp.Confidence + Epsilon) / (smp.Distance + Epsilon)
	}
	return s
}

// Weights returns the per-sample weights c_j/(d_j+ε)/S used by MergeGroup.
// The numerator omits the ε that S carries, so the weights need not sum to
// exactly one.
func Weights(samples []Sample) []float64 {
	s := normalization(samples)
	w := make([]float64, len(samples))
	for j, smp := range samples {
		w[j] = smp.Confidence / (smp.Distance + Epsilon) / s
	}
	return w
}

// PhaseResidual returns the angular distance between phase and reference,
// taking the shorter way around the ±π branch cut. Both inputs are expected
// in (-π, π] as produced by math.Atan2.
func PhaseResidual(phase, reference float64) float64 {
	factor := 2 * math.Pi
	if phase > reference {
		factor = -2 * math.Pi
	}
	r1 := math.Abs(phase - reference)
	r2 := math.Abs(phase + factor - reference)
	if r1 < r2 {
		return r1
	}
	return r2
}

// MergeGroup consolidates the samples snapped to one grid point.
//
// Samples are weighted by confidence over snapping distance. The weighted
// complex value fixes a representative phase, and PhaseDispersion is the
// weighted RMS of each sample's circular residual from it. An empty group
// returns ErrInvalidGroup.
func MergeGroup(samples []Sample) (MergedGridPoint, error) {
	if len(samples) == 0 {
		return MergedGridPoint{}, invalidGroupf("no samples")
	}

	w := Weights(samples)

	var out MergedGridPoint
	for j, smp := range samples {
		out.Real += w[j] * smp.Real
		out.Imag += w[j] * smp.Imag
		out.Magnitude += w[j] * math.Sqrt(smp.Real*smp.Real+smp.Imag*smp.Imag)
		out.WeightedConfidence += w[j] * smp.Confidence
		out.WeightedDistance += w[j] * smp.Distance
	}

	weightedPhase := math.Atan2(out.Imag, out.Real)

	var sigmaSum, weightSum float64
	for j, smp := range samples {
		r := PhaseResidual(math.Atan2(smp.Imag, smp.Real), weightedPhase)
		sigmaSum += w[j] * r * r
		weightSum += w[j]
	}
	out.PhaseDispersion = math.Sqrt(sigmaSum / (weightSum + Epsilon))

	return out, nil
}
