package grid

// Channels holds merged grid points as six parallel arrays, the layout the
// reconstruction pipeline consumes.
type Channels struct {
	Magnitude          []float64 `json:"magnitude"`
	Real               []float64 `json:"real"`
	Imag               []float64 `json:"imag"`
	WeightedConfidence []float64 `json:"weightedConfidence"`
	WeightedDistance   []float64 `json:"weightedDistance"`
	PhaseDispersion    []float64 `json:"phaseDispersion"`
}

// SplitChannels lays points out column-wise, preserving their order.
func SplitChannels(points []MergedGridPoint) Channels {
	n := len(points)
	ch := Channels{
		Magnitude:          make([]float64, n),
		Real:               make([]float64, n),
		Imag:               make([]float64, n),
		WeightedConfidence: make([]float64, n),
		WeightedDistance:   make([]float64, n),
		PhaseDispersion:    make([]float64, n),
	}
	for i, p := range points {
		ch.Magnitude[i] = p.Magnitude
		ch.Real[i] = p.Real
		ch.Imag[i] = p.Imag
		ch.WeightedConfidence[i] = p.WeightedConfidence
		ch.WeightedDistance[i] = p.WeightedDistance
		ch.PhaseDispersion[i] = p.PhaseDispersion
	}
	return ch
}

// Len returns the number of grid points in the channels
func (c Channels) Len() int {
	return len(c.Magnitude)
}

// Complex recombines the real and imaginary channels.
func (c Channels) Complex() []complex128 {
	out := make([]complex128, len(c.Real))
	for i := range out {
		out[i] = complex(c.Real[i], c.Imag[i])
	}
	return out
}
