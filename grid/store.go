package grid

import "fmt"

// SampleStore keeps every raw sample of a batch in one contiguous slice.
// Groups refer into it by Range instead of owning copies.
type SampleStore struct {
	Samples []Sample
}

// NewSampleStoreFromColumns builds a store from the four parallel channels a
// host pipeline hands over.
func NewSampleStoreFromColumns(real, imag, distance, confidence []float64) (*SampleStore, error) {
	n := len(real)
	if len(imag) != n || len(distance) != n || len(confidence) != n {
		return nil, fmt.Errorf("column length mismatch: real=%d imag=%d distance=%d confidence=%d",
			len(real), len(imag), len(distance), len(confidence))
	}

	samples := make([]Sample, n)
	for i := range samples {
		samples[i] = Sample{
			Real:       real[i],
			Imag:       imag[i],
			Distance:   distance[i],
			Confidence: confidence[i],
		}
	}
	return &SampleStore{Samples: samples}, nil
}

// Len returns the number of samples in the store
func (s *SampleStore) Len() int {
	return len(s.Samples)
}

// Validate checks that r is a non-empty span inside a store of n samples.
func (r Range) Validate(n int) error {
	switch {
	case r.End < r.Start:
		return invalidGroupf("end %d precedes start %d", r.End, r.Start)
	case r.Start < 0 || r.End > n:
		return invalidGroupf("range [%d,%d) outside store of %d samples", r.Start, r.End, n)
	case r.End == r.Start:
		return invalidGroupf("no samples")
	}
	return nil
}

// Group returns the samples of r as a view into the store.
func (s *SampleStore) Group(r Range) ([]Sample, error) {
	if err := r.Validate(len(s.Samples)); err != nil {
		return nil, err
	}
	return s.Samples[r.Start:r.End:r.End], nil
}
