package grid

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// MergeOptions carries the batch tuning taken from config or CLI flags
type MergeOptions struct {
	Workers                int
	ChunkSize              int
	DispersionThresholdDeg float64 // 0 uses DefaultDispersionThresholdDeg
}

// MergeOptionsFromConfig extracts merge options from the config file
func MergeOptionsFromConfig(c *Config) MergeOptions {
	if c == nil {
		return MergeOptions{}
	}
	return MergeOptions{
		Workers:                c.Merge.Workers,
		ChunkSize:              c.Merge.ChunkSize,
		DispersionThresholdDeg: c.Merge.DispersionThresholdDeg,
	}
}

// ThresholdRad returns the dispersion flag threshold in radians
func (o MergeOptions) ThresholdRad() float64 {
	if o.DispersionThresholdDeg <= 0 {
		return DegToRad(DefaultDispersionThresholdDeg)
	}
	return DegToRad(o.DispersionThresholdDeg)
}

// MergeResult is the merged output of one batch
type MergeResult struct {
	BatchID   string       `json:"batchId"`
	Source    string       `json:"source,omitempty"`
	Dims      []int        `json:"dims,omitempty"`
	GridIndex []int        `json:"gridIndex,omitempty"`
	Channels  Channels     `json:"channels"`
	Summary   BatchSummary `json:"summary"`
	MergedAt  time.Time    `json:"mergedAt"`
}

// Points rebuilds the merged grid points, in group order, from the channels.
func (r *MergeResult) Points() []MergedGridPoint {
	points := make([]MergedGridPoint, r.Channels.Len())
	for i := range points {
		points[i] = MergedGridPoint{
			Magnitude:          r.Channels.Magnitude[i],
			Real:               r.Channels.Real[i],
			Imag:               r.Channels.Imag[i],
			WeightedConfidence: r.Channels.WeightedConfidence[i],
			WeightedDistance:   r.Channels.WeightedDistance[i],
			PhaseDispersion:    r.Channels.PhaseDispersion[i],
		}
	}
	return points
}

// MergeBatch resolves the groups of b and merges them all. Any invalid group
// fails the whole batch.
func MergeBatch(ctx context.Context, b *Batch, opts MergeOptions) (*MergeResult, error) {
	if b == nil {
		return nil, fmt.Errorf("merge batch: nil batch")
	}

	store, err := b.Store()
	if err != nil {
		return nil, fmt.Errorf("merge batch %q: %w", b.ID, err)
	}
	ranges, err := b.Ranges()
	if err != nil {
		return nil, fmt.Errorf("merge batch %q: %w", b.ID, err)
	}
	if len(b.GridIndex) > 0 && len(b.GridIndex) != len(ranges) {
		return nil, fmt.Errorf("merge batch %q: %d grid indices for %d groups", b.ID, len(b.GridIndex), len(ranges))
	}
	if len(b.Dims) > 0 {
		if _, err := ValidateDims(b.Dims); err != nil {
			return nil, fmt.Errorf("merge batch %q: %w", b.ID, err)
		}
	}

	points, err := MergeAll(ctx, store, ranges, WithWorkers(opts.Workers), WithChunkSize(opts.ChunkSize))
	if err != nil {
		return nil, fmt.Errorf("merge batch %q: %w", b.ID, err)
	}

	return &MergeResult{
		BatchID:   b.ID,
		Source:    b.Source,
		Dims:      b.Dims,
		GridIndex: b.GridIndex,
		Channels:  SplitChannels(points),
		Summary:   Summarize(points, opts.ThresholdRad()),
		MergedAt:  time.Now().UTC(),
	}, nil
}

// EncodeResult serialises a merge result as JSON
func EncodeResult(r *MergeResult) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshaling result: %w", err)
	}
	return data, nil
}
