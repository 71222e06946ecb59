package grid

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testBatch returns a 2x2x1 batch with three groups: an agreeing pair, a lone
// sample, and a pair straddling the ±π branch cut.
func testBatch() *Batch {
	return &Batch{
		ID:         "b-1",
		Source:     "scanner",
		Dims:       []int{2, 2, 1},
		Real:       []float64{1, 2, 0, -1, -1},
		Imag:       []float64{0, 0, 3, 0.1, -0.1},
		Distance:   []float64{0.5, 0.5, 0.2, 0.3, 0.3},
		Confidence: []float64{1, 1, 2, 1, 1},
		Groups:     [][2]int{{0, 2}, {2, 3}, {3, 5}},
		GridIndex:  []int{0, 3, 1},
	}
}

func TestChannels_SplitAndComplex(t *testing.T) {
	points := []MergedGridPoint{
		{Magnitude: 1, Real: 1, Imag: 0, WeightedConfidence: 2, WeightedDistance: 0.1, PhaseDispersion: 0},
		{Magnitude: 2, Real: 0, Imag: -2, WeightedConfidence: 3, WeightedDistance: 0.2, PhaseDispersion: 0.5},
	}
	ch := SplitChannels(points)

	require.Equal(t, 2, ch.Len())
	assert.Equal(t, []float64{1, 2}, ch.Magnitude)
	assert.Equal(t, []float64{0, 0.5}, ch.PhaseDispersion)
	assert.Equal(t, []complex128{complex(1, 0), complex(0, -2)}, ch.Complex())

	r := &MergeResult{Channels: ch}
	assert.Equal(t, points, r.Points())
}

func TestMergeBatch(t *testing.T) {
	b := testBatch()

	r, err := MergeBatch(context.Background(), b, MergeOptions{Workers: 2, ChunkSize: 1})
	require.NoError(t, err)

	assert.Equal(t, "b-1", r.BatchID)
	assert.Equal(t, "scanner", r.Source)
	assert.Equal(t, b.GridIndex, r.GridIndex)
	require.Equal(t, 3, r.Channels.Len())

	// Agreeing pair averages to 1.5 on the real axis
	assert.InDelta(t, 1.5, r.Channels.Real[0], 1e-12)
	assert.InDelta(t, 0, r.Channels.PhaseDispersion[0], 1e-12)
	// Lone sample passes through
	assert.InDelta(t, 3, r.Channels.Imag[1], 1e-12)
	assert.InDelta(t, 3, r.Channels.Magnitude[1], 1e-12)
	// Branch-cut pair is only slightly dispersed
	assert.Less(t, r.Channels.PhaseDispersion[2], 0.2)

	assert.Equal(t, 3, r.Summary.Count)
	assert.Zero(t, r.Summary.Flagged)
	assert.InDelta(t, DegToRad(DefaultDispersionThresholdDeg), r.Summary.ThresholdRad, 1e-15)
	assert.False(t, r.MergedAt.IsZero())
}

func TestMergeBatch_UniqueIndexTables(t *testing.T) {
	b := testBatch()
	b.Groups = nil
	// runs start at samples 1, 3 and 4 (1-based); 6 closes the last run
	b.UniqueInd = []int{1, 3, 4, 6}
	b.MultiInd = []int{1, 2, 3, 4}

	viaTables, err := MergeBatch(context.Background(), b, MergeOptions{})
	require.NoError(t, err)

	direct, err := MergeBatch(context.Background(), testBatch(), MergeOptions{})
	require.NoError(t, err)

	assert.Equal(t, direct.Channels, viaTables.Channels)
}

func TestMergeBatch_Errors(t *testing.T) {
	tests := []struct {
		name         string
		mutate       func(b *Batch)
		invalidGroup bool
	}{
		{"column mismatch", func(b *Batch) { b.Imag = b.Imag[:2] }, false},
		{"no groups", func(b *Batch) { b.Groups = nil }, false},
		{"grid index mismatch", func(b *Batch) { b.GridIndex = []int{0} }, false},
		{"empty group", func(b *Batch) { b.Groups[1] = [2]int{2, 2} }, true},
		{"group out of bounds", func(b *Batch) { b.Groups[2] = [2]int{3, 9} }, true},
		{"short dims", func(b *Batch) { b.Dims = []int{2, 2} }, false},
		{"dims above max", func(b *Batch) { b.Dims = []int{MaxGridDim + 1, 2, 1} }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := testBatch()
			tt.mutate(b)
			r, err := MergeBatch(context.Background(), b, MergeOptions{})
			require.Error(t, err)
			assert.Nil(t, r)
			assert.Contains(t, err.Error(), `"b-1"`)
			assert.Equal(t, tt.invalidGroup, errors.Is(err, ErrInvalidGroup))
		})
	}

	_, err := MergeBatch(context.Background(), nil, MergeOptions{})
	assert.Error(t, err)

	b := testBatch()
	b.Dims = []int{math.MaxInt, math.MaxInt, 1}
	_, err = MergeBatch(context.Background(), b, MergeOptions{})
	assert.ErrorIs(t, err, ErrInvalidDims)
}

func TestMergeOptions(t *testing.T) {
	assert.InDelta(t, DegToRad(15), MergeOptions{}.ThresholdRad(), 1e-15)
	assert.InDelta(t, DegToRad(30), MergeOptions{DispersionThresholdDeg: 30}.ThresholdRad(), 1e-15)

	cfg := &Config{Merge: MergeConfig{Workers: 3, ChunkSize: 64, DispersionThresholdDeg: 10}}
	assert.Equal(t, MergeOptions{Workers: 3, ChunkSize: 64, DispersionThresholdDeg: 10}, MergeOptionsFromConfig(cfg))
	assert.Equal(t, MergeOptions{}, MergeOptionsFromConfig(nil))
}

func TestEncodeResult(t *testing.T) {
	r, err := MergeBatch(context.Background(), testBatch(), MergeOptions{})
	require.NoError(t, err)

	data, err := EncodeResult(r)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "b-1", decoded["batchId"])
	assert.Contains(t, decoded, "channels")
	assert.Contains(t, decoded, "summary")
}
