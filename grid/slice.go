package grid

import (
	"fmt"
	"math"
)

// MaxGridDim bounds each extent of a reconstruction grid.
const MaxGridDim = 4096

// Axis selects the normal of a slice plane
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	default:
		return "z"
	}
}

// Cell is one merged grid point placed on a slice plane.
// U and V are the in-plane voxel coordinates.
type Cell struct {
	U, V  int
	Index int // position of the point in the merge result
	Point MergedGridPoint
}

// Slice is the set of merged points lying on one plane of the grid
type Slice struct {
	Axis   Axis
	K      int
	Width  int // extent along U
	Height int // extent along V
	Cells  []Cell
}

// Valid reports whether a is one of AxisX, AxisY or AxisZ.
func (a Axis) Valid() bool {
	return a >= AxisX && a <= AxisZ
}

// ValidateDims checks that dims holds three extents in [1, MaxGridDim] and
// returns the voxel count.
func ValidateDims(dims []int) (int, error) {
	if len(dims) != 3 {
		return 0, fmt.Errorf("%w: want 3 extents, got %d", ErrInvalidDims, len(dims))
	}
	total := 1
	for i, d := range dims {
		if d < 1 || d > MaxGridDim {
			return 0, fmt.Errorf("%w: dims[%d] = %d outside [1,%d]", ErrInvalidDims, i, d, MaxGridDim)
		}
		if total > math.MaxInt/d {
			return 0, fmt.Errorf("%w: voxel count overflows", ErrInvalidDims)
		}
		total *= d
	}
	return total, nil
}

// Voxel converts a 0-based column-major linear index into x, y, z.
func Voxel(index int, dims []int) (x, y, z int) {
	nx, ny := dims[0], dims[1]
	x = index % nx
	y = (index / nx) % ny
	z = index / (nx * ny)
	return x, y, z
}

// ExtractSlice collects the merged points of r that lie on plane k of axis.
func ExtractSlice(r *MergeResult, axis Axis, k int) (*Slice, error) {
	if r == nil {
		return nil, fmt.Errorf("extract slice: nil result")
	}
	if !axis.Valid() {
		return nil, fmt.Errorf("extract slice: unknown axis %d", int(axis))
	}
	total, err := ValidateDims(r.Dims)
	if err != nil {
		return nil, fmt.Errorf("extract slice: result %q: %w", r.BatchID, err)
	}
	if len(r.GridIndex) != r.Channels.Len() {
		return nil, fmt.Errorf("extract slice: result %q has %d grid indices for %d points",
			r.BatchID, len(r.GridIndex), r.Channels.Len())
	}
	if k < 0 || k >= r.Dims[axis] {
		return nil, fmt.Errorf("extract slice: plane %d outside [0,%d) on axis %s", k, r.Dims[axis], axis)
	}

	s := &Slice{Axis: axis, K: k}
	switch axis {
	case AxisX:
		s.Width, s.Height = r.Dims[1], r.Dims[2]
	case AxisY:
		s.Width, s.Height = r.Dims[0], r.Dims[2]
	default:
		s.Width, s.Height = r.Dims[0], r.Dims[1]
	}

	points := r.Points()
	for i, idx := range r.GridIndex {
		if idx < 0 || idx >= total {
			return nil, fmt.Errorf("extract slice: grid index %d outside grid of %d voxels", idx, total)
		}
		x, y, z := Voxel(idx, r.Dims)
		var u, v, w int
		switch axis {
		case AxisX:
			u, v, w = y, z, x
		case AxisY:
			u, v, w = x, z, y
		default:
			u, v, w = x, y, z
		}
		if w != k {
			continue
		}
		s.Cells = append(s.Cells, Cell{U: u, V: v, Index: i, Point: points[i]})
	}
	return s, nil
}

// MaxDispersion returns the largest phase dispersion among the slice cells
func (s *Slice) MaxDispersion() float64 {
	var m float64
	for _, c := range s.Cells {
		if c.Point.PhaseDispersion > m {
			m = c.Point.PhaseDispersion
		}
	}
	return m
}
