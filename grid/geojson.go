package grid

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// CellToFeature converts one slice cell into a GeoJSON Point feature whose
// coordinates are the in-plane voxel coordinates.
func CellToFeature(c Cell, thresholdRad float64) *geojson.Feature {
	f := geojson.NewFeature(orb.Point{float64(c.U), float64(c.V)})
	f.ID = c.Index
	f.Properties["magnitude"] = c.Point.Magnitude
	f.Properties["real"] = c.Point.Real
	f.Properties["imag"] = c.Point.Imag
	f.Properties["phase"] = math.Atan2(c.Point.Imag, c.Point.Real)
	f.Properties["weightedConfidence"] = c.Point.WeightedConfidence
	f.Properties["weightedDistance"] = c.Point.WeightedDistance
	f.Properties["phaseDispersion"] = c.Point.PhaseDispersion
	f.Properties["flagged"] = thresholdRad > 0 && c.Point.PhaseDispersion > thresholdRad
	return f
}

// SliceToFeatureCollection exports every cell of a slice as a GeoJSON feature
func SliceToFeatureCollection(s *Slice, thresholdRad float64) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, c := range s.Cells {
		fc.Append(CellToFeature(c, thresholdRad))
	}
	return fc
}

// SliceBound returns the bounding box of the occupied cells
func SliceBound(s *Slice) orb.Bound {
	mp := make(orb.MultiPoint, 0, len(s.Cells))
	for _, c := range s.Cells {
		mp = append(mp, orb.Point{float64(c.U), float64(c.V)})
	}
	return mp.Bound()
}
