package grid

// GroupsFromUniqueIndex converts the 1-based lookup tables produced by the
// gridding pipeline into sample ranges.
//
// uniqueInd[k] is the 1-based position of the first raw sample of the k-th
// run of duplicates, and multiInd lists, per output grid point, the 1-based
// run whose samples it owns. The final multiInd entry is a terminator and
// yields no output, so len(multiInd)-1 ranges are returned. Output i covers
// samples [uniqueInd[m-1]-1, uniqueInd[m]-1) with m = multiInd[i].
func GroupsFromUniqueIndex(multiInd, uniqueInd []int) ([]Range, error) {
	if len(multiInd) < 2 {
		return []Range{}, nil
	}

	ranges := make([]Range, len(multiInd)-1)
	for i := range ranges {
		m := multiInd[i]
		if m < 1 || m >= len(uniqueInd) {
			return nil, &GroupError{
				Index: i,
				cause: invalidGroupf("run %d outside unique index table of %d entries", m, len(uniqueInd)),
			}
		}

		r := Range{Start: uniqueInd[m-1] - 1, End: uniqueInd[m] - 1}
		if r.End < r.Start {
			return nil, &GroupError{
				Index: i,
				Range: r,
				cause: invalidGroupf("end %d precedes start %d", r.End, r.Start),
			}
		}
		ranges[i] = r
	}
	return ranges, nil
}
