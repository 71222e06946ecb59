package grid

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupsFromUniqueIndex(t *testing.T) {
	// Runs start at samples 1, 3, 4 and 7 (1-based); the last entry closes
	// the final run. multiInd picks runs 1, 3 and 2 and ends with a terminator.
	uniqueInd := []int{1, 3, 4, 7, 9}
	multiInd := []int{1, 3, 2, 4}

	ranges, err := GroupsFromUniqueIndex(multiInd, uniqueInd)
	require.NoError(t, err)

	want := []Range{
		{Start: 0, End: 2},
		{Start: 3, End: 6},
		{Start: 2, End: 3},
	}
	assert.Equal(t, want, ranges)
}

func TestGroupsFromUniqueIndex_TooShort(t *testing.T) {
	for _, multiInd := range [][]int{nil, {1}} {
		ranges, err := GroupsFromUniqueIndex(multiInd, []int{1, 3})
		require.NoError(t, err)
		assert.Empty(t, ranges)
	}
}

func TestGroupsFromUniqueIndex_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		multiInd  []int
		uniqueInd []int
		wantIndex int
	}{
		{"run zero", []int{0, 1}, []int{1, 3}, 0},
		{"run past table", []int{1, 2, 9}, []int{1, 3}, 1},
		{"descending boundaries", []int{1, 2, 3}, []int{1, 4, 2}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := GroupsFromUniqueIndex(tt.multiInd, tt.uniqueInd)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidGroup))

			var ge *GroupError
			require.True(t, errors.As(err, &ge))
			assert.Equal(t, tt.wantIndex, ge.Index)
		})
	}
}
