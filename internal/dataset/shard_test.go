// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package dataset

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShardBounds(t *testing.T) {
	tests := []struct {
		name       string
		total      int64
		worldSize  int
		rank       int
		start, end int64
	}{
		{"single worker", 10, 1, 0, 0, 10},
		{"even split first", 10, 2, 0, 0, 5},
		{"even split second", 10, 2, 1, 5, 10},
		{"remainder goes to low ranks", 10, 3, 0, 0, 4},
		{"remainder second", 10, 3, 1, 4, 7},
		{"remainder third", 10, 3, 2, 7, 10},
		{"more workers than rows", 2, 4, 3, 2, 2},
		{"empty dataset", 0, 3, 1, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := ShardBounds(tt.total, tt.worldSize, tt.rank)
			require.NoError(t, err)
			assert.Equal(t, tt.start, start)
			assert.Equal(t, tt.end, end)
		})
	}
}

func TestShardBounds_Invalid(t *testing.T) {
	for _, tc := range []struct{ worldSize, rank int }{
		{0, 0}, {-1, 0}, {2, 2}, {2, -1},
	} {
		_, _, err := ShardBounds(10, tc.worldSize, tc.rank)
		assert.True(t, errors.Is(err, ErrInvalidShard), "worldSize=%d rank=%d", tc.worldSize, tc.rank)
	}
}

func TestShardBounds_CoverEveryRowOnce(t *testing.T) {
	for total := int64(0); total <= 37; total++ {
		for worldSize := 1; worldSize <= 9; worldSize++ {
			next := int64(0)
			for rank := range worldSize {
				start, end, err := ShardBounds(total, worldSize, rank)
				require.NoError(t, err)
				require.Equal(t, next, start, "total=%d worldSize=%d rank=%d", total, worldSize, rank)
				require.LessOrEqual(t, start, end)
				size := end - start
				assert.True(t, size == total/int64(worldSize) || size == total/int64(worldSize)+1)
				next = end
			}
			assert.Equal(t, total, next)
		}
	}
}

func TestDatasetShard(t *testing.T) {
	ds := &Dataset{ID: "x", total: 7}
	s, err := ds.Shard(3, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), s.Start)
	assert.Equal(t, int64(7), s.End)
	assert.Equal(t, int64(2), s.Len())
	assert.Same(t, ds, s.Dataset())

	_, err = ds.Shard(3, 3)
	assert.ErrorIs(t, err, ErrInvalidShard)
}
