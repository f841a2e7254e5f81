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
	"fmt"
)

// ErrInvalidShard is returned for a rank outside [0, worldSize) or a
// world size below one.
var ErrInvalidShard = errors.New("invalid shard")

// ValidateShard checks rank and worldSize without touching any data.
func ValidateShard(worldSize, rank int) error {
	if worldSize < 1 {
		return fmt.Errorf("world size %d: %w", worldSize, ErrInvalidShard)
	}
	if rank < 0 || rank >= worldSize {
		return fmt.Errorf("rank %d of world size %d: %w", rank, worldSize, ErrInvalidShard)
	}
	return nil
}

// ShardBounds returns the half-open row range [start, end) owned by rank.
// The first total%worldSize ranks get one extra row, so shards differ in
// size by at most one and concatenating them in rank order gives back every
// row exactly once.
func ShardBounds(total int64, worldSize, rank int) (start, end int64, err error) {
	if err := ValidateShard(worldSize, rank); err != nil {
		return 0, 0, err
	}
	if total < 0 {
		return 0, 0, fmt.Errorf("negative row count %d", total)
	}
	w, r := int64(worldSize), int64(rank)
	div, mod := total/w, total%w
	start = div*r + min(r, mod)
	end = start + div
	if r < mod {
		end++
	}
	return start, end, nil
}

// Shard is one rank's contiguous slice of a dataset.
type Shard struct {
	Rank      int
	WorldSize int
	Start     int64
	End       int64

	ds *Dataset
}

// Shard returns the rows owned by rank out of worldSize.
func (d *Dataset) Shard(worldSize, rank int) (*Shard, error) {
	start, end, err := ShardBounds(d.total, worldSize, rank)
	if err != nil {
		return nil, err
	}
	return &Shard{
		Rank:      rank,
		WorldSize: worldSize,
		Start:     start,
		End:       end,
		ds:        d,
	}, nil
}

// Len is the number of rows in the shard.
func (s *Shard) Len() int64 {
	return s.End - s.Start
}

// Dataset returns the dataset the shard was cut from.
func (s *Shard) Dataset() *Dataset {
	return s.ds
}
