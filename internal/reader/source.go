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

package reader

import (
	"context"

	"github.com/cardinalhq/corpusrunner/internal/dataset"
)

// Batches yields consecutive column batches of one shard, ending with io.EOF.
type Batches interface {
	Next(ctx context.Context) (*dataset.ColumnBatch, error)
	Close() error
}

// Source is the dataset a reader shards.
type Source interface {
	// Name identifies the dataset in document metadata.
	Name() string
	// ShardBatches opens the batches of rank's contiguous shard.
	ShardBatches(worldSize, rank, batchSize int) (Batches, error)
}

// DatasetSource serves a loaded dataset to a reader.
func DatasetSource(ds *dataset.Dataset) Source {
	return datasetSource{ds: ds}
}

type datasetSource struct {
	ds *dataset.Dataset
}

func (s datasetSource) Name() string {
	return s.ds.ID
}

func (s datasetSource) ShardBatches(worldSize, rank, batchSize int) (Batches, error) {
	shard, err := s.ds.Shard(worldSize, rank)
	if err != nil {
		return nil, err
	}
	return shard.Batches(batchSize), nil
}
