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
	"maps"

	"github.com/cardinalhq/corpusrunner/pipeline"
	"github.com/cardinalhq/corpusrunner/pipeline/wkk"
)

// Adapter turns one raw dataset row into a Document. Returning (nil, nil)
// drops the row on purpose; any error aborts the run.
//
// localIndex is the row's position within the shard, counted over every
// input row whether or not earlier rows were dropped. An adapter that leaves
// Document.ID empty gets the shard-local id for that index.
type Adapter interface {
	Adapt(row pipeline.Row, source string, localIndex int64) (*pipeline.Document, error)
}

// AdapterFunc lets an ordinary function serve as an Adapter.
type AdapterFunc func(row pipeline.Row, source string, localIndex int64) (*pipeline.Document, error)

func (f AdapterFunc) Adapt(row pipeline.Row, source string, localIndex int64) (*pipeline.Document, error) {
	return f(row, source, localIndex)
}

// DefaultAdapter takes the text from textKey and drops idKey, since ids are
// assigned per shard. A "metadata" map in the row is flattened into the
// document metadata and every other column is carried over as metadata.
// A row without text yields an empty document, which the stream drops.
func DefaultAdapter(textKey, idKey string) Adapter {
	textRK := wkk.NewRowKey(textKey)
	idRK := wkk.NewRowKey(idKey)
	return AdapterFunc(func(row pipeline.Row, _ string, _ int64) (*pipeline.Document, error) {
		text := row.GetString(textRK)
		if text == "" {
			return &pipeline.Document{}, nil
		}

		metadata := make(map[string]any, len(row))
		if nested, ok := row[wkk.RowKeyMetadata].(map[string]any); ok {
			maps.Copy(metadata, nested)
		}
		for k, v := range row {
			switch k {
			case textRK, idRK, wkk.RowKeyMetadata:
				continue
			}
			metadata[wkk.RowKeyValue(k)] = v
		}
		return &pipeline.Document{Text: text, Metadata: metadata}, nil
	})
}
