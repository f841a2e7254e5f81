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

package pipeline

import "fmt"

// MetadataDataset is the metadata key naming the dataset a document came from.
const MetadataDataset = "dataset"

// MetadataTokenCount is the optional metadata key carrying a precomputed token count.
const MetadataTokenCount = "token_count"

// Document is the normalized record handed to downstream stages.
// A Document must not be modified once it has been emitted by a reader;
// ownership passes to whoever consumes it.
type Document struct {
	Text     string         `json:"text"`
	ID       string         `json:"id"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ShardLocalID formats the id assigned to the localIndex'th input record of a rank's shard.
func ShardLocalID(rank int, localIndex int64) string {
	return fmt.Sprintf("%05d/%d", rank, localIndex)
}

// Dataset returns the provenance recorded in the document metadata.
func (d *Document) Dataset() string {
	if d == nil || d.Metadata == nil {
		return ""
	}
	s, _ := d.Metadata[MetadataDataset].(string)
	return s
}

// TokenCount returns the token count from metadata when one was recorded.
func (d *Document) TokenCount() (int64, bool) {
	if d == nil || d.Metadata == nil {
		return 0, false
	}
	v, ok := d.Metadata[MetadataTokenCount]
	if !ok {
		return 0, false
	}
	return toInt64(v)
}
