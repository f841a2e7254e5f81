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

// Package pipeline holds the row and document types shared by the reader
// stage and its sinks.
package pipeline

import "github.com/cardinalhq/corpusrunner/pipeline/wkk"

// Row represents a single raw dataset record as a map of RowKey to any value.
type Row map[wkk.RowKey]any

// FromStringMap converts a string keyed map into a Row.
func FromStringMap(m map[string]any) Row {
	row := make(Row, len(m))
	for k, v := range m {
		row[wkk.NewRowKey(k)] = v
	}
	return row
}

// GetString retrieves a string value from the Row.
// Returns empty string if the key is not found or the value is not a string.
func (r Row) GetString(key wkk.RowKey) string {
	if val, ok := r[key]; ok {
		switch v := val.(type) {
		case string:
			return v
		case []byte:
			return string(v)
		}
	}
	return ""
}

// GetInt64 retrieves an int64 value from the Row.
// Returns the value and true if found and convertible, or 0 and false otherwise.
func (r Row) GetInt64(key wkk.RowKey) (int64, bool) {
	if val, ok := r[key]; ok {
		return toInt64(val)
	}
	return 0, false
}

func toInt64(val any) (int64, bool) {
	switch v := val.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return int64(v), true
	case float64:
		return int64(v), true
	case float32:
		return int64(v), true
	}
	return 0, false
}
