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
	"context"
	"fmt"

	"github.com/cardinalhq/corpusrunner/internal/helpers"
	"github.com/cardinalhq/corpusrunner/internal/storage"
)

type fileFormat int

const (
	formatParquet fileFormat = iota + 1
	formatArrow
	formatJSONLines
)

func (f fileFormat) String() string {
	switch f {
	case formatParquet:
		return "parquet"
	case formatArrow:
		return "arrow"
	case formatJSONLines:
		return "jsonl"
	}
	return "unknown"
}

// formatForName picks the reader for a file from its extension. Parquet and
// arrow files must be uncompressed since they are read with random access.
func formatForName(name string) (fileFormat, bool) {
	_, compression := helpers.SplitCompression(name)
	switch helpers.FileExtension(name) {
	case ".parquet":
		return formatParquet, compression == helpers.CompressionNone
	case ".arrow":
		return formatArrow, compression == helpers.CompressionNone
	case ".jsonl", ".ndjson", ".json":
		return formatJSONLines, true
	}
	return 0, false
}

func countRows(ctx context.Context, folder storage.Folder, f dataFile) (int64, error) {
	switch f.format {
	case formatParquet:
		return countParquetRows(ctx, folder, f.name)
	case formatArrow:
		return countArrowRows(ctx, folder, f.name)
	case formatJSONLines:
		return countJSONLines(ctx, folder, f.name, f.compression)
	}
	return 0, fmt.Errorf("unsupported format %s", f.format)
}

func openRowReader(ctx context.Context, folder storage.Folder, f dataFile, skip int64) (rowReader, error) {
	switch f.format {
	case formatParquet:
		return openParquet(ctx, folder, f.name, skip)
	case formatArrow:
		return openArrow(ctx, folder, f.name, skip)
	case formatJSONLines:
		return openJSONLines(ctx, folder, f.name, f.compression, skip)
	}
	return nil, fmt.Errorf("unsupported format %s", f.format)
}
