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
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/cardinalhq/corpusrunner/internal/storage"
)

// openParquetFile fetches name and opens it; the caller closes both.
func openParquetFile(ctx context.Context, folder storage.Folder, name string) (*storage.LocalFile, *os.File, *parquet.File, error) {
	lf, err := folder.Fetch(ctx, name)
	if err != nil {
		return nil, nil, nil, err
	}
	fh, err := os.Open(lf.Path)
	if err != nil {
		_ = lf.Close()
		return nil, nil, nil, err
	}
	pf, err := parquet.OpenFile(fh, lf.Size)
	if err != nil {
		_ = fh.Close()
		_ = lf.Close()
		return nil, nil, nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	return lf, fh, pf, nil
}

func countParquetRows(ctx context.Context, folder storage.Folder, name string) (int64, error) {
	lf, fh, pf, err := openParquetFile(ctx, folder, name)
	if err != nil {
		return 0, err
	}
	n := pf.NumRows()
	return n, errors.Join(fh.Close(), lf.Close())
}

// parquetReader reads rows of a parquet file as generic maps.
type parquetReader struct {
	lf  *storage.LocalFile
	fh  *os.File
	pfr *parquet.GenericReader[map[string]any]
}

func openParquet(ctx context.Context, folder storage.Folder, name string, skip int64) (rowReader, error) {
	lf, fh, pf, err := openParquetFile(ctx, folder, name)
	if err != nil {
		return nil, err
	}
	r := &parquetReader{
		lf:  lf,
		fh:  fh,
		pfr: parquet.NewGenericReader[map[string]any](pf, pf.Schema()),
	}
	if skip > 0 {
		if err := r.pfr.SeekToRow(skip); err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("seek to row %d: %w", skip, err)
		}
	}
	return r, nil
}

func (r *parquetReader) read(ctx context.Context, max int, b *batchBuilder) (int, error) {
	buf := make([]map[string]any, max)
	for i := range buf {
		buf[i] = make(map[string]any)
	}
	n, err := r.pfr.Read(buf)
	for i := range n {
		b.add(buf[i])
	}
	if err != nil && err != io.EOF {
		return n, fmt.Errorf("parquet reader error: %w", err)
	}
	return n, err
}

func (r *parquetReader) Close() error {
	return errors.Join(r.pfr.Close(), r.fh.Close(), r.lf.Close())
}
