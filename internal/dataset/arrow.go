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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/cardinalhq/corpusrunner/internal/storage"
)

var arrowFileMagic = []byte("ARROW1")

// recordSource walks the record batches of an arrow IPC file. Records stay
// valid until the next call to next.
type recordSource interface {
	next() (arrow.Record, error)
	Close() error
}

// streamSource reads the IPC streaming format, which is what dataset cache
// files use.
type streamSource struct {
	r *ipc.Reader
}

func (s *streamSource) next() (arrow.Record, error) {
	if s.r.Next() {
		return s.r.Record(), nil
	}
	if err := s.r.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return nil, io.EOF
}

func (s *streamSource) Close() error {
	s.r.Release()
	return nil
}

// fileSource reads the IPC random access file format.
type fileSource struct {
	r *ipc.FileReader
	i int
}

func (s *fileSource) next() (arrow.Record, error) {
	if s.i >= s.r.NumRecords() {
		return nil, io.EOF
	}
	rec, err := s.r.Record(s.i)
	if err != nil {
		return nil, err
	}
	s.i++
	return rec, nil
}

func (s *fileSource) Close() error {
	return s.r.Close()
}

type arrowHandle struct {
	lf  *storage.LocalFile
	fh  *os.File
	src recordSource
}

func (h *arrowHandle) Close() error {
	return errors.Join(h.src.Close(), h.fh.Close(), h.lf.Close())
}

func openArrowFile(ctx context.Context, folder storage.Folder, name string) (*arrowHandle, error) {
	lf, err := folder.Fetch(ctx, name)
	if err != nil {
		return nil, err
	}
	fh, err := os.Open(lf.Path)
	if err != nil {
		_ = lf.Close()
		return nil, err
	}

	head := make([]byte, len(arrowFileMagic))
	n, _ := io.ReadFull(fh, head)
	if _, err := fh.Seek(0, io.SeekStart); err != nil {
		_ = fh.Close()
		_ = lf.Close()
		return nil, err
	}

	var src recordSource
	if n == len(head) && bytes.Equal(head, arrowFileMagic) {
		fr, ferr := ipc.NewFileReader(fh, ipc.WithAllocator(memory.DefaultAllocator))
		if ferr != nil {
			err = fmt.Errorf("failed to open arrow file: %w", ferr)
		} else {
			src = &fileSource{r: fr}
		}
	} else {
		sr, serr := ipc.NewReader(fh, ipc.WithAllocator(memory.DefaultAllocator))
		if serr != nil {
			err = fmt.Errorf("failed to open arrow stream: %w", serr)
		} else {
			src = &streamSource{r: sr}
		}
	}
	if err != nil {
		_ = fh.Close()
		_ = lf.Close()
		return nil, err
	}
	return &arrowHandle{lf: lf, fh: fh, src: src}, nil
}

func countArrowRows(ctx context.Context, folder storage.Folder, name string) (int64, error) {
	h, err := openArrowFile(ctx, folder, name)
	if err != nil {
		return 0, err
	}
	var total int64
	for {
		rec, err := h.src.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			_ = h.Close()
			return 0, err
		}
		total += rec.NumRows()
	}
	return total, h.Close()
}

// arrowReader converts record batches into rows.
type arrowReader struct {
	h   *arrowHandle
	rec arrow.Record
	row int
}

func openArrow(ctx context.Context, folder storage.Folder, name string, skip int64) (rowReader, error) {
	h, err := openArrowFile(ctx, folder, name)
	if err != nil {
		return nil, err
	}
	r := &arrowReader{h: h}
	for skip > 0 {
		rec, err := h.src.next()
		if err != nil {
			_ = h.Close()
			if err == io.EOF {
				return nil, fmt.Errorf("cannot skip past the end of %s", name)
			}
			return nil, err
		}
		if rec.NumRows() > skip {
			r.rec, r.row = rec, int(skip)
			break
		}
		skip -= rec.NumRows()
	}
	return r, nil
}

func (r *arrowReader) read(ctx context.Context, max int, b *batchBuilder) (int, error) {
	n := 0
	for n < max {
		if r.rec == nil || int64(r.row) >= r.rec.NumRows() {
			rec, err := r.h.src.next()
			if err != nil {
				return n, err
			}
			r.rec, r.row = rec, 0
			continue
		}
		fields := r.rec.Schema().Fields()
		row := make(map[string]any, len(fields))
		for j, f := range fields {
			col := r.rec.Column(j)
			if col.IsNull(r.row) {
				continue
			}
			if v := convertArrowValue(col, r.row); v != nil {
				row[f.Name] = v
			}
		}
		b.add(row)
		r.row++
		n++
	}
	return n, nil
}

func (r *arrowReader) Close() error {
	return r.h.Close()
}

// convertArrowValue converts the value at index i to a plain Go value that
// does not reference arrow buffers.
func convertArrowValue(col arrow.Array, i int) any {
	switch c := col.(type) {
	case *array.Boolean:
		return c.Value(i)
	case *array.Int8:
		return int64(c.Value(i))
	case *array.Int16:
		return int64(c.Value(i))
	case *array.Int32:
		return int64(c.Value(i))
	case *array.Int64:
		return c.Value(i)
	case *array.Uint8:
		return uint64(c.Value(i))
	case *array.Uint16:
		return uint64(c.Value(i))
	case *array.Uint32:
		return uint64(c.Value(i))
	case *array.Uint64:
		return c.Value(i)
	case *array.Float32:
		return float64(c.Value(i))
	case *array.Float64:
		return c.Value(i)
	case *array.String:
		return strings.Clone(c.Value(i))
	case *array.LargeString:
		return strings.Clone(c.Value(i))
	case *array.Binary:
		return bytes.Clone(c.Value(i))
	case *array.LargeBinary:
		return bytes.Clone(c.Value(i))
	case *array.List:
		return convertListValue(c, i)
	case *array.LargeList:
		start, end := c.ValueOffsets(i)
		return convertRange(c.ListValues(), start, end)
	case *array.Struct:
		return convertStructValue(c, i)
	default:
		return c.ValueStr(i)
	}
}

func convertListValue(arr *array.List, i int) any {
	start, end := arr.ValueOffsets(i)
	return convertRange(arr.ListValues(), start, end)
}

func convertRange(values arrow.Array, start, end int64) []any {
	result := make([]any, 0, end-start)
	for j := start; j < end; j++ {
		if values.IsNull(int(j)) {
			result = append(result, nil)
			continue
		}
		result = append(result, convertArrowValue(values, int(j)))
	}
	return result
}

func convertStructValue(arr *array.Struct, i int) any {
	dt := arr.DataType().(*arrow.StructType)
	result := make(map[string]any, len(dt.Fields()))
	for j, field := range dt.Fields() {
		col := arr.Field(j)
		if !col.IsNull(i) {
			result[field.Name] = convertArrowValue(col, i)
		}
	}
	return result
}
