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
	"io"

	mapset "github.com/deckarep/golang-set/v2"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/corpusrunner/pipeline"
	"github.com/cardinalhq/corpusrunner/pipeline/wkk"
)

// ColumnBatch is a run of consecutive rows stored column by column.
// Values[c][i] is column Columns[c] of row i. A nil value means the column
// is absent from that row.
type ColumnBatch struct {
	Columns []string
	Values  [][]any
	rows    int
}

// NewColumnBatch builds a batch from parallel column slices, which must all
// hold the same number of values.
func NewColumnBatch(columns []string, values [][]any) (*ColumnBatch, error) {
	if len(columns) != len(values) {
		return nil, fmt.Errorf("%d column names for %d columns", len(columns), len(values))
	}
	rows := 0
	for c := range values {
		if c == 0 {
			rows = len(values[c])
		} else if len(values[c]) != rows {
			return nil, fmt.Errorf("column %q has %d values, want %d", columns[c], len(values[c]), rows)
		}
	}
	return &ColumnBatch{Columns: columns, Values: values, rows: rows}, nil
}

// ColumnBatchFromRows builds a batch holding rows in order.
func ColumnBatchFromRows(rows []map[string]any) *ColumnBatch {
	b := newBatchBuilder(nil)
	for _, row := range rows {
		b.add(row)
	}
	return b.build()
}

// Len is the number of rows in the batch.
func (b *ColumnBatch) Len() int {
	return b.rows
}

// Rows transposes the batch into one row per index, in order.
func (b *ColumnBatch) Rows() []pipeline.Row {
	keys := make([]wkk.RowKey, len(b.Columns))
	for c, name := range b.Columns {
		keys[c] = wkk.NewRowKey(name)
	}
	rows := make([]pipeline.Row, b.rows)
	for i := range b.rows {
		row := make(pipeline.Row, len(keys))
		for c, key := range keys {
			if v := b.Values[c][i]; v != nil {
				row[key] = v
			}
		}
		rows[i] = row
	}
	return rows
}

// batchBuilder collects rows into a ColumnBatch, adding columns as they
// first appear and back-filling earlier rows with nil.
type batchBuilder struct {
	columns mapset.Set[string]
	index   map[string]int
	batch   *ColumnBatch
}

func newBatchBuilder(columns mapset.Set[string]) *batchBuilder {
	return &batchBuilder{
		columns: columns,
		index:   make(map[string]int),
		batch:   &ColumnBatch{},
	}
}

func (b *batchBuilder) add(row map[string]any) {
	n := b.batch.rows
	for k, v := range row {
		if b.columns != nil && !b.columns.Contains(k) {
			continue
		}
		c, ok := b.index[k]
		if !ok {
			c = len(b.batch.Columns)
			b.index[k] = c
			b.batch.Columns = append(b.batch.Columns, k)
			b.batch.Values = append(b.batch.Values, make([]any, n, n+1))
		}
		b.batch.Values[c] = append(b.batch.Values[c], v)
	}
	b.batch.rows++
	for c := range b.batch.Values {
		if len(b.batch.Values[c]) < b.batch.rows {
			b.batch.Values[c] = append(b.batch.Values[c], nil)
		}
	}
}

func (b *batchBuilder) len() int {
	return b.batch.rows
}

func (b *batchBuilder) build() *ColumnBatch {
	out := b.batch
	b.batch = &ColumnBatch{}
	b.index = make(map[string]int)
	return out
}

// rowReader yields rows of one data file from a starting position.
type rowReader interface {
	// read adds up to max rows to b and returns how many it added. It
	// returns io.EOF once the file has no rows left.
	read(ctx context.Context, max int, b *batchBuilder) (int, error)
	Close() error
}

// BatchIterator walks a shard's rows in order, crossing file boundaries.
type BatchIterator struct {
	shard     *Shard
	batchSize int
	pos       int64
	fileIdx   int
	cur       rowReader
	curEnd    int64
	closed    bool
}

// Batches returns an iterator yielding batches of at most batchSize rows.
// A batchSize below one is treated as one.
func (s *Shard) Batches(batchSize int) *BatchIterator {
	return &BatchIterator{
		shard:     s,
		batchSize: max(batchSize, 1),
		pos:       s.Start,
		fileIdx:   -1,
	}
}

// Next returns the next batch, or io.EOF once the shard is exhausted.
func (it *BatchIterator) Next(ctx context.Context) (*ColumnBatch, error) {
	if it.closed || it.pos >= it.shard.End {
		return nil, io.EOF
	}
	ds := it.shard.ds
	b := newBatchBuilder(ds.columns)

	for b.len() < it.batchSize && it.pos < it.shard.End {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if it.cur == nil {
			if err := it.openAt(ctx, it.pos); err != nil {
				return nil, err
			}
		}

		want := min(int64(it.batchSize-b.len()), it.shard.End-it.pos, it.curEnd-it.pos)
		n, err := it.cur.read(ctx, int(want), b)
		it.pos += int64(n)
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("read %s: %w", ds.files[it.fileIdx].name, err)
		}
		if it.pos >= it.curEnd {
			if cerr := it.closeCurrent(); cerr != nil {
				return nil, cerr
			}
			continue
		}
		if err == io.EOF || n == 0 {
			f := ds.files[it.fileIdx]
			return nil, fmt.Errorf("%s ended after %d of %d rows", f.name, it.pos-f.offset, f.rows)
		}
	}

	rowsReadCounter.Add(ctx, int64(b.len()), otelmetric.WithAttributes(
		attribute.String("dataset", ds.ID),
	))
	return b.build(), nil
}

// openAt opens the file holding global row pos, positioned on it.
func (it *BatchIterator) openAt(ctx context.Context, pos int64) error {
	ds := it.shard.ds
	for i := max(it.fileIdx, 0); i < len(ds.files); i++ {
		f := ds.files[i]
		if pos >= f.offset+f.rows {
			continue
		}
		r, err := openRowReader(ctx, ds.folder, f, pos-f.offset)
		if err != nil {
			return fmt.Errorf("open %s: %w", f.name, err)
		}
		it.fileIdx = i
		it.cur = r
		it.curEnd = f.offset + f.rows
		return nil
	}
	return fmt.Errorf("row %d is past the end of dataset %s", pos, ds.ID)
}

func (it *BatchIterator) closeCurrent() error {
	if it.cur == nil {
		return nil
	}
	err := it.cur.Close()
	it.cur = nil
	if err != nil {
		return fmt.Errorf("close %s: %w", it.shard.ds.files[it.fileIdx].name, err)
	}
	return nil
}

// Close releases the open file, if any.
func (it *BatchIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	return it.closeCurrent()
}
