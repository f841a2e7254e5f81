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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/corpusrunner/internal/dataset"
	"github.com/cardinalhq/corpusrunner/internal/logctx"
	"github.com/cardinalhq/corpusrunner/internal/stats"
	"github.com/cardinalhq/corpusrunner/pipeline"
	"github.com/cardinalhq/corpusrunner/pipeline/wkk"
)

// fakeSource serves in-memory rows and counts how often batches are pulled.
type fakeSource struct {
	name   string
	rows   []map[string]any
	opened int
	pulls  int
	closed int
}

func newFakeSource(n int) *fakeSource {
	rows := make([]map[string]any, n)
	for i := range rows {
		rows[i] = map[string]any{"text": fmt.Sprintf("doc %d", i), "id": fmt.Sprintf("src-%d", i)}
	}
	return &fakeSource{name: "fake/corpus", rows: rows}
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) ShardBatches(worldSize, rank, batchSize int) (Batches, error) {
	start, end, err := dataset.ShardBounds(int64(len(f.rows)), worldSize, rank)
	if err != nil {
		return nil, err
	}
	f.opened++
	return &fakeBatches{src: f, rows: f.rows[start:end], size: batchSize}, nil
}

type fakeBatches struct {
	src  *fakeSource
	rows []map[string]any
	size int
}

func (b *fakeBatches) Next(context.Context) (*dataset.ColumnBatch, error) {
	if len(b.rows) == 0 {
		return nil, io.EOF
	}
	b.src.pulls++
	n := min(b.size, len(b.rows))
	batch := dataset.ColumnBatchFromRows(b.rows[:n])
	b.rows = b.rows[n:]
	return batch, nil
}

func (b *fakeBatches) Close() error {
	b.src.closed++
	return nil
}

func drain(t *testing.T, s *Stream) []*pipeline.Document {
	t.Helper()
	var docs []*pipeline.Document
	for {
		doc, err := s.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return docs
		}
		require.NoError(t, err)
		docs = append(docs, doc)
	}
}

func ids(docs []*pipeline.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}

func openStream(t *testing.T, src Source, opts Options, rank, worldSize int) *Stream {
	t.Helper()
	s, err := New(src, opts).Stream(context.Background(), nil, rank, worldSize)
	require.NoError(t, err)
	return s
}

func TestStream_ReadsWholeShard(t *testing.T) {
	src := newFakeSource(10)
	s := openStream(t, src, DefaultOptions(), 1, 3)

	docs := drain(t, s)
	assert.Equal(t, []string{"00001/0", "00001/1", "00001/2"}, ids(docs))
	assert.Equal(t, "doc 4", docs[0].Text)
	assert.Equal(t, "fake/corpus", docs[0].Dataset())
	assert.Equal(t, 1, src.closed)

	_, err := s.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
	require.NoError(t, s.Close())
	assert.Equal(t, 1, src.closed)
}

func TestStream_LimitPrecision(t *testing.T) {
	tests := []struct {
		name      string
		limit     int64
		batchSize int
		wantDocs  int
		wantPulls int
	}{
		{"limit inside first batch", 3, 4, 3, 1},
		{"limit on batch boundary", 4, 2, 4, 2},
		{"limit spanning batches", 5, 2, 5, 3},
		{"zero limit", 0, 3, 0, 0},
		{"limit above shard size", 50, 3, 10, 4},
		{"unbounded", -1, 3, 10, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newFakeSource(10)
			opts := DefaultOptions()
			opts.Limit = tt.limit
			opts.BatchSize = tt.batchSize

			docs := drain(t, openStream(t, src, opts, 0, 1))
			assert.Len(t, docs, tt.wantDocs)
			assert.Equal(t, tt.wantPulls, src.pulls)
		})
	}
}

func TestStream_IDsStableUnderFiltering(t *testing.T) {
	src := newFakeSource(6)
	opts := DefaultOptions()
	opts.Limit = 4
	base := DefaultAdapter(DefaultTextKey, DefaultIDKey)
	opts.Adapter = AdapterFunc(func(row pipeline.Row, source string, localIndex int64) (*pipeline.Document, error) {
		if localIndex == 3 {
			return nil, nil
		}
		return base.Adapt(row, source, localIndex)
	})

	docs := drain(t, openStream(t, src, opts, 0, 1))
	assert.Equal(t, []string{"00000/0", "00000/1", "00000/2", "00000/4"}, ids(docs))
	assert.Equal(t, "doc 4", docs[3].Text)
}

func TestStream_EmptyTextDropped(t *testing.T) {
	src := newFakeSource(3)
	src.rows[1]["text"] = ""

	docs := drain(t, openStream(t, src, DefaultOptions(), 0, 1))
	assert.Equal(t, []string{"00000/0", "00000/2"}, ids(docs))
}

func TestStream_EmptyTextWarnsOnlyForDefaultAdapter(t *testing.T) {
	custom := AdapterFunc(func(row pipeline.Row, source string, localIndex int64) (*pipeline.Document, error) {
		return &pipeline.Document{}, nil
	})
	tests := []struct {
		name     string
		adapter  Adapter
		wantWarn bool
	}{
		{"default adapter", nil, true},
		{"custom adapter", custom, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			ctx := logctx.WithLogger(context.Background(),
				slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})))

			src := newFakeSource(3)
			for _, row := range src.rows {
				row["text"] = ""
			}
			opts := DefaultOptions()
			opts.Adapter = tt.adapter
			s, err := New(src, opts).Stream(ctx, nil, 0, 1)
			require.NoError(t, err)

			assert.Empty(t, drain(t, s))
			assert.Equal(t, tt.wantWarn, bytes.Contains(buf.Bytes(), []byte("without text")))
		})
	}
}

func TestStream_Deterministic(t *testing.T) {
	read := func() []*pipeline.Document {
		return drain(t, openStream(t, newFakeSource(17), DefaultOptions(), 2, 4))
	}
	assert.Equal(t, read(), read())
}

func TestStream_ForwardsUpstreamFirst(t *testing.T) {
	upstream := openStream(t, newFakeSource(4), DefaultOptions(), 0, 2)
	src := newFakeSource(4)
	src.name = "second"

	s, err := New(src, DefaultOptions()).Stream(context.Background(), upstream, 1, 2)
	require.NoError(t, err)
	docs := drain(t, s)

	require.Len(t, docs, 4)
	assert.Equal(t, "fake/corpus", docs[0].Dataset())
	assert.Equal(t, "fake/corpus", docs[1].Dataset())
	assert.Equal(t, "second", docs[2].Dataset())
	assert.Equal(t, []string{"00000/0", "00000/1", "00001/0", "00001/1"}, ids(docs))
	assert.Equal(t, int64(2), s.Emitted())
}

func TestStream_AdapterErrorIsFatal(t *testing.T) {
	boom := errors.New("boom")
	opts := DefaultOptions()
	opts.Adapter = AdapterFunc(func(row pipeline.Row, source string, localIndex int64) (*pipeline.Document, error) {
		if localIndex == 2 {
			return nil, boom
		}
		return &pipeline.Document{Text: row.GetString(wkk.RowKeyText)}, nil
	})

	s := openStream(t, newFakeSource(5), opts, 3, 4)
	_, err := s.Next(context.Background())
	require.NoError(t, err, "rank 3 holds rows 4 only")

	s = openStream(t, newFakeSource(5), opts, 0, 1)
	var docs int
	for {
		_, err = s.Next(context.Background())
		if err != nil {
			break
		}
		docs++
	}
	assert.Equal(t, 0, docs, "documents of a failing batch are not emitted")
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "rank 0")
	assert.Contains(t, err.Error(), "row 2")
}

func TestStream_ErrorIsSticky(t *testing.T) {
	boom := errors.New("boom")
	opts := DefaultOptions()
	opts.BatchSize = 3
	opts.Adapter = AdapterFunc(func(row pipeline.Row, source string, localIndex int64) (*pipeline.Document, error) {
		if localIndex == 1 {
			return nil, boom
		}
		return &pipeline.Document{Text: row.GetString(wkk.RowKeyText)}, nil
	})

	src := newFakeSource(6)
	s := openStream(t, src, opts, 0, 1)
	for range 3 {
		doc, err := s.Next(context.Background())
		assert.Nil(t, doc)
		require.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "row 1")
	}
	assert.Equal(t, 1, src.pulls, "no batch is pulled after the failure")
	assert.Equal(t, 1, src.closed)
	assert.Zero(t, s.Stats().Counter(StatDocuments).Value)
	require.NoError(t, s.Close())
}

func TestStream_InvalidShard(t *testing.T) {
	src := newFakeSource(3)
	for _, tc := range []struct{ rank, worldSize int }{{0, 0}, {2, 2}, {-1, 1}} {
		_, err := New(src, DefaultOptions()).Stream(context.Background(), nil, tc.rank, tc.worldSize)
		assert.ErrorIs(t, err, ErrInvalidShard)
	}
	assert.Equal(t, 0, src.opened, "nothing is read for an invalid shard")
}

func TestStream_InvalidOptions(t *testing.T) {
	src := newFakeSource(3)

	opts := DefaultOptions()
	opts.BatchSize = 0
	_, err := New(src, opts).Stream(context.Background(), nil, 0, 1)
	assert.Error(t, err)

	opts = DefaultOptions()
	opts.Limit = -2
	_, err = New(src, opts).Stream(context.Background(), nil, 0, 1)
	assert.Error(t, err)
	assert.Equal(t, 0, src.opened)
}

func TestStream_Metadata(t *testing.T) {
	src := newFakeSource(2)
	src.rows[0]["lang"] = "en"
	src.rows[1]["metadata"] = map[string]any{"dataset": "override", "source": "crawl"}

	opts := DefaultOptions()
	opts.DefaultMetadata = map[string]any{"source": "default", "license": "cc-by"}

	docs := drain(t, openStream(t, src, opts, 0, 1))
	require.Len(t, docs, 2)

	assert.Equal(t, map[string]any{
		"dataset": "fake/corpus",
		"lang":    "en",
		"source":  "default",
		"license": "cc-by",
	}, docs[0].Metadata)
	assert.Equal(t, map[string]any{
		"dataset": "override",
		"source":  "crawl",
		"license": "cc-by",
	}, docs[1].Metadata)
}

func TestStream_Stats(t *testing.T) {
	src := newFakeSource(5)
	src.rows[0]["text"] = "abc"
	src.rows[1]["text"] = "abc"
	src.rows[2]["token_count"] = float64(7)

	opts := DefaultOptions()
	opts.BatchSize = 2
	progress := &countingProgress{}
	opts.Progress = progress

	s := openStream(t, src, opts, 0, 1)
	drain(t, s)
	st := s.Stats()

	assert.Equal(t, int64(5), st.Counter(StatDocuments).Value)
	assert.Equal(t, 5, progress.n)

	docLen := st.Distribution(StatDocLen)
	assert.Equal(t, int64(5), docLen.Count)
	assert.Equal(t, float64(3), docLen.Min)
	assert.Equal(t, float64(5), docLen.Max)

	tokens := st.Distribution(StatDocLenTokens)
	assert.Equal(t, int64(1), tokens.Count)
	assert.Equal(t, float64(7), tokens.Sum)

	assert.Equal(t, int64(3), st.Timer(StatBatch).Count)
	assert.Equal(t, uint64(4), st.Cardinality(StatUniqueTexts).Estimate())
}

func TestStream_SharedStats(t *testing.T) {
	shared := stats.New()
	opts := DefaultOptions()
	opts.Stats = shared

	drain(t, openStream(t, newFakeSource(3), opts, 0, 1))
	assert.Equal(t, int64(3), shared.Counter(StatDocuments).Value)
}

type countingProgress struct{ n int }

func (p *countingProgress) Advance() { p.n++ }
