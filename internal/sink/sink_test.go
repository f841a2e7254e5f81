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

package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/corpusrunner/internal/fly"
	"github.com/cardinalhq/corpusrunner/internal/helpers"
	"github.com/cardinalhq/corpusrunner/internal/storage"
	"github.com/cardinalhq/corpusrunner/pipeline"
)

type sliceSource struct {
	docs []*pipeline.Document
	err  error
}

func (s *sliceSource) Next(context.Context) (*pipeline.Document, error) {
	if len(s.docs) == 0 {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	d := s.docs[0]
	s.docs = s.docs[1:]
	return d, nil
}

type fakeProducer struct {
	sent    map[string][]fly.Message
	batches int
	closed  int
	fail    error
}

func newFakeProducer() *fakeProducer {
	return &fakeProducer{sent: map[string][]fly.Message{}}
}

func (p *fakeProducer) BatchSend(_ context.Context, topic string, msgs []fly.Message) error {
	if p.fail != nil {
		return p.fail
	}
	p.batches++
	p.sent[topic] = append(p.sent[topic], msgs...)
	return nil
}

func (p *fakeProducer) Close() error {
	p.closed++
	return nil
}

func docs(n int) []*pipeline.Document {
	out := make([]*pipeline.Document, n)
	for i := range out {
		out[i] = &pipeline.Document{
			Text:     "text " + pipeline.ShardLocalID(0, int64(i)),
			ID:       pipeline.ShardLocalID(0, int64(i)),
			Metadata: map[string]any{pipeline.MetadataDataset: "wiki"},
		}
	}
	return out
}

func readJSONL(t *testing.T, path string, c helpers.Compression) []pipeline.Document {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	r, err := helpers.NewDecompressingReader(f, c)
	require.NoError(t, err)
	defer r.Close()

	var out []pipeline.Document
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		var d pipeline.Document
		require.NoError(t, json.Unmarshal(sc.Bytes(), &d))
		out = append(out, d)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestJSONLName(t *testing.T) {
	assert.Equal(t, "00003.jsonl.gz", JSONLName(3, helpers.CompressionGzip))
	assert.Equal(t, "00012.jsonl.zst", JSONLName(12, helpers.CompressionZstd))
	assert.Equal(t, "00000.jsonl", JSONLName(0, helpers.CompressionNone))
}

func TestJSONLSink_Drain(t *testing.T) {
	for _, c := range []helpers.Compression{helpers.CompressionNone, helpers.CompressionGzip, helpers.CompressionZstd} {
		t.Run(c.String(), func(t *testing.T) {
			dir := t.TempDir()
			ctx := context.Background()
			s, err := NewJSONLSink(ctx, storage.NewLocalFolder(dir), JSONLName(1, c), c)
			require.NoError(t, err)

			n, err := Drain(ctx, &sliceSource{docs: docs(5)}, s)
			require.NoError(t, err)
			assert.Equal(t, int64(5), n)
			assert.Equal(t, int64(5), s.Count())

			got := readJSONL(t, filepath.Join(dir, JSONLName(1, c)), c)
			require.Len(t, got, 5)
			assert.Equal(t, "00000/0", got[0].ID)
			assert.Equal(t, "text 00000/4", got[4].Text)
			assert.Equal(t, "wiki", got[2].Dataset())
		})
	}
}

func TestJSONLSink_AbortOnSourceError(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	s, err := NewJSONLSink(ctx, storage.NewLocalFolder(dir), "out.jsonl", helpers.CompressionNone)
	require.NoError(t, err)

	boom := errors.New("boom")
	n, err := Drain(ctx, &sliceSource{docs: docs(2), err: boom}, s)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, int64(2), n)

	_, statErr := os.Stat(filepath.Join(dir, "out.jsonl"))
	assert.True(t, os.IsNotExist(statErr))

	assert.ErrorIs(t, s.Write(ctx, docs(1)[0]), errSinkClosed)
}

func TestDocumentMessage(t *testing.T) {
	doc := &pipeline.Document{
		Text:     "hello",
		ID:       "00002/9",
		Metadata: map[string]any{pipeline.MetadataDataset: "books"},
	}
	msg, err := DocumentMessage(doc, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte("00002/9"), msg.Key)
	assert.Equal(t, map[string]string{HeaderRank: "2", HeaderDataset: "books"}, msg.Headers)

	var decoded pipeline.Document
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, *doc, decoded)

	msg, err = DocumentMessage(&pipeline.Document{Text: "x", ID: "a"}, 0)
	require.NoError(t, err)
	assert.NotContains(t, msg.Headers, HeaderDataset)
}

func TestKafkaSink_Batches(t *testing.T) {
	p := newFakeProducer()
	s := NewKafkaSink(p, "docs", 0, 2)

	n, err := Drain(context.Background(), &sliceSource{docs: docs(5)}, s)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	require.Len(t, p.sent["docs"], 5)
	assert.Equal(t, 3, p.batches)
	assert.Equal(t, 1, p.closed)
	assert.Equal(t, []byte("00000/3"), p.sent["docs"][3].Key)

	require.NoError(t, s.Close())
	assert.Equal(t, 1, p.closed)
}

func TestKafkaSink_SendFailure(t *testing.T) {
	p := newFakeProducer()
	p.fail = errors.New("broker down")
	s := NewKafkaSink(p, "docs", 0, 1)

	_, err := Drain(context.Background(), &sliceSource{docs: docs(3)}, s)
	require.ErrorIs(t, err, p.fail)
	assert.Equal(t, 1, p.closed)
}

func TestKafkaSink_AbortDropsPending(t *testing.T) {
	p := newFakeProducer()
	s := NewKafkaSink(p, "docs", 0, 10)
	require.NoError(t, s.Write(context.Background(), docs(1)[0]))
	require.NoError(t, s.Abort())
	assert.Empty(t, p.sent)
	assert.Equal(t, 1, p.closed)
}

func TestDiscard(t *testing.T) {
	n, err := Drain(context.Background(), &sliceSource{docs: docs(4)}, Discard{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}
