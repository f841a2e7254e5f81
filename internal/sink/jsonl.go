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
	"fmt"
	"io"

	"github.com/cardinalhq/corpusrunner/internal/helpers"
	"github.com/cardinalhq/corpusrunner/internal/storage"
	"github.com/cardinalhq/corpusrunner/pipeline"
)

// JSONLName is the output file name used for a rank.
func JSONLName(rank int, c helpers.Compression) string {
	return fmt.Sprintf("%05d.jsonl%s", rank, c.Extension())
}

// JSONLSink writes one JSON document per line into a single file.
type JSONLSink struct {
	name   string
	out    storage.Writer
	zw     io.WriteCloser
	bw     *bufio.Writer
	enc    *json.Encoder
	count  int64
	closed bool
}

var _ DocumentSink = (*JSONLSink)(nil)

// NewJSONLSink creates name in folder and returns a sink writing to it.
func NewJSONLSink(ctx context.Context, folder storage.Folder, name string, c helpers.Compression) (*JSONLSink, error) {
	out, err := folder.Create(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", storage.JoinURL(folder.URL(), name), err)
	}
	zw, err := helpers.NewCompressingWriter(out, c)
	if err != nil {
		_ = out.Abort()
		return nil, err
	}
	bw := bufio.NewWriterSize(zw, 256*1024)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	return &JSONLSink{
		name: storage.JoinURL(folder.URL(), name),
		out:  out,
		zw:   zw,
		bw:   bw,
		enc:  enc,
	}, nil
}

// Name is the full location of the output file.
func (s *JSONLSink) Name() string {
	return s.name
}

// Count is the number of documents written so far.
func (s *JSONLSink) Count() int64 {
	return s.count
}

func (s *JSONLSink) Write(ctx context.Context, doc *pipeline.Document) error {
	if s.closed {
		return errSinkClosed
	}
	if err := s.enc.Encode(doc); err != nil {
		return err
	}
	s.count++
	documentsWrittenCounter.Add(ctx, 1, sinkAttr("jsonl"))
	return nil
}

// Close flushes the compressor and publishes the file.
func (s *JSONLSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.bw.Flush(); err != nil {
		return errors.Join(err, s.out.Abort())
	}
	if err := s.zw.Close(); err != nil {
		return errors.Join(err, s.out.Abort())
	}
	if err := s.out.Close(); err != nil {
		return fmt.Errorf("publish %s: %w", s.name, err)
	}
	return nil
}

// Abort discards the file.
func (s *JSONLSink) Abort() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.out.Abort()
}
