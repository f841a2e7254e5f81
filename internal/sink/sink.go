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

// Package sink delivers documents produced by a reader to their
// destination: compressed JSONL files in a storage folder, or a Kafka topic.
package sink

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cardinalhq/corpusrunner/pipeline"
)

var errSinkClosed = errors.New("sink: write after close")

// DocumentSink receives documents in order. Close flushes and publishes
// what was written; Abort discards as much as the destination allows.
// Exactly one of Close or Abort must be called.
type DocumentSink interface {
	Write(ctx context.Context, doc *pipeline.Document) error
	Close() error
	Abort() error
}

// DocumentSource is anything that yields documents until io.EOF.
type DocumentSource interface {
	Next(ctx context.Context) (*pipeline.Document, error)
}

// Drain copies every document from src into dst and closes dst.
// On any error dst is aborted instead and the error returned.
func Drain(ctx context.Context, src DocumentSource, dst DocumentSink) (int64, error) {
	var n int64
	for {
		doc, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return n, errors.Join(err, dst.Abort())
		}
		if err := dst.Write(ctx, doc); err != nil {
			return n, errors.Join(fmt.Errorf("write document %s: %w", doc.ID, err), dst.Abort())
		}
		n++
	}
	if err := dst.Close(); err != nil {
		return n, fmt.Errorf("close sink: %w", err)
	}
	return n, nil
}

// Discard is a sink that drops every document.
type Discard struct{}

func (Discard) Write(context.Context, *pipeline.Document) error { return nil }
func (Discard) Close() error                                    { return nil }
func (Discard) Abort() error                                    { return nil }
