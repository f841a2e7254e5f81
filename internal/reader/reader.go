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

// Package reader streams the documents of one rank's shard of a dataset.
// Each rank reads a contiguous block of rows, converts them to documents
// through an Adapter and records per-run statistics as it goes.
package reader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/corpusrunner/internal/dataset"
	"github.com/cardinalhq/corpusrunner/internal/logctx"
	"github.com/cardinalhq/corpusrunner/internal/stats"
	"github.com/cardinalhq/corpusrunner/pipeline"
)

// ErrInvalidShard is returned for a rank outside [0, worldSize) or a world
// size below one.
var ErrInvalidShard = dataset.ErrInvalidShard

// Names of the statistics a stream records.
const (
	StatDocuments    = "documents"
	StatBatch        = "batch"
	StatDocLen       = "doc_len"
	StatDocLenTokens = "doc_len_tokens"
	StatUniqueTexts  = "unique_texts"
)

const (
	DefaultBatchSize = 1000
	DefaultTextKey   = "text"
	DefaultIDKey     = "id"
)

// Options control a reader.
type Options struct {
	// Limit caps the number of documents emitted by a stream; -1 is unbounded.
	Limit int64
	// BatchSize is how many rows are requested from the dataset at a time.
	BatchSize int
	// Adapter converts rows. Nil uses DefaultAdapter(TextKey, IDKey).
	Adapter Adapter
	TextKey string
	IDKey   string
	// DefaultMetadata is added to every document under its own metadata.
	DefaultMetadata map[string]any
	// Progress, if set, is advanced once per emitted document.
	Progress Progress
	// Stats receives the run statistics. Nil gives each stream its own.
	Stats stats.Stats
}

// DefaultOptions returns unbounded options with the default keys.
func DefaultOptions() Options {
	return Options{
		Limit:     -1,
		BatchSize: DefaultBatchSize,
		TextKey:   DefaultTextKey,
		IDKey:     DefaultIDKey,
	}
}

func (o Options) validate() error {
	if o.Limit < -1 {
		return fmt.Errorf("limit %d: must be -1 or non-negative", o.Limit)
	}
	if o.BatchSize < 1 {
		return fmt.Errorf("batch size %d: must be at least 1", o.BatchSize)
	}
	return nil
}

// DocumentStream is a pull-based sequence of documents ending in io.EOF.
type DocumentStream interface {
	Next(ctx context.Context) (*pipeline.Document, error)
}

// Reader reads shards of one source.
type Reader struct {
	src  Source
	opts Options

	// warnEmpty is set when the default adapter is in use.
	warnEmpty bool
}

// New returns a reader over src.
func New(src Source, opts Options) *Reader {
	if opts.TextKey == "" {
		opts.TextKey = DefaultTextKey
	}
	if opts.IDKey == "" {
		opts.IDKey = DefaultIDKey
	}
	warnEmpty := opts.Adapter == nil
	if warnEmpty {
		opts.Adapter = DefaultAdapter(opts.TextKey, opts.IDKey)
	}
	return &Reader{src: src, opts: opts, warnEmpty: warnEmpty}
}

// Stream opens rank's shard. Documents from upstream, which may be nil, are
// passed through unchanged before any document of the shard.
func (r *Reader) Stream(ctx context.Context, upstream DocumentStream, rank, worldSize int) (*Stream, error) {
	if err := dataset.ValidateShard(worldSize, rank); err != nil {
		return nil, err
	}
	if err := r.opts.validate(); err != nil {
		return nil, err
	}

	batches, err := r.src.ShardBatches(worldSize, rank, r.opts.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("open shard %d/%d of %s: %w", rank, worldSize, r.src.Name(), err)
	}

	st := r.opts.Stats
	if st == nil {
		st = stats.New()
	}
	return &Stream{
		opts:      r.opts,
		warnEmpty: r.warnEmpty,
		source:    r.src.Name(),
		rank:      rank,
		upstream:  upstream,
		batches:   batches,
		stats:     st,
		ll:        logctx.FromContext(ctx).With(slog.String("dataset", r.src.Name())),
		attrs: otelmetric.WithAttributes(
			attribute.String("dataset", r.src.Name()),
			attribute.Int("rank", rank),
		),
	}, nil
}

// Stream is one rank's document sequence. It is not safe for concurrent use.
type Stream struct {
	opts      Options
	warnEmpty bool
	source    string
	rank      int
	upstream  DocumentStream
	batches   Batches
	stats     stats.Stats
	ll        *slog.Logger
	attrs     otelmetric.MeasurementOption

	pending    []*pipeline.Document
	localIndex int64
	emitted    int64
	warned     bool
	done       bool
	err        error
}

// Next returns the next document, or io.EOF when the upstream stream and the
// shard are both exhausted or the limit has been reached. Once Next fails,
// every later call returns the same error.
func (s *Stream) Next(ctx context.Context) (*pipeline.Document, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.upstream != nil {
		doc, err := s.upstream.Next(ctx)
		if err == nil {
			return doc, nil
		}
		if !errors.Is(err, io.EOF) {
			return nil, s.fail(err)
		}
		s.upstream = nil
	}

	for len(s.pending) == 0 {
		if s.done {
			return nil, io.EOF
		}
		if s.limitReached() {
			if err := s.finish(); err != nil {
				return nil, s.fail(err)
			}
			continue
		}

		batch, err := s.batches.Next(ctx)
		if errors.Is(err, io.EOF) {
			if err := s.finish(); err != nil {
				return nil, s.fail(err)
			}
			continue
		}
		if err != nil {
			return nil, s.fail(fmt.Errorf("rank %d: read %s: %w", s.rank, s.source, err))
		}
		if err := s.convert(batch); err != nil {
			return nil, s.fail(err)
		}
	}

	doc := s.pending[0]
	s.pending[0] = nil
	s.pending = s.pending[1:]
	s.record(doc)
	return doc, nil
}

// fail ends the stream with err. Converted documents not yet returned are
// discarded and the shard files are released.
func (s *Stream) fail(err error) error {
	clear(s.pending)
	s.pending = nil
	if cerr := s.finish(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	s.err = err
	return err
}

func (s *Stream) limitReached() bool {
	return s.opts.Limit != -1 && s.emitted >= s.opts.Limit
}

// convert adapts the rows of one batch, stopping as soon as the limit is
// reached. Rows after that point are never looked at.
func (s *Stream) convert(batch *dataset.ColumnBatch) error {
	defer s.stats.StartTimer(StatBatch)()

	var in, dropped int64
	defer func() {
		ctx := context.Background()
		rowsInCounter.Add(ctx, in, s.attrs)
		rowsDroppedCounter.Add(ctx, dropped, s.attrs)
	}()

	for _, row := range batch.Rows() {
		if s.limitReached() {
			break
		}
		localIndex := s.localIndex
		s.localIndex++
		in++

		doc, err := s.opts.Adapter.Adapt(row, s.source, localIndex)
		if err != nil {
			return fmt.Errorf("rank %d: adapt row %d of %s: %w", s.rank, localIndex, s.source, err)
		}
		if doc == nil || doc.Text == "" {
			switch {
			case doc == nil:
			case s.warnEmpty && !s.warned:
				s.warned = true
				s.ll.Warn("Found document without text, skipping", slog.Int64("localIndex", localIndex))
			case !s.warnEmpty:
				s.ll.Debug("Adapter returned document without text, skipping", slog.Int64("localIndex", localIndex))
			}
			dropped++
			continue
		}

		s.finalize(doc, localIndex)
		s.emitted++
		s.pending = append(s.pending, doc)
	}
	return nil
}

// finalize fills in the id and the metadata every document must carry.
func (s *Stream) finalize(doc *pipeline.Document, localIndex int64) {
	if doc.ID == "" {
		doc.ID = pipeline.ShardLocalID(s.rank, localIndex)
	}
	if doc.Metadata == nil {
		doc.Metadata = make(map[string]any, len(s.opts.DefaultMetadata)+1)
	}
	if len(s.opts.DefaultMetadata) > 0 {
		merged := maps.Clone(s.opts.DefaultMetadata)
		maps.Copy(merged, doc.Metadata)
		doc.Metadata = merged
	}
	if _, ok := doc.Metadata[pipeline.MetadataDataset]; !ok {
		doc.Metadata[pipeline.MetadataDataset] = s.source
	}
}

func (s *Stream) record(doc *pipeline.Document) {
	s.stats.Increment(StatDocuments, 1)
	s.stats.Observe(StatDocLen, float64(utf8.RuneCountInString(doc.Text)))
	if tokens, ok := doc.TokenCount(); ok {
		s.stats.Observe(StatDocLenTokens, float64(tokens))
	}
	s.stats.ObserveDistinct(StatUniqueTexts, doc.Text)
	documentsCounter.Add(context.Background(), 1, s.attrs)
	if s.opts.Progress != nil {
		s.opts.Progress.Advance()
	}
}

func (s *Stream) finish() error {
	if s.done {
		return nil
	}
	s.done = true
	s.ll.Debug("Shard finished",
		slog.Int64("rowsRead", s.localIndex),
		slog.Int64("documents", s.emitted))
	if err := s.batches.Close(); err != nil {
		return fmt.Errorf("rank %d: close %s: %w", s.rank, s.source, err)
	}
	return nil
}

// Stats returns the statistics recorded so far.
func (s *Stream) Stats() stats.Stats {
	return s.stats
}

// Emitted is the number of shard documents accepted so far. Upstream
// documents are not counted.
func (s *Stream) Emitted() int64 {
	return s.emitted
}

// Close releases the dataset files. It is safe to call after io.EOF.
func (s *Stream) Close() error {
	return s.finish()
}
