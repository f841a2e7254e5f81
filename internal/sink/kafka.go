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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/cardinalhq/corpusrunner/internal/fly"
	"github.com/cardinalhq/corpusrunner/pipeline"
)

const (
	HeaderDataset = "dataset"
	HeaderRank    = "rank"
)

// DefaultKafkaBatch is how many documents are buffered before a send.
const DefaultKafkaBatch = 100

// KafkaSink publishes each document as a JSON message keyed by its id.
type KafkaSink struct {
	producer fly.Producer
	topic    string
	rank     int
	batch    int
	pending  []fly.Message
	closed   bool
}

var _ DocumentSink = (*KafkaSink)(nil)

// NewKafkaSink sends documents to topic through producer. The sink owns
// the producer and closes it.
func NewKafkaSink(producer fly.Producer, topic string, rank, batch int) *KafkaSink {
	if batch < 1 {
		batch = DefaultKafkaBatch
	}
	return &KafkaSink{
		producer: producer,
		topic:    topic,
		rank:     rank,
		batch:    batch,
		pending:  make([]fly.Message, 0, batch),
	}
}

// DocumentMessage encodes doc as a Kafka message.
func DocumentMessage(doc *pipeline.Document, rank int) (fly.Message, error) {
	value, err := json.Marshal(doc)
	if err != nil {
		return fly.Message{}, fmt.Errorf("encode document %s: %w", doc.ID, err)
	}
	headers := map[string]string{
		HeaderRank: strconv.Itoa(rank),
	}
	if ds := doc.Dataset(); ds != "" {
		headers[HeaderDataset] = ds
	}
	return fly.Message{
		Key:     []byte(doc.ID),
		Value:   value,
		Headers: headers,
	}, nil
}

func (s *KafkaSink) Write(ctx context.Context, doc *pipeline.Document) error {
	if s.closed {
		return errSinkClosed
	}
	msg, err := DocumentMessage(doc, s.rank)
	if err != nil {
		return err
	}
	s.pending = append(s.pending, msg)
	if len(s.pending) >= s.batch {
		return s.flush(ctx)
	}
	return nil
}

func (s *KafkaSink) flush(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}
	if err := s.producer.BatchSend(ctx, s.topic, s.pending); err != nil {
		return fmt.Errorf("send %d documents to %s: %w", len(s.pending), s.topic, err)
	}
	documentsWrittenCounter.Add(ctx, int64(len(s.pending)), sinkAttr("kafka"))
	s.pending = s.pending[:0]
	return nil
}

// Close sends anything still buffered and closes the producer.
func (s *KafkaSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.flush(context.Background())
	return errors.Join(err, s.producer.Close())
}

// Abort drops buffered documents. Messages already sent stay on the topic.
func (s *KafkaSink) Abort() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.pending = nil
	return s.producer.Close()
}
