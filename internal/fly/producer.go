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

package fly

import (
	"context"
	"crypto/tls"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
)

// Producer publishes messages to Kafka topics.
type Producer interface {
	BatchSend(ctx context.Context, topic string, messages []Message) error
	Close() error
}

// ProducerConfig contains configuration for the Kafka producer
type ProducerConfig struct {
	Brokers      []string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks kafka.RequiredAcks
	Compression  kafka.Compression

	SASLMechanism sasl.Mechanism
	TLSConfig     *tls.Config
}

// kafkaProducer keeps one writer per topic, created on first use.
type kafkaProducer struct {
	config    ProducerConfig
	writers   map[string]*kafka.Writer
	writersMu sync.RWMutex
}

// NewProducer creates a new Kafka producer. No connection is made until the first send.
func NewProducer(config ProducerConfig) Producer {
	return &kafkaProducer{
		config:  config,
		writers: make(map[string]*kafka.Writer),
	}
}

func (p *kafkaProducer) getWriter(topic string) *kafka.Writer {
	p.writersMu.RLock()
	w, ok := p.writers[topic]
	p.writersMu.RUnlock()
	if ok {
		return w
	}

	p.writersMu.Lock()
	defer p.writersMu.Unlock()

	if w, ok := p.writers[topic]; ok {
		return w
	}
	w = p.newWriter(topic)
	p.writers[topic] = w
	return w
}

func (p *kafkaProducer) newWriter(topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(p.config.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    p.config.BatchSize,
		BatchTimeout: p.config.BatchTimeout,
		RequiredAcks: p.config.RequiredAcks,
		Compression:  p.config.Compression,
		Transport: &kafka.Transport{
			SASL: p.config.SASLMechanism,
			TLS:  p.config.TLSConfig,
		},
	}
}

func (p *kafkaProducer) BatchSend(ctx context.Context, topic string, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}

	w := p.getWriter(topic)
	kmsgs := make([]kafka.Message, len(messages))
	for i, msg := range messages {
		kmsgs[i] = msg.ToKafkaMessage()
	}
	err := w.WriteMessages(ctx, kmsgs...)
	recordSentMetrics(ctx, topic, messages, err)
	return err
}

func (p *kafkaProducer) Close() error {
	p.writersMu.Lock()
	defer p.writersMu.Unlock()

	var errs []error
	for _, w := range p.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.writers = make(map[string]*kafka.Writer)
	return errors.Join(errs...)
}
