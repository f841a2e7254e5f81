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
	"crypto/tls"
	"errors"
	"fmt"
	"strings"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
)

// ErrNoBrokers is returned when a producer is requested without any broker address.
var ErrNoBrokers = errors.New("no kafka brokers configured")

// Factory creates Kafka producers with consistent configuration
type Factory struct {
	config *Config
}

// NewFactory creates a new factory with the given configuration
func NewFactory(cfg *Config) *Factory {
	return &Factory{config: cfg}
}

// CreateProducer creates a new Kafka producer
func (f *Factory) CreateProducer() (Producer, error) {
	cfg, err := f.producerConfig()
	if err != nil {
		return nil, err
	}
	return NewProducer(cfg), nil
}

func (f *Factory) producerConfig() (ProducerConfig, error) {
	if len(f.config.Brokers) == 0 {
		return ProducerConfig{}, ErrNoBrokers
	}

	compression, err := parseCompression(f.config.ProducerCompression)
	if err != nil {
		return ProducerConfig{}, err
	}

	acks := kafka.RequireNone
	if f.config.RequireAcks {
		acks = kafka.RequireAll
	}

	cfg := ProducerConfig{
		Brokers:      f.config.Brokers,
		BatchSize:    f.config.ProducerBatchSize,
		BatchTimeout: f.config.ProducerBatchTimeout,
		RequiredAcks: acks,
		Compression:  compression,
	}

	if f.config.SASLEnabled {
		mechanism, err := f.createSASLMechanism()
		if err != nil {
			return ProducerConfig{}, fmt.Errorf("failed to create SASL mechanism: %w", err)
		}
		cfg.SASLMechanism = mechanism
	}

	if f.config.TLSEnabled {
		cfg.TLSConfig = &tls.Config{
			InsecureSkipVerify: f.config.TLSSkipVerify,
		}
	}
	return cfg, nil
}

func parseCompression(name string) (kafka.Compression, error) {
	switch strings.ToLower(name) {
	case "", "none", "uncompressed":
		return 0, nil
	case "gzip":
		return kafka.Gzip, nil
	case "snappy":
		return kafka.Snappy, nil
	case "lz4":
		return kafka.Lz4, nil
	case "zstd":
		return kafka.Zstd, nil
	default:
		return 0, fmt.Errorf("unsupported compression: %s", name)
	}
}

func (f *Factory) createSASLMechanism() (sasl.Mechanism, error) {
	switch f.config.SASLMechanism {
	case "SCRAM-SHA-256":
		return scram.Mechanism(scram.SHA256, f.config.SASLUsername, f.config.SASLPassword)
	case "SCRAM-SHA-512":
		return scram.Mechanism(scram.SHA512, f.config.SASLUsername, f.config.SASLPassword)
	case "PLAIN":
		return plain.Mechanism{
			Username: f.config.SASLUsername,
			Password: f.config.SASLPassword,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported SASL mechanism: %s", f.config.SASLMechanism)
	}
}
