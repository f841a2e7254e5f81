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
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactory_CreateProducer(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{
			name: "basic producer",
			config: &Config{
				Brokers:              []string{"localhost:9092"},
				ProducerBatchSize:    100,
				ProducerBatchTimeout: time.Second,
				ProducerCompression:  "snappy",
			},
		},
		{
			name: "producer with SASL SCRAM-SHA-256",
			config: &Config{
				Brokers:       []string{"localhost:9092"},
				SASLEnabled:   true,
				SASLMechanism: "SCRAM-SHA-256",
				SASLUsername:  "user",
				SASLPassword:  "pass",
			},
		},
		{
			name: "producer with SASL SCRAM-SHA-512",
			config: &Config{
				Brokers:       []string{"localhost:9092"},
				SASLEnabled:   true,
				SASLMechanism: "SCRAM-SHA-512",
				SASLUsername:  "user",
				SASLPassword:  "pass",
			},
		},
		{
			name: "producer with SASL PLAIN",
			config: &Config{
				Brokers:       []string{"localhost:9092"},
				SASLEnabled:   true,
				SASLMechanism: "PLAIN",
				SASLUsername:  "user",
				SASLPassword:  "pass",
			},
		},
		{
			name: "producer with TLS",
			config: &Config{
				Brokers:       []string{"localhost:9092"},
				TLSEnabled:    true,
				TLSSkipVerify: true,
			},
		},
		{
			name: "unsupported SASL mechanism",
			config: &Config{
				Brokers:       []string{"localhost:9092"},
				SASLEnabled:   true,
				SASLMechanism: "GSSAPI",
			},
			wantErr: true,
		},
		{
			name: "unsupported compression",
			config: &Config{
				Brokers:             []string{"localhost:9092"},
				ProducerCompression: "brotli",
			},
			wantErr: true,
		},
		{
			name:    "no brokers",
			config:  &Config{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			producer, err := NewFactory(tt.config).CreateProducer()
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, producer)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, producer)
			assert.NoError(t, producer.Close())
		})
	}
}

func TestFactory_ProducerConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TLSEnabled = true
	pc, err := NewFactory(cfg).producerConfig()
	require.NoError(t, err)

	assert.Equal(t, kafka.Zstd, pc.Compression)
	assert.Equal(t, kafka.RequireAll, pc.RequiredAcks)
	assert.Equal(t, 100, pc.BatchSize)
	require.NotNil(t, pc.TLSConfig)
	assert.False(t, pc.TLSConfig.InsecureSkipVerify)
	assert.Nil(t, pc.SASLMechanism)

	cfg.RequireAcks = false
	pc, err = NewFactory(cfg).producerConfig()
	require.NoError(t, err)
	assert.Equal(t, kafka.RequireNone, pc.RequiredAcks)
}

func TestProducer_EmptyBatchIsNoop(t *testing.T) {
	p := NewProducer(ProducerConfig{Brokers: []string{"localhost:9092"}})
	require.NoError(t, p.BatchSend(context.Background(), "docs", nil))
	require.NoError(t, p.Close())
}
