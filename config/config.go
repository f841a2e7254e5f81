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

package config

import (
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cardinalhq/corpusrunner/internal/fly"
	"github.com/cardinalhq/corpusrunner/internal/storage"
)

// Config aggregates configuration for the application.
// Each section is owned by the package that consumes it.
type Config struct {
	Reader  ReaderConfig    `mapstructure:"reader"`
	Storage storage.Options `mapstructure:"storage"`
	Kafka   fly.Config      `mapstructure:"kafka"`
}

// ReaderConfig holds defaults for the read command. Flags override them.
type ReaderConfig struct {
	BatchSize         int           `mapstructure:"batch_size"`
	Limit             int64         `mapstructure:"limit"`
	TextKey           string        `mapstructure:"text_key"`
	IDKey             string        `mapstructure:"id_key"`
	ProgressInterval  time.Duration `mapstructure:"progress_interval"`
	OutputCompression string        `mapstructure:"output_compression"`
	LoadConcurrency   int           `mapstructure:"load_concurrency"`
}

// DefaultReaderConfig returns the reader defaults.
func DefaultReaderConfig() ReaderConfig {
	return ReaderConfig{
		BatchSize:         1000,
		Limit:             -1,
		TextKey:           "text",
		IDKey:             "id",
		ProgressInterval:  10 * time.Second,
		OutputCompression: "gzip",
		LoadConcurrency:   8,
	}
}

// Load reads configuration from files and environment variables.
// Environment variables use the prefix "CORPUSRUNNER" and the dot character
// in keys is replaced by an underscore. For example, "kafka.brokers" becomes
// "CORPUSRUNNER_KAFKA_BROKERS".
func Load() (*Config, error) {
	cfg := &Config{
		Reader: DefaultReaderConfig(),
		Kafka:  *fly.DefaultConfig(),
	}

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.SetEnvPrefix("CORPUSRUNNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	_ = v.ReadInConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if b := v.GetString("kafka.brokers"); b != "" {
		cfg.Kafka.Brokers = strings.Split(b, ",")
	}
	return cfg, nil
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(parts, tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
