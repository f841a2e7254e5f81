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

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/corpusrunner/config"
	"github.com/cardinalhq/corpusrunner/internal/dataset"
	"github.com/cardinalhq/corpusrunner/internal/fly"
	"github.com/cardinalhq/corpusrunner/internal/helpers"
	"github.com/cardinalhq/corpusrunner/internal/logctx"
	"github.com/cardinalhq/corpusrunner/internal/reader"
	"github.com/cardinalhq/corpusrunner/internal/sink"
	"github.com/cardinalhq/corpusrunner/internal/stats"
	"github.com/cardinalhq/corpusrunner/internal/storage"
)

type readOptions struct {
	dataset string
	split   string
	pattern string
	columns []string

	rank       int
	worldSize  int
	localTasks int
	workers    int

	limit     int64
	batchSize int
	textKey   string
	idKey     string
	metadata  map[string]string

	output      string
	compression string
	kafka       bool
	topic       string

	statsFolder string
	statsFormat string

	progress         bool
	progressInterval time.Duration
}

var readOpts readOptions

var readCmd = &cobra.Command{
	Use:   "read DATASET",
	Short: "Read one or more shards of a dataset as documents",
	Long: `Read the contiguous shard of DATASET owned by each requested rank, convert its
rows to documents, deliver them to the chosen sink and save a statistics snapshot per rank.

DATASET is a local folder or an s3://, gs:// or az:// URL.`,
	Args: cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		opts := readOpts
		opts.dataset = args[0]
		applyReaderConfig(c.Flags(), cfg.Reader, &opts)

		ctx, doneFx, err := setupTelemetry("corpusrunner-read")
		if err != nil {
			return fmt.Errorf("failed to setup telemetry: %w", err)
		}
		defer func() {
			if err := doneFx(); err != nil {
				slog.Error("Error shutting down telemetry", slog.Any("error", err))
			}
		}()

		_, err = runRead(ctx, cfg, opts)
		return err
	},
}

func init() {
	f := readCmd.Flags()
	f.StringVar(&readOpts.split, "split", "", "Sub folder of the dataset to read, e.g. train")
	f.StringVar(&readOpts.pattern, "pattern", "", "Glob selecting data files within the dataset")
	f.StringSliceVar(&readOpts.columns, "columns", nil, "Columns to read; all when empty")

	f.IntVar(&readOpts.rank, "rank", 0, "First rank to read")
	f.IntVar(&readOpts.worldSize, "world-size", 1, "Total number of ranks the dataset is split into")
	f.IntVar(&readOpts.localTasks, "local-tasks", 1, "Number of consecutive ranks to read in this process")
	f.IntVar(&readOpts.workers, "workers", 0, "Ranks read concurrently; defaults to --local-tasks")

	f.Int64Var(&readOpts.limit, "limit", -1, "Maximum documents per rank; -1 reads the whole shard")
	f.IntVar(&readOpts.batchSize, "batch-size", reader.DefaultBatchSize, "Rows fetched from the dataset at a time")
	f.StringVar(&readOpts.textKey, "text-key", reader.DefaultTextKey, "Field holding the document text")
	f.StringVar(&readOpts.idKey, "id-key", reader.DefaultIDKey, "Field holding the source id")
	f.StringToStringVar(&readOpts.metadata, "metadata", nil, "Metadata added to every document, key=value")

	f.StringVar(&readOpts.output, "output", "", "Folder receiving one JSON lines file per rank")
	f.StringVar(&readOpts.compression, "compression", "gzip", "Output compression: gzip, zstd or none")
	f.BoolVar(&readOpts.kafka, "kafka", false, "Publish documents to Kafka instead of files")
	f.StringVar(&readOpts.topic, "topic", "", "Kafka topic; defaults to the configured topic")

	f.StringVar(&readOpts.statsFolder, "stats-folder", "", "Folder receiving one statistics snapshot per rank")
	f.StringVar(&readOpts.statsFormat, "stats-format", "json", "Snapshot encoding: json or cbor")

	f.BoolVar(&readOpts.progress, "progress", false, "Log reading progress")
	f.DurationVar(&readOpts.progressInterval, "progress-interval", 10*time.Second, "Minimum time between progress lines")
}

// applyReaderConfig fills every flag the user did not set from cfg.
func applyReaderConfig(flags *pflag.FlagSet, cfg config.ReaderConfig, o *readOptions) {
	if !flags.Changed("batch-size") && cfg.BatchSize > 0 {
		o.batchSize = cfg.BatchSize
	}
	if !flags.Changed("limit") {
		o.limit = cfg.Limit
	}
	if !flags.Changed("text-key") && cfg.TextKey != "" {
		o.textKey = cfg.TextKey
	}
	if !flags.Changed("id-key") && cfg.IDKey != "" {
		o.idKey = cfg.IDKey
	}
	if !flags.Changed("progress-interval") && cfg.ProgressInterval > 0 {
		o.progressInterval = cfg.ProgressInterval
	}
	if !flags.Changed("compression") && cfg.OutputCompression != "" {
		o.compression = cfg.OutputCompression
	}
}

func (o readOptions) validate() error {
	if o.localTasks < 1 {
		return fmt.Errorf("local tasks %d: must be at least 1", o.localTasks)
	}
	if err := dataset.ValidateShard(o.worldSize, o.rank); err != nil {
		return err
	}
	if err := dataset.ValidateShard(o.worldSize, o.rank+o.localTasks-1); err != nil {
		return fmt.Errorf("ranks %d..%d: %w", o.rank, o.rank+o.localTasks-1, err)
	}
	if o.limit < -1 {
		return fmt.Errorf("limit %d: must be -1 or non-negative", o.limit)
	}
	if o.batchSize < 1 {
		return fmt.Errorf("batch size %d: must be at least 1", o.batchSize)
	}
	if _, err := helpers.ParseCompression(o.compression); err != nil {
		return err
	}
	switch o.statsFormat {
	case "json", "cbor":
	default:
		return fmt.Errorf("unknown stats format %q", o.statsFormat)
	}
	return nil
}

func (o readOptions) statsName(rank int) string {
	return fmt.Sprintf("%05d.%s", rank, o.statsFormat)
}

// runRead reads every requested rank and returns their snapshots in rank order.
func runRead(ctx context.Context, cfg *config.Config, o readOptions) ([]stats.Stats, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}

	resolver := storage.NewResolver(cfg.Storage)
	dsOpts := dataset.Options{
		Split:       o.split,
		Pattern:     o.pattern,
		Resolver:    resolver,
		Concurrency: cfg.Reader.LoadConcurrency,
	}
	if len(o.columns) > 0 {
		dsOpts.Columns = mapset.NewSet(o.columns...)
	}
	ds, err := dataset.Load(ctx, o.dataset, dsOpts)
	if err != nil {
		return nil, err
	}
	logctx.FromContext(ctx).Info("Dataset loaded",
		slog.String("dataset", ds.URL()),
		slog.Any("files", ds.Files()),
		slog.Int64("rows", ds.NumRows()))

	workers := o.workers
	if workers < 1 {
		workers = o.localTasks
	}

	results := make([]stats.Stats, o.localTasks)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range o.localTasks {
		rank := o.rank + i
		g.Go(func() error {
			st, err := runRank(gctx, ds, resolver, cfg, o, rank)
			if err != nil {
				return err
			}
			results[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func runRank(ctx context.Context, ds *dataset.Dataset, resolver *storage.Resolver, cfg *config.Config, o readOptions, rank int) (st stats.Stats, err error) {
	ctx = logctx.WithShard(ctx, rank, o.worldSize)
	ll := logctx.FromContext(ctx)
	start := time.Now()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		attrs := metric.WithAttributes(attribute.String("outcome", outcome))
		rankDuration.Record(ctx, time.Since(start).Seconds(), attrs)
		ranksCompleted.Add(ctx, 1, attrs)
	}()

	shard, err := ds.Shard(o.worldSize, rank)
	if err != nil {
		return nil, err
	}

	ropts := reader.DefaultOptions()
	ropts.Limit = o.limit
	ropts.BatchSize = o.batchSize
	ropts.TextKey = o.textKey
	ropts.IDKey = o.idKey
	if len(o.metadata) > 0 {
		ropts.DefaultMetadata = make(map[string]any, len(o.metadata))
		for k, v := range o.metadata {
			ropts.DefaultMetadata[k] = v
		}
	}
	var progress *reader.LogProgress
	if o.progress {
		total := shard.Len()
		if o.limit >= 0 && o.limit < total {
			total = o.limit
		}
		progress = reader.NewLogProgress(ctx, total, o.progressInterval)
		ropts.Progress = progress
	}

	stream, err := reader.New(reader.DatasetSource(ds), ropts).Stream(ctx, nil, rank, o.worldSize)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := stream.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	dst, err := openSink(ctx, resolver, cfg, o, rank)
	if err != nil {
		return nil, err
	}
	n, err := sink.Drain(ctx, stream, dst)
	if err != nil {
		return nil, err
	}
	if progress != nil {
		progress.Finish()
	}

	st = stream.Stats()
	if o.statsFolder != "" {
		folder, err := resolver.Open(ctx, o.statsFolder)
		if err != nil {
			return nil, err
		}
		if err := stats.Save(ctx, folder, o.statsName(rank), st); err != nil {
			return nil, err
		}
	}

	ll.Info("Rank finished",
		slog.Int64("documents", n),
		slog.Int64("shardRows", shard.Len()),
		slog.Duration("elapsed", time.Since(start)))
	ll.Debug("Rank statistics", slog.String("stats", st.String()))
	return st, nil
}

func openSink(ctx context.Context, resolver *storage.Resolver, cfg *config.Config, o readOptions, rank int) (sink.DocumentSink, error) {
	switch {
	case o.kafka:
		kcfg := cfg.Kafka
		if o.topic != "" {
			kcfg.Topic = o.topic
		}
		if kcfg.Topic == "" {
			return nil, errors.New("kafka output needs a topic")
		}
		producer, err := fly.NewFactory(&kcfg).CreateProducer()
		if err != nil {
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		return sink.NewKafkaSink(producer, kcfg.Topic, rank, kcfg.ProducerBatchSize), nil
	case o.output != "":
		c, err := helpers.ParseCompression(o.compression)
		if err != nil {
			return nil, err
		}
		folder, err := resolver.Open(ctx, o.output)
		if err != nil {
			return nil, err
		}
		return sink.NewJSONLSink(ctx, folder, sink.JSONLName(rank, c), c)
	default:
		return sink.Discard{}, nil
	}
}
