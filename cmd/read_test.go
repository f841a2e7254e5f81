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
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/corpusrunner/config"
	"github.com/cardinalhq/corpusrunner/internal/dataset"
	"github.com/cardinalhq/corpusrunner/internal/reader"
	"github.com/cardinalhq/corpusrunner/internal/stats"
	"github.com/cardinalhq/corpusrunner/internal/storage"
	"github.com/cardinalhq/corpusrunner/pipeline"
)

func testConfig() *config.Config {
	return &config.Config{Reader: config.DefaultReaderConfig()}
}

func baseReadOptions(ds string) readOptions {
	return readOptions{
		dataset:          ds,
		worldSize:        1,
		localTasks:       1,
		limit:            -1,
		batchSize:        2,
		textKey:          reader.DefaultTextKey,
		idKey:            reader.DefaultIDKey,
		compression:      "none",
		statsFormat:      "json",
		progressInterval: time.Second,
	}
}

func writeCorpus(t *testing.T, n int) string {
	t.Helper()
	dir := t.TempDir()
	var lines []string
	for i := range n {
		lines = append(lines, fmt.Sprintf(`{"text":"document %d","id":"src-%d","lang":"en"}`, i, i))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "part-0.jsonl"), []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return dir
}

func readOutput(t *testing.T, path string) []pipeline.Document {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var docs []pipeline.Document
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var d pipeline.Document
		require.NoError(t, json.Unmarshal(sc.Bytes(), &d))
		docs = append(docs, d)
	}
	require.NoError(t, sc.Err())
	return docs
}

func TestRunRead_LocalTasksWriteOutputAndStats(t *testing.T) {
	ctx := context.Background()
	data := writeCorpus(t, 7)
	out := t.TempDir()
	statsDir := t.TempDir()

	o := baseReadOptions(data)
	o.worldSize = 3
	o.localTasks = 3
	o.workers = 2
	o.output = out
	o.statsFolder = statsDir
	o.metadata = map[string]string{"source": "unit"}

	results, err := runRead(ctx, testConfig(), o)
	require.NoError(t, err)
	require.Len(t, results, 3)

	wantPerRank := []int64{3, 2, 2}
	var seen []string
	for rank, want := range wantPerRank {
		assert.Equal(t, want, results[rank].Counter(reader.StatDocuments).Value)

		docs := readOutput(t, filepath.Join(out, fmt.Sprintf("%05d.jsonl", rank)))
		require.Len(t, docs, int(want))
		assert.Equal(t, pipeline.ShardLocalID(rank, 0), docs[0].ID)
		assert.Equal(t, "unit", docs[0].Metadata["source"])
		assert.Equal(t, "en", docs[0].Metadata["lang"])
		assert.Equal(t, data, docs[0].Dataset())
		for _, d := range docs {
			seen = append(seen, d.Text)
		}

		_, err := os.Stat(filepath.Join(statsDir, fmt.Sprintf("%05d.json", rank)))
		require.NoError(t, err)
	}
	assert.Len(t, seen, 7)
	assert.Equal(t, "document 0", seen[0])
	assert.Equal(t, "document 6", seen[6])

	merged, err := runMergeStats(ctx, storage.NewResolver(storage.Options{}), statsDir, filepath.Join(statsDir, defaultMergedStatsName))
	require.NoError(t, err)
	assert.Equal(t, int64(7), merged.Counter(reader.StatDocuments).Value)
}

func TestRunRead_LimitAndCompression(t *testing.T) {
	data := writeCorpus(t, 10)
	out := t.TempDir()

	o := baseReadOptions(data)
	o.limit = 4
	o.output = out
	o.compression = "zstd"
	o.progress = true

	results, err := runRead(context.Background(), testConfig(), o)
	require.NoError(t, err)
	assert.Equal(t, int64(4), results[0].Counter(reader.StatDocuments).Value)

	_, err = os.Stat(filepath.Join(out, "00000.jsonl.zst"))
	require.NoError(t, err)
}

func TestRunRead_DiscardWithoutOutput(t *testing.T) {
	data := writeCorpus(t, 3)
	results, err := runRead(context.Background(), testConfig(), baseReadOptions(data))
	require.NoError(t, err)
	assert.Equal(t, int64(3), results[0].Counter(reader.StatDocuments).Value)
}

func TestRunRead_CBORStats(t *testing.T) {
	data := writeCorpus(t, 2)
	statsDir := t.TempDir()
	o := baseReadOptions(data)
	o.statsFolder = statsDir
	o.statsFormat = "cbor"

	_, err := runRead(context.Background(), testConfig(), o)
	require.NoError(t, err)

	st, err := stats.Load(context.Background(), storage.NewLocalFolder(statsDir), "00000.cbor")
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.Counter(reader.StatDocuments).Value)
}

func TestRunRead_InvalidOptionsFailBeforeIO(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "does-not-exist")
	tests := []struct {
		name   string
		modify func(*readOptions)
		isErr  error
	}{
		{"rank out of range", func(o *readOptions) { o.rank = 1 }, dataset.ErrInvalidShard},
		{"zero world size", func(o *readOptions) { o.worldSize = 0 }, dataset.ErrInvalidShard},
		{"too many local tasks", func(o *readOptions) { o.worldSize = 2; o.localTasks = 3 }, dataset.ErrInvalidShard},
		{"no local tasks", func(o *readOptions) { o.localTasks = 0 }, nil},
		{"bad limit", func(o *readOptions) { o.limit = -2 }, nil},
		{"bad batch size", func(o *readOptions) { o.batchSize = 0 }, nil},
		{"bad compression", func(o *readOptions) { o.compression = "lzma" }, nil},
		{"bad stats format", func(o *readOptions) { o.statsFormat = "xml" }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := baseReadOptions(missing)
			tt.modify(&o)
			_, err := runRead(context.Background(), testConfig(), o)
			require.Error(t, err)
			assert.NotErrorIs(t, err, storage.ErrNotFound)
			if tt.isErr != nil {
				assert.ErrorIs(t, err, tt.isErr)
			}
		})
	}
}

func TestApplyReaderConfig(t *testing.T) {
	flags := pflag.NewFlagSet("read", pflag.ContinueOnError)
	var o readOptions
	flags.IntVar(&o.batchSize, "batch-size", 1000, "")
	flags.Int64Var(&o.limit, "limit", -1, "")
	flags.StringVar(&o.textKey, "text-key", "text", "")
	flags.StringVar(&o.idKey, "id-key", "id", "")
	flags.DurationVar(&o.progressInterval, "progress-interval", time.Second, "")
	flags.StringVar(&o.compression, "compression", "gzip", "")
	require.NoError(t, flags.Parse([]string{"--batch-size=5", "--text-key=body"}))

	cfg := config.DefaultReaderConfig()
	cfg.BatchSize = 64
	cfg.Limit = 100
	cfg.TextKey = "content"
	cfg.OutputCompression = "zstd"
	applyReaderConfig(flags, cfg, &o)

	assert.Equal(t, 5, o.batchSize)
	assert.Equal(t, "body", o.textKey)
	assert.Equal(t, int64(100), o.limit)
	assert.Equal(t, "zstd", o.compression)
	assert.Equal(t, "id", o.idKey)
	assert.Equal(t, 10*time.Second, o.progressInterval)
}
