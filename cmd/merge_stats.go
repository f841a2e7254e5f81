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
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/corpusrunner/internal/logctx"
	"github.com/cardinalhq/corpusrunner/internal/stats"
	"github.com/cardinalhq/corpusrunner/internal/storage"
)

const defaultMergedStatsName = "merged_stats.json"

var mergeStatsOutput string

var mergeStatsCmd = &cobra.Command{
	Use:   "merge-stats [PATH]",
	Short: "Merge the statistics snapshots in a folder into one",
	Long: `Load every statistics snapshot in PATH (the working directory by default), fold them
into one and write the result. The output uses the same format, so merged files can be
merged again. Files ending in .cbor are read and written as CBOR, everything else as JSON.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		input := "."
		if len(args) == 1 {
			input = args[0]
		}

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		ctx, doneFx, err := setupTelemetry("corpusrunner-merge-stats")
		if err != nil {
			return fmt.Errorf("failed to setup telemetry: %w", err)
		}
		defer func() {
			if err := doneFx(); err != nil {
				slog.Error("Error shutting down telemetry", slog.Any("error", err))
			}
		}()

		_, err = runMergeStats(ctx, storage.NewResolver(cfg.Storage), input, mergeStatsOutput)
		return err
	},
}

func init() {
	mergeStatsCmd.Flags().StringVarP(&mergeStatsOutput, "output", "o", defaultMergedStatsName, "Where to write the merged snapshot")
}

// runMergeStats folds every snapshot under input, in listing order, and
// saves the result to output. An output inside input is not read back.
func runMergeStats(ctx context.Context, resolver *storage.Resolver, input, output string) (stats.Stats, error) {
	ll := logctx.FromContext(ctx)

	folder, err := resolver.Open(ctx, input)
	if err != nil {
		return nil, err
	}
	var exclude []string
	if rel, ok := storage.RelativeTo(input, output); ok {
		exclude = append(exclude, rel)
	}

	all, err := stats.LoadAll(ctx, folder, exclude...)
	if err != nil {
		return nil, err
	}
	merged, err := stats.Merge(all...)
	if err != nil {
		return nil, fmt.Errorf("merge stats from %s: %w", folder.URL(), err)
	}

	dir, name := storage.SplitURL(output)
	if name == "" {
		return nil, fmt.Errorf("output %q: missing file name", output)
	}
	outFolder, err := resolver.Open(ctx, dir)
	if err != nil {
		return nil, err
	}
	if err := stats.Save(ctx, outFolder, name, merged); err != nil {
		return nil, err
	}

	ll.Info("Merged stats saved",
		slog.String("output", storage.JoinURL(outFolder.URL(), name)),
		slog.Int("files", len(all)))
	ll.Info("Merged stats summary", slog.String("summary", merged.String()))
	return merged, nil
}
