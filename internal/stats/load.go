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

package stats

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/corpusrunner/internal/logctx"
	"github.com/cardinalhq/corpusrunner/internal/storage"
)

// loadConcurrency bounds how many snapshot files are fetched at once.
const loadConcurrency = 8

// LoadAll reads every file in folder as a snapshot and returns them in
// listing order. Files named in exclude are skipped. Any unreadable or
// malformed file fails the whole load.
func LoadAll(ctx context.Context, folder storage.Folder, exclude ...string) ([]Stats, error) {
	names, err := folder.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stats folder %s: %w", folder.URL(), err)
	}
	names = slices.DeleteFunc(names, func(n string) bool {
		return slices.Contains(exclude, n)
	})

	logctx.FromContext(ctx).Info("Loading stats snapshots",
		slog.String("folder", folder.URL()),
		slog.Int("files", len(names)))

	out := make([]Stats, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	for i, name := range names {
		g.Go(func() error {
			s, err := Load(gctx, folder, name)
			if err != nil {
				return err
			}
			out[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Load reads one snapshot file, choosing the decoder from its extension.
func Load(ctx context.Context, folder storage.Folder, name string) (Stats, error) {
	r, err := folder.Open(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("open stats file %s: %w", name, err)
	}
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read stats file %s: %w", name, err)
	}
	s, err := UnmarshalFormat(data, FormatForName(name))
	if err != nil {
		return nil, fmt.Errorf("stats file %s: %w", name, err)
	}
	filesLoadedCounter.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("folder", folder.URL())))
	return s, nil
}

// Save writes s to name in folder. The file only becomes visible once the
// whole document has been written.
func Save(ctx context.Context, folder storage.Folder, name string, s Stats) error {
	data, err := MarshalFormat(s, FormatForName(name))
	if err != nil {
		return err
	}
	w, err := folder.Create(ctx, name)
	if err != nil {
		return fmt.Errorf("create stats file %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Abort()
		return fmt.Errorf("write stats file %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close stats file %s: %w", name, err)
	}
	return nil
}
