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

// Package dataset exposes a folder of data files (parquet, arrow or JSON
// lines) as one logically ordered table of rows that can be split into
// contiguous shards and read in column-oriented batches.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/corpusrunner/internal/helpers"
	"github.com/cardinalhq/corpusrunner/internal/logctx"
	"github.com/cardinalhq/corpusrunner/internal/storage"
)

// ErrNoFiles is returned by Load when no readable data file matches.
var ErrNoFiles = errors.New("dataset: no data files found")

const defaultConcurrency = 8

// Options select which files and columns of a dataset location are read.
type Options struct {
	// Split is a sub folder of the dataset location, e.g. "train".
	Split string
	// Pattern is a glob matched against each file's name relative to the
	// dataset folder and against its base name. Empty matches everything.
	Pattern string
	// Columns restricts the columns returned in batches. Empty keeps all.
	Columns mapset.Set[string]
	// Resolver opens the dataset location. Nil uses local and default
	// cloud credentials.
	Resolver *storage.Resolver
	// Concurrency bounds how many files are inspected at once during Load.
	Concurrency int
}

// Dataset is an ordered list of data files with known row counts. Row
// positions run across files in listing order.
type Dataset struct {
	ID string

	folder  storage.Folder
	files   []dataFile
	total   int64
	columns mapset.Set[string]
}

type dataFile struct {
	name        string
	format      fileFormat
	compression helpers.Compression
	offset      int64
	rows        int64
}

// Load resolves id (a local path or a storage URL) and counts the rows in
// every matching data file.
func Load(ctx context.Context, id string, opts Options) (*Dataset, error) {
	if id == "" {
		return nil, errors.New("dataset: empty id")
	}
	if opts.Pattern != "" {
		if _, err := path.Match(opts.Pattern, ""); err != nil {
			return nil, fmt.Errorf("dataset: bad pattern %q: %w", opts.Pattern, err)
		}
	}

	resolver := opts.Resolver
	if resolver == nil {
		resolver = storage.NewResolver(storage.Options{})
	}
	location := id
	if opts.Split != "" {
		location = storage.JoinURL(id, opts.Split)
	}
	folder, err := resolver.Open(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", id, err)
	}
	return loadFolder(ctx, id, folder, opts)
}

// LoadFolder is Load for an already opened folder.
func LoadFolder(ctx context.Context, id string, folder storage.Folder, opts Options) (*Dataset, error) {
	return loadFolder(ctx, id, folder, opts)
}

func loadFolder(ctx context.Context, id string, folder storage.Folder, opts Options) (*Dataset, error) {
	ll := logctx.FromContext(ctx)

	names, err := folder.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", id, err)
	}

	var files []dataFile
	for _, name := range names {
		format, ok := formatForName(name)
		if !ok {
			continue
		}
		if opts.Pattern != "" && !matchPattern(opts.Pattern, name) {
			continue
		}
		_, compression := helpers.SplitCompression(name)
		files = append(files, dataFile{name: name, format: format, compression: compression})
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("dataset %s at %s: %w", id, folder.URL(), ErrNoFiles)
	}

	g, gctx := errgroup.WithContext(ctx)
	limit := opts.Concurrency
	if limit < 1 {
		limit = defaultConcurrency
	}
	g.SetLimit(limit)
	for i := range files {
		g.Go(func() error {
			n, err := countRows(gctx, folder, files[i])
			if err != nil {
				return fmt.Errorf("dataset %s: count rows of %s: %w", id, files[i].name, err)
			}
			files[i].rows = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var total int64
	for i := range files {
		files[i].offset = total
		total += files[i].rows
	}

	ll.Info("Loaded dataset",
		slog.String("dataset", id),
		slog.String("location", folder.URL()),
		slog.Int("files", len(files)),
		slog.Int64("rows", total))

	var columns mapset.Set[string]
	if opts.Columns != nil && opts.Columns.Cardinality() > 0 {
		columns = opts.Columns.Clone()
	}
	return &Dataset{
		ID:      id,
		folder:  folder,
		files:   files,
		total:   total,
		columns: columns,
	}, nil
}

func matchPattern(pattern, name string) bool {
	if ok, _ := path.Match(pattern, name); ok {
		return true
	}
	ok, _ := path.Match(pattern, path.Base(name))
	return ok
}

// NumRows is the total number of rows across all files.
func (d *Dataset) NumRows() int64 {
	return d.total
}

// Files returns the data file names in row order.
func (d *Dataset) Files() []string {
	names := make([]string, len(d.files))
	for i, f := range d.files {
		names[i] = f.name
	}
	return names
}

// URL is the storage location the dataset was loaded from.
func (d *Dataset) URL() string {
	return d.folder.URL()
}
