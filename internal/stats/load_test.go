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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/corpusrunner/internal/storage"
)

func TestSaveLoadAll(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	folder := storage.NewLocalFolder(dir)

	for i, name := range []string{"00000.json", "00001.json", "00002.cbor"} {
		s := New()
		s.Increment("documents", int64(i+1))
		require.NoError(t, Save(ctx, folder, name, s))
	}
	require.NoError(t, Save(ctx, folder, "merged_stats.json", New()))

	all, err := LoadAll(ctx, folder, "merged_stats.json")
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, s := range all {
		assert.Equal(t, int64(i+1), s.Counter("documents").Value, "listing order is kept")
	}

	merged, err := Merge(all...)
	require.NoError(t, err)
	assert.Equal(t, int64(6), merged.Counter("documents").Value)
}

func TestLoadAll_MalformedFileFails(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	folder := storage.NewLocalFolder(dir)
	require.NoError(t, Save(ctx, folder, "00000.json", New()))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "00001.json"), []byte("{oops"), 0o644))

	_, err := LoadAll(ctx, folder)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "00001.json")
}

func TestLoadAll_EmptyFolder(t *testing.T) {
	all, err := LoadAll(context.Background(), storage.NewLocalFolder(t.TempDir()))
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestLoad_NotFound(t *testing.T) {
	_, err := Load(context.Background(), storage.NewLocalFolder(t.TempDir()), "missing.json")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
