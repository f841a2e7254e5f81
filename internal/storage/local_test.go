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

package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLocalFolder_List(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.json"), "{}")
	writeFile(t, filepath.Join(dir, "a.json"), "{}")
	writeFile(t, filepath.Join(dir, "sub", "c.json"), "{}")
	writeFile(t, filepath.Join(dir, ".hidden"), "x")
	writeFile(t, filepath.Join(dir, ".git", "HEAD"), "x")

	names, err := NewLocalFolder(dir).List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.json", "b.json", "sub/c.json"}, names)
}

func TestLocalFolder_ListMissing(t *testing.T) {
	_, err := NewLocalFolder(filepath.Join(t.TempDir(), "nope")).List(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLocalFolder_OpenNotFound(t *testing.T) {
	_, err := NewLocalFolder(t.TempDir()).Open(context.Background(), "missing.json")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalFolder_CreateClosePublishes(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	folder := NewLocalFolder(dir)

	w, err := folder.Create(ctx, "out/00000.json")
	require.NoError(t, err)
	_, err = io.WriteString(w, "hello")
	require.NoError(t, err)

	names, err := folder.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, names, "partial writes must not be listed")

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	r, err := folder.Open(ctx, "out/00000.json")
	require.NoError(t, err)
	defer func() { _ = r.Close() }()
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))
}

func TestLocalFolder_AbortDiscards(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	folder := NewLocalFolder(dir)

	w, err := folder.Create(ctx, "x.json")
	require.NoError(t, err)
	_, err = io.WriteString(w, "partial")
	require.NoError(t, err)
	require.NoError(t, w.Abort())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocalFolder_Fetch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "data.parquet"), "12345")

	lf, err := NewLocalFolder(dir).Fetch(context.Background(), "data.parquet")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "data.parquet"), lf.Path)
	assert.Equal(t, int64(5), lf.Size)

	require.NoError(t, lf.Close())
	_, err = os.Stat(lf.Path)
	assert.NoError(t, err, "closing a local fetch must not remove the source")
}

func TestLocalFile_CloseRemovesTemporary(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tmp-data")
	writeFile(t, p, "x")
	lf := &LocalFile{Path: p, Size: 1, temporary: true}
	require.NoError(t, lf.Close())
	_, err := os.Stat(p)
	assert.True(t, os.IsNotExist(err))
	require.NoError(t, lf.Close())
}
