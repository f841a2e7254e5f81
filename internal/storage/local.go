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
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
)

// localFolder is a Folder rooted at a directory on the local filesystem.
type localFolder struct {
	root string
}

// NewLocalFolder returns a Folder rooted at dir.
func NewLocalFolder(dir string) Folder {
	return &localFolder{root: filepath.Clean(dir)}
}

func (f *localFolder) URL() string {
	return f.root
}

func (f *localFolder) path(name string) string {
	return filepath.Join(f.root, filepath.FromSlash(name))
}

// List walks the directory tree. Hidden files, including in-progress writes,
// are not listed.
func (f *localFolder) List(ctx context.Context) ([]string, error) {
	var names []string
	err := filepath.WalkDir(f.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && p != f.root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(f.root, p)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", f.root, err)
	}
	slices.Sort(names)
	return names, nil
}

func (f *localFolder) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	p := f.path(name)
	fh, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", p, err)
	}
	objectsOpened(ctx, "file")
	return fh, nil
}

// Create writes to a hidden temp file next to the target and renames it
// into place on Close.
func (f *localFolder) Create(ctx context.Context, name string) (Writer, error) {
	dst := f.path(name)
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file for %s: %w", dst, err)
	}
	return &localWriter{ctx: ctx, f: tmp, dst: dst}, nil
}

func (f *localFolder) Fetch(ctx context.Context, name string) (*LocalFile, error) {
	p := f.path(name)
	fi, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", p, err)
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("fetch %s: is a directory", p)
	}
	return &LocalFile{Path: p, Size: fi.Size()}, nil
}

type localWriter struct {
	ctx  context.Context
	f    *os.File
	dst  string
	n    int64
	done bool
}

func (w *localWriter) Write(p []byte) (int, error) {
	n, err := w.f.Write(p)
	w.n += int64(n)
	return n, err
}

func (w *localWriter) Close() error {
	if w.done {
		return nil
	}
	w.done = true
	if err := w.f.Sync(); err != nil {
		_ = w.f.Close()
		_ = os.Remove(w.f.Name())
		return fmt.Errorf("sync %s: %w", w.dst, err)
	}
	if err := w.f.Close(); err != nil {
		_ = os.Remove(w.f.Name())
		return fmt.Errorf("close %s: %w", w.dst, err)
	}
	if err := os.Rename(w.f.Name(), w.dst); err != nil {
		_ = os.Remove(w.f.Name())
		return fmt.Errorf("rename into %s: %w", w.dst, err)
	}
	objectsWritten(w.ctx, "file", w.n)
	return nil
}

func (w *localWriter) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	closeErr := w.f.Close()
	if err := os.Remove(w.f.Name()); err != nil && !os.IsNotExist(err) {
		return errors.Join(closeErr, err)
	}
	return nil
}

// cleanKey joins an object prefix and a relative name into an object key.
func cleanKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}
