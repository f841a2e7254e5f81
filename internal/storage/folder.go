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

// Package storage addresses a folder of objects on the local filesystem or
// in object storage (S3, Google Cloud Storage, Azure Blob) through one
// interface: list the files, open one for reading, create one for writing,
// or fetch one to local disk for random access.
package storage

import (
	"context"
	"errors"
	"io"
	"os"
)

// ErrNotFound is returned, wrapped, when an object does not exist.
var ErrNotFound = os.ErrNotExist

// errAborted is delivered to in-flight uploads when a Writer is aborted.
var errAborted = errors.New("storage: write aborted")

// Folder is a flat view of every object below one location. Names are
// slash-separated and relative to the folder.
type Folder interface {
	// URL returns the location the folder was opened from.
	URL() string

	// List returns the names of all files below the folder, sorted.
	List(ctx context.Context) ([]string, error)

	// Open streams the content of name.
	Open(ctx context.Context, name string) (io.ReadCloser, error)

	// Create starts writing name. Nothing becomes visible at name until
	// Close returns successfully.
	Create(ctx context.Context, name string) (Writer, error)

	// Fetch makes name available as a local file, downloading it if needed.
	Fetch(ctx context.Context, name string) (*LocalFile, error)
}

// Writer is returned by Folder.Create. Close publishes the object; Abort
// discards everything written so far. Exactly one of them must be called.
type Writer interface {
	io.WriteCloser
	Abort() error
}

// LocalFile is a file on local disk holding an object's content.
type LocalFile struct {
	Path string
	Size int64

	temporary bool
}

// Close removes the file if it was downloaded for this fetch.
func (f *LocalFile) Close() error {
	if !f.temporary {
		return nil
	}
	if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// countingWriter tracks bytes handed to an upload.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
