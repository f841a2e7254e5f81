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

package dataset

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/cardinalhq/corpusrunner/internal/helpers"
	"github.com/cardinalhq/corpusrunner/internal/storage"
)

const maxLineSizeBytes = 64 * 1024 * 1024

func newLineScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSizeBytes)
	return scanner
}

func openDecompressed(ctx context.Context, folder storage.Folder, name string, c helpers.Compression) (io.ReadCloser, error) {
	raw, err := folder.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	dec, err := helpers.NewDecompressingReader(raw, c)
	if err != nil {
		_ = raw.Close()
		return nil, err
	}
	return &stackedCloser{Reader: dec, closers: []io.Closer{dec, raw}}, nil
}

type stackedCloser struct {
	io.Reader
	closers []io.Closer
}

func (s *stackedCloser) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// countJSONLines counts non-blank lines, the same lines the reader yields.
func countJSONLines(ctx context.Context, folder storage.Folder, name string, c helpers.Compression) (int64, error) {
	r, err := openDecompressed(ctx, folder, name, c)
	if err != nil {
		return 0, err
	}
	defer func() { _ = r.Close() }()

	var n int64
	scanner := newLineScanner(r)
	for scanner.Scan() {
		if len(bytes.TrimSpace(scanner.Bytes())) > 0 {
			n++
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return n, nil
}

// jsonLinesReader yields one row per non-blank line of a JSON lines file.
type jsonLinesReader struct {
	r       io.ReadCloser
	scanner *bufio.Scanner
	line    int
}

func openJSONLines(ctx context.Context, folder storage.Folder, name string, c helpers.Compression, skip int64) (rowReader, error) {
	r, err := openDecompressed(ctx, folder, name, c)
	if err != nil {
		return nil, err
	}
	jr := &jsonLinesReader{r: r, scanner: newLineScanner(r)}
	for skipped := int64(0); skipped < skip; skipped++ {
		if _, ok := jr.nextLine(); !ok {
			_ = r.Close()
			if err := jr.scanner.Err(); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("cannot skip %d rows, file has %d", skip, skipped)
		}
	}
	return jr, nil
}

// nextLine returns the next non-blank line, or false at the end.
func (r *jsonLinesReader) nextLine() ([]byte, bool) {
	for r.scanner.Scan() {
		r.line++
		line := bytes.TrimSpace(r.scanner.Bytes())
		if len(line) > 0 {
			return line, true
		}
	}
	return nil, false
}

func (r *jsonLinesReader) read(ctx context.Context, max int, b *batchBuilder) (int, error) {
	n := 0
	for n < max {
		line, ok := r.nextLine()
		if !ok {
			if err := r.scanner.Err(); err != nil {
				return n, fmt.Errorf("scanner error at line %d: %w", r.line+1, err)
			}
			return n, io.EOF
		}
		var row map[string]any
		if err := json.Unmarshal(line, &row); err != nil {
			return n, fmt.Errorf("JSON parse error at line %d: %w", r.line, err)
		}
		b.add(row)
		n++
	}
	return n, nil
}

func (r *jsonLinesReader) Close() error {
	return r.r.Close()
}
