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

package helpers

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compression is a whole-file compression codec recognised by extension.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionZstd
)

func (c Compression) String() string {
	switch c {
	case CompressionGzip:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	default:
		return "none"
	}
}

// Extension returns the filename suffix for c, including the dot.
func (c Compression) Extension() string {
	switch c {
	case CompressionGzip:
		return ".gz"
	case CompressionZstd:
		return ".zst"
	default:
		return ""
	}
}

// ParseCompression maps a config value ("gzip", "gz", "zstd", "zst", "none",
// "") to a Compression.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CompressionNone, nil
	case "gzip", "gz":
		return CompressionGzip, nil
	case "zstd", "zst":
		return CompressionZstd, nil
	}
	return CompressionNone, fmt.Errorf("unknown compression %q", s)
}

// SplitCompression strips a compression suffix from a file name and reports
// which codec it named.
func SplitCompression(name string) (string, Compression) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".gz"):
		return name[:len(name)-3], CompressionGzip
	case strings.HasSuffix(lower, ".zst"):
		return name[:len(name)-4], CompressionZstd
	case strings.HasSuffix(lower, ".zstd"):
		return name[:len(name)-5], CompressionZstd
	}
	return name, CompressionNone
}

// FileExtension returns the lower-cased extension of name once any
// compression suffix is removed, e.g. ".jsonl" for "part-0.jsonl.gz".
func FileExtension(name string) string {
	base, _ := SplitCompression(path.Base(name))
	return strings.ToLower(path.Ext(base))
}

var gzipMagic = []byte{0x1f, 0x8b}

// NewDecompressingReader wraps r with a decoder for c. Gzip input that turns
// out not to start with the gzip magic is passed through unchanged, since
// some object stores decompress on the fly.
func NewDecompressingReader(r io.Reader, c Compression) (io.ReadCloser, error) {
	switch c {
	case CompressionGzip:
		br := bufio.NewReader(r)
		head, err := br.Peek(len(gzipMagic))
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("peek gzip header: %w", err)
		}
		if !bytes.Equal(head, gzipMagic) {
			return io.NopCloser(br), nil
		}
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open gzip stream: %w", err)
		}
		return gz, nil
	case CompressionZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("open zstd stream: %w", err)
		}
		return dec.IOReadCloser(), nil
	default:
		return io.NopCloser(r), nil
	}
}

// NewCompressingWriter wraps w with an encoder for c. Closing the returned
// writer flushes the encoder but does not close w.
func NewCompressingWriter(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case CompressionGzip:
		return gzip.NewWriter(w), nil
	case CompressionZstd:
		enc, err := zstd.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		return enc, nil
	default:
		return nopWriteCloser{w}, nil
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
