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
	"os"
	"path"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cardinalhq/corpusrunner/internal/awsclient"
)

// s3Folder is a Folder below a key prefix of an S3 bucket. Google Cloud
// Storage is served through the same code with its interoperability endpoint.
type s3Folder struct {
	client  *awsclient.S3Client
	scheme  string
	bucket  string
	prefix  string
	tempDir string
}

func (f *s3Folder) URL() string {
	if f.prefix == "" {
		return f.scheme + "://" + f.bucket
	}
	return f.scheme + "://" + f.bucket + "/" + f.prefix
}

func (f *s3Folder) key(name string) string {
	return cleanKey(f.prefix, name)
}

func (f *s3Folder) span(ctx context.Context, op, key string) (context.Context, trace.Span) {
	return f.client.Tracer.Start(ctx, "storage."+f.scheme+op,
		trace.WithAttributes(
			attribute.String("bucket", f.bucket),
			attribute.String("key", key),
		),
	)
}

func (f *s3Folder) List(ctx context.Context) ([]string, error) {
	ctx, span := f.span(ctx, "List", f.prefix)
	defer span.End()

	input := &s3.ListObjectsV2Input{Bucket: aws.String(f.bucket)}
	listPrefix := ""
	if f.prefix != "" {
		listPrefix = f.prefix + "/"
		input.Prefix = aws.String(listPrefix)
	}

	var names []string
	paginator := s3.NewListObjectsV2Paginator(f.client.Client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", f.URL(), err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), listPrefix)
			if name == "" || strings.HasSuffix(name, "/") {
				continue
			}
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

func s3ErrorIs404(err error) bool {
	var noKeyErr *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noKeyErr) || errors.As(err, &notFound)
}

func (f *s3Folder) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	key := f.key(name)
	ctx, span := f.span(ctx, "Open", key)
	defer span.End()

	out, err := f.client.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if s3ErrorIs404(err) {
			openFailed(ctx, f.scheme, "not_found")
			return nil, fmt.Errorf("open %s/%s: %w", f.URL(), name, ErrNotFound)
		}
		openFailed(ctx, f.scheme, "unknown")
		return nil, fmt.Errorf("open %s/%s: %w", f.URL(), name, err)
	}
	objectsOpened(ctx, f.scheme)
	return out.Body, nil
}

func (f *s3Folder) Create(ctx context.Context, name string) (Writer, error) {
	key := f.key(name)
	uploader := manager.NewUploader(f.client.Client)
	return newPipeWriter(ctx, f.scheme, func(ctx context.Context, r io.Reader) error {
		ctx, span := f.span(ctx, "Upload", key)
		defer span.End()

		_, err := uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(f.bucket),
			Key:    aws.String(key),
			Body:   r,
			Metadata: map[string]string{
				"writer": "corpusrunner",
			},
		})
		if err != nil {
			return fmt.Errorf("upload %s/%s: %w", f.URL(), name, err)
		}
		return nil
	}), nil
}

func (f *s3Folder) Fetch(ctx context.Context, name string) (*LocalFile, error) {
	key := f.key(name)
	ctx, span := f.span(ctx, "Fetch", key)
	defer span.End()

	// Keep the extension so file type detection works on the temp name.
	fh, err := os.CreateTemp(f.tempDir, "*-"+path.Base(key))
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	downloader := manager.NewDownloader(f.client.Client)
	size, err := downloader.Download(ctx, fh, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key),
	})
	_ = fh.Close()
	if err != nil {
		_ = os.Remove(fh.Name())
		if s3ErrorIs404(err) {
			openFailed(ctx, f.scheme, "not_found")
			return nil, fmt.Errorf("fetch %s/%s: %w", f.URL(), name, ErrNotFound)
		}
		openFailed(ctx, f.scheme, "unknown")
		return nil, fmt.Errorf("fetch %s/%s: %w", f.URL(), name, err)
	}

	objectsDownloaded(ctx, f.scheme, size)
	return &LocalFile{Path: fh.Name(), Size: size, temporary: true}, nil
}
