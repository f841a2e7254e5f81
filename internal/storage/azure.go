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
	"fmt"
	"io"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cardinalhq/corpusrunner/internal/azureclient"
)

// azureFolder is a Folder below a blob name prefix of an Azure container.
type azureFolder struct {
	client    *azureclient.BlobClient
	container string
	prefix    string
	tempDir   string
}

func (f *azureFolder) URL() string {
	if f.prefix == "" {
		return "az://" + f.container
	}
	return "az://" + f.container + "/" + f.prefix
}

func (f *azureFolder) span(ctx context.Context, op, blobName string) (context.Context, trace.Span) {
	return f.client.Tracer.Start(ctx, "storage.az"+op,
		trace.WithAttributes(
			attribute.String("container", f.container),
			attribute.String("blob", blobName),
		),
	)
}

func (f *azureFolder) List(ctx context.Context) ([]string, error) {
	ctx, span := f.span(ctx, "List", f.prefix)
	defer span.End()

	opts := &container.ListBlobsFlatOptions{}
	listPrefix := ""
	if f.prefix != "" {
		listPrefix = f.prefix + "/"
		opts.Prefix = to.Ptr(listPrefix)
	}

	var names []string
	pager := f.client.Client.NewListBlobsFlatPager(f.container, opts)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", f.URL(), err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			name := strings.TrimPrefix(*item.Name, listPrefix)
			if name == "" || strings.HasSuffix(name, "/") {
				continue
			}
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

func (f *azureFolder) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	blobName := cleanKey(f.prefix, name)
	ctx, span := f.span(ctx, "Open", blobName)
	defer span.End()

	resp, err := f.client.Client.DownloadStream(ctx, f.container, blobName, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			openFailed(ctx, "az", "not_found")
			return nil, fmt.Errorf("open %s/%s: %w", f.URL(), name, ErrNotFound)
		}
		openFailed(ctx, "az", "unknown")
		return nil, fmt.Errorf("open %s/%s: %w", f.URL(), name, err)
	}
	objectsOpened(ctx, "az")
	return resp.Body, nil
}

func (f *azureFolder) Create(ctx context.Context, name string) (Writer, error) {
	blobName := cleanKey(f.prefix, name)
	return newPipeWriter(ctx, "az", func(ctx context.Context, r io.Reader) error {
		ctx, span := f.span(ctx, "Upload", blobName)
		defer span.End()

		if _, err := f.client.Client.UploadStream(ctx, f.container, blobName, r, nil); err != nil {
			return fmt.Errorf("upload %s/%s: %w", f.URL(), name, err)
		}
		return nil
	}), nil
}

func (f *azureFolder) Fetch(ctx context.Context, name string) (*LocalFile, error) {
	blobName := cleanKey(f.prefix, name)
	ctx, span := f.span(ctx, "Fetch", blobName)
	defer span.End()

	fh, err := os.CreateTemp(f.tempDir, "*-"+path.Base(blobName))
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	size, err := f.client.Client.DownloadFile(ctx, f.container, blobName, fh, nil)
	_ = fh.Close()
	if err != nil {
		_ = os.Remove(fh.Name())
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			openFailed(ctx, "az", "not_found")
			return nil, fmt.Errorf("fetch %s/%s: %w", f.URL(), name, ErrNotFound)
		}
		openFailed(ctx, "az", "unknown")
		return nil, fmt.Errorf("fetch %s/%s: %w", f.URL(), name, err)
	}

	objectsDownloaded(ctx, "az", size)
	return &LocalFile{Path: fh.Name(), Size: size, temporary: true}, nil
}
