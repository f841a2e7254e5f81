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
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cardinalhq/corpusrunner/internal/awsclient"
	"github.com/cardinalhq/corpusrunner/internal/azureclient"
)

// Options configure the object storage clients used by a Resolver.
type Options struct {
	Region        string `mapstructure:"region"`
	Endpoint      string `mapstructure:"endpoint"`
	UsePathStyle  bool   `mapstructure:"use_path_style"`
	InsecureTLS   bool   `mapstructure:"insecure_tls"`
	Role          string `mapstructure:"role"`
	AzureAccount  string `mapstructure:"azure_account"`
	AzureEndpoint string `mapstructure:"azure_endpoint"`
	TempDir       string `mapstructure:"temp_dir"`
}

// Location is a parsed folder URL.
type Location struct {
	Scheme string // "file", "s3", "gs" or "az"
	Bucket string // bucket or container, empty for "file"
	Path   string // directory for "file", key prefix otherwise
}

// ParseLocation splits a folder URL. Anything without a recognised scheme is
// a local path.
func ParseLocation(raw string) (Location, error) {
	if raw == "" {
		return Location{}, fmt.Errorf("empty storage location")
	}
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return Location{Scheme: "file", Path: raw}, nil
	}
	switch scheme {
	case "file":
		u, err := url.Parse(raw)
		if err != nil {
			return Location{}, fmt.Errorf("parse %q: %w", raw, err)
		}
		p := u.Path
		if u.Host != "" && u.Host != "localhost" {
			p = u.Host + p
		}
		return Location{Scheme: "file", Path: p}, nil
	case "s3", "gs", "az":
		bucket, prefix, _ := strings.Cut(rest, "/")
		if bucket == "" {
			return Location{}, fmt.Errorf("%q: missing bucket", raw)
		}
		prefix = strings.Trim(prefix, "/")
		if prefix != "" {
			prefix = path.Clean(prefix)
		}
		return Location{Scheme: scheme, Bucket: bucket, Path: prefix}, nil
	default:
		return Location{}, fmt.Errorf("%q: unsupported storage scheme %q", raw, scheme)
	}
}

// Resolver opens folders by URL. Cloud clients are created on first use and
// shared by every folder it opens.
type Resolver struct {
	opts Options

	awsOnce sync.Once
	aws     *awsclient.Manager
	awsErr  error

	azureOnce sync.Once
	azure     *azureclient.Manager
	azureErr  error
}

// NewResolver returns a Resolver using opts for every cloud folder.
func NewResolver(opts Options) *Resolver {
	return &Resolver{opts: opts}
}

// Open returns the Folder at raw.
func (r *Resolver) Open(ctx context.Context, raw string) (Folder, error) {
	loc, err := ParseLocation(raw)
	if err != nil {
		return nil, err
	}
	switch loc.Scheme {
	case "file":
		return NewLocalFolder(filepath.FromSlash(loc.Path)), nil
	case "s3", "gs":
		client, err := r.s3Client(ctx, loc.Scheme)
		if err != nil {
			return nil, err
		}
		return &s3Folder{
			client:  client,
			scheme:  loc.Scheme,
			bucket:  loc.Bucket,
			prefix:  loc.Path,
			tempDir: r.opts.TempDir,
		}, nil
	case "az":
		client, err := r.blobClient(ctx)
		if err != nil {
			return nil, err
		}
		return &azureFolder{
			client:    client,
			container: loc.Bucket,
			prefix:    loc.Path,
			tempDir:   r.opts.TempDir,
		}, nil
	}
	return nil, fmt.Errorf("unsupported storage scheme %q", loc.Scheme)
}

func (r *Resolver) s3Client(ctx context.Context, scheme string) (*awsclient.S3Client, error) {
	r.awsOnce.Do(func() {
		r.aws, r.awsErr = awsclient.NewManager(ctx, "corpusrunner")
	})
	if r.awsErr != nil {
		return nil, fmt.Errorf("aws client manager: %w", r.awsErr)
	}
	return r.aws.GetS3(ctx, r.s3Config(scheme))
}

func (r *Resolver) s3Config(scheme string) awsclient.S3Config {
	sc := awsclient.S3Config{
		Region:      r.opts.Region,
		RoleARN:     r.opts.Role,
		InsecureTLS: r.opts.InsecureTLS,
		GCS:         scheme == "gs",
	}
	if !sc.GCS {
		sc.Endpoint = r.opts.Endpoint
		sc.UsePathStyle = r.opts.UsePathStyle
	}
	return sc
}

func (r *Resolver) blobClient(ctx context.Context) (*azureclient.BlobClient, error) {
	r.azureOnce.Do(func() {
		r.azure, r.azureErr = azureclient.NewManager(ctx)
	})
	if r.azureErr != nil {
		return nil, fmt.Errorf("azure client manager: %w", r.azureErr)
	}

	opts := []azureclient.BlobOption{azureclient.WithBlobStorageAccount(r.opts.AzureAccount)}
	if r.opts.AzureEndpoint != "" {
		opts = append(opts, azureclient.WithBlobEndpoint(r.opts.AzureEndpoint))
	}
	return r.azure.GetBlob(ctx, opts...)
}

// JoinURL appends a relative name to a folder URL.
func JoinURL(base, name string) string {
	if base == "" {
		return name
	}
	if !strings.Contains(base, "://") {
		return filepath.Join(base, filepath.FromSlash(name))
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(name, "/")
}

// SplitURL separates the last element of a file URL from its folder.
func SplitURL(raw string) (dir, name string) {
	if !strings.Contains(raw, "://") {
		dir, name = filepath.Split(raw)
		if dir == "" {
			dir = "."
		}
		return filepath.Clean(dir), name
	}
	start := strings.Index(raw, "://") + 3
	i := strings.LastIndex(raw, "/")
	if i < start {
		return raw, ""
	}
	return raw[:i], raw[i+1:]
}

// RelativeTo reports the name target would have when listed from the folder
// at base, if target lies inside it.
func RelativeTo(base, target string) (string, bool) {
	b, err := ParseLocation(base)
	if err != nil {
		return "", false
	}
	t, err := ParseLocation(target)
	if err != nil {
		return "", false
	}
	if b.Scheme != t.Scheme || b.Bucket != t.Bucket {
		return "", false
	}
	if b.Scheme == "file" {
		absBase, err := filepath.Abs(filepath.FromSlash(b.Path))
		if err != nil {
			return "", false
		}
		absTarget, err := filepath.Abs(filepath.FromSlash(t.Path))
		if err != nil {
			return "", false
		}
		rel, err := filepath.Rel(absBase, absTarget)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", false
		}
		return filepath.ToSlash(rel), true
	}
	if b.Path == "" {
		return t.Path, t.Path != ""
	}
	rel, ok := strings.CutPrefix(t.Path, b.Path+"/")
	return rel, ok && rel != ""
}
