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

package awsclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go/middleware"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"go.opentelemetry.io/otel/trace"
)

// GCSEndpoint is the S3-interoperable endpoint of Google Cloud Storage.
const GCSEndpoint = "https://storage.googleapis.com"

// S3Client pairs an S3 API client with the tracer used to span its calls.
type S3Client struct {
	Client *s3.Client
	Tracer trace.Tracer
}

// S3Config selects the credentials and endpoint of one S3 client. The zero
// value talks to AWS in the manager's default region with its default
// credentials.
type S3Config struct {
	Region string
	// RoleARN is assumed through STS when set.
	RoleARN string
	// Endpoint overrides the service URL (MinIO, Ceph, a GCS proxy).
	Endpoint     string
	UsePathStyle bool
	InsecureTLS  bool
	// GCS signs requests the way Google Cloud Storage's interoperability
	// API expects and defaults Endpoint to GCSEndpoint.
	GCS bool
}

func (c S3Config) configure(cfg *aws.Config) {
	if c.InsecureTLS {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		cfg.HTTPClient = &http.Client{Transport: tr}
	}
	if c.GCS {
		cfg.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		// GCS may transparently decompress .gz objects, so the bytes received
		// will not match a checksum computed over the stored data.
		cfg.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	}
}

func (c S3Config) s3Options(o *s3.Options) {
	endpoint := c.Endpoint
	if endpoint == "" && c.GCS {
		endpoint = GCSEndpoint
	}
	if endpoint != "" {
		o.BaseEndpoint = aws.String(endpoint)
	}
	o.UsePathStyle = c.UsePathStyle
	if c.GCS {
		signForGCS(o)
	}
}

const acceptEncodingHeader = "Accept-Encoding"

type acceptEncodingKey struct{}

func getAcceptEncodingKey(ctx context.Context) (v string) {
	v, _ = middleware.GetStackValue(ctx, acceptEncodingKey{}).(string)
	return v
}

func setAcceptEncodingKey(ctx context.Context, value string) context.Context {
	return middleware.WithStackValue(ctx, acceptEncodingKey{}, value)
}

// GCS includes Accept-Encoding in its signature calculation while SigV4 does not,
// so the header is lifted out before signing and restored afterwards.
var dropAcceptEncodingHeader = middleware.FinalizeMiddlewareFunc("DropAcceptEncodingHeader",
	func(ctx context.Context, in middleware.FinalizeInput, next middleware.FinalizeHandler) (out middleware.FinalizeOutput, metadata middleware.Metadata, err error) {
		req, ok := in.Request.(*smithyhttp.Request)
		if !ok {
			return out, metadata, &v4.SigningError{Err: fmt.Errorf("unexpected request middleware type %T", in.Request)}
		}

		ctx = setAcceptEncodingKey(ctx, req.Header.Get(acceptEncodingHeader))
		req.Header.Del(acceptEncodingHeader)
		in.Request = req

		return next.HandleFinalize(ctx, in)
	},
)

var replaceAcceptEncodingHeader = middleware.FinalizeMiddlewareFunc("ReplaceAcceptEncodingHeader",
	func(ctx context.Context, in middleware.FinalizeInput, next middleware.FinalizeHandler) (out middleware.FinalizeOutput, metadata middleware.Metadata, err error) {
		req, ok := in.Request.(*smithyhttp.Request)
		if !ok {
			return out, metadata, &v4.SigningError{Err: fmt.Errorf("unexpected request middleware type %T", in.Request)}
		}

		req.Header.Set(acceptEncodingHeader, getAcceptEncodingKey(ctx))
		in.Request = req

		return next.HandleFinalize(ctx, in)
	},
)

func signForGCS(o *s3.Options) {
	o.APIOptions = append(o.APIOptions, func(stack *middleware.Stack) error {
		if err := stack.Finalize.Insert(dropAcceptEncodingHeader, "Signing", middleware.Before); err != nil {
			return err
		}
		return stack.Finalize.Insert(replaceAcceptEncodingHeader, "Signing", middleware.After)
	})
}

type roleKey struct {
	Region  string
	RoleARN string
}

// GetS3 returns an S3 client for sc. Credentials for an assumed role are
// created once and reused by later calls with the same region and role.
func (m *Manager) GetS3(ctx context.Context, sc S3Config) (*S3Client, error) {
	if sc.Region == "" {
		sc.Region = m.baseCfg.Region
	}

	provider := m.credentials(sc.Region, sc.RoleARN)
	cfg := m.baseCfg.Copy()
	cfg.Region = sc.Region
	cfg.Credentials = provider
	sc.configure(&cfg)

	return &S3Client{Client: s3.NewFromConfig(cfg, sc.s3Options), Tracer: m.tracer}, nil
}

func (m *Manager) credentials(region, roleARN string) aws.CredentialsProvider {
	key := roleKey{Region: region, RoleARN: roleARN}
	m.RLock()
	provider, ok := m.providers[key]
	m.RUnlock()
	if ok {
		return provider
	}

	m.Lock()
	defer m.Unlock()
	if provider, ok = m.providers[key]; ok {
		return provider
	}
	if roleARN == "" {
		provider = m.baseCfg.Credentials
	} else {
		p := stscreds.NewAssumeRoleProvider(m.stsClient, roleARN, func(o *stscreds.AssumeRoleOptions) {
			o.RoleSessionName = m.sessionName
		})
		provider = aws.NewCredentialsCache(p)
	}
	m.providers[key] = provider
	return provider
}
