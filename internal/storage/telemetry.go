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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	openCount     metric.Int64Counter
	openErrors    metric.Int64Counter
	downloadBytes metric.Int64Counter
	uploadCount   metric.Int64Counter
	uploadBytes   metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/corpusrunner/internal/storage")

	var err error
	openCount, err = meter.Int64Counter(
		"corpusrunner.storage.open.count",
		metric.WithDescription("Number of objects opened or fetched for reading"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create open.count counter: %w", err))
	}

	openErrors, err = meter.Int64Counter(
		"corpusrunner.storage.open.errors",
		metric.WithDescription("Number of failed object reads"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create open.errors counter: %w", err))
	}

	downloadBytes, err = meter.Int64Counter(
		"corpusrunner.storage.download.bytes",
		metric.WithDescription("Bytes downloaded to local disk"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create download.bytes counter: %w", err))
	}

	uploadCount, err = meter.Int64Counter(
		"corpusrunner.storage.upload.count",
		metric.WithDescription("Number of objects written"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create upload.count counter: %w", err))
	}

	uploadBytes, err = meter.Int64Counter(
		"corpusrunner.storage.upload.bytes",
		metric.WithDescription("Bytes written to objects"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create upload.bytes counter: %w", err))
	}
}

func objectsOpened(ctx context.Context, scheme string) {
	openCount.Add(ctx, 1, metric.WithAttributes(attribute.String("scheme", scheme)))
}

func openFailed(ctx context.Context, scheme, reason string) {
	openErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scheme", scheme),
		attribute.String("reason", reason),
	))
}

func objectsDownloaded(ctx context.Context, scheme string, size int64) {
	attrs := metric.WithAttributes(attribute.String("scheme", scheme))
	openCount.Add(ctx, 1, attrs)
	downloadBytes.Add(ctx, size, attrs)
}

func objectsWritten(ctx context.Context, scheme string, size int64) {
	attrs := metric.WithAttributes(attribute.String("scheme", scheme))
	uploadCount.Add(ctx, 1, attrs)
	uploadBytes.Add(ctx, size, attrs)
}
