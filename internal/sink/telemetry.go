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

package sink

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var documentsWrittenCounter otelmetric.Int64Counter

func init() {
	meter := otel.Meter("github.com/cardinalhq/corpusrunner/internal/sink")

	var err error
	documentsWrittenCounter, err = meter.Int64Counter(
		"corpusrunner.sink.documents.written",
		otelmetric.WithDescription("Number of documents delivered to a sink"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create sink.documents.written counter: %w", err))
	}
}

func sinkAttr(kind string) otelmetric.AddOption {
	return otelmetric.WithAttributes(attribute.String("sink", kind))
}
