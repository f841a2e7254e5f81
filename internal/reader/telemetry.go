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

package reader

import (
	"fmt"

	"go.opentelemetry.io/otel"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	rowsInCounter      otelmetric.Int64Counter
	documentsCounter   otelmetric.Int64Counter
	rowsDroppedCounter otelmetric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/corpusrunner/internal/reader")

	var err error
	rowsInCounter, err = meter.Int64Counter(
		"corpusrunner.reader.rows.in",
		otelmetric.WithDescription("Number of dataset rows handed to the adapter"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create reader.rows.in counter: %w", err))
	}

	documentsCounter, err = meter.Int64Counter(
		"corpusrunner.reader.documents",
		otelmetric.WithDescription("Number of documents emitted by readers"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create reader.documents counter: %w", err))
	}

	rowsDroppedCounter, err = meter.Int64Counter(
		"corpusrunner.reader.rows.dropped",
		otelmetric.WithDescription("Number of rows the adapter dropped"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create reader.rows.dropped counter: %w", err))
	}
}
