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

package stats

import (
	"fmt"

	"go.opentelemetry.io/otel"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var filesLoadedCounter otelmetric.Int64Counter

func init() {
	meter := otel.Meter("github.com/cardinalhq/corpusrunner/internal/stats")

	var err error
	filesLoadedCounter, err = meter.Int64Counter(
		"corpusrunner.stats.files.loaded",
		otelmetric.WithDescription("Number of stats snapshot files decoded"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create stats.files.loaded counter: %w", err))
	}
}
