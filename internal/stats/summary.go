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
	"strings"
	"time"
)

// String renders a human readable summary, one entry per line, with nested
// groups indented under their name.
func (s Stats) String() string {
	var b strings.Builder
	writeSummary(&b, s, 0)
	return strings.TrimRight(b.String(), "\n")
}

func writeSummary(b *strings.Builder, s Stats, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, name := range sortedKeys(s) {
		switch e := s[name].(type) {
		case Stats:
			fmt.Fprintf(b, "%s%s:\n", indent, name)
			writeSummary(b, e, depth+1)
		default:
			fmt.Fprintf(b, "%s%s: %s\n", indent, name, describe(e))
		}
	}
}

func describe(e Entry) string {
	switch v := e.(type) {
	case *Counter:
		return fmt.Sprintf("%d", v.Value)
	case *Timer:
		return fmt.Sprintf("%s total, %d calls, %s mean",
			v.Total.Round(time.Microsecond), v.Count, v.Mean().Round(time.Microsecond))
	case *Distribution:
		if v.Count == 0 {
			return "n=0"
		}
		out := fmt.Sprintf("n=%d mean=%.4g std=%.4g min=%.4g max=%.4g",
			v.Count, v.Mean(), v.StdDev(), v.Min, v.Max)
		if p50, ok := v.Quantile(0.5); ok {
			p99, _ := v.Quantile(0.99)
			out += fmt.Sprintf(" p50=%.4g p99=%.4g", p50, p99)
		}
		return out
	case *Cardinality:
		return fmt.Sprintf("~%d distinct", v.Estimate())
	}
	return string(e.Kind())
}
