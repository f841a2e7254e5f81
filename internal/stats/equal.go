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

import "math"

// DefaultTolerance is the relative tolerance Equal callers use for values
// whose floating point result depends on merge order.
const DefaultTolerance = 1e-9

// cardinalityTolerance allows for the HyperLogLog switching between its sparse
// and dense representations depending on merge order.
const cardinalityTolerance = 0.02

var comparedQuantiles = []float64{0, 0.25, 0.5, 0.75, 0.9, 0.99, 1}

// Equal reports whether two snapshots hold the same entries with the same
// values. Floating point aggregates are compared with relative tolerance tol.
func Equal(a, b Stats, tol float64) bool {
	if len(a) != len(b) {
		return false
	}
	for name, ea := range a {
		eb, ok := b[name]
		if !ok || !entryEqual(ea, eb, tol) {
			return false
		}
	}
	return true
}

func entryEqual(a, b Entry, tol float64) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	switch ea := a.(type) {
	case *Counter:
		return ea.Value == b.(*Counter).Value
	case *Timer:
		eb := b.(*Timer)
		return ea.Total == eb.Total && ea.Count == eb.Count
	case *Distribution:
		return distributionEqual(ea, b.(*Distribution), tol)
	case *Cardinality:
		return approxEqual(float64(ea.Estimate()), float64(b.(*Cardinality).Estimate()), cardinalityTolerance)
	case Stats:
		return Equal(ea, b.(Stats), tol)
	}
	return false
}

func distributionEqual(a, b *Distribution, tol float64) bool {
	if a.Count != b.Count {
		return false
	}
	if a.Count == 0 {
		return true
	}
	if !approxEqual(a.Sum, b.Sum, tol) || !approxEqual(a.SumSq, b.SumSq, tol) ||
		!approxEqual(a.mean, b.mean, tol) || !approxEqual(a.M2, b.M2, tol) ||
		a.Min != b.Min || a.Max != b.Max {
		return false
	}
	for _, q := range comparedQuantiles {
		qa, oka := a.Quantile(q)
		qb, okb := b.Quantile(q)
		if oka != okb || !approxEqual(qa, qb, tol) {
			return false
		}
	}
	return true
}

func approxEqual(a, b, tol float64) bool {
	if a == b {
		return true
	}
	scale := math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
	return math.Abs(a-b) <= tol*scale
}
