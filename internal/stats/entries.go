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
	"math"
	"sync"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
	"github.com/DataDog/sketches-go/ddsketch/mapping"
	"github.com/DataDog/sketches-go/ddsketch/store"
	"github.com/axiomhq/hyperloglog"
	"github.com/cespare/xxhash/v2"
)

// Counter is a monotonic total.
type Counter struct {
	Value int64
}

func (*Counter) Kind() Kind { return KindCounter }
func (*Counter) isEntry()   {}

// Add increases the counter by n.
func (c *Counter) Add(n int64) {
	c.Value += n
}

// Distribution is a running summary of a numeric field. It keeps the running
// mean and the sum of squared deviations (M2) for variance plus a DDSketch for
// quantiles, so raw samples are never stored. Sums saturate at
// ±math.MaxFloat64 instead of overflowing to infinity.
type Distribution struct {
	Count int64
	Sum   float64
	SumSq float64
	M2    float64
	Min   float64
	Max   float64

	mean   float64
	sketch *ddsketch.DDSketch
}

func (*Distribution) Kind() Kind { return KindDistribution }
func (*Distribution) isEntry()   {}

// Add records one observation. Non-finite values are ignored.
func (d *Distribution) Add(v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	if d.Count == 0 || v < d.Min {
		d.Min = v
	}
	if d.Count == 0 || v > d.Max {
		d.Max = v
	}
	d.Count++
	d.Sum = saturate(d.Sum + v)
	d.SumSq = saturate(d.SumSq + v*v)

	delta := saturate(v - d.mean)
	d.mean = saturate(d.mean + delta/float64(d.Count))
	d.M2 = saturate(d.M2 + saturate(delta*saturate(v-d.mean)))

	if d.sketch == nil {
		d.sketch = newSketch()
	}
	// Values beyond the sketch's indexable range still count toward the moments.
	_ = d.sketch.Add(v)
}

// Mean returns the arithmetic mean, or 0 for an empty distribution.
func (d *Distribution) Mean() float64 {
	return d.mean
}

// Variance returns the population variance.
func (d *Distribution) Variance() float64 {
	if d.Count == 0 || d.M2 <= 0 {
		return 0
	}
	return d.M2 / float64(d.Count)
}

// StdDev returns the population standard deviation.
func (d *Distribution) StdDev() float64 {
	return math.Sqrt(d.Variance())
}

// Quantile returns the approximate value at quantile q (0 <= q <= 1).
// The second result is false when no sketch data is available.
func (d *Distribution) Quantile(q float64) (float64, bool) {
	if d.sketch == nil || d.sketch.IsEmpty() {
		return 0, false
	}
	v, err := d.sketch.GetValueAtQuantile(q)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Timer accumulates elapsed time and invocation count for a code region.
type Timer struct {
	Total time.Duration
	Count int64
}

func (*Timer) Kind() Kind { return KindTimer }
func (*Timer) isEntry()   {}

// Record adds one invocation that took elapsed.
func (t *Timer) Record(elapsed time.Duration) {
	t.Total += elapsed
	t.Count++
}

// Mean returns the average duration of one invocation.
func (t *Timer) Mean() time.Duration {
	if t.Count == 0 {
		return 0
	}
	return t.Total / time.Duration(t.Count)
}

// Cardinality estimates the number of distinct values observed.
type Cardinality struct {
	sketch *hyperloglog.Sketch
}

func (*Cardinality) Kind() Kind { return KindCardinality }
func (*Cardinality) isEntry()   {}

// AddString records one value.
func (c *Cardinality) AddString(s string) {
	if c.sketch == nil {
		c.sketch = hyperloglog.New14()
	}
	c.sketch.InsertHash(xxhash.Sum64String(s))
}

// Estimate returns the approximate number of distinct values recorded.
func (c *Cardinality) Estimate() uint64 {
	if c.sketch == nil {
		return 0
	}
	return c.sketch.Estimate()
}

// saturate maps an overflowed result back onto the finite range.
func saturate(v float64) float64 {
	switch {
	case math.IsInf(v, 1):
		return math.MaxFloat64
	case math.IsInf(v, -1):
		return -math.MaxFloat64
	}
	return v
}

var (
	sketchRelativeAccuracy = 0.01
	mappingOnce            sync.Once
	sharedMapping          mapping.IndexMapping
)

func getSharedMapping() mapping.IndexMapping {
	mappingOnce.Do(func() {
		m, err := mapping.NewLogarithmicMapping(sketchRelativeAccuracy)
		if err != nil {
			panic(err)
		}
		sharedMapping = m
	})
	return sharedMapping
}

// newSketch builds a sketch that accepts negative values as well as positive ones.
func newSketch() *ddsketch.DDSketch {
	return ddsketch.NewDDSketch(getSharedMapping(), store.NewDenseStore(), store.NewDenseStore())
}

func encodeSketch(sk *ddsketch.DDSketch) []byte {
	if sk == nil || sk.IsEmpty() {
		return nil
	}
	var buf []byte
	sk.Encode(&buf, false)
	return buf
}

func decodeSketch(data []byte) (*ddsketch.DDSketch, error) {
	if len(data) == 0 {
		return nil, nil
	}
	return ddsketch.DecodeDDSketch(data, store.DenseStoreConstructor, getSharedMapping())
}

func encodeHLL(h *hyperloglog.Sketch) ([]byte, error) {
	if h == nil {
		return nil, nil
	}
	return h.MarshalBinary()
}

func decodeHLL(data []byte) (*hyperloglog.Sketch, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var h hyperloglog.Sketch
	if err := h.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return &h, nil
}
