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
	"maps"
	"slices"
)

// KindMismatchError reports two snapshots recording the same metric name as
// different kinds. Such snapshots cannot be merged.
type KindMismatchError struct {
	Name  string
	Left  Kind
	Right Kind
}

func (e *KindMismatchError) Error() string {
	return fmt.Sprintf("stats: cannot merge %q: %s vs %s", e.Name, e.Left, e.Right)
}

// Merge folds snapshots left to right starting from the empty identity.
// Inputs are never modified. Merge with no arguments returns New().
func Merge(all ...Stats) (Stats, error) {
	acc := New()
	for _, s := range all {
		merged, err := acc.Merge(s)
		if err != nil {
			return nil, err
		}
		acc = merged
	}
	return acc, nil
}

// Merge returns the combination of s and other. A name present on only one
// side is copied as is; neither input is modified.
func (s Stats) Merge(other Stats) (Stats, error) {
	return mergeGroup("", s, other)
}

func mergeGroup(prefix string, a, b Stats) (Stats, error) {
	out := make(Stats, max(len(a), len(b)))
	for name, e := range a {
		out[name] = cloneEntry(e)
	}
	for _, name := range sortedKeys(b) {
		eb := b[name]
		ea, ok := out[name]
		if !ok {
			out[name] = cloneEntry(eb)
			continue
		}
		merged, err := mergeEntry(prefix+name, ea, eb)
		if err != nil {
			return nil, err
		}
		out[name] = merged
	}
	return out, nil
}

// mergeEntry combines into a, which must already be a private copy.
func mergeEntry(path string, a, b Entry) (Entry, error) {
	if a.Kind() != b.Kind() {
		return nil, &KindMismatchError{Name: path, Left: a.Kind(), Right: b.Kind()}
	}
	switch ea := a.(type) {
	case *Counter:
		ea.Value += b.(*Counter).Value
		return ea, nil
	case *Timer:
		eb := b.(*Timer)
		ea.Total += eb.Total
		ea.Count += eb.Count
		return ea, nil
	case *Distribution:
		if err := ea.merge(b.(*Distribution)); err != nil {
			return nil, fmt.Errorf("stats: merging %q: %w", path, err)
		}
		return ea, nil
	case *Cardinality:
		if err := ea.merge(b.(*Cardinality)); err != nil {
			return nil, fmt.Errorf("stats: merging %q: %w", path, err)
		}
		return ea, nil
	case Stats:
		return mergeGroup(path+"/", ea, b.(Stats))
	default:
		return nil, fmt.Errorf("stats: unsupported entry type %T for %q", a, path)
	}
}

func (d *Distribution) merge(o *Distribution) error {
	if o.Count == 0 {
		return nil
	}
	if d.Count == 0 {
		*d = *o.clone()
		return nil
	}
	na, nb := float64(d.Count), float64(o.Count)
	n := na + nb
	delta := saturate(o.mean - d.mean)
	d.mean = saturate(d.mean + delta*(nb/n))
	d.M2 = saturate(d.M2 + o.M2 + saturate(saturate(delta*delta)*(na/n)*nb))

	d.Count += o.Count
	d.Sum = saturate(d.Sum + o.Sum)
	d.SumSq = saturate(d.SumSq + o.SumSq)
	d.Min = min(d.Min, o.Min)
	d.Max = max(d.Max, o.Max)

	switch {
	case o.sketch == nil:
	case d.sketch == nil:
		d.sketch = o.sketch.Copy()
	default:
		if err := d.sketch.MergeWith(o.sketch); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cardinality) merge(o *Cardinality) error {
	switch {
	case o.sketch == nil:
		return nil
	case c.sketch == nil:
		c.sketch = o.sketch.Clone()
		return nil
	default:
		return c.sketch.Merge(o.sketch)
	}
}

func (d *Distribution) clone() *Distribution {
	out := *d
	if d.sketch != nil {
		out.sketch = d.sketch.Copy()
	}
	return &out
}

func cloneEntry(e Entry) Entry {
	switch v := e.(type) {
	case *Counter:
		c := *v
		return &c
	case *Timer:
		t := *v
		return &t
	case *Distribution:
		return v.clone()
	case *Cardinality:
		c := &Cardinality{}
		if v.sketch != nil {
			c.sketch = v.sketch.Clone()
		}
		return c
	case Stats:
		out := make(Stats, len(v))
		for name, child := range v {
			out[name] = cloneEntry(child)
		}
		return out
	default:
		return e
	}
}

func sortedKeys(s Stats) []string {
	return slices.Sorted(maps.Keys(s))
}
