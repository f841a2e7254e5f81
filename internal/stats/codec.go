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
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"path"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Format selects the persisted encoding of a snapshot.
type Format int

const (
	// FormatJSON is the default, human readable encoding.
	FormatJSON Format = iota
	// FormatCBOR is a compact binary encoding of the same document.
	FormatCBOR
)

// FormatForName picks the encoding from a file name's extension.
func FormatForName(name string) Format {
	if strings.EqualFold(path.Ext(name), ".cbor") {
		return FormatCBOR
	}
	return FormatJSON
}

// wireEntry is the persisted form of one entry. Derived fields (std_dev,
// seconds, estimate) are written for readers of the file and ignored when
// decoding. Files without m2 fall back to the raw power sums.
type wireEntry struct {
	Type Kind `json:"type"`

	Value *int64 `json:"value,omitempty"`

	Count  *int64   `json:"count,omitempty"`
	Sum    *float64 `json:"sum,omitempty"`
	SumSq  *float64 `json:"sum_sq,omitempty"`
	M2     *float64 `json:"m2,omitempty"`
	Min    *float64 `json:"min,omitempty"`
	Max    *float64 `json:"max,omitempty"`
	Mean   *float64 `json:"mean,omitempty"`
	StdDev *float64 `json:"std_dev,omitempty"`
	Sketch []byte   `json:"sketch,omitempty"`

	TotalNs      *int64   `json:"total_ns,omitempty"`
	TotalSeconds *float64 `json:"total_seconds,omitempty"`

	Estimate *uint64 `json:"estimate,omitempty"`
	HLL      []byte  `json:"hll,omitempty"`

	Entries map[string]*wireEntry `json:"entries,omitempty"`
}

// Marshal serializes s as an indented JSON document.
func Marshal(s Stats) ([]byte, error) {
	return MarshalFormat(s, FormatJSON)
}

// Unmarshal parses a JSON document produced by Marshal.
func Unmarshal(data []byte) (Stats, error) {
	return UnmarshalFormat(data, FormatJSON)
}

// MarshalFormat serializes s in the requested format.
func MarshalFormat(s Stats, f Format) ([]byte, error) {
	w, err := toWire(s)
	if err != nil {
		return nil, err
	}
	switch f {
	case FormatCBOR:
		return cbor.Marshal(w)
	default:
		return json.MarshalIndent(w, "", "  ")
	}
}

// UnmarshalFormat parses data written by MarshalFormat with the same format.
func UnmarshalFormat(data []byte, f Format) (Stats, error) {
	var w map[string]*wireEntry
	var err error
	switch f {
	case FormatCBOR:
		err = cbor.Unmarshal(data, &w)
	default:
		err = json.Unmarshal(data, &w)
	}
	if err != nil {
		return nil, fmt.Errorf("decode stats: %w", err)
	}
	if w == nil {
		return nil, errors.New("decode stats: document is not an object")
	}
	return fromWire("", w)
}

func toWire(s Stats) (map[string]*wireEntry, error) {
	out := make(map[string]*wireEntry, len(s))
	for name, e := range s {
		we, err := entryToWire(e)
		if err != nil {
			return nil, fmt.Errorf("encode %q: %w", name, err)
		}
		out[name] = we
	}
	return out, nil
}

func entryToWire(e Entry) (*wireEntry, error) {
	we := &wireEntry{Type: e.Kind()}
	switch v := e.(type) {
	case *Counter:
		we.Value = ptr(v.Value)
	case *Timer:
		we.TotalNs = ptr(int64(v.Total))
		we.Count = ptr(v.Count)
		we.TotalSeconds = ptr(v.Total.Seconds())
	case *Distribution:
		we.Count = ptr(v.Count)
		we.Sum = ptr(v.Sum)
		we.SumSq = ptr(v.SumSq)
		if v.Count > 0 {
			we.M2 = ptr(v.M2)
			we.Min = ptr(v.Min)
			we.Max = ptr(v.Max)
			we.Mean = ptr(v.Mean())
			we.StdDev = ptr(v.StdDev())
		}
		we.Sketch = encodeSketch(v.sketch)
	case *Cardinality:
		b, err := encodeHLL(v.sketch)
		if err != nil {
			return nil, err
		}
		we.HLL = b
		we.Estimate = ptr(v.Estimate())
	case Stats:
		entries, err := toWire(v)
		if err != nil {
			return nil, err
		}
		we.Entries = entries
	default:
		return nil, fmt.Errorf("unsupported entry type %T", e)
	}
	return we, nil
}

func fromWire(prefix string, w map[string]*wireEntry) (Stats, error) {
	out := make(Stats, len(w))
	for name, we := range w {
		if we == nil {
			return nil, fmt.Errorf("decode stats: %q is null", prefix+name)
		}
		e, err := entryFromWire(prefix+name, we)
		if err != nil {
			return nil, err
		}
		out[name] = e
	}
	return out, nil
}

func entryFromWire(path string, we *wireEntry) (Entry, error) {
	missing := func(field string) error {
		return fmt.Errorf("decode stats: %s %q is missing %q", we.Type, path, field)
	}
	switch we.Type {
	case KindCounter:
		if we.Value == nil {
			return nil, missing("value")
		}
		return &Counter{Value: *we.Value}, nil
	case KindTimer:
		if we.TotalNs == nil {
			return nil, missing("total_ns")
		}
		if we.Count == nil {
			return nil, missing("count")
		}
		return &Timer{Total: time.Duration(*we.TotalNs), Count: *we.Count}, nil
	case KindDistribution:
		if we.Count == nil {
			return nil, missing("count")
		}
		d := &Distribution{Count: *we.Count}
		if d.Count < 0 {
			return nil, fmt.Errorf("decode stats: distribution %q has negative count", path)
		}
		if d.Count > 0 {
			for field, p := range map[string]*float64{"sum": we.Sum, "sum_sq": we.SumSq, "min": we.Min, "max": we.Max} {
				if p == nil {
					return nil, missing(field)
				}
			}
			d.Sum, d.SumSq, d.Min, d.Max = *we.Sum, *we.SumSq, *we.Min, *we.Max
			n := float64(d.Count)
			d.mean = d.Sum / n
			if we.Mean != nil {
				d.mean = *we.Mean
			}
			if we.M2 != nil {
				d.M2 = *we.M2
			} else {
				d.M2 = max(0, d.SumSq-d.Sum*d.Sum/n)
			}
			if d.M2 < 0 || math.IsNaN(d.M2) || math.IsInf(d.M2, 0) {
				return nil, fmt.Errorf("decode stats: distribution %q has invalid m2", path)
			}
		}
		sk, err := decodeSketch(we.Sketch)
		if err != nil {
			return nil, fmt.Errorf("decode stats: distribution %q sketch: %w", path, err)
		}
		d.sketch = sk
		return d, nil
	case KindCardinality:
		h, err := decodeHLL(we.HLL)
		if err != nil {
			return nil, fmt.Errorf("decode stats: cardinality %q sketch: %w", path, err)
		}
		return &Cardinality{sketch: h}, nil
	case KindGroup:
		return fromWire(path+"/", we.Entries)
	case "":
		return nil, fmt.Errorf("decode stats: %q has no type", path)
	default:
		return nil, fmt.Errorf("decode stats: %q has unknown type %q", path, we.Type)
	}
}

func ptr[T any](v T) *T {
	return &v
}
