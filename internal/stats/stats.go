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

// Package stats is the per-worker statistics model and the merge used to
// combine snapshots from many workers into one report.
//
// A Stats value maps metric names to entries of five kinds: counters,
// distributions, timers, cardinality estimates and nested groups. Every
// kind has an associative and commutative merge with an identity, so
// snapshots may be folded in any order or grouping.
package stats

import (
	"fmt"
	"time"
)

// Kind names the shape of an Entry. It is the "type" field of the persisted form.
type Kind string

const (
	KindCounter      Kind = "counter"
	KindDistribution Kind = "distribution"
	KindTimer        Kind = "timer"
	KindCardinality  Kind = "cardinality"
	KindGroup        Kind = "group"
)

// Entry is one named metric. The set of implementations is closed; merge and
// codec code switch over the concrete types.
type Entry interface {
	Kind() Kind
	isEntry()
}

// Stats is a named, possibly nested, collection of metric entries owned by a
// single worker. The zero value is not usable for recording; use New.
type Stats map[string]Entry

// New returns an empty Stats, which is also the identity for Merge.
func New() Stats {
	return Stats{}
}

func (Stats) Kind() Kind { return KindGroup }
func (Stats) isEntry()   {}

// Counter returns the counter named name, creating it if needed.
func (s Stats) Counter(name string) *Counter {
	return getOrCreate(s, name, func() *Counter { return &Counter{} })
}

// Distribution returns the distribution named name, creating it if needed.
func (s Stats) Distribution(name string) *Distribution {
	return getOrCreate(s, name, func() *Distribution { return &Distribution{} })
}

// Timer returns the timer named name, creating it if needed.
func (s Stats) Timer(name string) *Timer {
	return getOrCreate(s, name, func() *Timer { return &Timer{} })
}

// Cardinality returns the cardinality estimator named name, creating it if needed.
func (s Stats) Cardinality(name string) *Cardinality {
	return getOrCreate(s, name, func() *Cardinality { return &Cardinality{} })
}

// Group returns the nested Stats named name, creating it if needed.
func (s Stats) Group(name string) Stats {
	return getOrCreate(s, name, New)
}

// Increment adds n to the counter named name.
func (s Stats) Increment(name string, n int64) {
	s.Counter(name).Add(n)
}

// Observe records v in the distribution named name.
func (s Stats) Observe(name string, v float64) {
	s.Distribution(name).Add(v)
}

// ObserveDistinct records value in the cardinality estimator named name.
func (s Stats) ObserveDistinct(name string, value string) {
	s.Cardinality(name).AddString(value)
}

// StartTimer starts timing a region recorded under name. Calling the returned
// function stops the clock and records one invocation.
func (s Stats) StartTimer(name string) func() {
	t := s.Timer(name)
	start := time.Now()
	return func() {
		t.Record(time.Since(start))
	}
}

// Names returns entry names in sorted order.
func (s Stats) Names() []string {
	return sortedKeys(s)
}

// getOrCreate panics when name is already bound to a different kind. Recording
// into the wrong kind is a programming error in the caller.
func getOrCreate[T Entry](s Stats, name string, create func() T) T {
	if e, ok := s[name]; ok {
		typed, ok := e.(T)
		if !ok {
			var zero T
			panic(fmt.Sprintf("stats: %q is a %s, not a %s", name, e.Kind(), zero.Kind()))
		}
		return typed
	}
	e := create()
	s[name] = e
	return e
}
