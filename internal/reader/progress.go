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
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/cardinalhq/corpusrunner/internal/logctx"
)

// Progress is advanced once per emitted document.
type Progress interface {
	Advance()
}

// LogProgress reports progress through the context logger, at most once per
// interval. A total of -1 means the number of documents is unknown.
type LogProgress struct {
	ll        *slog.Logger
	total     int64
	done      atomic.Int64
	started   time.Time
	sometimes rate.Sometimes
}

// NewLogProgress returns a LogProgress logging at most once per interval.
func NewLogProgress(ctx context.Context, total int64, interval time.Duration) *LogProgress {
	return &LogProgress{
		ll:        logctx.FromContext(ctx),
		total:     total,
		started:   time.Now(),
		sometimes: rate.Sometimes{First: 1, Interval: interval},
	}
}

func (p *LogProgress) Advance() {
	n := p.done.Add(1)
	p.sometimes.Do(func() { p.log("Reading documents", n) })
}

// Done is the number of times Advance was called.
func (p *LogProgress) Done() int64 {
	return p.done.Load()
}

// Finish logs the final count.
func (p *LogProgress) Finish() {
	p.log("Finished reading documents", p.done.Load())
}

func (p *LogProgress) log(msg string, n int64) {
	attrs := []any{
		slog.Int64("documents", n),
		slog.Duration("elapsed", time.Since(p.started)),
	}
	if p.total >= 0 {
		attrs = append(attrs, slog.Int64("total", p.total))
	}
	p.ll.Info(msg, attrs...)
}
