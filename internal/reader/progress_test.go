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
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cardinalhq/corpusrunner/internal/logctx"
)

func TestLogProgress(t *testing.T) {
	var buf bytes.Buffer
	ll := slog.New(slog.NewTextHandler(&buf, nil))
	ctx := logctx.WithLogger(context.Background(), ll)

	p := NewLogProgress(ctx, 10, time.Hour)
	for range 5 {
		p.Advance()
	}
	assert.Equal(t, int64(5), p.Done())
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("Reading documents")), "throttled to the first call")

	p.Finish()
	out := buf.String()
	assert.Contains(t, out, "Finished reading documents")
	assert.Contains(t, out, "documents=5")
	assert.Contains(t, out, "total=10")
}

func TestLogProgress_UnknownTotal(t *testing.T) {
	var buf bytes.Buffer
	ctx := logctx.WithLogger(context.Background(), slog.New(slog.NewTextHandler(&buf, nil)))

	p := NewLogProgress(ctx, -1, time.Hour)
	p.Advance()
	assert.NotContains(t, buf.String(), "total=")
}
