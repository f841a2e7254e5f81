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

package storage

import (
	"context"
	"io"
)

// pipeWriter adapts a streaming upload API that consumes an io.Reader into a
// Writer. The upload runs in its own goroutine until Close or Abort.
type pipeWriter struct {
	ctx    context.Context
	scheme string
	pw     *io.PipeWriter
	cw     *countingWriter
	cancel context.CancelFunc
	done   chan error
	closed bool
}

func newPipeWriter(ctx context.Context, scheme string, upload func(ctx context.Context, r io.Reader) error) *pipeWriter {
	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()
	w := &pipeWriter{
		ctx:    parent,
		scheme: scheme,
		pw:     pw,
		cw:     &countingWriter{w: pw},
		cancel: cancel,
		done:   make(chan error, 1),
	}
	go func() {
		err := upload(ctx, pr)
		_ = pr.CloseWithError(err)
		w.done <- err
	}()
	return w
}

func (w *pipeWriter) Write(p []byte) (int, error) {
	return w.cw.Write(p)
}

func (w *pipeWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	_ = w.pw.Close()
	err := <-w.done
	w.cancel()
	if err != nil {
		return err
	}
	objectsWritten(w.ctx, w.scheme, w.cw.n)
	return nil
}

func (w *pipeWriter) Abort() error {
	if w.closed {
		return nil
	}
	w.closed = true
	_ = w.pw.CloseWithError(errAborted)
	w.cancel()
	<-w.done
	return nil
}
