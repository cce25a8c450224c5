// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

package transport

import (
	"io"
	"log/slog"
)

// NewPipePair returns two Framed transports connected back-to-back over
// in-process io.Pipes, for tests and local demos (spec §4.N "pipe
// transport").
func NewPipePair(log *slog.Logger) (a, b *Framed) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	a = NewFramed(&pipeConn{r: ar, w: aw}, log)
	b = NewFramed(&pipeConn{r: br, w: bw}, log)
	return a, b
}

// pipeConn adapts a pair of unidirectional io.Pipe ends to
// io.ReadWriteCloser.
type pipeConn struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (p *pipeConn) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *pipeConn) Write(b []byte) (int, error) { return p.w.Write(b) }

func (p *pipeConn) Close() error {
	p.r.CloseWithError(io.EOF)
	return p.w.Close()
}
