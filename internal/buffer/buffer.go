// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

// Package buffer implements the reference-counted byte buffer that flows
// across every source/sink boundary in the stack (spec §3, §4.A).
//
// A Buffer is "immutable-looking": a dynamic buffer may be mutated while
// it is being built (UseData/SetSize), but once it has been handed across
// a sink boundary it must not be mutated again. Static buffers borrow
// external memory and never free it; dynamic buffers own a heap
// allocation and are released when the last reference drops.
package buffer

import (
	"sync/atomic"

	"github.com/fitbit/goldengate-go/internal/ggerr"
)

// Buffer is a reference-counted owning container of a byte range.
type Buffer struct {
	data     []byte
	size     int
	static   bool
	refCount int32
}

// NewStatic wraps externally-owned memory. Release is a no-op beyond
// decrementing the reference count: the backing array is never freed by
// the buffer itself, matching the "static, no free" variant in spec §3.
func NewStatic(data []byte) *Buffer {
	return &Buffer{data: data, size: len(data), static: true, refCount: 1}
}

// NewDynamic allocates a heap-owned buffer of the given capacity. The
// buffer starts at size 0 so callers can UseData/SetSize before
// publishing it across a sink.
func NewDynamic(capacity int) *Buffer {
	return &Buffer{data: make([]byte, capacity), size: 0, static: false, refCount: 1}
}

// NewDynamicFromBytes allocates a dynamic buffer and copies src into it,
// publishing it at full size. Used by the sink proxy to deep-copy a
// buffer crossing a thread boundary (spec §9 "cloning across threads").
func NewDynamicFromBytes(src []byte) *Buffer {
	cp := make([]byte, len(src))
	copy(cp, src)
	return &Buffer{data: cp, size: len(cp), static: false, refCount: 1}
}

// Retain increments the reference count and returns the same buffer, for
// call-site chaining (`b = b.Retain()`).
func (b *Buffer) Retain() *Buffer {
	if b == nil {
		return nil
	}
	atomic.AddInt32(&b.refCount, 1)
	return b
}

// Release decrements the reference count. The backing array is dropped
// for GC once the count reaches zero; static buffers never free their
// external memory (there is nothing to free — the caller owns it).
func (b *Buffer) Release() {
	if b == nil {
		return
	}
	if atomic.AddInt32(&b.refCount, -1) == 0 {
		b.data = nil
	}
}

// RefCount returns the current reference count (for tests/diagnostics).
func (b *Buffer) RefCount() int32 {
	return atomic.LoadInt32(&b.refCount)
}

// Data returns the published byte range. Callers must not retain slices
// beyond the buffer's own lifetime without calling Retain first.
func (b *Buffer) Data() []byte {
	return b.data[:b.size]
}

// Size returns the published size in bytes.
func (b *Buffer) Size() int {
	return b.size
}

// Capacity returns the total allocated capacity (dynamic buffers only;
// static buffers report their fixed length).
func (b *Buffer) Capacity() int {
	return len(b.data)
}

// IsStatic reports whether the buffer borrows external memory.
func (b *Buffer) IsStatic() bool {
	return b.static
}

// UseData copies src into the buffer's backing array starting at offset
// 0 and publishes it at len(src) bytes. Only valid before the buffer has
// been shared across a sink boundary (spec §4.A "pre-publication
// mutation"); callers that need to mutate a buffer that might already be
// shared must allocate a new one instead.
func (b *Buffer) UseData(src []byte) error {
	if b.static {
		return ggerr.New("buffer.UseData", ggerr.InvalidParameters)
	}
	if len(src) > cap(b.data) {
		b.data = make([]byte, len(src))
	}
	n := copy(b.data[:cap(b.data)], src)
	b.data = b.data[:cap(b.data)]
	b.size = n
	return nil
}

// SetSize publishes size bytes of an already-written dynamic buffer.
// size must not exceed the allocated capacity.
func (b *Buffer) SetSize(size int) error {
	if b.static {
		return ggerr.New("buffer.SetSize", ggerr.InvalidParameters)
	}
	if size < 0 || size > len(b.data) {
		return ggerr.New("buffer.SetSize", ggerr.OutOfRange)
	}
	b.size = size
	return nil
}

// Bytes gives direct write access to the backing array up to Capacity,
// for callers filling a dynamic buffer before calling SetSize (the
// "pull-style" pattern used by the frame assembler in spec §4.F.1).
func (b *Buffer) Bytes() []byte {
	return b.data
}
