// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

package transport

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/fitbit/goldengate-go/internal/buffer"
	"github.com/fitbit/goldengate-go/internal/ports"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingSink struct {
	mu      sync.Mutex
	packets [][]byte
}

func (r *recordingSink) PutData(b *buffer.Buffer, _ *buffer.Metadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.packets = append(r.packets, append([]byte(nil), b.Data()...))
	return nil
}

func (r *recordingSink) SetListener(_ ports.Listener) {}

func (r *recordingSink) drain(t *testing.T, want int) [][]byte {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		got := len(r.packets)
		r.mu.Unlock()
		if got >= want {
			break
		}
		time.Sleep(time.Millisecond)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.packets
	r.packets = nil
	return out
}

func TestPipePairRoundTrip(t *testing.T) {
	a, b := NewPipePair(discardLogger())
	defer a.Close()
	defer b.Close()

	sinkB := &recordingSink{}
	b.SetSink(sinkB)

	if err := a.PutData(buffer.NewStatic([]byte("hello")), nil); err != nil {
		t.Fatalf("PutData: %v", err)
	}
	got := sinkB.drain(t, 1)
	if len(got) != 1 || string(got[0]) != "hello" {
		t.Fatalf("got %q, want [hello]", got)
	}
}

func TestPipePairBidirectional(t *testing.T) {
	a, b := NewPipePair(discardLogger())
	defer a.Close()
	defer b.Close()

	sinkA := &recordingSink{}
	sinkB := &recordingSink{}
	a.SetSink(sinkA)
	b.SetSink(sinkB)

	if err := a.PutData(buffer.NewStatic([]byte("ping")), nil); err != nil {
		t.Fatalf("a.PutData: %v", err)
	}
	if err := b.PutData(buffer.NewStatic([]byte("pong")), nil); err != nil {
		t.Fatalf("b.PutData: %v", err)
	}

	gotB := sinkB.drain(t, 1)
	if len(gotB) != 1 || string(gotB[0]) != "ping" {
		t.Fatalf("sinkB got %q, want [ping]", gotB)
	}
	gotA := sinkA.drain(t, 1)
	if len(gotA) != 1 || string(gotA[0]) != "pong" {
		t.Fatalf("sinkA got %q, want [pong]", gotA)
	}
}

func TestPipePairEmptyFrame(t *testing.T) {
	a, b := NewPipePair(discardLogger())
	defer a.Close()
	defer b.Close()

	sinkB := &recordingSink{}
	b.SetSink(sinkB)

	if err := a.PutData(buffer.NewStatic(nil), nil); err != nil {
		t.Fatalf("PutData: %v", err)
	}
	got := sinkB.drain(t, 1)
	if len(got) != 1 || len(got[0]) != 0 {
		t.Fatalf("got %v, want one empty frame", got)
	}
}

func TestPipePairCloseStopsReadLoop(t *testing.T) {
	a, b := NewPipePair(discardLogger())
	defer b.Close()

	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Second close must not block or panic.
	if err := a.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestListenTCPAcceptsAndRoundTrips(t *testing.T) {
	ln, err := ListenTCP("127.0.0.1:0", discardLogger())
	if err != nil {
		t.Fatalf("ListenTCP: %v", err)
	}
	defer ln.Close()

	serverCh := make(chan *Framed, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		serverCh <- conn
	}()

	client, err := DialTCP(ln.Addr().String(), discardLogger())
	if err != nil {
		t.Fatalf("DialTCP: %v", err)
	}
	defer client.Close()

	server := <-serverCh
	defer server.Close()

	sinkServer := &recordingSink{}
	server.SetSink(sinkServer)

	if err := client.PutData(buffer.NewStatic([]byte("over-the-wire")), nil); err != nil {
		t.Fatalf("PutData: %v", err)
	}
	got := sinkServer.drain(t, 1)
	if len(got) != 1 || string(got[0]) != "over-the-wire" {
		t.Fatalf("got %q, want [over-the-wire]", got)
	}
}
