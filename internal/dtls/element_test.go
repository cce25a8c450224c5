// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

package dtls

import (
	"bytes"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/fitbit/goldengate-go/internal/buffer"
	"github.com/fitbit/goldengate-go/internal/ggerr"
	"github.com/fitbit/goldengate-go/internal/ports"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingSink stands in for an opaque transport/user sink, recording
// every buffer handed to it rather than delivering it synchronously. See
// internal/gattlink/session_test.go for why two Elements are never wired
// directly into one another: Element.mu is held across the synchronous
// send to its registered sink, so a same-goroutine round trip back into
// the sender would deadlock.
type recordingSink struct {
	mu      sync.Mutex
	packets [][]byte
	blocked bool
}

func (r *recordingSink) PutData(b *buffer.Buffer, _ *buffer.Metadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.blocked {
		return ggerr.New("test.recordingSink", ggerr.WouldBlock)
	}
	r.packets = append(r.packets, append([]byte(nil), b.Data()...))
	return nil
}

func (r *recordingSink) SetListener(_ ports.Listener) {}

func (r *recordingSink) drain() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.packets
	r.packets = nil
	return out
}

// pump delivers every packet outA/outB have recorded into the other
// element's Transport port, round by round, until neither side has
// anything left in flight.
func pump(t *testing.T, a, b *Element, outA, outB *recordingSink) {
	t.Helper()
	for round := 0; round < 50; round++ {
		progressed := false
		for _, pkt := range outA.drain() {
			b.Transport.PutData(buffer.NewStatic(pkt), nil)
			progressed = true
		}
		for _, pkt := range outB.drain() {
			a.Transport.PutData(buffer.NewStatic(pkt), nil)
			progressed = true
		}
		if !progressed {
			return
		}
	}
	t.Fatal("pump: packets still in flight after 50 rounds")
}

func testResolver(identity string, key []byte) KeyResolver {
	return func(got string) ([]byte, bool) {
		if got != identity {
			return nil, false
		}
		return key, true
	}
}

func newPair(identity string, key []byte) (client, server *Element, outClient, outServer *recordingSink) {
	outClient = &recordingSink{}
	outServer = &recordingSink{}
	client = New(Config{Role: RoleClient, PSKIdentity: identity, PSKKey: key, Logger: discardLogger()})
	server = New(Config{Role: RoleServer, KeyResolver: testResolver(identity, key), Logger: discardLogger()})
	client.Transport.SetSink(outClient)
	server.Transport.SetSink(outServer)
	return client, server, outClient, outServer
}

func TestHandshakeReachesSessionOnBothSides(t *testing.T) {
	client, server, outClient, outServer := newPair("node-1", []byte("shared-secret"))

	var clientStates, serverStates []State
	client.OnStateChange(func(s State) { clientStates = append(clientStates, s) })
	server.OnStateChange(func(s State) { serverStates = append(serverStates, s) })

	server.Start()
	client.Start()
	pump(t, client, server, outClient, outServer)

	if client.Status().State != StateSession {
		t.Fatalf("expected client SESSION, got %v", client.Status().State)
	}
	if server.Status().State != StateSession {
		t.Fatalf("expected server SESSION, got %v", server.Status().State)
	}
	if server.Status().PSKIdentity != "node-1" {
		t.Fatalf("expected negotiated identity node-1, got %q", server.Status().PSKIdentity)
	}
	if len(clientStates) != 2 || clientStates[0] != StateHandshake || clientStates[1] != StateSession {
		t.Fatalf("expected client HANDSHAKE then SESSION, got %v", clientStates)
	}
	if len(serverStates) != 2 || serverStates[0] != StateHandshake || serverStates[1] != StateSession {
		t.Fatalf("expected server HANDSHAKE then SESSION, got %v", serverStates)
	}
}

func TestApplicationDataRoundTripsEncrypted(t *testing.T) {
	client, server, outClient, outServer := newPair("node-1", []byte("shared-secret"))
	server.Start()
	client.Start()
	pump(t, client, server, outClient, outServer)

	userIn := &recordingSink{}
	server.User.SetSink(userIn)

	payload := []byte("hello from the node")
	if err := client.User.PutData(buffer.NewStatic(payload), nil); err != nil {
		t.Fatalf("PutData: %v", err)
	}
	pump(t, client, server, outClient, outServer)

	got := userIn.drain()
	if len(got) != 1 {
		t.Fatalf("expected 1 delivered datagram, got %d", len(got))
	}
	if !bytes.Equal(got[0], payload) {
		t.Fatalf("expected %q, got %q", payload, got[0])
	}
}

func TestApplicationDataIsEncryptedOnTheWire(t *testing.T) {
	client, server, outClient, outServer := newPair("node-1", []byte("shared-secret"))
	server.Start()
	client.Start()
	pump(t, client, server, outClient, outServer)

	userIn := &recordingSink{}
	server.User.SetSink(userIn)

	payload := []byte("plaintext-marker-xyz")
	if err := client.User.PutData(buffer.NewStatic(payload), nil); err != nil {
		t.Fatalf("PutData: %v", err)
	}
	for _, pkt := range outClient.drain() {
		if bytes.Contains(pkt, payload) {
			t.Fatalf("expected wire record not to contain plaintext, got %x", pkt)
		}
		server.Transport.PutData(buffer.NewStatic(pkt), nil)
	}
}

func TestUnknownIdentityFailsHandshakeAndServerAutoResets(t *testing.T) {
	outClient := &recordingSink{}
	outServer := &recordingSink{}
	client := New(Config{Role: RoleClient, PSKIdentity: "wrong-identity", PSKKey: []byte("k"), Logger: discardLogger()})
	server := New(Config{Role: RoleServer, KeyResolver: testResolver("node-1", []byte("k")), Logger: discardLogger()})
	client.Transport.SetSink(outClient)
	server.Transport.SetSink(outServer)

	var serverStates []State
	server.OnStateChange(func(s State) { serverStates = append(serverStates, s) })

	server.Start()
	client.Start()
	pump(t, client, server, outClient, outServer)

	if server.Status().State != StateHandshake {
		t.Fatalf("expected server to auto-reset back to HANDSHAKE, got %v", server.Status().State)
	}
	if client.Status().State != StateError {
		t.Fatalf("expected client to remain in ERROR, got %v", client.Status().State)
	}
	if client.Status().LastError == nil {
		t.Fatal("expected client LastError to be set")
	}
}

func TestClientStaysInErrorUntilExplicitReset(t *testing.T) {
	outClient := &recordingSink{}
	outServer := &recordingSink{}
	client := New(Config{Role: RoleClient, PSKIdentity: "wrong", PSKKey: []byte("k"), Logger: discardLogger()})
	server := New(Config{Role: RoleServer, KeyResolver: testResolver("node-1", []byte("k")), Logger: discardLogger()})
	client.Transport.SetSink(outClient)
	server.Transport.SetSink(outServer)

	server.Start()
	client.Start()
	pump(t, client, server, outClient, outServer)

	if client.Status().State != StateError {
		t.Fatalf("expected ERROR, got %v", client.Status().State)
	}
	client.Reset()
	if client.Status().State != StateInit {
		t.Fatalf("expected Reset to return to INIT, got %v", client.Status().State)
	}
}

func TestPutDataRejectedBeforeSessionEstablished(t *testing.T) {
	client := New(Config{Role: RoleClient, PSKIdentity: "n", PSKKey: []byte("k"), Logger: discardLogger()})
	client.Transport.SetSink(&recordingSink{})
	if err := client.User.PutData(buffer.NewStatic([]byte("too early")), nil); err == nil {
		t.Fatal("expected an error before the handshake completes")
	}
}

func TestPutDataWouldBlockWhilePreviousRecordPending(t *testing.T) {
	client, server, outClient, outServer := newPair("node-1", []byte("shared-secret"))
	server.Start()
	client.Start()
	pump(t, client, server, outClient, outServer)

	blockedSink := &recordingSink{blocked: true}
	client.Transport.SetSink(blockedSink)

	if err := client.User.PutData(buffer.NewStatic([]byte("first")), nil); err != nil {
		t.Fatalf("expected first PutData to be accepted (queued), got %v", err)
	}
	err := client.User.PutData(buffer.NewStatic([]byte("second")), nil)
	if !ggerr.Is(err, ggerr.WouldBlock) {
		t.Fatalf("expected WOULD_BLOCK while a record is already pending, got %v", err)
	}
}
