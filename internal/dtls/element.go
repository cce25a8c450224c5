// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

// Package dtls implements the DTLS element of a Golden Gate stack (spec
// §4.G): a PSK-authenticated, AEAD-encrypted datagram tunnel presented to
// the rest of the stack as two source/sink port pairs — a plaintext "user"
// side and a record-framed "transport" side — with a small handshake
// state machine wrapping a hand-rolled record layer (see DESIGN.md for why
// the cryptography is hand-rolled rather than an ecosystem library).
package dtls

import (
	"crypto/cipher"
	"log/slog"
	"sync"

	"github.com/fitbit/goldengate-go/internal/buffer"
	"github.com/fitbit/goldengate-go/internal/ggerr"
	"github.com/fitbit/goldengate-go/internal/ipv4"
	"github.com/google/uuid"
)

// Role is which side of the handshake an Element plays.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

func (r Role) String() string {
	if r == RoleServer {
		return "SERVER"
	}
	return "CLIENT"
}

// State is an Element's handshake lifecycle state (spec §4.G).
type State int

const (
	StateInit State = iota
	StateHandshake
	StateSession
	StateError
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateHandshake:
		return "HANDSHAKE"
	case StateSession:
		return "SESSION"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// KeyResolver looks up the PSK for an identity offered by a client,
// invoked synchronously from the loop thread during ClientHello
// processing (spec §4.G "the element invokes the resolver synchronously").
type KeyResolver func(identity string) (key []byte, ok bool)

// Config configures an Element's role-specific key material and datagram
// ceiling.
type Config struct {
	Role Role

	// Client role.
	PSKIdentity string
	PSKKey      []byte

	// Server role.
	KeyResolver KeyResolver

	// MaxDatagramSize bounds the plaintext datagrams this element will
	// accept from the user side (spec §4.G "within a required range").
	MaxDatagramSize int

	Logger *slog.Logger
}

const (
	minDatagramSize     = 64
	defaultDatagramSize = 1200
	maxDatagramSizeCap  = 1 << 16
)

func (c *Config) withDefaults() {
	if c.MaxDatagramSize < minDatagramSize || c.MaxDatagramSize > maxDatagramSizeCap {
		c.MaxDatagramSize = defaultDatagramSize
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Status is a point-in-time snapshot returned by Element.Status.
type Status struct {
	State       State
	LastError   error
	PSKIdentity string
}

// Element is one DTLS tunnel endpoint. Like the other stack elements, it
// assumes loop-thread affinity: PutData/packet delivery are expected to
// already be serialized by the owning loop (spec §5).
type Element struct {
	id  string
	cfg Config
	log *slog.Logger

	mu          sync.Mutex
	state       State
	lastErr     error
	identity    string
	txAEAD      cipher.AEAD
	rxAEAD      cipher.AEAD
	txNoncePfx  [4]byte
	rxNoncePfx  [4]byte
	sendSeq     uint64
	expectSeq   uint64

	pendingOutboundRecord []byte
	pendingInbound        []byte

	onStateChange func(State)

	User      *userPort
	Transport *transportPort
}

// New builds an Element in StateInit.
func New(cfg Config) *Element {
	cfg.withDefaults()
	e := &Element{
		id:  uuid.NewString(),
		cfg: cfg,
		log: cfg.Logger,
	}
	e.User = &userPort{element: e}
	e.Transport = &transportPort{element: e}
	return e
}

// ID returns a per-element identifier used only in log fields.
func (e *Element) ID() string { return e.id }

// OnStateChange registers a callback fired on every state transition
// (spec §4.G "TLS_STATE_CHANGE on every state transition").
func (e *Element) OnStateChange(fn func(State)) { e.onStateChange = fn }

// Status returns a snapshot of the element's current state.
func (e *Element) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{State: e.state, LastError: e.lastErr, PSKIdentity: e.identity}
}

// Start begins the handshake: a client sends ClientHello once the
// transport sink will accept it; a server simply moves to HANDSHAKE and
// waits (spec §4.G).
func (e *Element) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateInit {
		return
	}
	e.enterHandshakeLocked()
	if e.cfg.Role == RoleClient {
		e.sendRecordLocked(encodeClientHello(e.cfg.PSKIdentity))
	}
}

// Reset discards any negotiated session and returns to INIT; a client
// calling Start again will issue a fresh ClientHello (spec §4.G "stays in
// ERROR until the owner calls reset").
func (e *Element) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetToInitLocked()
}

func (e *Element) resetToInitLocked() {
	e.txAEAD, e.rxAEAD = nil, nil
	e.identity = ""
	e.sendSeq, e.expectSeq = 0, 0
	e.pendingOutboundRecord = nil
	e.pendingInbound = nil
	e.setStateLocked(StateInit)
}

func (e *Element) enterHandshakeLocked() {
	e.setStateLocked(StateHandshake)
}

func (e *Element) setStateLocked(s State) {
	if e.state == s {
		return
	}
	e.state = s
	if e.onStateChange != nil {
		e.onStateChange(s)
	}
}

// putUserData implements the user port's PutData: a plaintext datagram is
// sealed and forwarded toward the transport. Only one outbound record may
// be pending at a time (spec §4.G "keeps one pending outbound record").
func (e *Element) putUserData(data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pendingOutboundRecord != nil {
		return ggerr.New("dtls.putUserData", ggerr.WouldBlock)
	}
	if e.state != StateSession {
		return ggerr.New("dtls.putUserData", ggerr.InvalidParameters)
	}
	if len(data) > e.cfg.MaxDatagramSize {
		return ggerr.New("dtls.putUserData", ggerr.InvalidParameters)
	}

	seq := e.sendSeq
	e.sendSeq++
	sealed := e.txAEAD.Seal(nil, nonceFor(e.txNoncePfx, seq), data, nil)
	rec := encodeAppData(seq, sealed)
	return e.sendRecordLocked(rec)
}

// sendRecordLocked writes rec to the transport sink. On WOULD_BLOCK the
// record is remembered and retried from pumpLocked; the caller still sees
// success, since the element itself absorbed the back-pressure.
func (e *Element) sendRecordLocked(rec []byte) error {
	sink := e.Transport.sink()
	if sink == nil {
		e.pendingOutboundRecord = rec
		return nil
	}
	err := sink.PutData(buffer.NewDynamicFromBytes(rec), nil)
	if err == nil {
		return nil
	}
	if ggerr.Is(err, ggerr.WouldBlock) {
		e.pendingOutboundRecord = rec
		return nil
	}
	e.log.Warn("dtls: transport send failed", "element", e.id, "err", err)
	return err
}

// pumpLocked runs when the transport sink signals it can accept again: it
// retries a pending outbound record, then a pending inbound datagram. A
// drain of the user sink does not trigger it.
func (e *Element) pumpLocked() {
	if e.pendingOutboundRecord != nil {
		rec := e.pendingOutboundRecord
		e.pendingOutboundRecord = nil
		if err := e.sendRecordLocked(rec); err != nil && !ggerr.Is(err, ggerr.WouldBlock) {
			return
		}
	}
	if e.pendingInbound != nil {
		e.deliverToUserLocked(e.pendingInbound)
	}
}

// deliverToUserLocked hands a decrypted datagram to the registered user
// sink, queuing it as the element's one pending inbound record on
// WOULD_BLOCK (spec §4.G "one pending inbound record ... to honor
// back-pressure against the user sink").
func (e *Element) deliverToUserLocked(data []byte) {
	sink := e.User.sink()
	if sink == nil {
		e.pendingInbound = data
		return
	}
	err := sink.PutData(buffer.NewDynamicFromBytes(data), nil)
	if err == nil {
		e.pendingInbound = nil
		return
	}
	if ggerr.Is(err, ggerr.WouldBlock) {
		e.pendingInbound = data
		return
	}
	e.log.Warn("dtls: user delivery failed", "element", e.id, "err", err)
	e.pendingInbound = nil
}

// onRecord handles one inbound wire record from the transport.
func (e *Element) onRecord(rec []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(rec) < 1 {
		e.log.Warn("dtls: empty record", "element", e.id)
		return
	}
	switch recordType(rec[0]) {
	case recordClientHello:
		e.onClientHelloLocked(rec)
	case recordServerHello:
		e.onServerHelloLocked()
	case recordAlert:
		e.onAlertLocked(rec)
	case recordAppData:
		e.onAppDataLocked(rec)
	default:
		e.log.Warn("dtls: unknown record type", "element", e.id, "type", rec[0])
	}
}

func (e *Element) onClientHelloLocked(rec []byte) {
	if e.cfg.Role != RoleServer {
		return
	}
	identity, err := decodeClientHello(rec)
	if err != nil {
		e.log.Warn("dtls: malformed ClientHello", "element", e.id, "err", err)
		return
	}
	key, ok := e.cfg.KeyResolver(identity)
	if !ok {
		e.failHandshakeLocked(identity, ggerr.UnknownIdentity, "unknown identity")
		return
	}
	clientToServer, serverToClient := deriveSessionKeys(key, identity)
	rxAEAD, err := newAEAD(clientToServer)
	if err != nil {
		e.failHandshakeLocked(identity, ggerr.TLSError, "key derivation failed")
		return
	}
	txAEAD, err := newAEAD(serverToClient)
	if err != nil {
		e.failHandshakeLocked(identity, ggerr.TLSError, "key derivation failed")
		return
	}
	e.identity = identity
	e.rxAEAD, e.rxNoncePfx = rxAEAD, clientToServer.noncePrefix
	e.txAEAD, e.txNoncePfx = txAEAD, serverToClient.noncePrefix
	e.setStateLocked(StateSession)
	e.sendRecordLocked(encodeServerHello())
}

func (e *Element) onServerHelloLocked() {
	if e.cfg.Role != RoleClient || e.state != StateHandshake {
		return
	}
	clientToServer, serverToClient := deriveSessionKeys(e.cfg.PSKKey, e.cfg.PSKIdentity)
	txAEAD, err := newAEAD(clientToServer)
	if err != nil {
		e.failHandshakeLocked(e.cfg.PSKIdentity, ggerr.TLSError, "key derivation failed")
		return
	}
	rxAEAD, err := newAEAD(serverToClient)
	if err != nil {
		e.failHandshakeLocked(e.cfg.PSKIdentity, ggerr.TLSError, "key derivation failed")
		return
	}
	e.identity = e.cfg.PSKIdentity
	e.txAEAD, e.txNoncePfx = txAEAD, clientToServer.noncePrefix
	e.rxAEAD, e.rxNoncePfx = rxAEAD, serverToClient.noncePrefix
	e.setStateLocked(StateSession)
}

func (e *Element) onAlertLocked(rec []byte) {
	ee, err := decodeAlert(rec)
	if err != nil {
		e.log.Warn("dtls: malformed alert", "element", e.id, "err", err)
		return
	}
	e.lastErr = ggerr.New("dtls.peer", ggerr.Code(ee.Code))
	e.log.Warn("dtls: peer alert", "element", e.id, "namespace", ee.Namespace, "message", ee.Message)
	if e.cfg.Role == RoleClient {
		e.setStateLocked(StateError)
		return
	}
	// server role: auto-reset to HANDSHAKE so the peer can retry without
	// external intervention (spec §4.G).
	e.resetToInitLocked()
	e.enterHandshakeLocked()
}

func (e *Element) onAppDataLocked(rec []byte) {
	if e.state != StateSession {
		e.log.Warn("dtls: app data received outside SESSION", "element", e.id, "state", e.state)
		return
	}
	seq, sealed, err := decodeAppData(rec)
	if err != nil {
		e.log.Warn("dtls: malformed app data record", "element", e.id, "err", err)
		return
	}
	plaintext, err := e.rxAEAD.Open(nil, nonceFor(e.rxNoncePfx, seq), sealed, nil)
	if err != nil {
		e.log.Warn("dtls: AEAD open failed", "element", e.id, "seq", seq, "err", err)
		return
	}
	e.deliverToUserLocked(plaintext)
}

// failHandshakeLocked records the failure, notifies the peer with an
// alert record, and applies the role-specific recovery policy (spec
// §4.G: client stays in ERROR, server auto-resets to HANDSHAKE).
func (e *Element) failHandshakeLocked(identity string, code ggerr.Code, message string) {
	e.lastErr = ggerr.New("dtls.handshake", code)
	e.log.Warn("dtls: handshake failed", "element", e.id, "identity", identity, "err", e.lastErr)
	e.sendRecordLocked(encodeAlert(ipv4.ExtendedError{Namespace: "dtls", Code: int32(code), Message: message}))
	if e.cfg.Role == RoleClient {
		e.setStateLocked(StateError)
		return
	}
	e.resetToInitLocked()
	e.enterHandshakeLocked()
}
