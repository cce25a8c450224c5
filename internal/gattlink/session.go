// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

package gattlink

import (
	"log/slog"
	"sync"

	"github.com/fitbit/goldengate-go/internal/buffer"
	"github.com/fitbit/goldengate-go/internal/ggerr"
	"github.com/fitbit/goldengate-go/internal/ports"
	"github.com/fitbit/goldengate-go/internal/timer"
	"github.com/google/uuid"
)

// State is a Gattlink session's handshake state (spec §4.E.2).
type State int

const (
	StateInitialized State = iota
	StateAwaitingResetSelf
	StateAwaitingResetRemote
	StateReady
)

func (s State) String() string {
	switch s {
	case StateInitialized:
		return "INITIALIZED"
	case StateAwaitingResetSelf:
		return "AWAITING_RESET_SELF"
	case StateAwaitingResetRemote:
		return "AWAITING_RESET_REMOTE"
	case StateReady:
		return "READY"
	default:
		return "UNKNOWN"
	}
}

const (
	resetTimerSelfMs       = 1000
	resetTimerRemoteMs     = 2000
	retransmitTimerReadyMs = 4000
	delayedAckTimerMs      = 200
	stallReportIntervalMs  = 12000
	protocolVersion        = 1
)

// Config configures a Session's local negotiation offer and the
// transport's packet-size ceiling.
type Config struct {
	// DesiredTxWindow/DesiredRxWindow are this side's preferred window
	// sizes, 1..31. The effective window used once READY is
	// min(desired, peer-advertised) per direction (spec §4.E.2).
	DesiredTxWindow byte
	DesiredRxWindow byte
	// MaxPacketSize is M, the transport's max opaque-packet size.
	MaxPacketSize int
	Logger        *slog.Logger
}

func (c *Config) withDefaults() {
	if c.DesiredTxWindow == 0 || c.DesiredTxWindow > snMask {
		c.DesiredTxWindow = 16
	}
	if c.DesiredRxWindow == 0 || c.DesiredRxWindow > snMask {
		c.DesiredRxWindow = 16
	}
	if c.MaxPacketSize <= dataPayloadHeaderOverhead {
		c.MaxPacketSize = 64
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// outbound tracks the sliding send window: bytes not yet given a PSN
// (pending), and the exact payload recorded for each in-flight PSN slot
// so a retransmit reuses the original boundary instead of re-chunking
// (spec §4.E.3: "if this PSN slot already has a recorded payload_size...
// reuse that exact size").
type outbound struct {
	pending           []byte
	inFlightPayload   [32][]byte
	nextDataSN        byte
	nextExpectedAckSN byte
	retransmitArmed   bool
}

func (o *outbound) inFlightCount() byte {
	return (o.nextDataSN - o.nextExpectedAckSN) & snMask
}

// inbound tracks the receive side: the next PSN we expect in order, the
// PSN we most recently accepted (for re-ack on duplicate), and a count of
// accepted payloads not yet acknowledged.
type inbound struct {
	nextExpectedPSN byte
	psnToAck        byte
	haveAckPending  bool
	unackedCount    int
}

// Session is a single Gattlink reliable-stream session. It is not
// goroutine-safe on its own beyond the internal mutex guarding state
// transitions; callers are expected to run it behind a single loop
// thread (spec §5), with PutData/packet delivery already serialized.
type Session struct {
	id  string
	cfg Config
	log *slog.Logger

	scheduler *timer.Scheduler

	mu    sync.Mutex
	state State

	localMinVersion, localMaxVersion byte
	peerMinVersion, peerMaxVersion   byte
	txWindow, rxWindow               byte // effective, post-handshake

	out outbound
	in  inbound

	resetTimer      *timer.Timer
	delayedAckTimer *timer.Timer

	stallAccumMs    int64
	reportedStalled bool

	onSessionReady   func()
	onSessionReset   func()
	onSessionStalled func(accumulatedMs int64)

	User      *userPort
	Transport *transportPort
}

// New builds a Session bound to scheduler for its timers. Call Start to
// begin the reset handshake.
func New(scheduler *timer.Scheduler, cfg Config) *Session {
	cfg.withDefaults()
	s := &Session{
		id:              uuid.NewString(),
		cfg:             cfg,
		log:             cfg.Logger,
		scheduler:       scheduler,
		localMinVersion: protocolVersion,
		localMaxVersion: protocolVersion,
	}
	var err error
	s.resetTimer, err = scheduler.CreateTimer()
	if err != nil {
		s.resetTimer = nil
	}
	s.delayedAckTimer, err = scheduler.CreateTimer()
	if err != nil {
		s.delayedAckTimer = nil
	}
	s.User = &userPort{session: s}
	s.Transport = &transportPort{session: s}
	return s
}

// ID returns a per-session identifier used only in log fields.
func (s *Session) ID() string { return s.id }

// SetMaxTransportFragmentSize updates the transport's opaque-packet size
// ceiling, used by the stack builder to route LINK_MTU_CHANGE events into
// the session (spec §4.H).
func (s *Session) SetMaxTransportFragmentSize(size int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.MaxPacketSize = size
}

// MaxTransportFragmentSize returns the transport's current opaque-packet
// size ceiling.
func (s *Session) MaxTransportFragmentSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.MaxPacketSize
}

// OnSessionReady registers a callback fired when the handshake completes
// and the session transitions to READY.
func (s *Session) OnSessionReady(fn func()) { s.onSessionReady = fn }

// OnSessionReset registers a callback fired whenever the session drops
// back out of READY (or restarts), so the owner can discard stale state.
func (s *Session) OnSessionReset(fn func()) { s.onSessionReset = fn }

// OnSessionStalled registers a callback fired every stallReportIntervalMs
// of accumulated retransmit stall time, and once more with 0 when the
// stall clears (spec §4.E.5).
func (s *Session) OnSessionStalled(fn func(accumulatedMs int64)) { s.onSessionStalled = fn }

// State returns the session's current handshake state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start drives the INITIALIZED -> AWAITING_RESET_SELF transition: send a
// Reset Request and arm the 1s reset timer.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInitialized {
		return
	}
	s.enterAwaitingResetSelfLocked()
}

// Reset implements the READY -> AWAITING_RESET_SELF `reset()` API call
// (spec §4.E.2): re-run the handshake from this side.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady {
		return
	}
	s.notifySessionResetLocked()
	s.enterAwaitingResetSelfLocked()
}

func (s *Session) enterAwaitingResetSelfLocked() {
	s.state = StateAwaitingResetSelf
	s.sendControlLocked(EncodeResetRequest())
	s.armResetTimerLocked(resetTimerSelfMs)
}

func (s *Session) armResetTimerLocked(ms int64) {
	if s.resetTimer == nil {
		return
	}
	s.scheduler.Schedule(s.resetTimer, timer.ListenerFunc(s.onResetTimerFired), ms)
}

func (s *Session) clearResetTimerLocked() {
	if s.resetTimer != nil {
		s.scheduler.Unschedule(s.resetTimer)
	}
}

func (s *Session) onResetTimerFired(_ *timer.Timer, elapsedMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateAwaitingResetSelf:
		s.sendControlLocked(EncodeResetRequest())
		s.armResetTimerLocked(resetTimerSelfMs)
	case StateAwaitingResetRemote:
		s.sendControlLocked(EncodeResetComplete(s.localResetCompleteLocked()))
		s.armResetTimerLocked(resetTimerRemoteMs)
	case StateReady:
		s.onRetransmitTimeoutLocked(elapsedMs)
	}
}

func (s *Session) localResetCompleteLocked() ResetComplete {
	return ResetComplete{
		MinVersion:  s.localMinVersion,
		MaxVersion:  s.localMaxVersion,
		MaxRxWindow: s.cfg.DesiredRxWindow,
		MaxTxWindow: s.cfg.DesiredTxWindow,
	}
}

// onPacket handles a packet arriving from the transport. If handling it
// drains pending outbound bytes, the application is notified it may push
// more after the session lock is released (never call back into a
// listener while still holding mu).
func (s *Session) onPacket(pkt []byte) {
	s.mu.Lock()
	pendingBefore := len(s.out.pending)

	if IsControl(pkt) {
		s.onControlLocked(pkt)
		s.mu.Unlock()
		return
	}
	// Data received in a state other than READY (but past INITIALIZED) is
	// dropped per spec §4.E.6.
	if s.state != StateReady {
		s.mu.Unlock()
		return
	}
	dp, err := DecodeDataPacket(pkt)
	if err != nil {
		s.log.Warn("gattlink: malformed data packet", "session", s.id, "err", err)
		s.mu.Unlock()
		return
	}
	if dp.HasAck {
		s.onAckLocked(dp.AckPSN)
	}
	s.resetStallLocked()
	if dp.HasPayload {
		s.onPayloadLocked(dp.PayloadPSN, dp.Payload)
	}
	s.pumpLocked()
	pendingAfter := len(s.out.pending)
	s.mu.Unlock()

	if pendingAfter < pendingBefore {
		s.User.notifyCanAccept()
	}
}

func (s *Session) onControlLocked(pkt []byte) {
	subtype, rc, err := DecodeControl(pkt)
	if err != nil {
		s.log.Warn("gattlink: invalid control packet", "session", s.id, "err", err)
		return
	}
	switch subtype {
	case SubtypeResetRequest:
		s.onResetRequestLocked()
	case SubtypeResetComplete:
		s.onResetCompleteLocked(rc)
	}
}

func (s *Session) onResetRequestLocked() {
	switch s.state {
	case StateInitialized, StateAwaitingResetSelf:
		s.state = StateAwaitingResetRemote
		s.sendControlLocked(EncodeResetComplete(s.localResetCompleteLocked()))
		s.armResetTimerLocked(resetTimerRemoteMs)
	case StateAwaitingResetRemote:
		// Already replied; peer's request crossed our complete. Resend.
		s.sendControlLocked(EncodeResetComplete(s.localResetCompleteLocked()))
	case StateReady:
		s.notifySessionResetLocked()
		s.state = StateAwaitingResetRemote
		s.sendControlLocked(EncodeResetComplete(s.localResetCompleteLocked()))
		s.armResetTimerLocked(resetTimerRemoteMs)
	}
}

func (s *Session) onResetCompleteLocked(rc ResetComplete) {
	switch s.state {
	case StateAwaitingResetSelf:
		s.sendControlLocked(EncodeResetComplete(s.localResetCompleteLocked()))
		s.finishHandshakeLocked(rc)
	case StateAwaitingResetRemote:
		s.finishHandshakeLocked(rc)
	}
}

func (s *Session) finishHandshakeLocked(rc ResetComplete) {
	s.peerMinVersion, s.peerMaxVersion = rc.MinVersion, rc.MaxVersion
	s.txWindow = minByte(s.cfg.DesiredTxWindow, rc.MaxRxWindow)
	s.rxWindow = minByte(s.cfg.DesiredRxWindow, rc.MaxTxWindow)
	if s.txWindow == 0 {
		s.txWindow = 1
	}
	if s.rxWindow == 0 {
		s.rxWindow = 1
	}
	s.clearResetTimerLocked()
	s.state = StateReady
	s.out = outbound{}
	s.in = inbound{}
	s.stallAccumMs = 0
	s.reportedStalled = false
	if s.onSessionReady != nil {
		s.onSessionReady()
	}
	s.pumpLocked()
}

func (s *Session) notifySessionResetLocked() {
	s.clearResetTimerLocked()
	if s.delayedAckTimer != nil {
		s.scheduler.Unschedule(s.delayedAckTimer)
	}
	if s.onSessionReset != nil {
		s.onSessionReset()
	}
}

func minByte(a, b byte) byte {
	if a < b {
		return a
	}
	return b
}

// onAckLocked frees every in-flight slot up to and including ackPSN
// (cumulative ACK). An ACK for a PSN not currently recorded in-flight is
// a duplicate and is ignored (spec §4.E.4).
func (s *Session) onAckLocked(ackPSN byte) {
	if s.out.inFlightCount() == 0 || !s.psnInFlightRangeLocked(ackPSN) {
		return // dup-ACK: already freed, or never recorded
	}
	for {
		psn := s.out.nextExpectedAckSN
		s.out.inFlightPayload[psn] = nil
		s.out.nextExpectedAckSN = (psn + 1) & snMask
		if psn == ackPSN {
			break
		}
	}
	if s.out.inFlightCount() == 0 {
		s.scheduler.Unschedule(s.resetTimer)
		s.out.retransmitArmed = false
	}
}

// psnInFlightRangeLocked reports whether psn falls within the currently
// in-flight window [nextExpectedAckSN, nextDataSN).
func (s *Session) psnInFlightRangeLocked(psn byte) bool {
	offset := (psn - s.out.nextExpectedAckSN) & snMask
	return offset < s.out.inFlightCount()
}

// onPayloadLocked implements the three inbound-payload branches of spec
// §4.E.4: in-order accept, retransmission re-ack, and out-of-window
// error.
func (s *Session) onPayloadLocked(psn byte, payload []byte) {
	switch {
	case psn == s.in.nextExpectedPSN:
		sink := s.User.sink()
		if sink == nil {
			return
		}
		b := buffer.NewDynamicFromBytes(payload)
		if err := sink.PutData(b, nil); err != nil && ggerr.Is(err, ggerr.WouldBlock) {
			// Reassembly buffer full: drop silently, peer will retransmit.
			return
		}
		s.in.nextExpectedPSN = (psn + 1) & snMask
		s.in.psnToAck = psn
		s.in.haveAckPending = true
		s.in.unackedCount++
		s.armDelayedAckLocked()
	case s.withinReceiveWindowLocked(psn):
		// Already-accepted retransmission: re-ack with the last psnToAck.
		s.in.haveAckPending = true
	default:
		s.log.Error("gattlink: unexpected psn", "session", s.id,
			"code", ggerr.UnexpectedPSN.String(), "psn", psn, "expected", s.in.nextExpectedPSN)
	}
}

// withinReceiveWindowLocked reports whether psn is behind nextExpectedPSN
// but still within the receive window (i.e., a retransmission of data we
// already accepted, not data we never will).
func (s *Session) withinReceiveWindowLocked(psn byte) bool {
	behind := (s.in.nextExpectedPSN - psn - 1) & snMask
	return behind < s.rxWindow
}

func (s *Session) armDelayedAckLocked() {
	if s.delayedAckTimer == nil || s.delayedAckTimer.IsScheduled() {
		return
	}
	s.scheduler.Schedule(s.delayedAckTimer, timer.ListenerFunc(s.onDelayedAckFired), delayedAckTimerMs)
}

func (s *Session) onDelayedAckFired(_ *timer.Timer, _ int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady || !s.in.haveAckPending {
		return
	}
	s.pumpLocked()
}

// onRetransmitTimeoutLocked rolls back the send cursor so every still
// in-flight slot is re-emitted, and accumulates stall time, reporting
// every stallReportIntervalMs (spec §4.E.5).
func (s *Session) onRetransmitTimeoutLocked(elapsedMs int64) {
	if s.out.inFlightCount() == 0 {
		s.out.retransmitArmed = false
		return
	}
	s.out.nextDataSN = s.out.nextExpectedAckSN
	s.stallAccumMs += elapsedMs
	if s.stallAccumMs >= stallReportIntervalMs {
		reportable := (s.stallAccumMs / stallReportIntervalMs) * stallReportIntervalMs
		s.stallAccumMs -= reportable
		s.reportedStalled = true
		if s.onSessionStalled != nil {
			s.onSessionStalled(reportable)
		}
	}
	s.out.retransmitArmed = false
	s.pumpLocked()
	if s.out.inFlightCount() > 0 && !s.out.retransmitArmed {
		s.armResetTimerLocked(retransmitTimerReadyMs)
		s.out.retransmitArmed = true
	}
}

// resetStallLocked clears stall bookkeeping on any received data,
// emitting one final "stalled with value 0" event if a stall had
// previously been reported (spec §4.E.5, "implicit clear").
func (s *Session) resetStallLocked() {
	s.stallAccumMs = 0
	if s.reportedStalled {
		s.reportedStalled = false
		if s.onSessionStalled != nil {
			s.onSessionStalled(0)
		}
	}
}

// pumpLocked is the outbound packetization loop (spec §4.E.3): while
// there is room, build and send packets carrying an ACK, a payload, or
// both, until neither condition holds.
func (s *Session) pumpLocked() {
	if s.state != StateReady {
		return
	}
	for {
		ackNow := s.in.haveAckPending || s.in.unackedCount > int(s.rxWindow)/2
		var dp DataPacket
		if ackNow {
			dp.HasAck = true
			dp.AckPSN = s.in.psnToAck
		}

		if s.out.inFlightCount() < s.txWindow {
			psn := s.out.nextDataSN & snMask
			if existing := s.out.inFlightPayload[psn]; existing != nil {
				dp.HasPayload = true
				dp.PayloadPSN = psn
				dp.Payload = existing
			} else if len(s.out.pending) > 0 {
				size := len(s.out.pending)
				if max := s.cfg.MaxPacketSize - dataPayloadHeaderOverhead; size > max {
					size = max
				}
				chunk := append([]byte(nil), s.out.pending[:size]...)
				s.out.inFlightPayload[psn] = chunk
				s.out.pending = s.out.pending[size:]
				dp.HasPayload = true
				dp.PayloadPSN = psn
				dp.Payload = chunk
			}
		}

		if !dp.HasAck && !dp.HasPayload {
			return
		}

		if !s.sendDataLocked(dp) {
			return // transport applying backpressure; retry on OnCanPut
		}

		if dp.HasAck {
			s.in.haveAckPending = false
			s.in.unackedCount = 0
			if s.delayedAckTimer != nil {
				s.scheduler.Unschedule(s.delayedAckTimer)
			}
		}
		if dp.HasPayload {
			s.out.nextDataSN = (s.out.nextDataSN + 1) & snMask
			if !s.out.retransmitArmed {
				s.armResetTimerLocked(retransmitTimerReadyMs)
				s.out.retransmitArmed = true
			}
		}
	}
}

// sendControlLocked emits a control packet, logging (but not retrying
// beyond the owning state machine's own timer-driven resend) on failure.
func (s *Session) sendControlLocked(pkt []byte) {
	sink := s.Transport.sink()
	if sink == nil {
		return
	}
	b := buffer.NewStatic(pkt)
	if err := sink.PutData(b, nil); err != nil {
		s.log.Warn("gattlink: failed to send control packet", "session", s.id, "err", err)
	}
}

// sendDataLocked encodes and sends dp, returning false if the transport
// is applying backpressure (caller must stop pumping and wait for
// OnCanPut).
func (s *Session) sendDataLocked(dp DataPacket) bool {
	sink := s.Transport.sink()
	if sink == nil {
		return false
	}
	b := buffer.NewDynamicFromBytes(EncodeDataPacket(dp))
	if err := sink.PutData(b, nil); err != nil {
		if !ggerr.Is(err, ggerr.WouldBlock) {
			s.log.Warn("gattlink: transport send failed", "session", s.id, "err", err)
		}
		return false
	}
	return true
}

// maxPendingBytes bounds how much unsent application data a session will
// buffer (spec §4.E.3's outbound buffer has no hard bound in the protocol
// text, so the proxy layer above — loop.SinkProxy — is what actually
// enforces backpressure toward the application; this cap only guards
// against unbounded growth if the app ignores OnCanPut).
const maxPendingBytes = 1 << 20

// pushUserData enqueues app bytes for transmission (called from
// userPort.PutData), returning ggerr.WouldBlock once the pending buffer
// is past its soft cap.
func (s *Session) pushUserData(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.out.pending)+len(data) > maxPendingBytes {
		return ggerr.New("gattlink.Session.PutData", ggerr.WouldBlock)
	}
	s.out.pending = append(s.out.pending, data...)
	s.pumpLocked()
	return nil
}
