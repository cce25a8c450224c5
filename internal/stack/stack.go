// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

package stack

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/fitbit/goldengate-go/internal/dtls"
	"github.com/fitbit/goldengate-go/internal/gattlink"
	"github.com/fitbit/goldengate-go/internal/ggerr"
	"github.com/fitbit/goldengate-go/internal/ipv4"
	"github.com/fitbit/goldengate-go/internal/loop"
	"github.com/fitbit/goldengate-go/internal/ports"
)

// stackElementIDBase is added to a descriptor index to produce an
// element's id (spec §4.H "assign it an id (id_base + index)").
const stackElementIDBase = 1

// MaxInstances bounds how many concurrent Stacks a process may build
// (spec §4.H "a small configurable number (e.g., 64)"). It is a variable,
// not a constant, so tests can lower it to exercise the OUT_OF_RESOURCES
// path without building 64 real stacks.
var MaxInstances = 64

var (
	instanceMu    sync.Mutex
	instanceCount int
)

// ResetInstanceCountForTests zeroes the process-global stack-instance
// counter (spec §9 "global state ... explicit Reset() teardown hooks for
// tests").
func ResetInstanceCountForTests() {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	instanceCount = 0
}

var errInvalidIPMTU = ggerr.New("stack.resolveIPConfig", ggerr.InvalidParameters)

// port is the uniform shape every element's top/bottom port presents:
// each one is simultaneously the Sink a neighbor pushes data into and
// the Source that pushes data out to whichever sink is registered on it
// (the same dual-purpose port objects gattlink/dtls already expose as
// User/Transport).
type port interface {
	ports.Sink
	ports.Source
}

// element is the common shape every concrete stack element (activity
// monitor, Gattlink, network interface, DTLS, datagram socket) presents
// to the builder.
type element interface {
	kind() Kind
	topPort() port
	bottomPort() port
	start()
	reset()
}

// ActivityChangeEvent is the payload of an EventActivityChange.
type ActivityChangeEvent struct {
	Direction string // "bottom_to_top" or "top_to_bottom"
	Active    bool
}

// Config supplies everything the builder needs to assemble one stack
// instance (spec §4.H). Only the parameter blocks matching the
// descriptor's characters are consulted; the rest are ignored.
type Config struct {
	Descriptor string
	Role       Role

	// IPConfig overrides the builder's computed defaults entirely when
	// non-nil (spec §4.H "an optional IP configuration").
	IPConfig *IPConfig

	Loop *loop.Loop

	// TransportSource/TransportSink are wired to the bottom-most
	// element's bottom port, if supplied (spec §4.H).
	TransportSource ports.Source
	TransportSink   ports.Sink

	// Gattlink is a sparse parameter block for the 'G' element; nil uses
	// gattlink's own defaults.
	Gattlink *gattlink.Config

	// ActivityTimeoutMs is a sparse parameter for the 'A' element; 0
	// uses defaultActivityTimeoutMs.
	ActivityTimeoutMs int64

	// Exactly one of the DTLS parameter pairs below must be set when the
	// descriptor contains 'D' (spec §4.H: "client_params XOR
	// server_params").
	DTLSClientIdentity    string
	DTLSClientKey         []byte
	DTLSServerKeyResolver dtls.KeyResolver

	Logger *slog.Logger
}

// Stack is one fully-wired, built stack instance.
type Stack struct {
	id       int
	role     Role
	log      *slog.Logger
	ipConfig IPConfig
	elements []element
	top      port

	gattlinkSession *gattlink.Session
	dtls            *dtlsElement

	mu       sync.Mutex
	listener Listener
}

// Build validates descriptor, computes defaults, instantiates each
// element top-to-bottom, wires adjacent ports (and the transport to the
// bottom-most element), and binds the stack to the loop's thread (spec
// §4.H).
func Build(cfg Config) (*Stack, error) {
	if err := validateDescriptor(cfg.Descriptor); err != nil {
		return nil, err
	}
	if cfg.Loop == nil {
		return nil, ggerr.New("stack.Build", ggerr.InvalidParameters)
	}
	secure := strings.ContainsRune(cfg.Descriptor, 'D')
	if secure {
		hasClient := cfg.DTLSClientKey != nil
		hasServer := cfg.DTLSServerKeyResolver != nil
		if hasClient == hasServer {
			return nil, ggerr.New("stack.Build", ggerr.InvalidParameters)
		}
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	instanceMu.Lock()
	if instanceCount >= MaxInstances {
		instanceMu.Unlock()
		return nil, ggerr.New("stack.Build", ggerr.OutOfResources)
	}
	index := instanceCount
	instanceMu.Unlock()

	var ipCfg IPConfig
	if cfg.IPConfig != nil {
		ipCfg = *cfg.IPConfig
	}
	resolveIPConfig(&ipCfg, cfg.Role, index, secure)

	maxDatagram, err := maxDatagramSize(ipCfg.IPMTU)
	if err != nil {
		return nil, err
	}

	s := &Stack{id: index, role: cfg.Role, log: log, ipConfig: ipCfg}
	scheduler := cfg.Loop.Timers()

	var remap *ipv4.AddressMap
	if ipCfg.InboundRemappingEnabled {
		remap = &ipv4.AddressMap{
			SrcAddress:         ipCfg.RemapSrcAddress,
			RemappedSrcAddress: ipCfg.RemappedSrcAddress,
			DstAddress:         ipCfg.RemapDstAddress,
			RemappedDstAddress: ipCfg.RemappedDstAddress,
		}
	}

	elems := make([]element, 0, len(cfg.Descriptor))
	for i := 0; i < len(cfg.Descriptor); i++ {
		id := stackElementIDBase + i
		switch Kind(cfg.Descriptor[i]) {
		case KindActivityMonitor:
			ae := newActivityElement(id, scheduler, cfg.ActivityTimeoutMs, log)
			ae.onActivityChange = func(direction string, active bool) {
				s.emit(Event{Kind: EventActivityChange, StackID: s.id,
					Payload: ActivityChangeEvent{Direction: direction, Active: active}})
			}
			elems = append(elems, ae)

		case KindGattlink:
			gcfg := gattlink.Config{Logger: log}
			if cfg.Gattlink != nil {
				gcfg = *cfg.Gattlink
				gcfg.Logger = log
			}
			session := gattlink.New(scheduler, gcfg)
			session.OnSessionReady(func() {
				s.onGattlinkSessionReady()
				s.emit(Event{Kind: EventGattlinkSessionReady, StackID: s.id})
			})
			session.OnSessionReset(func() {
				s.onGattlinkSessionReset()
				s.emit(Event{Kind: EventGattlinkSessionReset, StackID: s.id})
			})
			session.OnSessionStalled(func(accumulatedMs int64) {
				s.emit(Event{Kind: EventGattlinkSessionStalled, StackID: s.id, Payload: accumulatedMs})
			})
			s.gattlinkSession = session
			elems = append(elems, newGattlinkElement(id, session))

		case KindNetworkInterface:
			ne := newNetifElement(id, ipCfg.IPMTU, ipCfg.HeaderCompressionEnabled, ipCfg, remap, log)
			elems = append(elems, ne)

		case KindDatagramSocket:
			elems = append(elems, newSocketElement(id))

		case KindDTLS:
			dcfg := dtls.Config{MaxDatagramSize: maxDatagram, Logger: log}
			if cfg.DTLSServerKeyResolver != nil {
				dcfg.Role = dtls.RoleServer
				dcfg.KeyResolver = cfg.DTLSServerKeyResolver
			} else {
				dcfg.Role = dtls.RoleClient
				dcfg.PSKIdentity = cfg.DTLSClientIdentity
				dcfg.PSKKey = cfg.DTLSClientKey
			}
			de := newDTLSElement(id, dtls.New(dcfg))
			de.element.OnStateChange(func(st dtls.State) {
				s.emit(Event{Kind: EventTLSStateChange, StackID: s.id, Payload: st})
			})
			s.dtls = de
			elems = append(elems, de)
		}
	}

	for i, el := range elems {
		if i > 0 {
			prev := elems[i-1]
			el.topPort().SetSink(prev.bottomPort())
			prev.bottomPort().SetSink(el.topPort())
		}
	}
	if len(elems) > 0 {
		bottom := elems[len(elems)-1].bottomPort()
		if cfg.TransportSource != nil {
			cfg.TransportSource.SetSink(bottom)
		}
		if cfg.TransportSink != nil {
			bottom.SetSink(cfg.TransportSink)
		}
		s.top = elems[0].topPort()
	}
	s.elements = elems

	cfg.Loop.BindThread()

	instanceMu.Lock()
	instanceCount++
	instanceMu.Unlock()

	return s, nil
}

// ID returns the process-unique id this stack was assigned at Build.
func (s *Stack) ID() int { return s.id }

// Role returns the role this stack was built with.
func (s *Stack) Role() Role { return s.role }

// IPConfig returns the (possibly defaulted) IP configuration in effect.
func (s *Stack) IPConfig() IPConfig { return s.ipConfig }

// Top returns the topmost element's port, the handle an application or
// CLI uses to send/receive whole IP datagrams (spec §4.H).
func (s *Stack) Top() ports.Sink {
	return s.top
}

// SetTopSink registers the application-facing sink that receives
// datagrams emitted from the top of the stack.
func (s *Stack) SetTopSink(sink ports.Sink) {
	if s.top != nil {
		s.top.SetSink(sink)
	}
}

// SetListener registers the listener that receives every STACK_EVENT_FORWARD
// (spec §4.H).
func (s *Stack) SetListener(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = l
}

func (s *Stack) emit(e Event) {
	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()
	if l != nil {
		l.OnStackEvent(e)
	}
}

// Start begins the stack's lifecycle: starting Gattlink triggers its
// reset handshake; DTLS is started reactively once that handshake
// completes (spec §4.H "start: start Gattlink ... then start DTLS").
func (s *Stack) Start() {
	if s.gattlinkSession != nil {
		s.gattlinkSession.Start()
	} else if s.dtls != nil {
		s.dtls.start()
	}
}

// Reset tears down DTLS before Gattlink (spec §4.H "reset: reset DTLS
// then reset Gattlink").
func (s *Stack) Reset() {
	if s.dtls != nil {
		s.dtls.reset()
	}
	if s.gattlinkSession != nil {
		s.gattlinkSession.Reset()
	}
}

// OnLinkMTUChange routes a transport MTU update into the Gattlink
// element's max transport fragment size and forwards the event upward
// (spec §4.H "LINK_MTU_CHANGE is additionally routed into the Gattlink
// element").
func (s *Stack) OnLinkMTUChange(mtu int) {
	if s.gattlinkSession != nil {
		s.gattlinkSession.SetMaxTransportFragmentSize(mtu)
	}
	s.emit(Event{Kind: EventLinkMTUChange, StackID: s.id, Payload: mtu})
}

func (s *Stack) onGattlinkSessionReady() {
	if s.dtls != nil && s.dtls.state() == dtls.StateInit {
		s.dtls.start()
	}
}

func (s *Stack) onGattlinkSessionReset() {
	if s.dtls != nil && s.dtls.state() != dtls.StateInit {
		s.dtls.reset()
	}
}
