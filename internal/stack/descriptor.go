// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

// Package stack implements the stack builder (spec §4.H): it turns a
// short descriptor string into a fully-wired chain of elements (activity
// monitor, Gattlink, IPv4 network interface, DTLS, datagram socket)
// bound to an event loop and a transport.
package stack

import "github.com/fitbit/goldengate-go/internal/ggerr"

// Kind identifies one descriptor character / element type (spec §4.H).
type Kind byte

const (
	KindActivityMonitor  Kind = 'A'
	KindDTLS             Kind = 'D'
	KindGattlink         Kind = 'G'
	KindNetworkInterface Kind = 'N'
	KindDatagramSocket   Kind = 'S'
)

func (k Kind) String() string {
	switch k {
	case KindActivityMonitor:
		return "ACTIVITY_MONITOR"
	case KindDTLS:
		return "DTLS"
	case KindGattlink:
		return "GATTLINK"
	case KindNetworkInterface:
		return "NETWORK_INTERFACE"
	case KindDatagramSocket:
		return "DATAGRAM_SOCKET"
	default:
		return "UNKNOWN"
	}
}

func isKnownKind(c byte) bool {
	switch Kind(c) {
	case KindActivityMonitor, KindDTLS, KindGattlink, KindNetworkInterface, KindDatagramSocket:
		return true
	default:
		return false
	}
}

// validateDescriptor checks the non-empty, no-repeated-character,
// known-element rules from spec §4.H.
func validateDescriptor(descriptor string) error {
	if len(descriptor) == 0 {
		return ggerr.New("stack.validateDescriptor", ggerr.InvalidParameters)
	}
	seen := make(map[byte]bool, len(descriptor))
	for i := 0; i < len(descriptor); i++ {
		c := descriptor[i]
		if !isKnownKind(c) {
			return ggerr.New("stack.validateDescriptor", ggerr.InvalidParameters)
		}
		if seen[c] {
			return ggerr.New("stack.validateDescriptor", ggerr.InvalidParameters)
		}
		seen[c] = true
	}
	return nil
}
