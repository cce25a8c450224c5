// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

package stack

import "github.com/fitbit/goldengate-go/internal/dtls"

// dtlsElement adapts a *dtls.Element to the stack element shape: its User
// port is the top (plaintext datagrams, toward the datagram socket) and
// its Transport port is the bottom (DTLS records, toward the network
// interface).
type dtlsElement struct {
	id      int
	element *dtls.Element
}

func newDTLSElement(id int, el *dtls.Element) *dtlsElement {
	return &dtlsElement{id: id, element: el}
}

func (e *dtlsElement) kind() Kind       { return KindDTLS }
func (e *dtlsElement) topPort() port    { return e.element.User }
func (e *dtlsElement) bottomPort() port { return e.element.Transport }
func (e *dtlsElement) start()           { e.element.Start() }
func (e *dtlsElement) reset()           { e.element.Reset() }

// state mirrors e.element.Status().State for INIT checks in the stack's
// start/reset lifecycle coupling (spec §4.H).
func (e *dtlsElement) state() dtls.State { return e.element.Status().State }
