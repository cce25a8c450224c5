// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

package stack

import "github.com/fitbit/goldengate-go/internal/gattlink"

// gattlinkElement adapts a *gattlink.Session to the stack element shape:
// its User port is the top (toward the network interface) and its
// Transport port is the bottom (toward whatever carries opaque packets,
// ultimately the process transport).
type gattlinkElement struct {
	id      int
	session *gattlink.Session
}

func newGattlinkElement(id int, session *gattlink.Session) *gattlinkElement {
	return &gattlinkElement{id: id, session: session}
}

func (e *gattlinkElement) kind() Kind       { return KindGattlink }
func (e *gattlinkElement) topPort() port    { return e.session.User }
func (e *gattlinkElement) bottomPort() port { return e.session.Transport }
func (e *gattlinkElement) start()           { e.session.Start() }
func (e *gattlinkElement) reset()           { e.session.Reset() }
