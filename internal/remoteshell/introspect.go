// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

package remoteshell

import (
	"context"

	"github.com/fitbit/goldengate-go/internal/gattlink"
	"github.com/fitbit/goldengate-go/internal/stack"
)

// stackStatusResult is the result payload for the "stack.status" method.
type stackStatusResult struct {
	ID            int    `cbor:"id"`
	Role          string `cbor:"role"`
	LocalAddress  uint32 `cbor:"local_address"`
	RemoteAddress uint32 `cbor:"remote_address"`
	IPMTU         int    `cbor:"ip_mtu"`
}

// StackStatusHandler builds the "stack.status" introspection handler
// (spec §4.L), reporting s's identity and resolved IP configuration. cmd/
// registers it against a process's Registry once its stacks are built.
func StackStatusHandler(s *stack.Stack) HandlerFunc {
	return func(_ context.Context, _ []byte) (any, *Error) {
		cfg := s.IPConfig()
		return stackStatusResult{
			ID:            s.ID(),
			Role:          s.Role().String(),
			LocalAddress:  cfg.LocalAddress,
			RemoteAddress: cfg.RemoteAddress,
			IPMTU:         cfg.IPMTU,
		}, nil
	}
}

// gattlinkStatsResult is the result payload for the "gattlink.stats"
// method.
type gattlinkStatsResult struct {
	ID                     string `cbor:"id"`
	State                  string `cbor:"state"`
	MaxTransportFragmentSize int  `cbor:"max_transport_fragment_size"`
}

// GattlinkStatsHandler builds the "gattlink.stats" introspection handler
// (spec §4.L), reporting session's current protocol state.
func GattlinkStatsHandler(session *gattlink.Session) HandlerFunc {
	return func(_ context.Context, _ []byte) (any, *Error) {
		return gattlinkStatsResult{
			ID:                       session.ID(),
			State:                    session.State().String(),
			MaxTransportFragmentSize: session.MaxTransportFragmentSize(),
		}, nil
	}
}
