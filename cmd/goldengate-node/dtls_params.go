// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/fitbit/goldengate-go/internal/config"
	"github.com/fitbit/goldengate-go/internal/dtls"
)

// dtlsParamsForNode derives the stack descriptor and DTLS role parameters
// from cfg: "SNG" with no DTLS element when dtls.role is unset, "SNDG"
// otherwise, with exactly one of the client/server parameter sets
// populated per internal/stack.Build's requirement.
func dtlsParamsForNode(cfg *config.NodeConfig) (descriptor, clientIdentity string, clientKey []byte, keyResolver dtls.KeyResolver, err error) {
	if cfg.DTLS.Role == "" {
		return "SNG", "", nil, nil, nil
	}
	key, err := cfg.PSKKey()
	if err != nil {
		return "", "", nil, nil, fmt.Errorf("decoding dtls.psk_key_hex: %w", err)
	}
	if cfg.DTLS.Role == "server" {
		return "SNDG", "", nil, func(identity string) ([]byte, bool) { return key, true }, nil
	}
	return "SNDG", cfg.DTLS.PSKIdentity, key, nil, nil
}
