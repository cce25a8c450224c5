// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/fitbit/goldengate-go/internal/config"
	"github.com/fitbit/goldengate-go/internal/dtls"
)

// dtlsParamsForHub derives the stack descriptor and server-role key
// resolver from cfg: "SNG" with no DTLS element when dtls.role is unset,
// "SNDG" with a resolver answering every identity with the configured PSK
// key otherwise (a hub serves one shared key across its nodes).
func dtlsParamsForHub(cfg *config.HubConfig) (descriptor string, keyResolver dtls.KeyResolver, err error) {
	if cfg.DTLS.Role == "" {
		return "SNG", nil, nil
	}
	key, err := cfg.PSKKey()
	if err != nil {
		return "", nil, fmt.Errorf("decoding dtls.psk_key_hex: %w", err)
	}
	return "SNDG", func(identity string) ([]byte, bool) { return key, true }, nil
}
