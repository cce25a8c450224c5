// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitbit/goldengate-go/internal/config"
)

func TestDtlsParamsForNodeNoDTLS(t *testing.T) {
	cfg := &config.NodeConfig{}
	descriptor, identity, key, resolver, err := dtlsParamsForNode(cfg)
	require.NoError(t, err)
	assert.Equal(t, "SNG", descriptor)
	assert.Empty(t, identity)
	assert.Nil(t, key)
	assert.Nil(t, resolver)
}

func TestDtlsParamsForNodeClient(t *testing.T) {
	cfg := &config.NodeConfig{}
	cfg.DTLS.Role = "client"
	cfg.DTLS.PSKIdentity = "node-01"
	cfg.DTLS.PSKKeyHex = "000102030405060708090a0b0c0d0e0f"

	descriptor, identity, key, resolver, err := dtlsParamsForNode(cfg)
	require.NoError(t, err)
	assert.Equal(t, "SNDG", descriptor)
	assert.Equal(t, "node-01", identity)
	assert.Len(t, key, 16)
	assert.Nil(t, resolver)
}

func TestDtlsParamsForNodeServer(t *testing.T) {
	cfg := &config.NodeConfig{}
	cfg.DTLS.Role = "server"
	cfg.DTLS.PSKKeyHex = "000102030405060708090a0b0c0d0e0f"

	descriptor, identity, key, resolver, err := dtlsParamsForNode(cfg)
	require.NoError(t, err)
	assert.Equal(t, "SNDG", descriptor)
	assert.Empty(t, identity)
	assert.Nil(t, key)
	require.NotNil(t, resolver)
	resolvedKey, ok := resolver("anyone")
	assert.True(t, ok)
	assert.Len(t, resolvedKey, 16)
}

func TestDtlsParamsForNodeRejectsBadHex(t *testing.T) {
	cfg := &config.NodeConfig{}
	cfg.DTLS.Role = "client"
	cfg.DTLS.PSKIdentity = "node-01"
	cfg.DTLS.PSKKeyHex = "not-hex"

	_, _, _, _, err := dtlsParamsForNode(cfg)
	assert.Error(t, err)
}
