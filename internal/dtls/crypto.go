// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

package dtls

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"

	"github.com/fitbit/goldengate-go/internal/ggerr"
)

// directionalKey is an AES-256-GCM key plus the 4-byte fixed nonce prefix
// used for traffic flowing in one direction of a session.
type directionalKey struct {
	key         [32]byte
	noncePrefix [4]byte
}

// deriveSessionKeys turns a long-term PSK plus the negotiated identity
// into a pair of per-direction keys, via HMAC-SHA256 (stdlib
// `crypto/hmac`/`crypto/sha256`; see DESIGN.md for why this is hand-rolled
// rather than an ecosystem DTLS library: no PSK-capable DTLS/TLS stack
// appears anywhere in the retrieval pack). Both sides derive the same two
// keys independently from the identity exchanged in cleartext during the
// handshake; nothing secret crosses the wire. Client-to-server and
// server-to-client traffic use distinct keys so two independent
// per-direction sequence counters starting at zero never reuse a nonce.
func deriveSessionKeys(psk []byte, identity string) (clientToServer, serverToClient directionalKey) {
	clientToServer = deriveDirectionalKey(psk, identity, "c2s")
	serverToClient = deriveDirectionalKey(psk, identity, "s2c")
	return clientToServer, serverToClient
}

func deriveDirectionalKey(psk []byte, identity, direction string) directionalKey {
	var d directionalKey
	mac := hmac.New(sha256.New, psk)
	mac.Write([]byte("goldengate-dtls-session-key"))
	mac.Write([]byte(identity))
	mac.Write([]byte(direction))
	copy(d.key[:], mac.Sum(nil))

	mac2 := hmac.New(sha256.New, psk)
	mac2.Write([]byte("goldengate-dtls-nonce-prefix"))
	mac2.Write([]byte(identity))
	mac2.Write([]byte(direction))
	copy(d.noncePrefix[:], mac2.Sum(nil)[:4])
	return d
}

// newAEAD builds the AES-256-GCM cipher for a derived directional key.
func newAEAD(d directionalKey) (cipher.AEAD, error) {
	block, err := aes.NewCipher(d.key[:])
	if err != nil {
		return nil, ggerr.Wrap("dtls.newAEAD", ggerr.TLSError, err)
	}
	return cipher.NewGCM(block)
}

// nonceFor combines a directional key's fixed prefix with a per-record
// sequence counter into the 12-byte GCM nonce. The receiver takes the
// counter from the record itself, so a record whose counter was altered
// fails AEAD open, but a reordered or replayed record is not rejected.
func nonceFor(prefix [4]byte, seq uint64) []byte {
	nonce := make([]byte, 12)
	copy(nonce[:4], prefix[:])
	nonce[4] = byte(seq >> 56)
	nonce[5] = byte(seq >> 48)
	nonce[6] = byte(seq >> 40)
	nonce[7] = byte(seq >> 32)
	nonce[8] = byte(seq >> 24)
	nonce[9] = byte(seq >> 16)
	nonce[10] = byte(seq >> 8)
	nonce[11] = byte(seq)
	return nonce
}
