// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

package dtls

import (
	"encoding/binary"

	"github.com/fitbit/goldengate-go/internal/ggerr"
	"github.com/fitbit/goldengate-go/internal/ipv4"
)

// recordType tags the first byte of every wire record the element
// exchanges with its transport-side peer (spec §4.G: "an embedded TLS
// engine exposing a handshake-step API and two byte interfaces").
type recordType byte

const (
	recordClientHello recordType = 1
	recordServerHello recordType = 2
	recordAlert       recordType = 3
	recordAppData     recordType = 4
)

// encodeClientHello carries the PSK identity the client is offering, so
// the server can resolve the matching key (spec §4.G "server role ...
// resolver callback").
func encodeClientHello(identity string) []byte {
	out := make([]byte, 1+2+len(identity))
	out[0] = byte(recordClientHello)
	binary.BigEndian.PutUint16(out[1:3], uint16(len(identity)))
	copy(out[3:], identity)
	return out
}

func decodeClientHello(rec []byte) (string, error) {
	if len(rec) < 3 {
		return "", ggerr.New("dtls.decodeClientHello", ggerr.InvalidFormat)
	}
	n := binary.BigEndian.Uint16(rec[1:3])
	if len(rec) != 3+int(n) {
		return "", ggerr.New("dtls.decodeClientHello", ggerr.InvalidFormat)
	}
	return string(rec[3:]), nil
}

func encodeServerHello() []byte {
	return []byte{byte(recordServerHello)}
}

// encodeAlert carries a handshake/record failure back to the peer using
// the same tagged-field extended-error contract ipv4 exposes for the
// CoAP layer (spec §4.M), giving that wire format a second producer.
func encodeAlert(e ipv4.ExtendedError) []byte {
	out := []byte{byte(recordAlert)}
	return append(out, ipv4.EncodeExtendedError(e)...)
}

func decodeAlert(rec []byte) (ipv4.ExtendedError, error) {
	if len(rec) < 1 {
		return ipv4.ExtendedError{}, ggerr.New("dtls.decodeAlert", ggerr.InvalidFormat)
	}
	return ipv4.DecodeExtendedError(rec[1:])
}

// encodeAppData frames an AEAD-sealed application datagram: an 8-byte
// big-endian sequence number (the AEAD nonce's counter half) followed by
// ciphertext-plus-tag.
func encodeAppData(seq uint64, sealed []byte) []byte {
	out := make([]byte, 1+8+len(sealed))
	out[0] = byte(recordAppData)
	binary.BigEndian.PutUint64(out[1:9], seq)
	copy(out[9:], sealed)
	return out
}

func decodeAppData(rec []byte) (seq uint64, sealed []byte, err error) {
	if len(rec) < 9 {
		return 0, nil, ggerr.New("dtls.decodeAppData", ggerr.InvalidFormat)
	}
	seq = binary.BigEndian.Uint64(rec[1:9])
	return seq, rec[9:], nil
}
