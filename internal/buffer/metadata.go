// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

package buffer

import (
	"encoding/binary"
	"net"

	"github.com/fitbit/goldengate-go/internal/ggerr"
)

// MetadataTag identifies the kind of a Metadata parcel (spec §3).
type MetadataTag uint32

const (
	// TagSourceAddress marks the remote peer that sent a datagram.
	TagSourceAddress MetadataTag = iota + 1
	// TagDestinationAddress marks the peer a datagram must be sent to.
	TagDestinationAddress
)

// socketAddressBaseSize is the on-the-wire size of a SocketAddress
// payload: 4 bytes of IPv4 address + 2 bytes of port, big-endian.
const socketAddressBaseSize = 6

// SocketAddress is the payload carried by TagSourceAddress and
// TagDestinationAddress metadata.
type SocketAddress struct {
	IP   [4]byte
	Port uint16
}

// Addr renders the SocketAddress as a net.UDPAddr for callers that want
// to hand it to the standard networking stack.
func (s SocketAddress) Addr() *net.UDPAddr {
	return &net.UDPAddr{IP: net.IPv4(s.IP[0], s.IP[1], s.IP[2], s.IP[3]), Port: int(s.Port)}
}

// Metadata is a tagged parcel attached to a single put_data transfer.
// Unknown tags are copied verbatim by Clone but otherwise ignored.
type Metadata struct {
	Tag     MetadataTag
	payload []byte
}

// NewSocketAddressMetadata builds a source/destination address parcel.
func NewSocketAddressMetadata(tag MetadataTag, addr SocketAddress) *Metadata {
	payload := make([]byte, socketAddressBaseSize)
	copy(payload[0:4], addr.IP[:])
	binary.BigEndian.PutUint16(payload[4:6], addr.Port)
	return &Metadata{Tag: tag, payload: payload}
}

// SocketAddress decodes the parcel's payload as a SocketAddress. It
// returns INVALID_PARAMETERS if the payload is shorter than the base
// header, matching spec §4.A's "size must be >= the base header" rule.
func (m *Metadata) SocketAddress() (SocketAddress, error) {
	if len(m.payload) < socketAddressBaseSize {
		return SocketAddress{}, ggerr.New("metadata.SocketAddress", ggerr.InvalidParameters)
	}
	var addr SocketAddress
	copy(addr.IP[:], m.payload[0:4])
	addr.Port = binary.BigEndian.Uint16(m.payload[4:6])
	return addr, nil
}

// Payload exposes the raw bytes carried by the parcel, for unknown tags
// that producers/consumers don't interpret but the cloner still copies.
func (m *Metadata) Payload() []byte {
	return m.payload
}

// NewRawMetadata wraps an arbitrary tag/payload pair, used for tags this
// package does not recognize but whose bytes must still round-trip
// through Clone.
func NewRawMetadata(tag MetadataTag, payload []byte) *Metadata {
	return &Metadata{Tag: tag, payload: payload}
}

// CloneMetadata copies size bytes verbatim from src's payload into a
// freshly owned Metadata. size must be >= the base header size for
// recognized tags; unrecognized tags only require size >= 0.
func CloneMetadata(src *Metadata, size int) (*Metadata, error) {
	if src == nil {
		return nil, nil
	}
	minSize := 0
	switch src.Tag {
	case TagSourceAddress, TagDestinationAddress:
		minSize = socketAddressBaseSize
	}
	if size < minSize {
		return nil, ggerr.New("buffer.CloneMetadata", ggerr.InvalidParameters)
	}
	if size > len(src.payload) {
		size = len(src.payload)
	}
	cp := make([]byte, size)
	copy(cp, src.payload[:size])
	return &Metadata{Tag: src.Tag, payload: cp}, nil
}
