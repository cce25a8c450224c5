// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

// Package gattlink implements the windowed, reliable byte-stream protocol
// that runs over an unreliable, small-max-packet-size transport (spec
// §4.E): a 32-serial-number sliding window with cumulative ACKs, a
// three-way reset handshake, and retransmit/stall detection timers.
package gattlink

import "github.com/fitbit/goldengate-go/internal/ggerr"

const (
	controlBit = 0x80 // byte 0, bit 7: set on control packets
	ackBit     = 0x40 // byte 0, bit 6 (data packets only): an ACK is present
	snMask     = 0x1F // serial numbers are 5 bits wide (mod-32 window)

	// dataPayloadHeaderOverhead is the number of bytes a payload-bearing
	// data packet spends on its own header (the leading control byte plus
	// the one-byte PSN), deducted from M when sizing a new outbound chunk.
	dataPayloadHeaderOverhead = 2
)

// ControlSubtype identifies a control packet's meaning (spec §4.E.1).
type ControlSubtype byte

const (
	SubtypeResetRequest  ControlSubtype = 0
	SubtypeResetComplete ControlSubtype = 1
)

// ResetComplete carries the four version/window negotiation bytes that
// follow a Reset Complete control packet's subtype byte.
type ResetComplete struct {
	MinVersion  byte
	MaxVersion  byte
	MaxRxWindow byte
	MaxTxWindow byte
}

// EncodeResetRequest returns the one-byte Reset Request control packet.
func EncodeResetRequest() []byte {
	return []byte{controlBit | byte(SubtypeResetRequest)}
}

// EncodeResetComplete returns the five-byte Reset Complete control packet.
func EncodeResetComplete(rc ResetComplete) []byte {
	return []byte{
		controlBit | byte(SubtypeResetComplete),
		rc.MinVersion, rc.MaxVersion, rc.MaxRxWindow, rc.MaxTxWindow,
	}
}

// IsControl reports whether pkt's top bit marks it as a control packet.
// An empty slice is never a valid packet of either kind.
func IsControl(pkt []byte) bool {
	return len(pkt) > 0 && pkt[0]&controlBit != 0
}

// DecodeControl parses a control packet's subtype and, for Reset
// Complete, its negotiation fields. Returns INVALID_FORMAT for a
// truncated Reset Complete and INVALID_PARAMETERS for an unrecognized
// subtype (spec §4.E.6: "invalid/oversized control packets").
func DecodeControl(pkt []byte) (ControlSubtype, ResetComplete, error) {
	if len(pkt) == 0 {
		return 0, ResetComplete{}, ggerr.New("gattlink.DecodeControl", ggerr.InvalidFormat)
	}
	subtype := ControlSubtype(pkt[0] &^ controlBit)
	switch subtype {
	case SubtypeResetRequest:
		return subtype, ResetComplete{}, nil
	case SubtypeResetComplete:
		if len(pkt) < 5 {
			return 0, ResetComplete{}, ggerr.New("gattlink.DecodeControl", ggerr.InvalidFormat)
		}
		return subtype, ResetComplete{
			MinVersion:  pkt[1],
			MaxVersion:  pkt[2],
			MaxRxWindow: pkt[3],
			MaxTxWindow: pkt[4],
		}, nil
	default:
		return subtype, ResetComplete{}, ggerr.New("gattlink.DecodeControl", ggerr.InvalidParameters)
	}
}

// DataPacket is the decoded form of a data packet (top bit 0): an
// optional cumulative ACK, and an optional payload block.
type DataPacket struct {
	HasAck     bool
	AckPSN     byte
	HasPayload bool
	PayloadPSN byte
	Payload    []byte
}

// EncodeDataPacket serializes dp. A packet with neither HasAck nor
// HasPayload set is meaningless and never constructed by this package.
func EncodeDataPacket(dp DataPacket) []byte {
	head := byte(0)
	if dp.HasAck {
		head |= ackBit | (dp.AckPSN & snMask)
	}
	if !dp.HasPayload {
		return []byte{head}
	}
	out := make([]byte, 2+len(dp.Payload))
	out[0] = head
	out[1] = dp.PayloadPSN & snMask
	copy(out[2:], dp.Payload)
	return out
}

// DecodeDataPacket parses a data packet. A lone header byte with the ACK
// bit clear is technically well-formed but carries no information; it
// decodes to a DataPacket with both Has* flags false.
func DecodeDataPacket(pkt []byte) (DataPacket, error) {
	if len(pkt) == 0 {
		return DataPacket{}, ggerr.New("gattlink.DecodeDataPacket", ggerr.InvalidFormat)
	}
	head := pkt[0]
	dp := DataPacket{}
	if head&ackBit != 0 {
		dp.HasAck = true
		dp.AckPSN = head & snMask
	}
	if len(pkt) == 1 {
		return dp, nil
	}
	if len(pkt) < 2 {
		return DataPacket{}, ggerr.New("gattlink.DecodeDataPacket", ggerr.InvalidFormat)
	}
	dp.HasPayload = true
	dp.PayloadPSN = pkt[1] & snMask
	dp.Payload = pkt[2:]
	return dp, nil
}
