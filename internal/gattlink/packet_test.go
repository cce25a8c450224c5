// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

package gattlink

import (
	"bytes"
	"testing"
)

func TestResetRequestRoundTrip(t *testing.T) {
	pkt := EncodeResetRequest()
	if !IsControl(pkt) {
		t.Fatal("expected Reset Request to be a control packet")
	}
	subtype, _, err := DecodeControl(pkt)
	if err != nil {
		t.Fatalf("DecodeControl: %v", err)
	}
	if subtype != SubtypeResetRequest {
		t.Fatalf("expected SubtypeResetRequest, got %v", subtype)
	}
}

func TestResetCompleteRoundTrip(t *testing.T) {
	rc := ResetComplete{MinVersion: 1, MaxVersion: 2, MaxRxWindow: 16, MaxTxWindow: 24}
	pkt := EncodeResetComplete(rc)
	subtype, got, err := DecodeControl(pkt)
	if err != nil {
		t.Fatalf("DecodeControl: %v", err)
	}
	if subtype != SubtypeResetComplete {
		t.Fatalf("expected SubtypeResetComplete, got %v", subtype)
	}
	if got != rc {
		t.Fatalf("expected %+v, got %+v", rc, got)
	}
}

func TestDecodeControlTruncatedResetComplete(t *testing.T) {
	pkt := []byte{controlBit | byte(SubtypeResetComplete), 1, 2}
	if _, _, err := DecodeControl(pkt); err == nil {
		t.Fatal("expected INVALID_FORMAT for truncated Reset Complete")
	}
}

func TestDataPacketPureAck(t *testing.T) {
	pkt := EncodeDataPacket(DataPacket{HasAck: true, AckPSN: 7})
	if IsControl(pkt) {
		t.Fatal("data packet must not be identified as control")
	}
	if len(pkt) != 1 {
		t.Fatalf("expected 1-byte pure-ack packet, got %d bytes", len(pkt))
	}
	dp, err := DecodeDataPacket(pkt)
	if err != nil {
		t.Fatalf("DecodeDataPacket: %v", err)
	}
	if !dp.HasAck || dp.AckPSN != 7 || dp.HasPayload {
		t.Fatalf("unexpected decode: %+v", dp)
	}
}

func TestDataPacketAckPlusPayload(t *testing.T) {
	payload := []byte("hello")
	pkt := EncodeDataPacket(DataPacket{HasAck: true, AckPSN: 3, HasPayload: true, PayloadPSN: 9, Payload: payload})
	dp, err := DecodeDataPacket(pkt)
	if err != nil {
		t.Fatalf("DecodeDataPacket: %v", err)
	}
	if !dp.HasAck || dp.AckPSN != 3 {
		t.Fatalf("expected ack psn 3, got %+v", dp)
	}
	if !dp.HasPayload || dp.PayloadPSN != 9 || !bytes.Equal(dp.Payload, payload) {
		t.Fatalf("expected payload psn 9 %q, got %+v", payload, dp)
	}
}

func TestDataPacketPayloadOnly(t *testing.T) {
	pkt := EncodeDataPacket(DataPacket{HasPayload: true, PayloadPSN: 31, Payload: []byte{0xAA}})
	dp, err := DecodeDataPacket(pkt)
	if err != nil {
		t.Fatalf("DecodeDataPacket: %v", err)
	}
	if dp.HasAck {
		t.Fatal("expected no ack")
	}
	if dp.PayloadPSN != 31 {
		t.Fatalf("expected psn 31, got %d", dp.PayloadPSN)
	}
}

func TestDecodeDataPacketEmpty(t *testing.T) {
	if _, err := DecodeDataPacket(nil); err == nil {
		t.Fatal("expected INVALID_FORMAT for empty packet")
	}
}

func TestPSNMaskedTo5Bits(t *testing.T) {
	pkt := EncodeDataPacket(DataPacket{HasAck: true, AckPSN: 0xFF})
	dp, _ := DecodeDataPacket(pkt)
	if dp.AckPSN != 0x1F {
		t.Fatalf("expected ack psn masked to 5 bits (0x1F), got %#x", dp.AckPSN)
	}
}
