// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

package ipv4

import (
	"bytes"
	"reflect"
	"testing"
)

func TestSerializeParseHeaderRoundTrip(t *testing.T) {
	h := Header{
		IHL:            5,
		DSCP:           10,
		ECN:            1,
		TotalLength:    40,
		Identification: 0x1234,
		Flags:          2,
		FragmentOffset: 100,
		TTL:            64,
		Protocol:       ProtocolUDP,
		SrcAddress:     0x0A000001,
		DstAddress:     0x0A000002,
	}
	buf, err := SerializeHeader(h, true)
	if err != nil {
		t.Fatalf("SerializeHeader: %v", err)
	}
	if len(buf) != 20 {
		t.Fatalf("expected 20-byte header, got %d", len(buf))
	}
	got, err := ParseHeader(buf)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	got.Checksum = 0
	h.Checksum = 0
	if !reflect.DeepEqual(got, h) {
		t.Fatalf("expected %+v, got %+v", h, got)
	}
}

func TestSerializeHeaderWithOptions(t *testing.T) {
	h := Header{IHL: 6, Protocol: ProtocolTCP, Options: []byte{1, 2, 3, 4}}
	buf, err := SerializeHeader(h, false)
	if err != nil {
		t.Fatalf("SerializeHeader: %v", err)
	}
	if len(buf) != 24 {
		t.Fatalf("expected 24-byte header, got %d", len(buf))
	}
	got, err := ParseHeader(buf)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if !bytes.Equal(got.Options, h.Options) {
		t.Fatalf("expected options %v, got %v", h.Options, got.Options)
	}
}

func TestParseHeaderRejectsWrongVersion(t *testing.T) {
	buf := make([]byte, 20)
	buf[0] = 0x65 // version 6
	if _, err := ParseHeader(buf); err == nil {
		t.Fatal("expected error for non-IPv4 version nibble")
	}
}

func TestParseHeaderRejectsTruncated(t *testing.T) {
	if _, err := ParseHeader(make([]byte, 10)); err == nil {
		t.Fatal("expected error for truncated header")
	}
}

func TestChecksumOfKnownHeaderIsZeroWhenValid(t *testing.T) {
	h := Header{IHL: 5, TTL: 64, Protocol: ProtocolTCP, SrcAddress: 1, DstAddress: 2}
	buf, err := SerializeHeader(h, true)
	if err != nil {
		t.Fatalf("SerializeHeader: %v", err)
	}
	// a correctly checksummed header sums (in ones'-complement) to 0xFFFF,
	// i.e. Checksum() over the whole header returns 0xFFFF.
	if got := Checksum(buf); got != 0xFFFF {
		t.Fatalf("expected checksum fold of 0xFFFF over a valid header, got %#x", got)
	}
}

func TestUDPHeaderRoundTrip(t *testing.T) {
	h := UDPHeader{SrcPort: 1234, DstPort: 5678, Length: 16, Checksum: 0xBEEF}
	buf := SerializeUDPHeader(h)
	got, err := ParseUDPHeader(buf)
	if err != nil {
		t.Fatalf("ParseUDPHeader: %v", err)
	}
	if got != h {
		t.Fatalf("expected %+v, got %+v", h, got)
	}
}
