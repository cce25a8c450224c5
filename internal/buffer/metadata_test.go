// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

package buffer

import "testing"

func TestSocketAddressRoundTrip(t *testing.T) {
	addr := SocketAddress{IP: [4]byte{10, 0, 0, 2}, Port: 4242}
	m := NewSocketAddressMetadata(TagDestinationAddress, addr)

	got, err := m.SocketAddress()
	if err != nil {
		t.Fatalf("SocketAddress: %v", err)
	}
	if got != addr {
		t.Fatalf("expected %+v, got %+v", addr, got)
	}
}

func TestCloneMetadataRejectsShortPayload(t *testing.T) {
	m := NewSocketAddressMetadata(TagSourceAddress, SocketAddress{})
	if _, err := CloneMetadata(m, 2); err == nil {
		t.Fatal("expected INVALID_PARAMETERS for size below base header")
	}
}

func TestCloneMetadataCopiesUnknownTagVerbatim(t *testing.T) {
	raw := NewRawMetadata(MetadataTag(99), []byte{0xAA, 0xBB, 0xCC})
	clone, err := CloneMetadata(raw, 3)
	if err != nil {
		t.Fatalf("CloneMetadata: %v", err)
	}
	if clone.Tag != MetadataTag(99) {
		t.Fatalf("expected tag preserved, got %v", clone.Tag)
	}
	if string(clone.Payload()) != string([]byte{0xAA, 0xBB, 0xCC}) {
		t.Fatalf("expected payload copied verbatim, got %v", clone.Payload())
	}
	// Mutating the clone must not affect the source (deep copy).
	clone.payload[0] = 0x00
	if raw.payload[0] != 0xAA {
		t.Fatal("expected clone to be independent of source")
	}
}

func TestCloneMetadataNil(t *testing.T) {
	clone, err := CloneMetadata(nil, 0)
	if err != nil || clone != nil {
		t.Fatalf("expected (nil, nil) for nil source, got (%v, %v)", clone, err)
	}
}
