// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

package ipv4

import (
	"bytes"
	"testing"
)

func testIPConfig() IPConfig {
	return IPConfig{
		DefaultSrcAddress: 0x0A000001,
		DefaultDstAddress: 0x0A000002,
		UDPSrcPorts:       [3]uint16{5683, 68, 53},
		UDPDstPorts:       [3]uint16{5683, 67, 53},
	}
}

func TestCompressDecompressAllFieldsElided(t *testing.T) {
	cfg := testIPConfig()
	ip := Header{
		IHL:        5,
		Protocol:   ProtocolUDP,
		SrcAddress: cfg.DefaultSrcAddress,
		DstAddress: cfg.DefaultDstAddress,
	}
	payload := []byte("hello world")
	udp := &UDPHeader{SrcPort: cfg.UDPSrcPorts[0], DstPort: cfg.UDPDstPorts[0], Length: uint16(udpHeaderSize + len(payload))}

	compressed, err := CompressHeaders(ip, udp, payload, cfg)
	if err != nil {
		t.Fatalf("CompressHeaders: %v", err)
	}
	// every field elided: just the 6-byte fixed part plus payload.
	if len(compressed) != compressedFixedSize+len(payload) {
		t.Fatalf("expected fully-elided compressed size %d, got %d", compressedFixedSize+len(payload), len(compressed))
	}

	dec, err := DecompressHeaders(compressed, cfg)
	if err != nil {
		t.Fatalf("DecompressHeaders: %v", err)
	}
	if dec.IP.SrcAddress != cfg.DefaultSrcAddress || dec.IP.DstAddress != cfg.DefaultDstAddress {
		t.Fatalf("expected default addresses restored, got %+v", dec.IP)
	}
	if !dec.IsUDP || dec.UDP.SrcPort != udp.SrcPort || dec.UDP.DstPort != udp.DstPort {
		t.Fatalf("expected UDP ports restored, got %+v", dec.UDP)
	}
	if !bytes.Equal(dec.Payload, payload) {
		t.Fatalf("expected payload %q, got %q", payload, dec.Payload)
	}
}

func TestCompressDecompressNonDefaultFields(t *testing.T) {
	cfg := testIPConfig()
	ip := Header{
		IHL:            5,
		DSCP:           12,
		ECN:            2,
		Flags:          1,
		FragmentOffset: 500,
		TTL:            42,
		Protocol:       ProtocolUDP,
		SrcAddress:     0xC0A80001,
		DstAddress:     0xC0A80002,
	}
	udp := &UDPHeader{SrcPort: 9999, DstPort: 8888}
	payload := []byte{1, 2, 3, 4, 5}

	compressed, err := CompressHeaders(ip, udp, payload, cfg)
	if err != nil {
		t.Fatalf("CompressHeaders: %v", err)
	}
	dec, err := DecompressHeaders(compressed, cfg)
	if err != nil {
		t.Fatalf("DecompressHeaders: %v", err)
	}
	if dec.IP.DSCP != ip.DSCP || dec.IP.ECN != ip.ECN || dec.IP.Flags != ip.Flags {
		t.Fatalf("expected explicit fields preserved, got %+v", dec.IP)
	}
	if dec.IP.FragmentOffset != ip.FragmentOffset || dec.IP.TTL != ip.TTL {
		t.Fatalf("expected explicit fields preserved, got %+v", dec.IP)
	}
	if dec.IP.SrcAddress != ip.SrcAddress || dec.IP.DstAddress != ip.DstAddress {
		t.Fatalf("expected explicit addresses preserved, got %+v", dec.IP)
	}
	if dec.UDP.SrcPort != udp.SrcPort || dec.UDP.DstPort != udp.DstPort {
		t.Fatalf("expected explicit ports preserved, got %+v", dec.UDP)
	}
	if !bytes.Equal(dec.Payload, payload) {
		t.Fatalf("expected payload %q, got %q", payload, dec.Payload)
	}
}

func TestCompressDecompressNonUDPProtocol(t *testing.T) {
	cfg := testIPConfig()
	ip := Header{IHL: 5, Protocol: 99, SrcAddress: cfg.DefaultSrcAddress, DstAddress: cfg.DefaultDstAddress}
	payload := []byte("icmp-like")

	compressed, err := CompressHeaders(ip, nil, payload, cfg)
	if err != nil {
		t.Fatalf("CompressHeaders: %v", err)
	}
	dec, err := DecompressHeaders(compressed, cfg)
	if err != nil {
		t.Fatalf("DecompressHeaders: %v", err)
	}
	if dec.IsUDP {
		t.Fatal("expected non-UDP packet to decode without a UDP header")
	}
	if dec.IP.Protocol != 99 {
		t.Fatalf("expected protocol 99 preserved, got %d", dec.IP.Protocol)
	}
}

func TestCompressedHeaderCarriesSetFlagBit(t *testing.T) {
	cfg := testIPConfig()
	ip := Header{IHL: 5, Protocol: ProtocolTCP, SrcAddress: cfg.DefaultSrcAddress, DstAddress: cfg.DefaultDstAddress}
	compressed, err := CompressHeaders(ip, nil, nil, cfg)
	if err != nil {
		t.Fatalf("CompressHeaders: %v", err)
	}
	if compressed[0]&0x80 == 0 {
		t.Fatal("expected high bit of first byte set to mark a compressed header")
	}
}

func TestUDPLengthInferredWhenNotExplicit(t *testing.T) {
	cfg := testIPConfig()
	ip := Header{IHL: 5, Protocol: ProtocolUDP, SrcAddress: cfg.DefaultSrcAddress, DstAddress: cfg.DefaultDstAddress, TotalLength: 20 + 8 + 4}
	udp := &UDPHeader{SrcPort: cfg.UDPSrcPorts[0], DstPort: cfg.UDPDstPorts[0], Length: 8 + 4}
	payload := []byte{9, 9, 9, 9}

	compressed, err := CompressHeaders(ip, udp, payload, cfg)
	if err != nil {
		t.Fatalf("CompressHeaders: %v", err)
	}
	dec, err := DecompressHeaders(compressed, cfg)
	if err != nil {
		t.Fatalf("DecompressHeaders: %v", err)
	}
	if dec.UDP.Length != uint16(udpHeaderSize+len(payload)) {
		t.Fatalf("expected inferred UDP length %d, got %d", udpHeaderSize+len(payload), dec.UDP.Length)
	}
}

func TestDecompressHeadersRejectsShortInput(t *testing.T) {
	if _, err := DecompressHeaders([]byte{0x80, 0x00}, testIPConfig()); err == nil {
		t.Fatal("expected error for input shorter than the fixed part")
	}
}
