// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

package ipv4

import (
	"encoding/binary"

	"github.com/fitbit/goldengate-go/internal/ggerr"
)

const (
	compressedFixedSize = 6 // flags (2 bytes) + total length (2 bytes) + identification (2 bytes)
	compressedFlag      = 0x8000

	flagHasIHL            = 0x0001
	flagHasDSCP           = 0x0002
	flagHasECN            = 0x0004
	flagHasFlags          = 0x0008
	flagHasFragmentOffset = 0x0010
	flagHasTTL            = 0x0020
	flagProtocolMask      = 0x00C0
	flagProtocolTCP       = 0x0000
	flagProtocolUDP       = 0x0040
	flagProtocolICMP      = 0x0080
	flagHasProtocol       = 0x00C0
	flagHasSrcAddress     = 0x0100
	flagHasDstAddress     = 0x0200

	flagUDPSrcPortMask = 0x0C00
	flagUDPSrcPortA    = 0x0000
	flagUDPSrcPortB    = 0x0400
	flagUDPSrcPortC    = 0x0800
	flagUDPHasSrcPort  = 0x0C00

	flagUDPDstPortMask = 0x3000
	flagUDPDstPortA    = 0x0000
	flagUDPDstPortB    = 0x1000
	flagUDPDstPortC    = 0x2000
	flagUDPHasDstPort  = 0x3000

	flagUDPHasLength = 0x4000

	defaultIHL            = 5
	defaultDSCP           = 0
	defaultECN            = 0
	defaultFlags          = 0
	defaultFragmentOffset = 0
	defaultTTL            = 0
)

// IPConfig supplies the "default" field values a peer's header is
// compared against for elision, and the well-known UDP port table (spec
// §4.F.2 items 8-9, 11-12). UDPSrcPorts/UDPDstPorts hold up to 3 entries;
// a port matching slot i is encoded as the 2-bit selector i instead of 16
// raw bits.
type IPConfig struct {
	DefaultSrcAddress uint32
	DefaultDstAddress uint32
	UDPSrcPorts       [3]uint16
	UDPDstPorts       [3]uint16
}

// Compressed is the decoded form of a compressed packet's headers, plus
// the payload that followed them.
type Compressed struct {
	IP      Header
	UDP     UDPHeader
	IsUDP   bool
	Payload []byte
}

// CompressHeaders elides ip (and udp, if non-nil) fields that match cfg's
// defaults/well-known ports, returning the compressed header bytes (the
// 6-byte fixed part plus the bit-packed variable part) per spec §4.F.2.
// payload is appended unchanged.
func CompressHeaders(ip Header, udp *UDPHeader, payload []byte, cfg IPConfig) ([]byte, error) {
	if ip.IHL < headerMinIHL {
		return nil, ggerr.New("ipv4.CompressHeaders", ggerr.InvalidParameters)
	}

	w := &bitWriter{}
	flags := uint32(compressedFlag)

	if ip.IHL != defaultIHL {
		flags |= flagHasIHL
		w.write(uint32(ip.IHL), 4)
	}
	if ip.DSCP != defaultDSCP {
		flags |= flagHasDSCP
		w.write(uint32(ip.DSCP), 6)
	}
	if ip.ECN != defaultECN {
		flags |= flagHasECN
		w.write(uint32(ip.ECN), 2)
	}
	if ip.Flags != defaultFlags {
		flags |= flagHasFlags
		w.write(uint32(ip.Flags), 3)
	}
	if ip.FragmentOffset != defaultFragmentOffset {
		flags |= flagHasFragmentOffset
		w.write(uint32(ip.FragmentOffset), 13)
	}
	if ip.TTL != defaultTTL {
		flags |= flagHasTTL
		w.write(uint32(ip.TTL), 8)
	}
	switch ip.Protocol {
	case ProtocolTCP:
		flags |= flagProtocolTCP
	case ProtocolUDP:
		flags |= flagProtocolUDP
	case ProtocolICMP:
		flags |= flagProtocolICMP
	default:
		flags |= flagHasProtocol
		w.write(uint32(ip.Protocol), 8)
	}
	if ip.SrcAddress != cfg.DefaultSrcAddress {
		flags |= flagHasSrcAddress
		w.write(ip.SrcAddress, 32)
	}
	if ip.DstAddress != cfg.DefaultDstAddress {
		flags |= flagHasDstAddress
		w.write(ip.DstAddress, 32)
	}
	for _, b := range ip.Options {
		w.write(uint32(b), 8)
	}

	if udp != nil {
		switch udp.SrcPort {
		case cfg.UDPSrcPorts[0]:
			flags |= flagUDPSrcPortA
		case cfg.UDPSrcPorts[1]:
			flags |= flagUDPSrcPortB
		case cfg.UDPSrcPorts[2]:
			flags |= flagUDPSrcPortC
		default:
			flags |= flagUDPHasSrcPort
			w.write(uint32(udp.SrcPort), 16)
		}
		switch udp.DstPort {
		case cfg.UDPDstPorts[0]:
			flags |= flagUDPDstPortA
		case cfg.UDPDstPorts[1]:
			flags |= flagUDPDstPortB
		case cfg.UDPDstPorts[2]:
			flags |= flagUDPDstPortC
		default:
			flags |= flagUDPHasDstPort
			w.write(uint32(udp.DstPort), 16)
		}
		if int(udp.Length) != udpHeaderSize+len(payload) {
			flags |= flagUDPHasLength
			w.write(uint32(udp.Length), 16)
		}
	}

	variable := w.bytes()
	out := make([]byte, compressedFixedSize+len(variable)+len(payload))
	binary.BigEndian.PutUint16(out[0:2], uint16(flags))
	binary.BigEndian.PutUint16(out[4:6], ip.Identification)
	copy(out[compressedFixedSize:], variable)
	copy(out[compressedFixedSize+len(variable):], payload)
	binary.BigEndian.PutUint16(out[2:4], uint16(len(out)))
	return out, nil
}

// DecompressHeaders inverts CompressHeaders: it reconstructs the IPv4 (and,
// if present, UDP) headers and splits off the trailing payload. Elided
// fields are filled from cfg's defaults/well-known ports.
func DecompressHeaders(pkt []byte, cfg IPConfig) (Compressed, error) {
	if len(pkt) < compressedFixedSize {
		return Compressed{}, ggerr.New("ipv4.DecompressHeaders", ggerr.InvalidFormat)
	}
	flags := uint32(binary.BigEndian.Uint16(pkt[0:2]))
	ip := Header{
		Identification: binary.BigEndian.Uint16(pkt[4:6]),
		Checksum:       0,
	}

	r := &bitReader{buf: pkt[compressedFixedSize:]}
	readOr := func(has uint32, bits int, fallback byte) (byte, error) {
		if flags&has != 0 {
			v, err := r.read(bits)
			if err != nil {
				return 0, err
			}
			return byte(v), nil
		}
		return fallback, nil
	}
	var err error
	if ip.IHL, err = readOr(flagHasIHL, 4, defaultIHL); err != nil {
		return Compressed{}, err
	}
	if ip.DSCP, err = readOr(flagHasDSCP, 6, defaultDSCP); err != nil {
		return Compressed{}, err
	}
	if ip.ECN, err = readOr(flagHasECN, 2, defaultECN); err != nil {
		return Compressed{}, err
	}
	if ip.Flags, err = readOr(flagHasFlags, 3, defaultFlags); err != nil {
		return Compressed{}, err
	}
	if flags&flagHasFragmentOffset != 0 {
		v, rerr := r.read(13)
		if rerr != nil {
			return Compressed{}, rerr
		}
		ip.FragmentOffset = uint16(v)
	} else {
		ip.FragmentOffset = defaultFragmentOffset
	}
	if ip.TTL, err = readOr(flagHasTTL, 8, defaultTTL); err != nil {
		return Compressed{}, err
	}
	switch flags & flagProtocolMask {
	case flagProtocolTCP:
		ip.Protocol = ProtocolTCP
	case flagProtocolUDP:
		ip.Protocol = ProtocolUDP
	case flagProtocolICMP:
		ip.Protocol = ProtocolICMP
	default:
		v, rerr := r.read(8)
		if rerr != nil {
			return Compressed{}, rerr
		}
		ip.Protocol = byte(v)
	}
	if flags&flagHasSrcAddress != 0 {
		v, rerr := r.read(32)
		if rerr != nil {
			return Compressed{}, rerr
		}
		ip.SrcAddress = v
	} else {
		ip.SrcAddress = cfg.DefaultSrcAddress
	}
	if flags&flagHasDstAddress != 0 {
		v, rerr := r.read(32)
		if rerr != nil {
			return Compressed{}, rerr
		}
		ip.DstAddress = v
	} else {
		ip.DstAddress = cfg.DefaultDstAddress
	}
	if int(ip.IHL)*4 < baseHeaderSize {
		return Compressed{}, ggerr.New("ipv4.DecompressHeaders", ggerr.InvalidFormat)
	}
	if n := int(ip.IHL-headerMinIHL) * 4; n > 0 {
		opts := make([]byte, n)
		for i := range opts {
			v, rerr := r.read(8)
			if rerr != nil {
				return Compressed{}, rerr
			}
			opts[i] = byte(v)
		}
		ip.Options = opts
	}

	result := Compressed{IP: ip}
	if ip.Protocol == ProtocolUDP {
		result.IsUDP = true
		var udp UDPHeader
		switch flags & flagUDPSrcPortMask {
		case flagUDPSrcPortA:
			udp.SrcPort = cfg.UDPSrcPorts[0]
		case flagUDPSrcPortB:
			udp.SrcPort = cfg.UDPSrcPorts[1]
		case flagUDPSrcPortC:
			udp.SrcPort = cfg.UDPSrcPorts[2]
		default:
			v, rerr := r.read(16)
			if rerr != nil {
				return Compressed{}, rerr
			}
			udp.SrcPort = uint16(v)
		}
		switch flags & flagUDPDstPortMask {
		case flagUDPDstPortA:
			udp.DstPort = cfg.UDPDstPorts[0]
		case flagUDPDstPortB:
			udp.DstPort = cfg.UDPDstPorts[1]
		case flagUDPDstPortC:
			udp.DstPort = cfg.UDPDstPorts[2]
		default:
			v, rerr := r.read(16)
			if rerr != nil {
				return Compressed{}, rerr
			}
			udp.DstPort = uint16(v)
		}
		if flags&flagUDPHasLength != 0 {
			v, rerr := r.read(16)
			if rerr != nil {
				return Compressed{}, rerr
			}
			udp.Length = uint16(v)
		} // else: computed below, once the payload size is known
		result.UDP = udp
	}

	headerEnd := compressedFixedSize + r.bytesConsumed()
	if headerEnd > len(pkt) {
		return Compressed{}, ggerr.New("ipv4.DecompressHeaders", ggerr.InvalidFormat)
	}
	payload := pkt[headerEnd:]
	result.Payload = payload

	headerSize := int(ip.IHL) * 4
	if result.IsUDP {
		headerSize += udpHeaderSize
		if flags&flagUDPHasLength == 0 {
			result.UDP.Length = uint16(udpHeaderSize + len(payload))
		}
	}
	result.IP.TotalLength = uint16(headerSize + len(payload))

	return result, nil
}
