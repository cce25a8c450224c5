// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

package ipv4

import (
	"encoding/binary"
	"log/slog"

	"github.com/fitbit/goldengate-go/internal/ggerr"
)

// AssemblerConfig configures an Assembler.
type AssemblerConfig struct {
	// MaxPacketSize bounds how large a framed packet the assembler will
	// hold in memory. A declared length beyond this is skipped rather
	// than rejected outright (spec §4.F.1: a misbehaving peer or a
	// corrupted length field must not wedge the stream).
	MaxPacketSize int

	// IPConfig, Decompress and Remap configure how a completed frame is
	// turned back into a whole IPv4 packet: when Decompress is true, a
	// frame whose first bit is set is run through DecompressHeaders and
	// re-serialized to an uncompressed packet before being emitted; when
	// false, compressed frames are emitted as-is (the stack element
	// downstream is expected to understand the compressed form itself).
	IPConfig   IPConfig
	Decompress bool
	Remap      *AddressMap

	Logger *slog.Logger
}

// AddressMap rewrites a decompressed packet's source/destination address
// when it matches a configured value, recomputing the IPv4 (and, for UDP,
// zeroing the now-invalid UDP) checksum (spec §4.F.2 "address remapping").
type AddressMap struct {
	SrcAddress, RemappedSrcAddress uint32
	DstAddress, RemappedDstAddress uint32
}

func (c AssemblerConfig) withDefaults() AssemblerConfig {
	if c.MaxPacketSize <= 0 {
		c.MaxPacketSize = 1500
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Assembler reassembles a stream of Gattlink payload bytes back into
// whole length-prefixed IPv4 packets (spec §4.F.1). It is pull-style: the
// caller asks for a buffer with GetBuffer, writes up to that many bytes
// into it from the transport, then calls Feed to tell the assembler how
// many bytes actually arrived. This mirrors the original frame assembler's
// GetFeedBuffer/Feed split so a caller never has to double-copy incoming
// bytes.
type Assembler struct {
	cfg AssemblerConfig
	log *slog.Logger

	buf         []byte
	skip        int
	payloadSize int
	packetSize  int

	skipped int // count of packets dropped for exceeding MaxPacketSize
}

// NewAssembler creates an Assembler ready to receive the start of a
// packet stream.
func NewAssembler(cfg AssemblerConfig) *Assembler {
	cfg = cfg.withDefaults()
	return &Assembler{
		cfg: cfg,
		log: cfg.Logger,
		buf: make([]byte, cfg.MaxPacketSize),
	}
}

// GetBuffer returns the slice the caller should fill with the next chunk
// of incoming bytes, and its capacity. While skipping an oversize packet
// the returned slice is just scratch space; its contents are discarded.
func (a *Assembler) GetBuffer() []byte {
	if a.skip > 0 {
		n := a.skip
		if n > len(a.buf) {
			n = len(a.buf)
		}
		return a.buf[:n]
	}
	if a.packetSize == 0 {
		return a.buf[a.payloadSize:minPartialHeader]
	}
	return a.buf[a.payloadSize:a.packetSize]
}

// Feed tells the assembler that n bytes of the slice last returned by
// GetBuffer were actually filled in from the transport. It returns a
// completed frame when n's bytes finish one, or nil if more data is
// still needed.
func (a *Assembler) Feed(n int) ([]byte, error) {
	if a.skip > 0 {
		if n >= a.skip {
			a.skip = 0
		} else {
			a.skip -= n
		}
		return nil, nil
	}

	consumed := 0
	if a.packetSize == 0 {
		needed := minPartialHeader - a.payloadSize
		if needed > n {
			a.payloadSize += n
			return nil, nil
		}
		a.payloadSize += needed
		consumed = needed

		a.packetSize = int(binary.BigEndian.Uint16(a.buf[2:4]))
		if a.packetSize < minPartialHeader {
			a.log.Warn("ipv4: malformed frame, resetting", "declaredSize", a.packetSize)
			a.Reset()
			return nil, ggerr.New("ipv4.Assembler.Feed", ggerr.InvalidFormat)
		}
		if a.packetSize > len(a.buf) {
			a.log.Warn("ipv4: packet too large, skipping", "declaredSize", a.packetSize, "maxPacketSize", len(a.buf))
			a.skip = a.packetSize - a.payloadSize
			a.payloadSize = 0
			a.packetSize = 0
			a.skipped++
			return nil, nil
		}
	}

	if consumed < n {
		willTake := n - consumed
		if remaining := a.packetSize - a.payloadSize; willTake > remaining {
			willTake = remaining
		}
		a.payloadSize += willTake
	}

	if a.payloadSize == a.packetSize {
		frame := append([]byte(nil), a.buf[:a.packetSize]...)
		a.payloadSize = 0
		a.packetSize = 0
		return a.emit(frame)
	}
	return nil, nil
}

// Reset discards any partially-assembled frame.
func (a *Assembler) Reset() {
	a.skip = 0
	a.payloadSize = 0
	a.packetSize = 0
}

// Skipped reports how many packets have been dropped so far for
// exceeding MaxPacketSize.
func (a *Assembler) Skipped() int {
	return a.skipped
}

func (a *Assembler) emit(frame []byte) ([]byte, error) {
	compressed := len(frame) > 0 && frame[0]&0x80 != 0
	if !compressed {
		return a.remap(frame)
	}
	if !a.cfg.Decompress {
		return frame, nil
	}

	dec, err := DecompressHeaders(frame, a.cfg.IPConfig)
	if err != nil {
		a.log.Warn("ipv4: header decompression failed", "err", err)
		return nil, err
	}
	headerBytes, err := SerializeHeader(dec.IP, true)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(headerBytes)+udpHeaderSize+len(dec.Payload))
	out = append(out, headerBytes...)
	if dec.IsUDP {
		out = append(out, SerializeUDPHeader(dec.UDP)...)
	}
	out = append(out, dec.Payload...)
	return a.remap(out)
}

// remap rewrites source/destination addresses per cfg.Remap, recomputing
// the IPv4 header checksum and zeroing the UDP checksum when either
// address changed (ported from the original assembler's address-remapping
// step, which always runs after decompression or verbatim copy).
func (a *Assembler) remap(packet []byte) ([]byte, error) {
	m := a.cfg.Remap
	if m == nil || len(packet) < baseHeaderSize {
		return packet, nil
	}
	ihl := packet[0] & 0x0F
	if ihl < headerMinIHL || int(ihl)*4 > len(packet) {
		return packet, nil
	}

	changed := false
	src := binary.BigEndian.Uint32(packet[12:16])
	if src == m.SrcAddress {
		binary.BigEndian.PutUint32(packet[12:16], m.RemappedSrcAddress)
		changed = true
	}
	dst := binary.BigEndian.Uint32(packet[16:20])
	if dst == m.DstAddress {
		binary.BigEndian.PutUint32(packet[16:20], m.RemappedDstAddress)
		changed = true
	}
	if !changed {
		return packet, nil
	}

	packet[10], packet[11] = 0, 0
	sum := ^Checksum(packet[:int(ihl)*4])
	binary.BigEndian.PutUint16(packet[10:12], sum)

	protocol := packet[9]
	udpOffset := int(ihl)*4 + 6
	if protocol == ProtocolUDP && udpOffset+2 <= len(packet) {
		packet[udpOffset], packet[udpOffset+1] = 0, 0
	}
	return packet, nil
}
