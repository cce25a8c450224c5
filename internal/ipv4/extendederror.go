// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

package ipv4

import (
	"github.com/fitbit/goldengate-go/internal/ggerr"
)

// ExtendedError is the {namespace, code, message} triple carried out of
// band of CoAP (spec §6), used by internal/dtls to report handshake and
// record-layer failures back to a peer in a structured form.
type ExtendedError struct {
	Namespace string
	Code      int32
	Message   string
}

// Tagged-field wire numbers, protobuf-like but hand-rolled: three fixed
// fields don't warrant a real protobuf dependency (see DESIGN.md).
const (
	fieldNamespace = 1
	fieldCode      = 2
	fieldMessage   = 3

	wireVarint = 0
	wireBytes  = 2
)

// EncodeExtendedError serializes e as a sequence of (field<<3|wiretype)
// tag bytes followed by a varint length (for the string fields) or the
// zigzag-encoded signed varint (for Code).
func EncodeExtendedError(e ExtendedError) []byte {
	var out []byte
	out = appendTag(out, fieldNamespace, wireBytes)
	out = appendString(out, e.Namespace)
	out = appendTag(out, fieldCode, wireVarint)
	out = appendVarint(out, zigzagEncode(e.Code))
	out = appendTag(out, fieldMessage, wireBytes)
	out = appendString(out, e.Message)
	return out
}

// DecodeExtendedError parses the wire form produced by
// EncodeExtendedError. Unknown fields are skipped rather than rejected,
// so the format can grow new fields without breaking old readers.
func DecodeExtendedError(data []byte) (ExtendedError, error) {
	var e ExtendedError
	i := 0
	for i < len(data) {
		tag, n, err := readVarint(data[i:])
		if err != nil {
			return ExtendedError{}, err
		}
		i += n
		field := tag >> 3
		wireType := tag & 0x7

		switch wireType {
		case wireVarint:
			v, n, err := readVarint(data[i:])
			if err != nil {
				return ExtendedError{}, err
			}
			i += n
			if field == fieldCode {
				e.Code = zigzagDecode(v)
			}
		case wireBytes:
			length, n, err := readVarint(data[i:])
			if err != nil {
				return ExtendedError{}, err
			}
			i += n
			if i+int(length) > len(data) {
				return ExtendedError{}, ggerr.New("ipv4.DecodeExtendedError", ggerr.InvalidFormat)
			}
			s := string(data[i : i+int(length)])
			i += int(length)
			switch field {
			case fieldNamespace:
				e.Namespace = s
			case fieldMessage:
				e.Message = s
			}
		default:
			return ExtendedError{}, ggerr.New("ipv4.DecodeExtendedError", ggerr.InvalidFormat)
		}
	}
	return e, nil
}

func appendTag(buf []byte, field, wireType uint64) []byte {
	return appendVarint(buf, field<<3|wireType)
}

func appendString(buf []byte, s string) []byte {
	buf = appendVarint(buf, uint64(len(s)))
	return append(buf, s...)
}

func appendVarint(buf []byte, v uint64) []byte {
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}
	return append(buf, byte(v))
}

func readVarint(data []byte) (uint64, int, error) {
	var v uint64
	var shift uint
	for i, b := range data {
		if i >= 10 {
			return 0, 0, ggerr.New("ipv4.readVarint", ggerr.InvalidFormat)
		}
		v |= uint64(b&0x7F) << shift
		if b&0x80 == 0 {
			return v, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, ggerr.New("ipv4.readVarint", ggerr.InvalidFormat)
}

func zigzagEncode(v int32) uint64 {
	return uint64(uint32((v << 1) ^ (v >> 31)))
}

func zigzagDecode(v uint64) int32 {
	return int32(uint32(v)>>1) ^ -int32(uint32(v)&1)
}
