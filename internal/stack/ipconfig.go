// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

package stack

import "github.com/fitbit/goldengate-go/internal/ipv4"

// Role is which side of a link a stack instance represents (spec §4.H).
type Role int

const (
	RoleNode Role = iota
	RoleHub
)

func (r Role) String() string {
	if r == RoleHub {
		return "HUB"
	}
	return "NODE"
}

// Default /30-like address bases a NODE and a HUB stack derive their
// local/remote addresses from, before the per-instance +2 increment is
// applied (spec §4.H "role-derived /30-like patterns"). Chosen from the
// RFC 5737 TEST-NET-3 documentation block so a misconfigured stack never
// collides with a real address.
const (
	nodeLocalAddressBase  uint32 = 0xC6336401 // 198.51.100.1
	nodeRemoteAddressBase uint32 = 0xC6336402 // 198.51.100.2
	hubLocalAddressBase   uint32 = 0xC6336402 // 198.51.100.2
	hubRemoteAddressBase  uint32 = 0xC6336401 // 198.51.100.1

	netifNetmask uint32 = 0xFFFFFFFC // /30

	defaultIPMTU        = 1280
	defaultUDPSocketPort = 5683
	defaultDTLSSocketPort = 5684

	ipv4MinHeaderSize = 20
	udpHeaderSize     = 8
)

// IPConfig is the stack-level IP configuration: the builder computes
// defaults for any zero field (spec §4.H).
type IPConfig struct {
	LocalAddress  uint32
	RemoteAddress uint32
	Netmask       uint32
	IPMTU         int

	// HeaderCompression/InboundRemapping are forced on for every stack
	// instance after the first one, unless the caller supplies an
	// explicit IPConfig (spec §4.H).
	HeaderCompressionEnabled bool
	InboundRemappingEnabled  bool
	RemapSrcAddress          uint32
	RemapDstAddress          uint32
	RemappedSrcAddress       uint32
	RemappedDstAddress       uint32

	DefaultUDPPort uint16
}

// resolveIPConfig fills in the defaults the C stack builder computes when
// the caller doesn't supply an explicit configuration, keyed by role and
// instance index (spec §4.H: "successive stack instances increment the
// last octet by 2").
func resolveIPConfig(cfg *IPConfig, role Role, instanceIndex int, secure bool) {
	if instanceIndex > 0 && cfg.LocalAddress == 0 && cfg.RemoteAddress == 0 {
		cfg.HeaderCompressionEnabled = true
		cfg.InboundRemappingEnabled = true
		if role == RoleNode {
			cfg.RemapSrcAddress = nodeRemoteAddressBase + 2
			cfg.RemapDstAddress = nodeLocalAddressBase + 3
		} else {
			cfg.RemapSrcAddress = hubRemoteAddressBase + 3
			cfg.RemapDstAddress = hubLocalAddressBase + 2
		}
		cfg.RemappedSrcAddress = cfg.RemapSrcAddress
		cfg.RemappedDstAddress = cfg.RemapDstAddress
	}
	if cfg.IPMTU == 0 {
		cfg.IPMTU = defaultIPMTU
	}
	if cfg.LocalAddress == 0 {
		if role == RoleNode {
			cfg.LocalAddress = nodeLocalAddressBase + uint32(instanceIndex*2)
		} else {
			cfg.LocalAddress = hubLocalAddressBase + uint32(instanceIndex*2)
		}
	}
	if cfg.RemoteAddress == 0 {
		if role == RoleNode {
			cfg.RemoteAddress = nodeRemoteAddressBase + uint32(instanceIndex*2)
		} else {
			cfg.RemoteAddress = hubRemoteAddressBase + uint32(instanceIndex*2)
		}
	}
	if cfg.Netmask == 0 {
		cfg.Netmask = netifNetmask
	}
	if cfg.DefaultUDPPort == 0 {
		if secure {
			cfg.DefaultUDPPort = defaultDTLSSocketPort
		} else {
			cfg.DefaultUDPPort = defaultUDPSocketPort
		}
	}
}

// maxDatagramSize computes ip_mtu - 20 - 8 (spec §4.H), the largest
// plaintext UDP payload the stack's DTLS/socket-facing elements may pass
// down to the network interface.
func maxDatagramSize(ipMTU int) (int, error) {
	if ipMTU <= ipv4MinHeaderSize+udpHeaderSize {
		return 0, errInvalidIPMTU
	}
	return ipMTU - ipv4MinHeaderSize - udpHeaderSize, nil
}

func (cfg IPConfig) toIPv4Config() ipv4.IPConfig {
	return ipv4.IPConfig{
		DefaultSrcAddress: cfg.LocalAddress,
		DefaultDstAddress: cfg.RemoteAddress,
		UDPDstPorts:       [3]uint16{cfg.DefaultUDPPort, 0, 0},
	}
}
