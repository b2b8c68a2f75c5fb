package decode

import (
	"fmt"

	"firestige.xyz/upflow/internal/core"
	"firestige.xyz/upflow/internal/netbuf"
)

const (
	ipv4HeaderMinLen = 20

	ipv4TotalLengthOffset    = 2
	ipv4IdentificationOffset = 4
	ipv4FlagsFragOffset      = 6
	ipv4TTLOffset            = 8
	ipv4ProtocolOffset       = 9
	ipv4ChecksumOffset       = 10
	ipv4SrcAddrOffset        = 12
	ipv4DstAddrOffset        = 16
)

// IPv4FragmentKey identifies the datagram a fragment belongs to.
type IPv4FragmentKey struct {
	Protocol core.IPv4Protocol
	Src      core.IPv4Address
	Dst      core.IPv4Address
	ID       uint16
}

// IPv4Packet decodes an IPv4 header.
type IPv4Packet struct {
	v         netbuf.View
	headerLen int
	totalLen  int
}

// DecodeIPv4Packet attaches a decoder to the given view. It requires
// version 4 and a consistent IHL/total length within the view.
func DecodeIPv4Packet(v netbuf.View) (*IPv4Packet, error) {
	if v.Len() < ipv4HeaderMinLen {
		return nil, fmt.Errorf("%w: IPv4 packet of %d bytes (min %d)",
			core.ErrPacketTooShort, v.Len(), ipv4HeaderMinLen)
	}
	b0 := v.Uint8(0)
	if b0>>4 != 4 {
		return nil, fmt.Errorf("%w: IP version %d (want 4)",
			core.ErrMalformedPacket, b0>>4)
	}
	headerLen := int(b0&0x0F) * 4
	totalLen := int(v.Uint16(ipv4TotalLengthOffset))
	if headerLen < ipv4HeaderMinLen || totalLen < headerLen || totalLen > v.Len() {
		return nil, fmt.Errorf("%w: IPv4 lengths IHL=%d total=%d view=%d",
			core.ErrMalformedPacket, headerLen, totalLen, v.Len())
	}
	return &IPv4Packet{v: v, headerLen: headerLen, totalLen: totalLen}, nil
}

// HeaderLen returns the header length in bytes (IHL times 4).
func (p *IPv4Packet) HeaderLen() int { return p.headerLen }

// TotalLen returns the total packet length from the header.
func (p *IPv4Packet) TotalLen() int { return p.totalLen }

// Identification returns the identification field.
func (p *IPv4Packet) Identification() uint16 { return p.v.Uint16(ipv4IdentificationOffset) }

// TTL returns the time-to-live field.
func (p *IPv4Packet) TTL() uint8 { return p.v.Uint8(ipv4TTLOffset) }

// Protocol returns the payload protocol number.
func (p *IPv4Packet) Protocol() core.IPv4Protocol {
	return core.IPv4Protocol(p.v.Uint8(ipv4ProtocolOffset))
}

// HeaderChecksum returns the header checksum field.
func (p *IPv4Packet) HeaderChecksum() uint16 { return p.v.Uint16(ipv4ChecksumOffset) }

// SrcAddr returns the source address.
func (p *IPv4Packet) SrcAddr() core.IPv4Address { return p.v.IPv4Address(ipv4SrcAddrOffset) }

// DstAddr returns the destination address.
func (p *IPv4Packet) DstAddr() core.IPv4Address { return p.v.IPv4Address(ipv4DstAddrOffset) }

// DontFragment reports the DF flag.
func (p *IPv4Packet) DontFragment() bool {
	return p.v.Uint16(ipv4FlagsFragOffset)&0x4000 != 0
}

// MoreFragments reports the MF flag.
func (p *IPv4Packet) MoreFragments() bool {
	return p.v.Uint16(ipv4FlagsFragOffset)&0x2000 != 0
}

// FragmentOffset returns the fragment offset in bytes (field value
// times 8).
func (p *IPv4Packet) FragmentOffset() int {
	return int(p.v.Uint16(ipv4FlagsFragOffset)&0x1FFF) * 8
}

// IsFragment reports whether the packet is one piece of a fragmented
// datagram.
func (p *IPv4Packet) IsFragment() bool {
	return p.MoreFragments() || p.FragmentOffset() != 0
}

// FragmentKey returns the reassembly key for this packet.
func (p *IPv4Packet) FragmentKey() IPv4FragmentKey {
	return IPv4FragmentKey{
		Protocol: p.Protocol(),
		Src:      p.SrcAddr(),
		Dst:      p.DstAddr(),
		ID:       p.Identification(),
	}
}

// Packet returns the whole packet view.
func (p *IPv4Packet) Packet() netbuf.View { return p.v }

// DataLen returns the payload length in bytes.
func (p *IPv4Packet) DataLen() int { return p.totalLen - p.headerLen }

// Data returns the payload view, bytes [IHL*4, total length).
func (p *IPv4Packet) Data() netbuf.View {
	return window(p.v, p.headerLen, p.DataLen())
}
