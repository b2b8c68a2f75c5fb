package decode

import (
	"fmt"

	"firestige.xyz/upflow/internal/core"
	"firestige.xyz/upflow/internal/netbuf"
)

const (
	udpHeaderLen = 8

	udpSrcPortOffset     = 0
	udpDstPortOffset     = 2
	udpTotalLengthOffset = 4
	udpChecksumOffset    = 6
)

// UDPPacket decodes a UDP datagram.
type UDPPacket struct {
	v        netbuf.View
	totalLen int
}

// DecodeUDPPacket attaches a decoder to the given view.
func DecodeUDPPacket(v netbuf.View) (*UDPPacket, error) {
	if v.Len() < udpHeaderLen {
		return nil, fmt.Errorf("%w: UDP packet of %d bytes (min %d)",
			core.ErrPacketTooShort, v.Len(), udpHeaderLen)
	}
	totalLen := int(v.Uint16(udpTotalLengthOffset))
	if totalLen < udpHeaderLen || totalLen > v.Len() {
		return nil, fmt.Errorf("%w: UDP length %d, view %d",
			core.ErrMalformedPacket, totalLen, v.Len())
	}
	return &UDPPacket{v: v, totalLen: totalLen}, nil
}

// SrcPort returns the source port.
func (p *UDPPacket) SrcPort() core.Port { return core.Port(p.v.Uint16(udpSrcPortOffset)) }

// DstPort returns the destination port.
func (p *UDPPacket) DstPort() core.Port { return core.Port(p.v.Uint16(udpDstPortOffset)) }

// TotalLen returns the datagram length from the header, including the
// 8 header bytes.
func (p *UDPPacket) TotalLen() int { return p.totalLen }

// Checksum returns the checksum field.
func (p *UDPPacket) Checksum() uint16 { return p.v.Uint16(udpChecksumOffset) }

// DataLen returns the payload length in bytes.
func (p *UDPPacket) DataLen() int { return p.totalLen - udpHeaderLen }

// Data returns the payload view.
func (p *UDPPacket) Data() netbuf.View { return window(p.v, udpHeaderLen, p.DataLen()) }

// IsGTPv1U applies a heuristic for GTPv1-U payloads: more than 8
// payload bytes, version/PT nibble 0x3, and a GTP message length
// consistent with the UDP payload length. Neither the destination
// port nor the T-PDU message type take part, since both can legally
// vary.
func (p *UDPPacket) IsGTPv1U() bool {
	dataLen := p.DataLen()
	if dataLen <= 8 {
		return false
	}
	return p.v.Uint8(udpHeaderLen)&0xF0 == 0x30 &&
		int(p.v.Uint16(udpHeaderLen+2))+8 == dataLen
}
