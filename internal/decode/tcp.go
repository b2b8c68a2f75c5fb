package decode

import (
	"fmt"

	"firestige.xyz/upflow/internal/core"
	"firestige.xyz/upflow/internal/netbuf"
)

const (
	tcpHeaderMinLen = 20

	tcpSrcPortOffset    = 0
	tcpDstPortOffset    = 2
	tcpSeqOffset        = 4
	tcpAckOffset        = 8
	tcpDataOffOffset    = 12
	tcpFlagsOffset      = 13
	tcpWindowOffset     = 14
	tcpChecksumOffset   = 16
	tcpUrgentPtrOffset  = 18
)

// TCPPacket decodes a TCP segment.
type TCPPacket struct {
	v         netbuf.View
	headerLen int
}

// DecodeTCPPacket attaches a decoder to the given view.
func DecodeTCPPacket(v netbuf.View) (*TCPPacket, error) {
	if v.Len() < tcpHeaderMinLen {
		return nil, fmt.Errorf("%w: TCP segment of %d bytes (min %d)",
			core.ErrPacketTooShort, v.Len(), tcpHeaderMinLen)
	}
	headerLen := int(v.Uint8(tcpDataOffOffset)>>4) * 4
	if headerLen < tcpHeaderMinLen || headerLen > v.Len() {
		return nil, fmt.Errorf("%w: TCP data offset %d, view %d",
			core.ErrMalformedPacket, headerLen, v.Len())
	}
	return &TCPPacket{v: v, headerLen: headerLen}, nil
}

// SrcPort returns the source port.
func (p *TCPPacket) SrcPort() core.Port { return core.Port(p.v.Uint16(tcpSrcPortOffset)) }

// DstPort returns the destination port.
func (p *TCPPacket) DstPort() core.Port { return core.Port(p.v.Uint16(tcpDstPortOffset)) }

// SeqNum returns the sequence number.
func (p *TCPPacket) SeqNum() uint32 { return p.v.Uint32(tcpSeqOffset) }

// AckNum returns the acknowledgment number.
func (p *TCPPacket) AckNum() uint32 { return p.v.Uint32(tcpAckOffset) }

// HeaderLen returns the header length in bytes (data offset times 4).
func (p *TCPPacket) HeaderLen() int { return p.headerLen }

// WindowSize returns the receive window field.
func (p *TCPPacket) WindowSize() uint16 { return p.v.Uint16(tcpWindowOffset) }

// Checksum returns the checksum field.
func (p *TCPPacket) Checksum() uint16 { return p.v.Uint16(tcpChecksumOffset) }

// UrgentPointer returns the urgent pointer field.
func (p *TCPPacket) UrgentPointer() uint16 { return p.v.Uint16(tcpUrgentPtrOffset) }

// Flag accessors, one per flag bit.

func (p *TCPPacket) FlagNS() bool  { return p.v.Uint8(tcpDataOffOffset)&0x01 != 0 }
func (p *TCPPacket) FlagCWR() bool { return p.v.Uint8(tcpFlagsOffset)&0x80 != 0 }
func (p *TCPPacket) FlagECE() bool { return p.v.Uint8(tcpFlagsOffset)&0x40 != 0 }
func (p *TCPPacket) FlagURG() bool { return p.v.Uint8(tcpFlagsOffset)&0x20 != 0 }
func (p *TCPPacket) FlagACK() bool { return p.v.Uint8(tcpFlagsOffset)&0x10 != 0 }
func (p *TCPPacket) FlagPSH() bool { return p.v.Uint8(tcpFlagsOffset)&0x08 != 0 }
func (p *TCPPacket) FlagRST() bool { return p.v.Uint8(tcpFlagsOffset)&0x04 != 0 }
func (p *TCPPacket) FlagSYN() bool { return p.v.Uint8(tcpFlagsOffset)&0x02 != 0 }
func (p *TCPPacket) FlagFIN() bool { return p.v.Uint8(tcpFlagsOffset)&0x01 != 0 }

// DataLen returns the payload length in bytes.
func (p *TCPPacket) DataLen() int { return p.v.Len() - p.headerLen }

// Data returns the payload view (options excluded).
func (p *TCPPacket) Data() netbuf.View { return window(p.v, p.headerLen, p.DataLen()) }
