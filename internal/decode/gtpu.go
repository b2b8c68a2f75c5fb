package decode

import (
	"fmt"

	"firestige.xyz/upflow/internal/core"
	"firestige.xyz/upflow/internal/netbuf"
)

const (
	gtpuHeaderMinLen = 8

	gtpuFlagsOffset       = 0
	gtpuMessageTypeOffset = 1
	gtpuLengthOffset      = 2
	gtpuTEIDOffset        = 4

	// Optional field block present when any of E/S/PN is set.
	gtpuOptionalOffset  = 8
	gtpuSequenceOffset  = 8
	gtpuNPDUOffset      = 10
	gtpuNextExtOffset   = 11
	gtpuOptionalLen     = 4

	gtpuFlagExt      = 0x04
	gtpuFlagSeq      = 0x02
	gtpuFlagNPDU     = 0x01
	gtpuOptionalMask = gtpuFlagExt | gtpuFlagSeq | gtpuFlagNPDU

	// Message type for an encapsulated user packet.
	gtpuMsgTypeTPDU = 0xFF
)

// GTPv1UPacket decodes a GTPv1-U message, including the optional
// field block and any extension headers.
type GTPv1UPacket struct {
	v       netbuf.View
	dataOff int
	dataLen int
	exts    []netbuf.View
}

// DecodeGTPv1UPacket attaches a decoder to the given view. It
// requires version 1 and protocol type GTP (upper nibble 0x3) and
// walks the extension header list when the E flag is set.
func DecodeGTPv1UPacket(v netbuf.View) (*GTPv1UPacket, error) {
	if v.Len() < gtpuHeaderMinLen {
		return nil, fmt.Errorf("%w: GTPv1-U message of %d bytes (min %d)",
			core.ErrPacketTooShort, v.Len(), gtpuHeaderMinLen)
	}
	flags := v.Uint8(gtpuFlagsOffset)
	if flags&0xF0 != 0x30 {
		return nil, fmt.Errorf("%w: GTP flags 0x%02x (want version 1, PT 1)",
			core.ErrMalformedPacket, flags)
	}

	p := &GTPv1UPacket{v: v}

	off := gtpuHeaderMinLen
	if flags&gtpuOptionalMask != 0 {
		if v.Len() < gtpuOptionalOffset+gtpuOptionalLen {
			return nil, fmt.Errorf("%w: GTP optional field block truncated",
				core.ErrMalformedPacket)
		}
		off = gtpuOptionalOffset + gtpuOptionalLen

		if flags&gtpuFlagExt != 0 {
			// Walk extension headers. Each one is a run of 4-byte
			// units: length, contents, next extension type. A zero
			// next-type terminates the list.
			nextType := v.Uint8(gtpuNextExtOffset)
			for nextType != 0 {
				extLen, err := v.Uint8At(off)
				if err != nil {
					return nil, fmt.Errorf("%w: GTP extension header truncated",
						core.ErrMalformedPacket)
				}
				n := int(extLen) * 4
				if n == 0 || off+n > v.Len() {
					return nil, fmt.Errorf("%w: GTP extension header length %d at %d",
						core.ErrMalformedPacket, n, off)
				}
				p.exts = append(p.exts, window(v, off, n))
				nextType = v.Uint8(off + n - 1)
				off += n
			}
		}
	}

	// The GTP length field counts everything after the first 8 bytes.
	dataLen := int(v.Uint16(gtpuLengthOffset)) - (off - gtpuHeaderMinLen)
	if dataLen < 0 || off+dataLen > v.Len() {
		return nil, fmt.Errorf("%w: GTP message length %d, payload offset %d, view %d",
			core.ErrMalformedPacket, v.Uint16(gtpuLengthOffset), off, v.Len())
	}
	p.dataOff = off
	p.dataLen = dataLen
	return p, nil
}

// Flags returns the flags byte (version, PT, E, S, PN).
func (p *GTPv1UPacket) Flags() uint8 { return p.v.Uint8(gtpuFlagsOffset) }

// MessageType returns the message type field.
func (p *GTPv1UPacket) MessageType() uint8 { return p.v.Uint8(gtpuMessageTypeOffset) }

// MessageLen returns the length field, counting everything after the
// mandatory 8-byte header.
func (p *GTPv1UPacket) MessageLen() int { return int(p.v.Uint16(gtpuLengthOffset)) }

// TEID returns the tunnel endpoint identifier.
func (p *GTPv1UPacket) TEID() core.TEID { return core.TEID(p.v.Uint32(gtpuTEIDOffset)) }

// HasSequence reports whether the S flag is set.
func (p *GTPv1UPacket) HasSequence() bool { return p.Flags()&gtpuFlagSeq != 0 }

// Sequence returns the sequence number. Meaningful only when the
// optional field block is present.
func (p *GTPv1UPacket) Sequence() uint16 { return p.v.Uint16(gtpuSequenceOffset) }

// ExtensionHeaders returns the extension header views in wire order.
func (p *GTPv1UPacket) ExtensionHeaders() []netbuf.View { return p.exts }

// IsIPv4PDU reports whether the message is a T-PDU carrying user
// traffic.
func (p *GTPv1UPacket) IsIPv4PDU() bool { return p.MessageType() == gtpuMsgTypeTPDU }

// DataOffset returns the payload offset within the message.
func (p *GTPv1UPacket) DataOffset() int { return p.dataOff }

// DataLen returns the payload length in bytes.
func (p *GTPv1UPacket) DataLen() int { return p.dataLen }

// Data returns the payload view.
func (p *GTPv1UPacket) Data() netbuf.View { return window(p.v, p.dataOff, p.dataLen) }
