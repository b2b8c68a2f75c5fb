package decode

import (
	"fmt"

	"firestige.xyz/upflow/internal/core"
	"firestige.xyz/upflow/internal/netbuf"
)

// SCTPChunkType identifies a chunk within an SCTP packet.
type SCTPChunkType uint8

// Chunk types (see RFC 4960 and the IANA SCTP parameters registry).
const (
	SCTPChunkData             SCTPChunkType = 0
	SCTPChunkInit             SCTPChunkType = 1
	SCTPChunkInitAck          SCTPChunkType = 2
	SCTPChunkSack             SCTPChunkType = 3
	SCTPChunkHeartbeat        SCTPChunkType = 4
	SCTPChunkHeartbeatAck     SCTPChunkType = 5
	SCTPChunkAbort            SCTPChunkType = 6
	SCTPChunkShutdown         SCTPChunkType = 7
	SCTPChunkShutdownAck      SCTPChunkType = 8
	SCTPChunkError            SCTPChunkType = 9
	SCTPChunkCookieEcho       SCTPChunkType = 10
	SCTPChunkCookieAck        SCTPChunkType = 11
	SCTPChunkShutdownComplete SCTPChunkType = 14
)

// s1apPayloadProtocolID is the SCTP payload protocol identifier
// assigned to S1AP (3GPP TS 36.412).
const s1apPayloadProtocolID = 0x12

const (
	sctpHeaderLen = 12

	sctpSrcPortOffset         = 0
	sctpDstPortOffset         = 2
	sctpVerificationTagOffset = 4
	sctpChecksumOffset        = 8

	sctpChunkHeaderLen   = 4
	sctpChunkTypeOffset  = 0
	sctpChunkFlagsOffset = 1
	sctpChunkLenOffset   = 2
)

// SCTPPacket decodes an SCTP common header and splits the packet into
// chunks at construction.
type SCTPPacket struct {
	v      netbuf.View
	chunks []SCTPGenericChunk
}

// DecodeSCTPPacket attaches a decoder to the given view and walks the
// chunk list. A chunk whose declared length overruns the view makes
// the whole packet malformed.
func DecodeSCTPPacket(v netbuf.View) (*SCTPPacket, error) {
	if v.Len() < sctpHeaderLen {
		return nil, fmt.Errorf("%w: SCTP packet of %d bytes (min %d)",
			core.ErrPacketTooShort, v.Len(), sctpHeaderLen)
	}
	p := &SCTPPacket{v: v}

	off := sctpHeaderLen
	for off < v.Len() {
		if off+sctpChunkHeaderLen > v.Len() {
			return nil, fmt.Errorf("%w: truncated SCTP chunk header at %d",
				core.ErrMalformedPacket, off)
		}
		chunkLen := int(v.Uint16(off + sctpChunkLenOffset))
		if chunkLen < sctpChunkHeaderLen || off+chunkLen > v.Len() {
			return nil, fmt.Errorf("%w: SCTP chunk length %d at %d, view %d",
				core.ErrMalformedPacket, chunkLen, off, v.Len())
		}
		p.chunks = append(p.chunks, SCTPGenericChunk{v: window(v, off, chunkLen)})

		// Chunks are padded to a 4-byte boundary.
		off += (chunkLen + 3) &^ 3
	}
	return p, nil
}

// SrcPort returns the source port.
func (p *SCTPPacket) SrcPort() core.Port { return core.Port(p.v.Uint16(sctpSrcPortOffset)) }

// DstPort returns the destination port.
func (p *SCTPPacket) DstPort() core.Port { return core.Port(p.v.Uint16(sctpDstPortOffset)) }

// VerificationTag returns the verification tag field.
func (p *SCTPPacket) VerificationTag() uint32 { return p.v.Uint32(sctpVerificationTagOffset) }

// Checksum returns the CRC32c checksum field. It is not validated.
func (p *SCTPPacket) Checksum() uint32 { return p.v.Uint32(sctpChecksumOffset) }

// Chunks returns the chunks of this packet in wire order.
func (p *SCTPPacket) Chunks() []SCTPGenericChunk { return p.chunks }

// SCTPGenericChunk gives access to the common chunk header. The view
// is bounds-checked by the packet walker.
type SCTPGenericChunk struct {
	v netbuf.View
}

// Type returns the chunk type.
func (c SCTPGenericChunk) Type() SCTPChunkType {
	return SCTPChunkType(c.v.Uint8(sctpChunkTypeOffset))
}

// Flags returns the chunk flags byte.
func (c SCTPGenericChunk) Flags() uint8 { return c.v.Uint8(sctpChunkFlagsOffset) }

// TotalLen returns the chunk length including the 4 header bytes.
func (c SCTPGenericChunk) TotalLen() int { return int(c.v.Uint16(sctpChunkLenOffset)) }

// IsData reports whether this is a DATA chunk.
func (c SCTPGenericChunk) IsData() bool { return c.Type() == SCTPChunkData }

// Data returns the whole chunk view, headers included.
func (c SCTPGenericChunk) Data() netbuf.View { return c.v }

const (
	sctpDataChunkHeaderLen = 16

	sctpDataTSNOffset       = 4
	sctpDataStreamIDOffset  = 8
	sctpDataStreamSeqOffset = 10
	sctpDataPPIDOffset      = 12
)

// SCTPDataChunk decodes a DATA chunk.
type SCTPDataChunk struct {
	v        netbuf.View
	totalLen int
}

// DecodeSCTPDataChunk attaches a DATA chunk decoder to the given
// chunk view.
func DecodeSCTPDataChunk(v netbuf.View) (*SCTPDataChunk, error) {
	if v.Len() < sctpDataChunkHeaderLen {
		return nil, fmt.Errorf("%w: SCTP DATA chunk of %d bytes (min %d)",
			core.ErrPacketTooShort, v.Len(), sctpDataChunkHeaderLen)
	}
	totalLen := int(v.Uint16(sctpChunkLenOffset))
	if totalLen < sctpDataChunkHeaderLen || totalLen > v.Len() {
		return nil, fmt.Errorf("%w: SCTP DATA chunk length %d, view %d",
			core.ErrMalformedPacket, totalLen, v.Len())
	}
	return &SCTPDataChunk{v: v, totalLen: totalLen}, nil
}

// TSN returns the transmission sequence number.
func (c *SCTPDataChunk) TSN() uint32 { return c.v.Uint32(sctpDataTSNOffset) }

// StreamID returns the stream identifier.
func (c *SCTPDataChunk) StreamID() uint16 { return c.v.Uint16(sctpDataStreamIDOffset) }

// StreamSeq returns the stream sequence number.
func (c *SCTPDataChunk) StreamSeq() uint16 { return c.v.Uint16(sctpDataStreamSeqOffset) }

// PayloadProtocolID returns the payload protocol identifier.
func (c *SCTPDataChunk) PayloadProtocolID() uint32 { return c.v.Uint32(sctpDataPPIDOffset) }

// Flag accessors for the DATA chunk flag bits.

func (c *SCTPDataChunk) FlagI() bool { return c.v.Uint8(sctpChunkFlagsOffset)>>3&1 != 0 }
func (c *SCTPDataChunk) FlagU() bool { return c.v.Uint8(sctpChunkFlagsOffset)>>2&1 != 0 }
func (c *SCTPDataChunk) FlagB() bool { return c.v.Uint8(sctpChunkFlagsOffset)>>1&1 != 0 }
func (c *SCTPDataChunk) FlagE() bool { return c.v.Uint8(sctpChunkFlagsOffset)&1 != 0 }

// IsFragment reports whether the chunk carries only part of a user
// message. A complete message has both B and E set.
func (c *SCTPDataChunk) IsFragment() bool { return !(c.FlagB() && c.FlagE()) }

// IsS1AP reports whether the payload protocol identifier is S1AP.
func (c *SCTPDataChunk) IsS1AP() bool {
	return c.PayloadProtocolID() == s1apPayloadProtocolID
}

// DataLen returns the payload length in bytes.
func (c *SCTPDataChunk) DataLen() int { return c.totalLen - sctpDataChunkHeaderLen }

// Data returns the payload view.
func (c *SCTPDataChunk) Data() netbuf.View {
	return window(c.v, sctpDataChunkHeaderLen, c.DataLen())
}
