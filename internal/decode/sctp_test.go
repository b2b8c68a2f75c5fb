package decode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/upflow/internal/core"
	"firestige.xyz/upflow/internal/netbuf"
)

func sctpChunk(typ SCTPChunkType, flags byte, value []byte) []byte {
	total := 4 + len(value)
	b := []byte{byte(typ), flags, byte(total >> 8), byte(total)}
	b = append(b, value...)
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	return b
}

func sctpDataChunk(flags byte, ppid uint32, payload []byte) []byte {
	value := []byte{
		0x00, 0x00, 0x00, 0x01, // TSN
		0x00, 0x05, // stream id
		0x00, 0x09, // stream seq
		byte(ppid >> 24), byte(ppid >> 16), byte(ppid >> 8), byte(ppid),
	}
	return sctpChunk(SCTPChunkData, flags, append(value, payload...))
}

func sctpPacket(chunks ...[]byte) []byte {
	b := []byte{
		0x8E, 0x3C, // src 36412
		0x8E, 0x3C, // dst 36412
		0x12, 0x34, 0x56, 0x78, // verification tag
		0xCA, 0xFE, 0xBA, 0xBE, // checksum
	}
	for _, c := range chunks {
		b = append(b, c...)
	}
	return b
}

func TestDecodeSCTPPacket(t *testing.T) {
	pkt := sctpPacket(
		sctpChunk(SCTPChunkSack, 0, make([]byte, 12)),
		sctpDataChunk(0x03, 0x12, []byte{0xAA}),
	)
	p, err := DecodeSCTPPacket(netbuf.ViewOf(pkt))
	require.NoError(t, err)

	assert.Equal(t, core.Port(36412), p.SrcPort())
	assert.Equal(t, core.Port(36412), p.DstPort())
	assert.Equal(t, uint32(0x12345678), p.VerificationTag())
	assert.Equal(t, uint32(0xCAFEBABE), p.Checksum())

	chunks := p.Chunks()
	require.Len(t, chunks, 2)
	assert.Equal(t, SCTPChunkSack, chunks[0].Type())
	assert.False(t, chunks[0].IsData())
	assert.Equal(t, SCTPChunkData, chunks[1].Type())
	assert.True(t, chunks[1].IsData())
	assert.Equal(t, 17, chunks[1].TotalLen())
}

func TestDecodeSCTPPacketChunkPadding(t *testing.T) {
	// A 17-byte chunk strides 20 bytes; the next chunk must be found
	// after the padding.
	pkt := sctpPacket(
		sctpDataChunk(0x03, 0x12, []byte{0xAA}),
		sctpChunk(SCTPChunkHeartbeat, 0, nil),
	)
	p, err := DecodeSCTPPacket(netbuf.ViewOf(pkt))
	require.NoError(t, err)
	require.Len(t, p.Chunks(), 2)
	assert.Equal(t, SCTPChunkHeartbeat, p.Chunks()[1].Type())
}

func TestDecodeSCTPPacketErrors(t *testing.T) {
	_, err := DecodeSCTPPacket(netbuf.ViewOf(make([]byte, 11)))
	assert.ErrorIs(t, err, core.ErrPacketTooShort)

	// Chunk length running past the buffer.
	pkt := sctpPacket(sctpChunk(SCTPChunkData, 0, nil))
	pkt[12+3] = 0xFF
	_, err = DecodeSCTPPacket(netbuf.ViewOf(pkt))
	assert.ErrorIs(t, err, core.ErrMalformedPacket)

	// Chunk length below the chunk header size.
	pkt = sctpPacket(sctpChunk(SCTPChunkData, 0, nil))
	pkt[12+3] = 2
	_, err = DecodeSCTPPacket(netbuf.ViewOf(pkt))
	assert.ErrorIs(t, err, core.ErrMalformedPacket)
}

func TestDecodeSCTPDataChunk(t *testing.T) {
	payload := []byte{0xDE, 0xAD, 0xBE}
	pkt := sctpPacket(sctpDataChunk(0x0B, 0x12, payload))
	p, err := DecodeSCTPPacket(netbuf.ViewOf(pkt))
	require.NoError(t, err)
	require.Len(t, p.Chunks(), 1)

	c, err := DecodeSCTPDataChunk(p.Chunks()[0].Data())
	require.NoError(t, err)

	assert.Equal(t, uint32(1), c.TSN())
	assert.Equal(t, uint16(5), c.StreamID())
	assert.Equal(t, uint16(9), c.StreamSeq())
	assert.Equal(t, uint32(0x12), c.PayloadProtocolID())
	assert.True(t, c.FlagI())
	assert.False(t, c.FlagU())
	assert.True(t, c.FlagB())
	assert.True(t, c.FlagE())
	assert.False(t, c.IsFragment())
	assert.True(t, c.IsS1AP())
	assert.Equal(t, payload, c.Data().Bytes())
}

func TestSCTPDataChunkFragments(t *testing.T) {
	cases := []struct {
		name     string
		flags    byte
		fragment bool
	}{
		{"complete", 0x03, false},
		{"first", 0x02, true},
		{"middle", 0x00, true},
		{"last", 0x01, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pkt := sctpPacket(sctpDataChunk(tc.flags, 0x12, nil))
			p, err := DecodeSCTPPacket(netbuf.ViewOf(pkt))
			require.NoError(t, err)
			c, err := DecodeSCTPDataChunk(p.Chunks()[0].Data())
			require.NoError(t, err)
			assert.Equal(t, tc.fragment, c.IsFragment())
		})
	}
}

func TestDecodeSCTPDataChunkErrors(t *testing.T) {
	_, err := DecodeSCTPDataChunk(netbuf.ViewOf(make([]byte, 15)))
	assert.ErrorIs(t, err, core.ErrPacketTooShort)
}
