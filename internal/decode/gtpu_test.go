package decode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/upflow/internal/core"
	"firestige.xyz/upflow/internal/netbuf"
)

func gtpuMessage(flags, msgType byte, teid uint32, tail []byte) []byte {
	b := []byte{
		flags, msgType,
		byte(len(tail) >> 8), byte(len(tail)),
		byte(teid >> 24), byte(teid >> 16), byte(teid >> 8), byte(teid),
	}
	return append(b, tail...)
}

func TestDecodeGTPv1UPacket(t *testing.T) {
	payload := []byte{0x45, 0x00, 0x00, 0x14}
	p, err := DecodeGTPv1UPacket(netbuf.ViewOf(gtpuMessage(0x30, 0xFF, 0x1234, payload)))
	require.NoError(t, err)

	assert.Equal(t, uint8(0x30), p.Flags())
	assert.Equal(t, uint8(0xFF), p.MessageType())
	assert.True(t, p.IsIPv4PDU())
	assert.Equal(t, core.TEID(0x1234), p.TEID())
	assert.Equal(t, len(payload), p.MessageLen())
	assert.Equal(t, 8, p.DataOffset())
	assert.Equal(t, payload, p.Data().Bytes())
	assert.Empty(t, p.ExtensionHeaders())
}

func TestDecodeGTPv1UPacketWithSequence(t *testing.T) {
	payload := []byte{0xAB, 0xCD}
	// Optional block: sequence 7, N-PDU 0, next extension type 0.
	tail := append([]byte{0x00, 0x07, 0x00, 0x00}, payload...)
	p, err := DecodeGTPv1UPacket(netbuf.ViewOf(gtpuMessage(0x32, 0xFF, 1, tail)))
	require.NoError(t, err)

	assert.True(t, p.HasSequence())
	assert.Equal(t, uint16(7), p.Sequence())
	assert.Equal(t, 12, p.DataOffset())
	assert.Equal(t, payload, p.Data().Bytes())
}

func TestDecodeGTPv1UPacketWithExtensions(t *testing.T) {
	payload := []byte{0x11, 0x22}
	tail := []byte{
		0x00, 0x01, 0x00, 0x85, // seq, N-PDU, next ext = PDU session container
		0x01, 0xAA, 0xBB, 0xC0, // 4-byte extension, next ext = 0xC0
		0x01, 0xCC, 0xDD, 0x00, // 4-byte extension, end of list
	}
	tail = append(tail, payload...)
	p, err := DecodeGTPv1UPacket(netbuf.ViewOf(gtpuMessage(0x34, 0xFF, 1, tail)))
	require.NoError(t, err)

	require.Len(t, p.ExtensionHeaders(), 2)
	assert.Equal(t, []byte{0x01, 0xAA, 0xBB, 0xC0}, p.ExtensionHeaders()[0].Bytes())
	assert.Equal(t, []byte{0x01, 0xCC, 0xDD, 0x00}, p.ExtensionHeaders()[1].Bytes())
	assert.Equal(t, 20, p.DataOffset())
	assert.Equal(t, payload, p.Data().Bytes())
}

func TestDecodeGTPv1UPacketEchoRequest(t *testing.T) {
	p, err := DecodeGTPv1UPacket(netbuf.ViewOf(gtpuMessage(0x30, 0x01, 0, nil)))
	require.NoError(t, err)
	assert.False(t, p.IsIPv4PDU())
	assert.Equal(t, 0, p.DataLen())
}

func TestDecodeGTPv1UPacketErrors(t *testing.T) {
	_, err := DecodeGTPv1UPacket(netbuf.ViewOf(make([]byte, 7)))
	assert.ErrorIs(t, err, core.ErrPacketTooShort)

	// GTPv2 flags are rejected.
	_, err = DecodeGTPv1UPacket(netbuf.ViewOf(gtpuMessage(0x48, 0xFF, 1, nil)))
	assert.ErrorIs(t, err, core.ErrMalformedPacket)

	// Extension flag set but the optional block is missing.
	b := gtpuMessage(0x34, 0xFF, 1, nil)
	_, err = DecodeGTPv1UPacket(netbuf.ViewOf(b))
	assert.ErrorIs(t, err, core.ErrMalformedPacket)

	// Zero-length extension header must not loop forever.
	tail := []byte{0x00, 0x01, 0x00, 0x85, 0x00, 0x00, 0x00, 0x00}
	_, err = DecodeGTPv1UPacket(netbuf.ViewOf(gtpuMessage(0x34, 0xFF, 1, tail)))
	assert.ErrorIs(t, err, core.ErrMalformedPacket)

	// Message length larger than the view.
	b = gtpuMessage(0x30, 0xFF, 1, []byte{1, 2})
	b[3] = 100
	_, err = DecodeGTPv1UPacket(netbuf.ViewOf(b))
	assert.ErrorIs(t, err, core.ErrMalformedPacket)
}
