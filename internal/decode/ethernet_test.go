package decode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/upflow/internal/core"
	"firestige.xyz/upflow/internal/netbuf"
)

func ethFrame(tags [][]byte, etherType uint16, payload []byte) []byte {
	b := []byte{
		0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, // dst
		0x00, 0x11, 0x22, 0x33, 0x44, 0x55, // src
	}
	for _, tag := range tags {
		b = append(b, tag...)
	}
	b = append(b, byte(etherType>>8), byte(etherType))
	return append(b, payload...)
}

func TestDecodeEthFrame(t *testing.T) {
	payload := []byte{0x45, 0x00, 0x00, 0x14}
	f, err := DecodeEthFrame(netbuf.ViewOf(ethFrame(nil, core.EtherTypeIPv4, payload)))
	require.NoError(t, err)

	assert.Equal(t, core.MACAddress{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, f.DstMAC())
	assert.Equal(t, core.MACAddress{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}, f.SrcMAC())
	assert.Equal(t, core.EtherTypeIPv4, f.EtherType())
	assert.True(t, f.IsIPv4())
	assert.Equal(t, 14, f.DataOffset())
	assert.Equal(t, payload, f.Data().Bytes())
}

func TestDecodeEthFrameVLANStack(t *testing.T) {
	// 802.1ad outer tag followed by an 802.1Q inner tag.
	tags := [][]byte{
		{0x88, 0xA8, 0x00, 0x64},
		{0x81, 0x00, 0x00, 0x0A},
	}
	f, err := DecodeEthFrame(netbuf.ViewOf(ethFrame(tags, core.EtherTypeIPv4, []byte{0x45, 0, 0, 0})))
	require.NoError(t, err)

	assert.Equal(t, core.EtherTypeIPv4, f.EtherType())
	assert.Equal(t, 22, f.DataOffset())
}

func TestDecodeEthFrameNonIPv4(t *testing.T) {
	f, err := DecodeEthFrame(netbuf.ViewOf(ethFrame(nil, core.EtherTypeARP, make([]byte, 28))))
	require.NoError(t, err)
	assert.False(t, f.IsIPv4())
	assert.Equal(t, core.EtherTypeARP, f.EtherType())
}

func TestDecodeEthFrameErrors(t *testing.T) {
	_, err := DecodeEthFrame(netbuf.ViewOf(make([]byte, 13)))
	assert.ErrorIs(t, err, core.ErrPacketTooShort)

	// Tag after tag until the buffer ends without an EtherType.
	b := ethFrame(nil, core.EtherTypeVLAN, []byte{0x00, 0x64})
	_, err = DecodeEthFrame(netbuf.ViewOf(b))
	assert.ErrorIs(t, err, core.ErrMalformedPacket)
}
