package decode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/upflow/internal/core"
	"firestige.xyz/upflow/internal/netbuf"
)

// ipv4Packet builds a minimal header-only IPv4 packet around payload.
func ipv4Packet(proto core.IPv4Protocol, src, dst core.IPv4Address, payload []byte) []byte {
	total := 20 + len(payload)
	b := []byte{
		0x45, 0x00, byte(total >> 8), byte(total),
		0xBE, 0xEF, // identification
		0x00, 0x00, // flags + fragment offset
		0x40, byte(proto),
		0x00, 0x00, // header checksum
	}
	b = append(b, src[:]...)
	b = append(b, dst[:]...)
	return append(b, payload...)
}

func TestDecodeIPv4Packet(t *testing.T) {
	src := core.IPv4Address{10, 0, 0, 1}
	dst := core.IPv4Address{10, 0, 0, 2}
	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8}

	p, err := DecodeIPv4Packet(netbuf.ViewOf(ipv4Packet(core.ProtoUDP, src, dst, payload)))
	require.NoError(t, err)

	assert.Equal(t, 20, p.HeaderLen())
	assert.Equal(t, 28, p.TotalLen())
	assert.Equal(t, uint16(0xBEEF), p.Identification())
	assert.Equal(t, uint8(0x40), p.TTL())
	assert.Equal(t, core.ProtoUDP, p.Protocol())
	assert.Equal(t, src, p.SrcAddr())
	assert.Equal(t, dst, p.DstAddr())
	assert.False(t, p.IsFragment())
	assert.Equal(t, len(payload), p.DataLen())
	assert.Equal(t, payload, p.Data().Bytes())
}

func TestDecodeIPv4PacketTrailingBytes(t *testing.T) {
	// An Ethernet frame may be padded past the IPv4 total length; the
	// payload view must stop at the total length.
	pkt := ipv4Packet(core.ProtoUDP, core.IPv4Address{1, 2, 3, 4}, core.IPv4Address{5, 6, 7, 8},
		[]byte{0xAA, 0xBB})
	pkt = append(pkt, make([]byte, 16)...)

	p, err := DecodeIPv4Packet(netbuf.ViewOf(pkt))
	require.NoError(t, err)
	assert.Equal(t, 22, p.TotalLen())
	assert.Equal(t, []byte{0xAA, 0xBB}, p.Data().Bytes())
}

func TestDecodeIPv4Fragments(t *testing.T) {
	pkt := ipv4Packet(core.ProtoUDP, core.IPv4Address{1, 1, 1, 1}, core.IPv4Address{2, 2, 2, 2}, nil)

	// MF set, offset 0.
	pkt[6] = 0x20
	p, err := DecodeIPv4Packet(netbuf.ViewOf(pkt))
	require.NoError(t, err)
	assert.True(t, p.MoreFragments())
	assert.False(t, p.DontFragment())
	assert.True(t, p.IsFragment())
	assert.Equal(t, 0, p.FragmentOffset())

	// DF set, offset 185 (x8 = 1480 bytes).
	pkt[6] = 0x40
	pkt[7] = 185
	p, err = DecodeIPv4Packet(netbuf.ViewOf(pkt))
	require.NoError(t, err)
	assert.True(t, p.DontFragment())
	assert.False(t, p.MoreFragments())
	assert.True(t, p.IsFragment())
	assert.Equal(t, 1480, p.FragmentOffset())

	key := p.FragmentKey()
	assert.Equal(t, IPv4FragmentKey{
		Protocol: core.ProtoUDP,
		Src:      core.IPv4Address{1, 1, 1, 1},
		Dst:      core.IPv4Address{2, 2, 2, 2},
		ID:       0xBEEF,
	}, key)
}

func TestDecodeIPv4PacketErrors(t *testing.T) {
	_, err := DecodeIPv4Packet(netbuf.ViewOf(make([]byte, 19)))
	assert.ErrorIs(t, err, core.ErrPacketTooShort)

	// Version 6 is rejected.
	pkt := ipv4Packet(core.ProtoTCP, core.IPv4Address{}, core.IPv4Address{}, nil)
	pkt[0] = 0x65
	_, err = DecodeIPv4Packet(netbuf.ViewOf(pkt))
	assert.ErrorIs(t, err, core.ErrMalformedPacket)

	// Total length beyond the view.
	pkt = ipv4Packet(core.ProtoTCP, core.IPv4Address{}, core.IPv4Address{}, nil)
	pkt[3] = 200
	_, err = DecodeIPv4Packet(netbuf.ViewOf(pkt))
	assert.ErrorIs(t, err, core.ErrMalformedPacket)

	// IHL below the minimum.
	pkt = ipv4Packet(core.ProtoTCP, core.IPv4Address{}, core.IPv4Address{}, nil)
	pkt[0] = 0x44
	_, err = DecodeIPv4Packet(netbuf.ViewOf(pkt))
	assert.ErrorIs(t, err, core.ErrMalformedPacket)
}
