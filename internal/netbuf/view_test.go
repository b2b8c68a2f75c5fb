package netbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/upflow/internal/core"
)

func TestViewAccessors(t *testing.T) {
	data := []byte{
		0xDE, 0xAD, 0xBE, 0xEF,
		0x00, 0x11, 0x22, 0x33, 0x44, 0x55,
		10, 0, 0, 1,
	}
	v := ViewOf(data)

	require.Equal(t, len(data), v.Len())

	u8, err := v.Uint8At(0)
	require.NoError(t, err)
	assert.Equal(t, uint8(0xDE), u8)

	u16, err := v.Uint16At(0)
	require.NoError(t, err)
	assert.Equal(t, uint16(0xDEAD), u16)

	u32, err := v.Uint32At(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), u32)

	mac, err := v.MACAddressAt(4)
	require.NoError(t, err)
	assert.Equal(t, core.MACAddress{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}, mac)

	addr, err := v.IPv4AddressAt(10)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", addr.String())
}

func TestViewBoundsErrors(t *testing.T) {
	v := ViewOf([]byte{1, 2, 3})

	_, err := v.Uint32At(0)
	assert.ErrorIs(t, err, core.ErrOutOfBounds)

	_, err = v.Uint16At(2)
	assert.ErrorIs(t, err, core.ErrOutOfBounds)

	_, err = v.Uint8At(-1)
	assert.ErrorIs(t, err, core.ErrOutOfBounds)

	_, err = v.Sub(1, 3)
	assert.ErrorIs(t, err, core.ErrOutOfBounds)
}

func TestViewSub(t *testing.T) {
	v := ViewOf([]byte{0, 1, 2, 3, 4, 5, 6, 7})

	sub, err := v.Sub(2, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, sub.Len())
	assert.Equal(t, []byte{2, 3, 4, 5}, sub.Bytes())

	// Sub of sub re-checks bounds against the child view.
	inner, err := sub.Sub(1, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 4}, inner.Bytes())

	_, err = sub.Sub(2, 3)
	assert.ErrorIs(t, err, core.ErrOutOfBounds)
}

func TestWritableViewSetters(t *testing.T) {
	v := NewWritableView(16)

	require.NoError(t, v.PutUint8(0, 0x45))
	require.NoError(t, v.PutUint16(2, 0xBEEF))
	require.NoError(t, v.PutUint32(4, 0xCAFEBABE))
	require.NoError(t, v.PutIPv4Address(8, core.IPv4Address{192, 0, 2, 7}))

	assert.Equal(t, uint8(0x45), v.Uint8(0))
	assert.Equal(t, uint16(0xBEEF), v.Uint16(2))
	assert.Equal(t, uint32(0xCAFEBABE), v.Uint32(4))
	assert.Equal(t, core.IPv4Address{192, 0, 2, 7}, v.IPv4Address(8))

	// Writes never extend past the view length.
	assert.ErrorIs(t, v.PutUint32(14, 1), core.ErrOutOfBounds)

	require.NoError(t, v.ShrinkTo(4))
	assert.Equal(t, 4, v.Len())
	assert.ErrorIs(t, v.PutUint8(4, 1), core.ErrOutOfBounds)
	assert.ErrorIs(t, v.ShrinkTo(5), core.ErrOutOfBounds)
}

func TestSum16(t *testing.T) {
	// Even length.
	v := ViewOf([]byte{0x00, 0x01, 0xF2, 0x03})
	assert.Equal(t, uint16(0xF204), v.Sum16())

	// Odd length pads the final byte into the high half of a word.
	v = ViewOf([]byte{0x01, 0x02, 0x03})
	assert.Equal(t, uint16(0x0402), v.Sum16())

	// Carry folding.
	v = ViewOf([]byte{0xFF, 0xFF, 0x00, 0x02})
	assert.Equal(t, uint16(0x0002), v.Sum16())
}

func TestPoolAcquireRelease(t *testing.T) {
	p := NewPool(2, 64)
	require.Equal(t, 2, p.FreeCount())

	v1, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 64, v1.Len())
	assert.Equal(t, 1, p.FreeCount())

	v2, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 0, p.FreeCount())

	_, err = p.Acquire()
	assert.ErrorIs(t, err, core.ErrPoolExhausted)

	// The buffer returns only when the last view drops.
	sub, err := v1.View.Sub(0, 8)
	require.NoError(t, err)
	v1.Release()
	assert.Equal(t, 0, p.FreeCount())
	sub.Release()
	assert.Equal(t, 1, p.FreeCount())

	v2.Release()
	assert.Equal(t, 2, p.FreeCount())

	// Reacquired buffers come back full length.
	v3, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 64, v3.Len())
}
