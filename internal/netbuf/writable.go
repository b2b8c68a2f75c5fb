package netbuf

import (
	"fmt"

	"firestige.xyz/upflow/internal/core"
)

// WritableView is a view with write access to its window. Write
// intent is exclusive per window; overlapping writers must be
// coordinated by the caller.
type WritableView struct {
	View
}

// NewWritableView allocates a heap-owned buffer of the given size and
// returns a writable view over all of it.
func NewWritableView(size int) WritableView {
	return WritableView{View: ViewOf(make([]byte, size))}
}

// WritableViewOf wraps externally owned bytes with write access.
func WritableViewOf(data []byte) WritableView {
	return WritableView{View: ViewOf(data)}
}

// Sub returns a writable view over bytes [off, off+n) of v, holding
// its own reference.
func (v WritableView) Sub(off, n int) (WritableView, error) {
	sub, err := v.View.Sub(off, n)
	if err != nil {
		return WritableView{}, err
	}
	return WritableView{View: sub}, nil
}

// Retain returns a copy of the view holding its own reference.
func (v WritableView) Retain() WritableView {
	return WritableView{View: v.View.Retain()}
}

// ShrinkTo reduces the view length to n. Growing is not allowed.
func (v *WritableView) ShrinkTo(n int) error {
	if n < 0 || n > v.n {
		return fmt.Errorf("%w: shrink to %d of view of length %d",
			core.ErrOutOfBounds, n, v.n)
	}
	v.n = n
	return nil
}

// PutUint8 stores b at off.
func (v WritableView) PutUint8(off int, b uint8) error {
	if off < 0 || off+1 > v.n {
		return fmt.Errorf("%w: put u8 at %d, length %d", core.ErrOutOfBounds, off, v.n)
	}
	v.b.data[v.off+off] = b
	return nil
}

// PutUint16 stores a big-endian 16-bit value at off.
func (v WritableView) PutUint16(off int, u uint16) error {
	if off < 0 || off+2 > v.n {
		return fmt.Errorf("%w: put u16 at %d, length %d", core.ErrOutOfBounds, off, v.n)
	}
	d := v.b.data[v.off+off:]
	d[0] = byte(u >> 8)
	d[1] = byte(u)
	return nil
}

// PutUint32 stores a big-endian 32-bit value at off.
func (v WritableView) PutUint32(off int, u uint32) error {
	if off < 0 || off+4 > v.n {
		return fmt.Errorf("%w: put u32 at %d, length %d", core.ErrOutOfBounds, off, v.n)
	}
	d := v.b.data[v.off+off:]
	d[0] = byte(u >> 24)
	d[1] = byte(u >> 16)
	d[2] = byte(u >> 8)
	d[3] = byte(u)
	return nil
}

// PutMACAddress stores a 6-byte MAC address at off.
func (v WritableView) PutMACAddress(off int, mac core.MACAddress) error {
	if off < 0 || off+6 > v.n {
		return fmt.Errorf("%w: put MAC at %d, length %d", core.ErrOutOfBounds, off, v.n)
	}
	copy(v.b.data[v.off+off:], mac[:])
	return nil
}

// PutIPv4Address stores a 4-byte IPv4 address at off.
func (v WritableView) PutIPv4Address(off int, addr core.IPv4Address) error {
	if off < 0 || off+4 > v.n {
		return fmt.Errorf("%w: put IPv4 at %d, length %d", core.ErrOutOfBounds, off, v.n)
	}
	copy(v.b.data[v.off+off:], addr[:])
	return nil
}

// Unchecked setters, mirroring the read side. Valid only for offsets
// already covered by a construction-time bounds check on the
// containing encoder.

// SetUint8 stores b at off without bounds checking.
func (v WritableView) SetUint8(off int, b uint8) { v.b.data[v.off+off] = b }

// SetUint16 stores a big-endian 16-bit value at off without bounds
// checking.
func (v WritableView) SetUint16(off int, u uint16) {
	d := v.b.data[v.off+off:]
	d[0] = byte(u >> 8)
	d[1] = byte(u)
}

// SetUint32 stores a big-endian 32-bit value at off without bounds
// checking.
func (v WritableView) SetUint32(off int, u uint32) {
	d := v.b.data[v.off+off:]
	d[0] = byte(u >> 24)
	d[1] = byte(u >> 16)
	d[2] = byte(u >> 8)
	d[3] = byte(u)
}

// SetMACAddress stores a 6-byte MAC address at off without bounds
// checking.
func (v WritableView) SetMACAddress(off int, mac core.MACAddress) {
	copy(v.b.data[v.off+off:], mac[:])
}

// SetIPv4Address stores a 4-byte IPv4 address at off without bounds
// checking.
func (v WritableView) SetIPv4Address(off int, addr core.IPv4Address) {
	copy(v.b.data[v.off+off:], addr[:])
}

// CopyAt copies src into the view starting at off. Writes never
// extend past the view's current length.
func (v WritableView) CopyAt(off int, src []byte) error {
	if off < 0 || off+len(src) > v.n {
		return fmt.Errorf("%w: copy %d bytes at %d, length %d",
			core.ErrOutOfBounds, len(src), off, v.n)
	}
	copy(v.b.data[v.off+off:], src)
	return nil
}
