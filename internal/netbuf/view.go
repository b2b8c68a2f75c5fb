// Package netbuf provides bounds-checked views over shared packet
// buffers and a fixed-size buffer pool.
package netbuf

import (
	"fmt"

	"firestige.xyz/upflow/internal/core"
)

// backing is the shared storage behind one or more views. It is
// reference counted; when the count drops to zero a pool-owned
// backing returns to its pool's free list.
type backing struct {
	data []byte
	refs int
	pool *Pool
}

func (b *backing) retain() {
	if b != nil {
		b.refs++
	}
}

func (b *backing) release() {
	if b == nil {
		return
	}
	b.refs--
	if b.refs == 0 && b.pool != nil {
		b.pool.put(b)
	}
}

// View is a read-only window (offset, length) into a shared buffer.
//
// Views obtained from Sub or Retain hold a reference on the backing
// storage and must be dropped with Release. A plain value copy is a
// borrow: it shares the parent's reference and must not outlive it.
type View struct {
	b   *backing
	off int
	n   int
}

// ViewOf wraps externally owned bytes. The caller keeps ownership of
// the slice; Release is a no-op for the storage.
func ViewOf(data []byte) View {
	return View{b: &backing{data: data, refs: 1}, off: 0, n: len(data)}
}

// Len returns the view length in bytes.
func (v View) Len() int { return v.n }

// IsEmpty reports whether the view has zero length.
func (v View) IsEmpty() bool { return v.n == 0 }

// Bytes returns the window of the backing storage covered by the
// view. The slice must not be retained past the view's lifetime.
func (v View) Bytes() []byte {
	if v.b == nil {
		return nil
	}
	return v.b.data[v.off : v.off+v.n]
}

// Retain returns a copy of the view holding its own reference on the
// backing storage.
func (v View) Retain() View {
	v.b.retain()
	return v
}

// Release drops this view's reference on the backing storage.
// Releasing a zero view is a no-op.
func (v *View) Release() {
	v.b.release()
	v.b = nil
	v.n = 0
	v.off = 0
}

// Sub returns a view over bytes [off, off+n) of v, holding its own
// reference. Fails when the range exceeds the view.
func (v View) Sub(off, n int) (View, error) {
	if off < 0 || n < 0 || off+n > v.n {
		return View{}, fmt.Errorf("%w: sub(%d, %d) of view of length %d",
			core.ErrOutOfBounds, off, n, v.n)
	}
	v.b.retain()
	return View{b: v.b, off: v.off + off, n: n}, nil
}

// Window returns a borrowed view over bytes [off, off+n) of v. Unlike
// Sub it takes no reference of its own; the result must not outlive
// the parent view.
func (v View) Window(off, n int) (View, error) {
	if off < 0 || n < 0 || off+n > v.n {
		return View{}, fmt.Errorf("%w: window(%d, %d) of view of length %d",
			core.ErrOutOfBounds, off, n, v.n)
	}
	return View{b: v.b, off: v.off + off, n: n}, nil
}

// Uint8At returns the byte at off.
func (v View) Uint8At(off int) (uint8, error) {
	if off < 0 || off+1 > v.n {
		return 0, fmt.Errorf("%w: u8 at %d, length %d", core.ErrOutOfBounds, off, v.n)
	}
	return v.Uint8(off), nil
}

// Uint16At returns the big-endian 16-bit value at off.
func (v View) Uint16At(off int) (uint16, error) {
	if off < 0 || off+2 > v.n {
		return 0, fmt.Errorf("%w: u16 at %d, length %d", core.ErrOutOfBounds, off, v.n)
	}
	return v.Uint16(off), nil
}

// Uint32At returns the big-endian 32-bit value at off.
func (v View) Uint32At(off int) (uint32, error) {
	if off < 0 || off+4 > v.n {
		return 0, fmt.Errorf("%w: u32 at %d, length %d", core.ErrOutOfBounds, off, v.n)
	}
	return v.Uint32(off), nil
}

// MACAddressAt returns the 6-byte MAC address at off.
func (v View) MACAddressAt(off int) (core.MACAddress, error) {
	if off < 0 || off+6 > v.n {
		return core.MACAddress{}, fmt.Errorf("%w: MAC at %d, length %d",
			core.ErrOutOfBounds, off, v.n)
	}
	return v.MACAddress(off), nil
}

// IPv4AddressAt returns the 4-byte IPv4 address at off.
func (v View) IPv4AddressAt(off int) (core.IPv4Address, error) {
	if off < 0 || off+4 > v.n {
		return core.IPv4Address{}, fmt.Errorf("%w: IPv4 at %d, length %d",
			core.ErrOutOfBounds, off, v.n)
	}
	return v.IPv4Address(off), nil
}

// Unchecked accessors. Valid only for offsets already covered by a
// construction-time bounds check on the containing decoder.

// Uint8 returns the byte at off without bounds checking.
func (v View) Uint8(off int) uint8 { return v.b.data[v.off+off] }

// Uint16 returns the big-endian 16-bit value at off without bounds
// checking.
func (v View) Uint16(off int) uint16 {
	d := v.b.data[v.off+off:]
	return uint16(d[0])<<8 | uint16(d[1])
}

// Uint32 returns the big-endian 32-bit value at off without bounds
// checking.
func (v View) Uint32(off int) uint32 {
	d := v.b.data[v.off+off:]
	return uint32(d[0])<<24 | uint32(d[1])<<16 | uint32(d[2])<<8 | uint32(d[3])
}

// MACAddress returns the 6-byte MAC address at off without bounds
// checking.
func (v View) MACAddress(off int) core.MACAddress {
	var mac core.MACAddress
	copy(mac[:], v.b.data[v.off+off:])
	return mac
}

// IPv4Address returns the 4-byte IPv4 address at off without bounds
// checking.
func (v View) IPv4Address(off int) core.IPv4Address {
	var addr core.IPv4Address
	copy(addr[:], v.b.data[v.off+off:])
	return addr
}

// Sum16 returns the 16-bit one's-complement sum of all bytes in the
// view, as used by Internet checksums. An odd trailing byte is padded
// with zero in the low half of the last word.
func (v View) Sum16() uint16 {
	return FoldChecksum(ChecksumSum(v.Bytes(), 0))
}

// ChecksumSum accumulates 16-bit big-endian words of data onto sum
// without folding carries.
func ChecksumSum(data []byte, sum uint32) uint32 {
	for len(data) >= 2 {
		sum += uint32(data[0])<<8 | uint32(data[1])
		data = data[2:]
	}
	if len(data) == 1 {
		sum += uint32(data[0]) << 8
	}
	return sum
}

// FoldChecksum folds carries of a running checksum sum into 16 bits.
func FoldChecksum(sum uint32) uint16 {
	for sum>>16 != 0 {
		sum = sum&0xFFFF + sum>>16
	}
	return uint16(sum)
}
