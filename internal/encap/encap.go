// Package encap composes outer IPv4/UDP/GTPv1-U (optionally
// Ethernet-framed) packets around an inner IPv4 payload, including
// length and Internet checksum computation.
package encap

import (
	"fmt"

	"firestige.xyz/upflow/internal/core"
	"firestige.xyz/upflow/internal/netbuf"
)

// Header geometry, relative to the start of the IPv4 outer header.
const (
	ipv4HeaderLen = 20
	udpHeaderLen  = 8
	gtpHeaderLen  = 8
	ethHeaderLen  = 14

	// IPv4HeaderBytes is the outer header size of the IPv4 variant.
	IPv4HeaderBytes = ipv4HeaderLen + udpHeaderLen + gtpHeaderLen

	// EthHeaderBytes is the outer header size of the Ethernet variant.
	EthHeaderBytes = ethHeaderLen + IPv4HeaderBytes

	// MaxPayloadLen is the largest inner packet that fits the outer
	// IPv4 total length field.
	MaxPayloadLen = 65535 - IPv4HeaderBytes
)

const (
	ipv4TotalLengthOffset    = 2
	ipv4IdentificationOffset = 4
	ipv4ChecksumOffset       = 10
	ipv4SrcAddrOffset        = 12
	ipv4DstAddrOffset        = 16

	udpSrcPortOffset     = ipv4HeaderLen + 0
	udpDstPortOffset     = ipv4HeaderLen + 2
	udpTotalLengthOffset = ipv4HeaderLen + 4
	udpChecksumOffset    = ipv4HeaderLen + 6

	gtpStartOffset         = ipv4HeaderLen + udpHeaderLen
	gtpMessageLengthOffset = gtpStartOffset + 2
	gtpTEIDOffset          = gtpStartOffset + 4
)

// headerTemplate seeds the IPv4 + UDP + GTPv1-U header area: version
// and IHL 0x45, TTL 64, protocol UDP, both ports 2152, GTP version 1
// with protocol type GTP, message type T-PDU.
var headerTemplate = [IPv4HeaderBytes]byte{
	// IPv4
	0x45, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00,
	0x40, 0x11, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00,
	// UDP (port 2152 = 0x0868)
	0x08, 0x68, 0x08, 0x68, 0x00, 0x00, 0x00, 0x00,
	// GTPv1-U
	0x30, 0xFF, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// GTPv1UIPv4Encap composes an IPv4/UDP/GTPv1-U packet in a caller
// provided buffer. The outer headers live in the first IPv4HeaderBytes
// of the buffer; the inner packet follows.
type GTPv1UIPv4Encap struct {
	buf netbuf.WritableView

	payloadLen  int
	framed      netbuf.View
	udpChecksum bool
}

// NewGTPv1UIPv4Encap wraps buf as the composition area. The buffer
// must hold at least the outer headers.
func NewGTPv1UIPv4Encap(buf netbuf.WritableView) (*GTPv1UIPv4Encap, error) {
	if buf.Len() < IPv4HeaderBytes {
		return nil, fmt.Errorf("%w: composition buffer of %d bytes (min %d)",
			core.ErrOutOfBounds, buf.Len(), IPv4HeaderBytes)
	}
	e := &GTPv1UIPv4Encap{buf: buf, udpChecksum: true}
	e.Reset()
	return e, nil
}

// Reset re-seeds the header area with the template, clearing any
// previously set addresses, ports, TEID and identification.
func (e *GTPv1UIPv4Encap) Reset() {
	e.buf.CopyAt(0, headerTemplate[:])
	e.payloadLen = 0
	e.framed = netbuf.View{}
}

// EnableUDPChecksum controls whether ComputeAndSetChecksums fills the
// UDP checksum. Disabled leaves the field zero, which UDP over IPv4
// permits. Default is enabled.
func (e *GTPv1UIPv4Encap) EnableUDPChecksum(enable bool) { e.udpChecksum = enable }

// SetSrcAddr sets the outer IPv4 source address.
func (e *GTPv1UIPv4Encap) SetSrcAddr(a core.IPv4Address) {
	e.buf.SetIPv4Address(ipv4SrcAddrOffset, a)
}

// SetDstAddr sets the outer IPv4 destination address.
func (e *GTPv1UIPv4Encap) SetDstAddr(a core.IPv4Address) {
	e.buf.SetIPv4Address(ipv4DstAddrOffset, a)
}

// SetIdentification sets the outer IPv4 identification field.
func (e *GTPv1UIPv4Encap) SetIdentification(id uint16) {
	e.buf.SetUint16(ipv4IdentificationOffset, id)
}

// SetSrcPort overrides the outer UDP source port (default 2152).
func (e *GTPv1UIPv4Encap) SetSrcPort(p core.Port) {
	e.buf.SetUint16(udpSrcPortOffset, uint16(p))
}

// SetDstPort overrides the outer UDP destination port (default 2152).
func (e *GTPv1UIPv4Encap) SetDstPort(p core.Port) {
	e.buf.SetUint16(udpDstPortOffset, uint16(p))
}

// SetTEID sets the GTP tunnel endpoint identifier.
func (e *GTPv1UIPv4Encap) SetTEID(teid core.TEID) {
	e.buf.SetUint32(gtpTEIDOffset, uint32(teid))
}

// SetPayload copies the inner IPv4 packet into the payload area and
// fills the outer length fields.
func (e *GTPv1UIPv4Encap) SetPayload(inner netbuf.View) error {
	n, err := setPayloadCopy(e.buf, IPv4HeaderBytes, inner)
	if err != nil {
		return err
	}
	e.finishPayload(n)
	return nil
}

// SetPayloadInPlace assumes the caller already placed the inner IPv4
// packet at offset IPv4HeaderBytes, filling the buffer to its end,
// and only fills the outer length fields. The payload's version
// nibble must be 4.
func (e *GTPv1UIPv4Encap) SetPayloadInPlace() error {
	n, err := checkPayloadInPlace(e.buf, IPv4HeaderBytes)
	if err != nil {
		return err
	}
	e.finishPayload(n)
	return nil
}

func (e *GTPv1UIPv4Encap) finishPayload(n int) {
	e.payloadLen = n
	setLengths(e.buf, 0, n)
	e.framed = mustWindow(e.buf.View, 0, IPv4HeaderBytes+n)
}

// ComputeAndSetChecksums fills the UDP checksum (when enabled) and
// the IPv4 header checksum. Call after the addresses, identification
// and payload are in place.
func (e *GTPv1UIPv4Encap) ComputeAndSetChecksums() {
	computeAndSetChecksums(e.buf, 0, e.payloadLen, e.udpChecksum)
}

// IPv4Packet returns the composed outer packet. The view borrows the
// composition buffer and is valid until the next SetPayload or Reset.
func (e *GTPv1UIPv4Encap) IPv4Packet() netbuf.View { return e.framed }

// GTPv1UEthEncap is the Ethernet-framed variant: an Ethernet header
// precedes the same IPv4/UDP/GTPv1-U stack.
type GTPv1UEthEncap struct {
	buf netbuf.WritableView

	payloadLen  int
	framed      netbuf.View
	udpChecksum bool
}

// NewGTPv1UEthEncap wraps buf as the composition area. The buffer
// must hold at least the outer headers.
func NewGTPv1UEthEncap(buf netbuf.WritableView) (*GTPv1UEthEncap, error) {
	if buf.Len() < EthHeaderBytes {
		return nil, fmt.Errorf("%w: composition buffer of %d bytes (min %d)",
			core.ErrOutOfBounds, buf.Len(), EthHeaderBytes)
	}
	e := &GTPv1UEthEncap{buf: buf, udpChecksum: true}
	e.Reset()
	return e, nil
}

// Reset re-seeds the header area: zero MAC addresses, EtherType IPv4,
// then the shared IPv4/UDP/GTP template.
func (e *GTPv1UEthEncap) Reset() {
	var eth [ethHeaderLen]byte
	eth[12] = byte(core.EtherTypeIPv4 >> 8)
	eth[13] = byte(core.EtherTypeIPv4 & 0xff)
	e.buf.CopyAt(0, eth[:])
	e.buf.CopyAt(ethHeaderLen, headerTemplate[:])
	e.payloadLen = 0
	e.framed = netbuf.View{}
}

// EnableUDPChecksum controls whether ComputeAndSetChecksums fills the
// UDP checksum. Default is enabled.
func (e *GTPv1UEthEncap) EnableUDPChecksum(enable bool) { e.udpChecksum = enable }

// SetDstMAC sets the Ethernet destination address.
func (e *GTPv1UEthEncap) SetDstMAC(mac core.MACAddress) { e.buf.SetMACAddress(0, mac) }

// SetSrcMAC sets the Ethernet source address.
func (e *GTPv1UEthEncap) SetSrcMAC(mac core.MACAddress) { e.buf.SetMACAddress(6, mac) }

// SetSrcAddr sets the outer IPv4 source address.
func (e *GTPv1UEthEncap) SetSrcAddr(a core.IPv4Address) {
	e.buf.SetIPv4Address(ethHeaderLen+ipv4SrcAddrOffset, a)
}

// SetDstAddr sets the outer IPv4 destination address.
func (e *GTPv1UEthEncap) SetDstAddr(a core.IPv4Address) {
	e.buf.SetIPv4Address(ethHeaderLen+ipv4DstAddrOffset, a)
}

// SetIdentification sets the outer IPv4 identification field.
func (e *GTPv1UEthEncap) SetIdentification(id uint16) {
	e.buf.SetUint16(ethHeaderLen+ipv4IdentificationOffset, id)
}

// SetSrcPort overrides the outer UDP source port (default 2152).
func (e *GTPv1UEthEncap) SetSrcPort(p core.Port) {
	e.buf.SetUint16(ethHeaderLen+udpSrcPortOffset, uint16(p))
}

// SetDstPort overrides the outer UDP destination port (default 2152).
func (e *GTPv1UEthEncap) SetDstPort(p core.Port) {
	e.buf.SetUint16(ethHeaderLen+udpDstPortOffset, uint16(p))
}

// SetTEID sets the GTP tunnel endpoint identifier.
func (e *GTPv1UEthEncap) SetTEID(teid core.TEID) {
	e.buf.SetUint32(ethHeaderLen+gtpTEIDOffset, uint32(teid))
}

// SetPayload copies the inner IPv4 packet into the payload area and
// fills the outer length fields.
func (e *GTPv1UEthEncap) SetPayload(inner netbuf.View) error {
	n, err := setPayloadCopy(e.buf, EthHeaderBytes, inner)
	if err != nil {
		return err
	}
	e.finishPayload(n)
	return nil
}

// SetPayloadInPlace assumes the caller already placed the inner IPv4
// packet at offset EthHeaderBytes, filling the buffer to its end, and
// only fills the outer length fields.
func (e *GTPv1UEthEncap) SetPayloadInPlace() error {
	n, err := checkPayloadInPlace(e.buf, EthHeaderBytes)
	if err != nil {
		return err
	}
	e.finishPayload(n)
	return nil
}

func (e *GTPv1UEthEncap) finishPayload(n int) {
	e.payloadLen = n
	setLengths(e.buf, ethHeaderLen, n)
	e.framed = mustWindow(e.buf.View, 0, EthHeaderBytes+n)
}

// ComputeAndSetChecksums fills the UDP checksum (when enabled) and
// the IPv4 header checksum.
func (e *GTPv1UEthEncap) ComputeAndSetChecksums() {
	computeAndSetChecksums(e.buf, ethHeaderLen, e.payloadLen, e.udpChecksum)
}

// EthFrame returns the composed frame. The view borrows the
// composition buffer and is valid until the next SetPayload or Reset.
func (e *GTPv1UEthEncap) EthFrame() netbuf.View { return e.framed }

func setPayloadCopy(buf netbuf.WritableView, headerEnd int, inner netbuf.View) (int, error) {
	n := inner.Len()
	if n > MaxPayloadLen {
		return 0, fmt.Errorf("%w: inner packet of %d bytes (max %d)",
			core.ErrPayloadTooLarge, n, MaxPayloadLen)
	}
	if headerEnd+n > buf.Len() {
		return 0, fmt.Errorf("%w: inner packet of %d bytes, room for %d",
			core.ErrPayloadTooLarge, n, buf.Len()-headerEnd)
	}
	buf.CopyAt(headerEnd, inner.Bytes())
	return n, nil
}

func checkPayloadInPlace(buf netbuf.WritableView, headerEnd int) (int, error) {
	n := buf.Len() - headerEnd
	if n > MaxPayloadLen {
		return 0, fmt.Errorf("%w: in-place payload of %d bytes (max %d)",
			core.ErrPayloadTooLarge, n, MaxPayloadLen)
	}
	if n > 0 && buf.Uint8(headerEnd)>>4 != 4 {
		return 0, fmt.Errorf("%w: in-place payload is not IPv4",
			core.ErrMalformedPacket)
	}
	return n, nil
}

// setLengths fills the GTP message length, UDP total length and IPv4
// total length for a payload of n bytes. base is the offset of the
// outer IPv4 header within buf.
func setLengths(buf netbuf.WritableView, base, n int) {
	udpTotal := n + gtpHeaderLen + udpHeaderLen
	buf.SetUint16(base+gtpMessageLengthOffset, uint16(n))
	buf.SetUint16(base+udpTotalLengthOffset, uint16(udpTotal))
	buf.SetUint16(base+ipv4TotalLengthOffset, uint16(udpTotal+ipv4HeaderLen))
}

func computeAndSetChecksums(buf netbuf.WritableView, base, payloadLen int, udpChecksum bool) {
	udpTotal := uint32(buf.Uint16(base + udpTotalLengthOffset))

	// Pseudo-header sum (addresses and protocol) without the length.
	pseudoNoLen := uint32(buf.Uint16(base+ipv4SrcAddrOffset)) +
		uint32(buf.Uint16(base+ipv4SrcAddrOffset+2)) +
		uint32(buf.Uint16(base+ipv4DstAddrOffset)) +
		uint32(buf.Uint16(base+ipv4DstAddrOffset+2)) +
		uint32(core.ProtoUDP)

	if udpChecksum {
		buf.SetUint16(base+udpChecksumOffset, 0)
		udpHdrSum := uint32(buf.Uint16(base+udpSrcPortOffset)) +
			uint32(buf.Uint16(base+udpDstPortOffset)) +
			udpTotal
		payload := mustWindow(buf.View, base+gtpStartOffset, gtpHeaderLen+payloadLen)
		sum := netbuf.ChecksumSum(payload.Bytes(), pseudoNoLen+udpTotal+udpHdrSum)
		buf.SetUint16(base+udpChecksumOffset, complementNonZero(netbuf.FoldChecksum(sum)))
	}

	buf.SetUint16(base+ipv4ChecksumOffset, 0)
	header := mustWindow(buf.View, base, ipv4HeaderLen)
	sum := netbuf.ChecksumSum(header.Bytes(), 0)
	buf.SetUint16(base+ipv4ChecksumOffset, complementNonZero(netbuf.FoldChecksum(sum)))
}

// complementNonZero one's-complements a folded checksum, substituting
// 0xFFFF when the complement would be zero.
func complementNonZero(folded uint16) uint16 {
	cs := ^folded
	if cs == 0 {
		return 0xFFFF
	}
	return cs
}

func mustWindow(v netbuf.View, off, n int) netbuf.View {
	w, err := v.Window(off, n)
	if err != nil {
		// Unreachable after construction-time validation.
		panic(err)
	}
	return w
}
