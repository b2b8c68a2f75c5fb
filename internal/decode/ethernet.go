package decode

import (
	"fmt"

	"firestige.xyz/upflow/internal/core"
	"firestige.xyz/upflow/internal/netbuf"
)

const (
	ethHeaderMinLen = 14

	dstMACOffset     = 0
	srcMACOffset     = 6
	firstTagOffset   = 12
	vlanTagLen       = 4
)

// EthFrame decodes an Ethernet frame. 802.1Q and 802.1ad tags are
// skipped at construction; EtherType and the payload offset refer to
// the first non-tag position.
type EthFrame struct {
	v         netbuf.View
	etherType uint16
	dataOff   int
}

// DecodeEthFrame attaches a decoder to the given view.
func DecodeEthFrame(v netbuf.View) (*EthFrame, error) {
	if v.Len() < ethHeaderMinLen {
		return nil, fmt.Errorf("%w: ethernet frame of %d bytes (min %d)",
			core.ErrPacketTooShort, v.Len(), ethHeaderMinLen)
	}

	off := firstTagOffset
	for {
		if off+2 > v.Len() {
			return nil, fmt.Errorf("%w: no EtherType before end of frame",
				core.ErrMalformedPacket)
		}
		et := v.Uint16(off)
		if et == core.EtherTypeVLAN || et == core.EtherTypeQinQ {
			off += vlanTagLen
			continue
		}
		return &EthFrame{v: v, etherType: et, dataOff: off + 2}, nil
	}
}

// SrcMAC returns the source hardware address.
func (f *EthFrame) SrcMAC() core.MACAddress { return f.v.MACAddress(srcMACOffset) }

// DstMAC returns the destination hardware address.
func (f *EthFrame) DstMAC() core.MACAddress { return f.v.MACAddress(dstMACOffset) }

// EtherType returns the effective EtherType after any VLAN tags.
func (f *EthFrame) EtherType() uint16 { return f.etherType }

// IsIPv4 reports whether the payload is IPv4.
func (f *EthFrame) IsIPv4() bool { return f.etherType == core.EtherTypeIPv4 }

// Frame returns the whole frame view.
func (f *EthFrame) Frame() netbuf.View { return f.v }

// DataOffset returns the payload offset within the frame.
func (f *EthFrame) DataOffset() int { return f.dataOff }

// DataLen returns the payload length in bytes.
func (f *EthFrame) DataLen() int { return f.v.Len() - f.dataOff }

// Data returns the payload view.
func (f *EthFrame) Data() netbuf.View { return window(f.v, f.dataOff, f.DataLen()) }
