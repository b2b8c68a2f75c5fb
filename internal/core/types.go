package core

import (
	"fmt"
	"net"
	"net/netip"
)

// MACAddress is a 48-bit Ethernet hardware address.
type MACAddress [6]byte

// ParseMACAddress parses the usual colon-separated textual form.
func ParseMACAddress(s string) (MACAddress, error) {
	hw, err := net.ParseMAC(s)
	if err != nil || len(hw) != 6 {
		return MACAddress{}, fmt.Errorf("%w: bad MAC address %q", ErrConfigInvalid, s)
	}
	var mac MACAddress
	copy(mac[:], hw)
	return mac, nil
}

func (m MACAddress) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

// IPv4Address is a 4-byte address in network byte order.
type IPv4Address [4]byte

// ParseIPv4Address parses dotted-decimal notation.
func ParseIPv4Address(s string) (IPv4Address, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil || !addr.Is4() {
		return IPv4Address{}, fmt.Errorf("%w: bad IPv4 address %q", ErrConfigInvalid, s)
	}
	return IPv4Address(addr.As4()), nil
}

// Addr converts to the stdlib value type, e.g. for logging.
func (a IPv4Address) Addr() netip.Addr { return netip.AddrFrom4(a) }

func (a IPv4Address) String() string { return a.Addr().String() }

// IsZero reports whether the address is 0.0.0.0.
func (a IPv4Address) IsZero() bool { return a == IPv4Address{} }

// Uint32 returns the address as a big-endian integer.
func (a IPv4Address) Uint32() uint32 {
	return uint32(a[0])<<24 | uint32(a[1])<<16 | uint32(a[2])<<8 | uint32(a[3])
}

// IPv4CIDR is an address plus prefix length.
type IPv4CIDR struct {
	Addr IPv4Address
	Bits uint8 // 0..32
}

// ParseIPv4CIDR parses "addr/bits" notation.
func ParseIPv4CIDR(s string) (IPv4CIDR, error) {
	p, err := netip.ParsePrefix(s)
	if err != nil || !p.Addr().Is4() {
		return IPv4CIDR{}, fmt.Errorf("%w: bad CIDR %q", ErrConfigInvalid, s)
	}
	return IPv4CIDR{Addr: IPv4Address(p.Addr().As4()), Bits: uint8(p.Bits())}, nil
}

// MatchAddress reports whether the top Bits bits of a equal those of
// the CIDR's address.
func (c IPv4CIDR) MatchAddress(a IPv4Address) bool {
	if c.Bits == 0 {
		return true
	}
	mask := ^uint32(0) << (32 - uint32(c.Bits))
	return a.Uint32()&mask == c.Addr.Uint32()&mask
}

func (c IPv4CIDR) String() string {
	return fmt.Sprintf("%s/%d", c.Addr, c.Bits)
}

// Port is a transport layer port number.
type Port uint16

// Well-known ports.
const (
	PortInvalid Port = 0
	PortGTPv1U  Port = 2152
	PortS1AP    Port = 36412
)

// IPv4Protocol identifies the payload protocol of an IPv4 packet.
type IPv4Protocol uint8

// Protocol numbers (see IANA assigned internet protocol numbers).
const (
	ProtoNone IPv4Protocol = 0
	ProtoICMP IPv4Protocol = 1
	ProtoIGMP IPv4Protocol = 2
	ProtoTCP  IPv4Protocol = 6
	ProtoUDP  IPv4Protocol = 17
	ProtoSCTP IPv4Protocol = 132
)

// EtherType values of interest.
const (
	EtherTypeIPv4   uint16 = 0x0800
	EtherTypeARP    uint16 = 0x0806
	EtherTypeRARP   uint16 = 0x8035
	EtherTypeIPv6   uint16 = 0x86DD
	EtherTypeVLAN   uint16 = 0x8100
	EtherTypeQinQ   uint16 = 0x88A8
)

// TEID is a GTP tunnel endpoint identifier. Zero is the sentinel for
// "not assigned".
type TEID uint32

// GTPv1UEndPoint identifies one side of a GTPv1-U tunnel.
type GTPv1UEndPoint struct {
	Addr IPv4Address
	Port Port
	TEID TEID
}

// NewGTPv1UEndPoint returns an endpoint on the standard GTPv1-U port.
func NewGTPv1UEndPoint(addr IPv4Address, teid TEID) GTPv1UEndPoint {
	return GTPv1UEndPoint{Addr: addr, Port: PortGTPv1U, TEID: teid}
}

func (e GTPv1UEndPoint) String() string {
	return fmt.Sprintf("%s:%d/teid=0x%x", e.Addr, e.Port, uint32(e.TEID))
}

// GTPv1UTunnelInfo holds both endpoints of a subscriber tunnel.
type GTPv1UTunnelInfo struct {
	ENB GTPv1UEndPoint
	EPC GTPv1UEndPoint
}

// Complete reports whether both endpoints carry an address and a TEID.
func (t GTPv1UTunnelInfo) Complete() bool {
	return !t.ENB.Addr.IsZero() && t.ENB.TEID != 0 &&
		!t.EPC.Addr.IsZero() && t.EPC.TEID != 0
}

// UserData travels with a packet through sinks and pipeline hooks.
// The meaning of Int is assigned by whoever feeds the packet; Ptr is
// fully caller-opaque.
type UserData struct {
	Int int
	Ptr any
}

// Int tags assigned by the GTP encapsulating sink.
const (
	UserDataToEPC     = 0 // uplink, traffic from a known UE
	UserDataToENB     = 1 // downlink, traffic to a known UE
	UserDataUnknownUE = 3 // hole marker for an unknown UE
)
