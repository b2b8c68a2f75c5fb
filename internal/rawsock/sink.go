//go:build linux

package rawsock

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"firestige.xyz/upflow/internal/core"
	"firestige.xyz/upflow/internal/metrics"
	"firestige.xyz/upflow/internal/netbuf"
)

func htons(v uint16) uint16 { return v<<8 | v>>8 }

// EthSink injects Ethernet frames on an interface through an
// AF_PACKET socket.
type EthSink struct {
	fd   int
	addr unix.SockaddrLinklayer
	name string
}

// NewEthSink opens an injection socket bound to the interface.
func NewEthSink(ifname string) (*EthSink, error) {
	ifi, err := net.InterfaceByName(ifname)
	if err != nil {
		return nil, fmt.Errorf("%w: interface %s: %v", core.ErrConfigInvalid, ifname, err)
	}
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(unix.ETH_P_ALL)))
	if err != nil {
		return nil, fmt.Errorf("%w: open AF_PACKET socket: %v", core.ErrIO, err)
	}
	addr := unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ALL),
		Ifindex:  ifi.Index,
	}
	if err := unix.Bind(fd, &addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: bind to %s: %v", core.ErrIO, ifname, err)
	}
	return &EthSink{fd: fd, addr: addr, name: "rawsock-eth"}, nil
}

// ConsumeEth sends one frame. Empty views are skipped.
func (s *EthSink) ConsumeEth(frame netbuf.View, _ *core.UserData) error {
	if frame.IsEmpty() {
		return nil
	}
	if err := unix.Sendto(s.fd, frame.Bytes(), 0, &s.addr); err != nil {
		return fmt.Errorf("%w: send frame: %v", core.ErrIO, err)
	}
	metrics.SinkPacketsTotal.WithLabelValues(s.name).Inc()
	return nil
}

// Close releases the socket.
func (s *EthSink) Close() error { return unix.Close(s.fd) }

// IPv4Sink sends complete IPv4 packets through a raw socket. With
// IPPROTO_RAW the kernel takes the header as written.
type IPv4Sink struct {
	fd   int
	name string
}

// NewIPv4Sink opens the raw socket.
func NewIPv4Sink() (*IPv4Sink, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_RAW, unix.IPPROTO_RAW)
	if err != nil {
		return nil, fmt.Errorf("%w: open raw IP socket: %v", core.ErrIO, err)
	}
	return &IPv4Sink{fd: fd, name: "rawsock-ipv4"}, nil
}

// ConsumeIPv4 sends one packet toward its own destination address.
// Empty views are skipped.
func (s *IPv4Sink) ConsumeIPv4(pkt netbuf.View, _ *core.UserData) error {
	if pkt.IsEmpty() {
		return nil
	}
	dst, err := pkt.IPv4AddressAt(16)
	if err != nil {
		return err
	}
	sa := unix.SockaddrInet4{Addr: dst}
	if err := unix.Sendto(s.fd, pkt.Bytes(), 0, &sa); err != nil {
		return fmt.Errorf("%w: send packet to %s: %v", core.ErrIO, dst, err)
	}
	metrics.SinkPacketsTotal.WithLabelValues(s.name).Inc()
	return nil
}

// Close releases the socket.
func (s *IPv4Sink) Close() error { return unix.Close(s.fd) }
