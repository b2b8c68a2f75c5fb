// Package packetio defines the interfaces between packet sources,
// sinks, and the processing core.
package packetio

import (
	"firestige.xyz/upflow/internal/core"
	"firestige.xyz/upflow/internal/netbuf"
)

// Source produces packets into caller-provided buffers.
type Source interface {
	// PacketAvailable reports whether a call to GetPacket may yield a
	// packet without blocking indefinitely.
	PacketAvailable() bool

	// GetPacket fills buf with the next packet and returns a view
	// aliasing buf's storage, possibly at a different offset and
	// length. An empty view means the packet was filtered out and the
	// caller should try again.
	GetPacket(buf netbuf.WritableView) (netbuf.WritableView, error)
}

// EthSink consumes Ethernet frames.
type EthSink interface {
	ConsumeEth(frame netbuf.View, ud *core.UserData) error
}

// IPv4Sink consumes IPv4 packets. An empty view is a valid signal
// (for example the hole marker emitted for an unknown UE).
type IPv4Sink interface {
	ConsumeIPv4(pkt netbuf.View, ud *core.UserData) error
}

// EthSinkFunc adapts a function to the EthSink interface.
type EthSinkFunc func(frame netbuf.View, ud *core.UserData) error

func (f EthSinkFunc) ConsumeEth(frame netbuf.View, ud *core.UserData) error {
	return f(frame, ud)
}

// IPv4SinkFunc adapts a function to the IPv4Sink interface.
type IPv4SinkFunc func(pkt netbuf.View, ud *core.UserData) error

func (f IPv4SinkFunc) ConsumeIPv4(pkt netbuf.View, ud *core.UserData) error {
	return f(pkt, ud)
}

// DiscardSink drops everything fed to it.
type DiscardSink struct{}

func (DiscardSink) ConsumeEth(netbuf.View, *core.UserData) error  { return nil }
func (DiscardSink) ConsumeIPv4(netbuf.View, *core.UserData) error { return nil }
