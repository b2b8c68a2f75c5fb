//go:build !linux

// Package rawsock provides Linux packet sources and sinks. On other
// platforms the constructors fail at runtime.
package rawsock

import (
	"fmt"
	"runtime"

	"firestige.xyz/upflow/internal/core"
	"firestige.xyz/upflow/internal/netbuf"
)

// CaptureConfig parameterizes an AF_PACKET capture source.
type CaptureConfig struct {
	Interface    string
	SnapLen      int
	BufferSizeMB int
	TimeoutMs    int
	FanoutID     uint16
	BPFFilter    string
}

var errUnsupported = fmt.Errorf("%w: raw sockets are not supported on %s",
	core.ErrIO, runtime.GOOS)

type AFPacketSource struct{}

func NewAFPacketSource(CaptureConfig) (*AFPacketSource, error) { return nil, errUnsupported }

func (*AFPacketSource) PacketAvailable() bool { return false }
func (*AFPacketSource) GetPacket(netbuf.WritableView) (netbuf.WritableView, error) {
	return netbuf.WritableView{}, errUnsupported
}
func (*AFPacketSource) Close() error { return nil }

type EthSink struct{}

func NewEthSink(string) (*EthSink, error) { return nil, errUnsupported }

func (*EthSink) ConsumeEth(netbuf.View, *core.UserData) error { return errUnsupported }
func (*EthSink) Close() error                                 { return nil }

type IPv4Sink struct{}

func NewIPv4Sink() (*IPv4Sink, error) { return nil, errUnsupported }

func (*IPv4Sink) ConsumeIPv4(netbuf.View, *core.UserData) error { return errUnsupported }
func (*IPv4Sink) Close() error                                  { return nil }
