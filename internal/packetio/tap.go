package packetio

import (
	"firestige.xyz/upflow/internal/core"
	"firestige.xyz/upflow/internal/netbuf"
)

// EthTap is a pass-through Ethernet sink retaining the last consumed
// frame and its user data.
type EthTap struct {
	next EthSink

	Last     netbuf.View
	LastUD   core.UserData
	Consumed int
}

// NewEthTap creates a tap forwarding to next; next may be nil.
func NewEthTap(next EthSink) *EthTap { return &EthTap{next: next} }

func (t *EthTap) ConsumeEth(frame netbuf.View, ud *core.UserData) error {
	t.Last = frame
	if ud != nil {
		t.LastUD = *ud
	}
	t.Consumed++
	if t.next != nil {
		return t.next.ConsumeEth(frame, ud)
	}
	return nil
}

// IPv4Tap is a pass-through IPv4 sink retaining the last consumed
// packet and its user data.
type IPv4Tap struct {
	next IPv4Sink

	Last     netbuf.View
	LastUD   core.UserData
	Consumed int
}

// NewIPv4Tap creates a tap forwarding to next; next may be nil.
func NewIPv4Tap(next IPv4Sink) *IPv4Tap { return &IPv4Tap{next: next} }

func (t *IPv4Tap) ConsumeIPv4(pkt netbuf.View, ud *core.UserData) error {
	t.Last = pkt
	if ud != nil {
		t.LastUD = *ud
	}
	t.Consumed++
	if t.next != nil {
		return t.next.ConsumeIPv4(pkt, ud)
	}
	return nil
}
