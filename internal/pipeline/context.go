package pipeline

import (
	"firestige.xyz/upflow/internal/core"
	"firestige.xyz/upflow/internal/decode"
)

// Context carries per-packet dissection state down the descent. The
// decoder fields are set by the processor before the matching hook
// fires and cleared again when the layer's subtree finishes, so a
// hook only ever sees decoders for the layers above it.
type Context struct {
	Eth       *decode.EthFrame
	IPv4      *decode.IPv4Packet
	UDP       *decode.UDPPacket
	TCP       *decode.TCPPacket
	SCTP      *decode.SCTPPacket
	SCTPChunk *decode.SCTPGenericChunk
	SCTPData  *decode.SCTPDataChunk
	GTPv1U    *decode.GTPv1UPacket

	// PostProcessIPv4 gates the OnPostIPv4 hook for the current IPv4
	// subtree. Hooks clear it to take an IPv4 packet out of the
	// post-processing path.
	PostProcessIPv4 bool

	// UserData is caller-opaque and the only state shared with the
	// fresh context of a tunnel-inner descent.
	UserData *core.UserData
}

// NewContext returns a context with post-processing enabled.
func NewContext(ud *core.UserData) *Context {
	return &Context{PostProcessIPv4: true, UserData: ud}
}

// inner derives the context for a tunnel-encapsulated packet. Only
// the user data crosses the tunnel boundary.
func (c *Context) inner() *Context { return NewContext(c.UserData) }
