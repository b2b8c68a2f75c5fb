package pipeline

import "firestige.xyz/upflow/internal/netbuf"

// Observer is the set of observation points invoked during the
// descent. Each hook returns a continue signal: false stops the
// descent below the hook's layer and suppresses the layer's
// post-processing, without being an error. Errors abort the whole
// packet and surface to the processor's caller.
type Observer interface {
	// OnEth fires after the Ethernet header is decoded.
	OnEth(ctx *Context) (bool, error)

	// OnNonIPv4 fires for Ethernet payloads that are not IPv4.
	OnNonIPv4(ctx *Context, payload netbuf.View) (bool, error)

	// OnIPv4 fires after the IPv4 header is decoded, outer and
	// tunnel-inner alike.
	OnIPv4(ctx *Context) (bool, error)

	// OnUDP, OnTCP and OnSCTP fire after the respective transport
	// header is decoded.
	OnUDP(ctx *Context) (bool, error)
	OnTCP(ctx *Context) (bool, error)
	OnSCTP(ctx *Context) (bool, error)

	// OnSCTPChunk fires per chunk. Returning false skips the chunk's
	// DATA dispatch but the walk proceeds to the next chunk.
	OnSCTPChunk(ctx *Context) (bool, error)

	// OnSCTPData fires for DATA chunks.
	OnSCTPData(ctx *Context) (bool, error)

	// OnGTPv1U fires after the GTP header is decoded. OnGTPv1UIPv4
	// fires for T-PDU messages just before the inner IPv4 descent.
	OnGTPv1U(ctx *Context) (bool, error)
	OnGTPv1UIPv4(ctx *Context, inner netbuf.View) (bool, error)

	// OnPostIPv4 fires after an IPv4 subtree completed with
	// continue=true and ctx.PostProcessIPv4 was left set.
	OnPostIPv4(ctx *Context) (bool, error)

	// OnFinal fires once per packet after the whole descent
	// completed with continue=true.
	OnFinal(ctx *Context) error
}

// BaseObserver implements Observer with hooks that always continue.
// Embed it and override the points of interest.
type BaseObserver struct{}

func (BaseObserver) OnEth(*Context) (bool, error)                       { return true, nil }
func (BaseObserver) OnNonIPv4(*Context, netbuf.View) (bool, error)      { return true, nil }
func (BaseObserver) OnIPv4(*Context) (bool, error)                      { return true, nil }
func (BaseObserver) OnUDP(*Context) (bool, error)                       { return true, nil }
func (BaseObserver) OnTCP(*Context) (bool, error)                       { return true, nil }
func (BaseObserver) OnSCTP(*Context) (bool, error)                      { return true, nil }
func (BaseObserver) OnSCTPChunk(*Context) (bool, error)                 { return true, nil }
func (BaseObserver) OnSCTPData(*Context) (bool, error)                  { return true, nil }
func (BaseObserver) OnGTPv1U(*Context) (bool, error)                    { return true, nil }
func (BaseObserver) OnGTPv1UIPv4(*Context, netbuf.View) (bool, error)   { return true, nil }
func (BaseObserver) OnPostIPv4(*Context) (bool, error)                  { return true, nil }
func (BaseObserver) OnFinal(*Context) error                             { return nil }
