// Package pipeline walks the protocol stack over zero-copy views and
// feeds an Observer at each layer. The descent is single-threaded;
// one processor serves one packet stream.
package pipeline

import (
	"firestige.xyz/upflow/internal/core"
	"firestige.xyz/upflow/internal/decode"
	"firestige.xyz/upflow/internal/netbuf"
)

// Processor dissects packets and drives an Observer. It implements
// both the Ethernet and the IPv4 sink interfaces, so it can sit at
// the end of any packet source.
//
// A decode failure aborts the packet and surfaces to the caller; the
// processor carries no state across packets, so the caller's loop
// simply proceeds to the next one.
type Processor struct {
	obs Observer

	// FinalOnIPv4 moves the OnFinal hook from the Ethernet entry to
	// the IPv4 entry. Set before the first packet.
	FinalOnIPv4 bool
}

// NewProcessor creates a processor feeding obs.
func NewProcessor(obs Observer) *Processor { return &Processor{obs: obs} }

// ConsumeEth dissects an Ethernet frame.
func (p *Processor) ConsumeEth(frame netbuf.View, ud *core.UserData) error {
	ctx := NewContext(ud)
	cont, err := p.processEth(ctx, frame)
	if err != nil || !cont {
		return err
	}
	return p.obs.OnFinal(ctx)
}

// ConsumeIPv4 dissects a bare IPv4 packet.
func (p *Processor) ConsumeIPv4(pkt netbuf.View, ud *core.UserData) error {
	ctx := NewContext(ud)
	cont, err := p.processIPv4(ctx, pkt)
	if err != nil || !cont {
		return err
	}
	if p.FinalOnIPv4 {
		return p.obs.OnFinal(ctx)
	}
	return nil
}

func (p *Processor) processEth(ctx *Context, frame netbuf.View) (bool, error) {
	eth, err := decode.DecodeEthFrame(frame)
	if err != nil {
		return false, err
	}
	ctx.Eth = eth
	defer func() { ctx.Eth = nil }()

	cont, err := p.obs.OnEth(ctx)
	if err != nil || !cont {
		return cont, err
	}
	if eth.IsIPv4() {
		return p.processIPv4(ctx, eth.Data())
	}
	return p.obs.OnNonIPv4(ctx, eth.Data())
}

func (p *Processor) processIPv4(ctx *Context, v netbuf.View) (bool, error) {
	ip, err := decode.DecodeIPv4Packet(v)
	if err != nil {
		return false, err
	}
	ctx.IPv4 = ip
	defer func() { ctx.IPv4 = nil }()

	cont, err := p.obs.OnIPv4(ctx)
	if err != nil || !cont {
		return cont, err
	}

	// Fragments carry a partial transport header at best; their
	// payload stays opaque and only post-processing applies.
	if !ip.IsFragment() {
		switch ip.Protocol() {
		case core.ProtoUDP:
			cont, err = p.processUDP(ctx, ip.Data())
		case core.ProtoTCP:
			cont, err = p.processTCP(ctx)
		case core.ProtoSCTP:
			cont, err = p.processSCTP(ctx, ip.Data())
		}
		if err != nil || !cont {
			return cont, err
		}
	}

	if ctx.PostProcessIPv4 {
		return p.obs.OnPostIPv4(ctx)
	}
	return true, nil
}

func (p *Processor) processUDP(ctx *Context, v netbuf.View) (bool, error) {
	udp, err := decode.DecodeUDPPacket(v)
	if err != nil {
		return false, err
	}
	ctx.UDP = udp
	defer func() { ctx.UDP = nil }()

	cont, err := p.obs.OnUDP(ctx)
	if err != nil || !cont {
		return cont, err
	}
	if udp.IsGTPv1U() {
		return p.processGTPv1U(ctx, udp.Data())
	}
	return true, nil
}

func (p *Processor) processTCP(ctx *Context) (bool, error) {
	tcp, err := decode.DecodeTCPPacket(ctx.IPv4.Data())
	if err != nil {
		return false, err
	}
	ctx.TCP = tcp
	defer func() { ctx.TCP = nil }()

	return p.obs.OnTCP(ctx)
}

func (p *Processor) processGTPv1U(ctx *Context, v netbuf.View) (bool, error) {
	gtp, err := decode.DecodeGTPv1UPacket(v)
	if err != nil {
		return false, err
	}
	ctx.GTPv1U = gtp
	defer func() { ctx.GTPv1U = nil }()

	cont, err := p.obs.OnGTPv1U(ctx)
	if err != nil || !cont {
		return cont, err
	}
	if !gtp.IsIPv4PDU() || gtp.DataLen() == 0 {
		return true, nil
	}

	inner := gtp.Data()
	cont, err = p.obs.OnGTPv1UIPv4(ctx, inner)
	if err != nil || !cont {
		return cont, err
	}
	// The tunnel payload is a packet in its own right: re-enter the
	// IPv4 descent with a fresh context.
	return p.processIPv4(ctx.inner(), inner)
}

func (p *Processor) processSCTP(ctx *Context, v netbuf.View) (bool, error) {
	sctp, err := decode.DecodeSCTPPacket(v)
	if err != nil {
		return false, err
	}
	ctx.SCTP = sctp
	defer func() { ctx.SCTP = nil }()

	cont, err := p.obs.OnSCTP(ctx)
	if err != nil || !cont {
		return cont, err
	}

	chunks := sctp.Chunks()
	for i := range chunks {
		cont, err := p.processSCTPChunk(ctx, &chunks[i])
		if err != nil {
			return false, err
		}
		// A declined chunk skips its DATA dispatch only; the walk
		// proceeds to the next chunk.
		_ = cont
	}
	return true, nil
}

func (p *Processor) processSCTPChunk(ctx *Context, ch *decode.SCTPGenericChunk) (bool, error) {
	ctx.SCTPChunk = ch
	defer func() { ctx.SCTPChunk = nil }()

	cont, err := p.obs.OnSCTPChunk(ctx)
	if err != nil || !cont {
		return cont, err
	}
	if !ch.IsData() {
		return true, nil
	}

	dc, err := decode.DecodeSCTPDataChunk(ch.Data())
	if err != nil {
		return false, err
	}
	ctx.SCTPData = dc
	defer func() { ctx.SCTPData = nil }()

	return p.obs.OnSCTPData(ctx)
}
