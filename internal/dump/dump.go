// Package dump renders one-line summaries of decoded packets for
// console output.
package dump

import (
	"fmt"
	"strings"

	"firestige.xyz/upflow/internal/decode"
	"firestige.xyz/upflow/internal/pipeline"
	"firestige.xyz/upflow/internal/s1ap"
)

// EthFrame formats an Ethernet frame summary.
func EthFrame(f *decode.EthFrame) string {
	return fmt.Sprintf("eth %s > %s type 0x%04x len %d",
		f.SrcMAC(), f.DstMAC(), f.EtherType(), f.Frame().Len())
}

// IPv4Packet formats an IPv4 header summary.
func IPv4Packet(p *decode.IPv4Packet) string {
	var frag string
	if p.IsFragment() {
		frag = fmt.Sprintf(" frag@%d", p.FragmentOffset())
		if p.MoreFragments() {
			frag += "+"
		}
	}
	return fmt.Sprintf("ipv4 %s > %s proto %d ttl %d len %d%s",
		p.SrcAddr(), p.DstAddr(), p.Protocol(), p.TTL(), p.TotalLen(), frag)
}

// UDPPacket formats a UDP header summary.
func UDPPacket(p *decode.UDPPacket) string {
	return fmt.Sprintf("udp %d > %d len %d", p.SrcPort(), p.DstPort(), p.DataLen())
}

// TCPPacket formats a TCP header summary with flag letters.
func TCPPacket(p *decode.TCPPacket) string {
	var flags strings.Builder
	for _, f := range []struct {
		set  bool
		name byte
	}{
		{p.FlagSYN(), 'S'},
		{p.FlagACK(), 'A'},
		{p.FlagFIN(), 'F'},
		{p.FlagRST(), 'R'},
		{p.FlagPSH(), 'P'},
		{p.FlagURG(), 'U'},
	} {
		if f.set {
			flags.WriteByte(f.name)
		}
	}
	return fmt.Sprintf("tcp %d > %d seq %d [%s] len %d",
		p.SrcPort(), p.DstPort(), p.SeqNum(), flags.String(), p.DataLen())
}

// SCTPPacket formats an SCTP common header summary.
func SCTPPacket(p *decode.SCTPPacket) string {
	return fmt.Sprintf("sctp %d > %d vtag 0x%08x chunks %d",
		p.SrcPort(), p.DstPort(), p.VerificationTag(), len(p.Chunks()))
}

// SCTPDataChunk formats a DATA chunk summary.
func SCTPDataChunk(c *decode.SCTPDataChunk) string {
	return fmt.Sprintf("sctp-data tsn %d stream %d ppid %d len %d",
		c.TSN(), c.StreamID(), c.PayloadProtocolID(), c.DataLen())
}

// GTPv1UPacket formats a GTPv1-U header summary.
func GTPv1UPacket(p *decode.GTPv1UPacket) string {
	return fmt.Sprintf("gtpv1u teid 0x%08x msg 0x%02x len %d",
		uint32(p.TEID()), p.MessageType(), p.DataLen())
}

// S1APPDU formats an S1AP envelope summary.
func S1APPDU(p *s1ap.PDU) string {
	return fmt.Sprintf("s1ap %s procedure %d len %d",
		p.Type, p.ProcedureCode, p.Value.Len())
}

// Packet renders the deepest dissected layers of a pipeline context.
func Packet(ctx *pipeline.Context) string {
	var parts []string
	if ctx.Eth != nil {
		parts = append(parts, EthFrame(ctx.Eth))
	}
	if ctx.IPv4 != nil {
		parts = append(parts, IPv4Packet(ctx.IPv4))
	}
	switch {
	case ctx.GTPv1U != nil:
		parts = append(parts, GTPv1UPacket(ctx.GTPv1U))
	case ctx.SCTPData != nil:
		parts = append(parts, SCTPDataChunk(ctx.SCTPData))
	case ctx.SCTP != nil:
		parts = append(parts, SCTPPacket(ctx.SCTP))
	case ctx.UDP != nil:
		parts = append(parts, UDPPacket(ctx.UDP))
	case ctx.TCP != nil:
		parts = append(parts, TCPPacket(ctx.TCP))
	}
	if len(parts) == 0 {
		return "undecoded packet"
	}
	return strings.Join(parts, " | ")
}
