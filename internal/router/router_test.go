package router

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/upflow/internal/core"
	"firestige.xyz/upflow/internal/decode"
	"firestige.xyz/upflow/internal/netbuf"
	"firestige.xyz/upflow/internal/packetio"
	"firestige.xyz/upflow/internal/pipeline"
	"firestige.xyz/upflow/internal/s1ap/s1aptest"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func ethFrame(payload []byte) []byte {
	b := []byte{
		0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
		0x00, 0x11, 0x22, 0x33, 0x44, 0x55,
		0x08, 0x00,
	}
	return append(b, payload...)
}

func ipv4Packet(proto core.IPv4Protocol, src, dst core.IPv4Address, payload []byte) []byte {
	total := 20 + len(payload)
	b := make([]byte, total)
	b[0] = 0x45
	b[2] = byte(total >> 8)
	b[3] = byte(total)
	b[8] = 64
	b[9] = byte(proto)
	copy(b[12:16], src[:])
	copy(b[16:20], dst[:])
	copy(b[20:], payload)
	return b
}

func udpPacket(srcPort, dstPort uint16, payload []byte) []byte {
	total := 8 + len(payload)
	b := []byte{
		byte(srcPort >> 8), byte(srcPort),
		byte(dstPort >> 8), byte(dstPort),
		byte(total >> 8), byte(total),
		0, 0,
	}
	return append(b, payload...)
}

func sctpDataPacket(ppid uint32, payload []byte) []byte {
	value := []byte{
		0, 0, 0, 1, // TSN
		0, 5, // stream id
		0, 0, // stream seq
		byte(ppid >> 24), byte(ppid >> 16), byte(ppid >> 8), byte(ppid),
	}
	value = append(value, payload...)
	n := 4 + len(value)
	chunk := []byte{0, 0x03, byte(n >> 8), byte(n)} // DATA, B|E
	chunk = append(chunk, value...)
	for len(chunk)%4 != 0 {
		chunk = append(chunk, 0)
	}

	b := []byte{
		0x8E, 0x4C, 0x8E, 0x4C, // ports 36428
		0, 0, 0, 1, // verification tag
		0, 0, 0, 0, // checksum
	}
	return append(b, chunk...)
}

// s1apFrame wraps an S1AP payload in SCTP/IPv4/Ethernet the way it
// arrives off the wire.
func s1apFrame(payload []byte) []byte {
	sctp := sctpDataPacket(0x12, payload)
	ip := ipv4Packet(core.ProtoSCTP,
		core.IPv4Address{10, 0, 0, 1}, core.IPv4Address{10, 0, 0, 2}, sctp)
	return ethFrame(ip)
}

func feedSetup(t *testing.T, r *Router) {
	t.Helper()
	req := s1aptest.InitialContextSetupRequest(7, 9, s1aptest.RequestERAB{
		ERABID: 5,
		Addr:   core.IPv4Address{10, 0, 0, 1},
		TEID:   0x100,
		NAS:    s1aptest.AttachAcceptNAS(core.IPv4Address{192, 0, 2, 7}),
	})
	res := s1aptest.InitialContextSetupResponse(7, 9, s1aptest.ResponseERAB{
		ERABID: 5,
		Addr:   core.IPv4Address{10, 0, 0, 2},
		TEID:   0x200,
	})
	require.NoError(t, r.ConsumeEth(netbuf.ViewOf(s1apFrame(req)), nil))
	require.NoError(t, r.ConsumeEth(netbuf.ViewOf(s1apFrame(res)), nil))
}

func TestRouterCorrelatesSetupExchange(t *testing.T) {
	r := NewRouter(testLogger())
	feedSetup(t, r)

	tun, ok := r.UEMap().Lookup(core.IPv4Address{192, 0, 2, 7})
	require.True(t, ok)
	assert.Equal(t, core.NewGTPv1UEndPoint(core.IPv4Address{10, 0, 0, 2}, 0x200), tun.ENB)
	assert.Equal(t, core.NewGTPv1UEndPoint(core.IPv4Address{10, 0, 0, 1}, 0x100), tun.EPC)
	assert.True(t, tun.Complete())
	assert.Equal(t, 0, r.Correlator().PendingLen())
}

func TestRouterOrphanResponse(t *testing.T) {
	r := NewRouter(testLogger())
	res := s1aptest.InitialContextSetupResponse(7, 9, s1aptest.ResponseERAB{
		ERABID: 5,
		Addr:   core.IPv4Address{10, 0, 0, 2},
		TEID:   0x200,
	})
	require.NoError(t, r.ConsumeEth(netbuf.ViewOf(s1apFrame(res)), nil))
	assert.Equal(t, 0, r.UEMap().Len())
}

func TestRouterRequestWithoutNAS(t *testing.T) {
	r := NewRouter(testLogger())
	req := s1aptest.InitialContextSetupRequest(7, 9, s1aptest.RequestERAB{
		ERABID: 5,
		Addr:   core.IPv4Address{10, 0, 0, 1},
		TEID:   0x100,
	})
	require.NoError(t, r.ConsumeEth(netbuf.ViewOf(s1apFrame(req)), nil))
	assert.Equal(t, 0, r.Correlator().PendingLen())
}

func TestRouterUpsertVeto(t *testing.T) {
	r := NewRouter(testLogger())
	r.Correlator().BeforeUEMapUpsert = func(core.IPv4Address, *core.GTPv1UTunnelInfo) bool {
		return false
	}
	feedSetup(t, r)
	assert.Equal(t, 0, r.UEMap().Len())
	// The pending entry is consumed even when the upsert is vetoed.
	assert.Equal(t, 0, r.Correlator().PendingLen())
}

func TestRouterSCTPDisablesPostProcessing(t *testing.T) {
	r := NewRouter(testLogger())
	post := 0
	r.PostIPv4 = func(*pipeline.Context) error { post++; return nil }

	req := s1aptest.InitialContextSetupRequest(1, 2, s1aptest.RequestERAB{
		ERABID: 1,
		Addr:   core.IPv4Address{10, 0, 0, 1},
		TEID:   0x55,
		NAS:    s1aptest.AttachAcceptNAS(core.IPv4Address{192, 0, 2, 7}),
	})
	require.NoError(t, r.ConsumeEth(netbuf.ViewOf(s1apFrame(req)), nil))
	assert.Equal(t, 0, post)

	udp := ipv4Packet(core.ProtoUDP,
		core.IPv4Address{1, 1, 1, 1}, core.IPv4Address{2, 2, 2, 2},
		udpPacket(1, 2, nil))
	require.NoError(t, r.ConsumeEth(netbuf.ViewOf(ethFrame(udp)), nil))
	assert.Equal(t, 1, post)
}

func TestRouterKnownUEQueries(t *testing.T) {
	r := NewRouter(testLogger())
	feedSetup(t, r)

	ue := core.IPv4Address{192, 0, 2, 7}
	other := core.IPv4Address{8, 8, 8, 8}

	fromUE, err := decode.DecodeIPv4Packet(netbuf.ViewOf(
		ipv4Packet(core.ProtoUDP, ue, other, udpPacket(1, 2, nil))))
	require.NoError(t, err)
	toUE, err := decode.DecodeIPv4Packet(netbuf.ViewOf(
		ipv4Packet(core.ProtoUDP, other, ue, udpPacket(1, 2, nil))))
	require.NoError(t, err)
	neither, err := decode.DecodeIPv4Packet(netbuf.ViewOf(
		ipv4Packet(core.ProtoUDP, other, other, udpPacket(1, 2, nil))))
	require.NoError(t, err)

	assert.True(t, r.IsFromKnownUE(fromUE))
	assert.False(t, r.IsToKnownUE(fromUE))
	assert.True(t, r.IsToKnownUE(toUE))
	assert.True(t, r.IsOfKnownUE(fromUE))
	assert.True(t, r.IsOfKnownUE(toUE))
	assert.False(t, r.IsOfKnownUE(neither))
}

func TestEncapSinkToENB(t *testing.T) {
	r := NewRouter(testLogger())
	feedSetup(t, r)

	tap := packetio.NewIPv4Tap(nil)
	sink, err := NewGTPv1UEncapSink(r.UEMap(), tap, testLogger())
	require.NoError(t, err)

	inner := ipv4Packet(core.ProtoUDP,
		core.IPv4Address{8, 8, 8, 8}, core.IPv4Address{192, 0, 2, 7},
		udpPacket(53, 3333, []byte("answer")))
	require.NoError(t, sink.ConsumeIPv4(netbuf.ViewOf(inner), nil))

	require.Equal(t, 1, tap.Consumed)
	assert.Equal(t, core.UserDataToENB, tap.LastUD.Int)

	out, err := decode.DecodeIPv4Packet(tap.Last)
	require.NoError(t, err)
	assert.Equal(t, core.IPv4Address{10, 0, 0, 1}, out.SrcAddr())
	assert.Equal(t, core.IPv4Address{10, 0, 0, 2}, out.DstAddr())
	assert.Equal(t, core.ProtoUDP, out.Protocol())

	udp, err := decode.DecodeUDPPacket(out.Data())
	require.NoError(t, err)
	assert.Equal(t, core.PortGTPv1U, udp.DstPort())

	gtp, err := decode.DecodeGTPv1UPacket(udp.Data())
	require.NoError(t, err)
	assert.Equal(t, core.TEID(0x200), gtp.TEID())
	assert.Equal(t, inner, gtp.Data().Bytes())
}

func TestEncapSinkToEPC(t *testing.T) {
	r := NewRouter(testLogger())
	feedSetup(t, r)

	tap := packetio.NewIPv4Tap(nil)
	sink, err := NewGTPv1UEncapSink(r.UEMap(), tap, testLogger())
	require.NoError(t, err)

	inner := ipv4Packet(core.ProtoUDP,
		core.IPv4Address{192, 0, 2, 7}, core.IPv4Address{8, 8, 8, 8},
		udpPacket(3333, 53, []byte("query")))
	require.NoError(t, sink.ConsumeIPv4(netbuf.ViewOf(inner), nil))

	require.Equal(t, 1, tap.Consumed)
	assert.Equal(t, core.UserDataToEPC, tap.LastUD.Int)

	out, err := decode.DecodeIPv4Packet(tap.Last)
	require.NoError(t, err)
	assert.Equal(t, core.IPv4Address{10, 0, 0, 2}, out.SrcAddr())
	assert.Equal(t, core.IPv4Address{10, 0, 0, 1}, out.DstAddr())

	udp, err := decode.DecodeUDPPacket(out.Data())
	require.NoError(t, err)
	gtp, err := decode.DecodeGTPv1UPacket(udp.Data())
	require.NoError(t, err)
	assert.Equal(t, core.TEID(0x100), gtp.TEID())
}

func TestEncapSinkUnknownUE(t *testing.T) {
	uemap := NewUEMap()
	tap := packetio.NewIPv4Tap(nil)
	sink, err := NewGTPv1UEncapSink(uemap, tap, testLogger())
	require.NoError(t, err)

	inner := ipv4Packet(core.ProtoUDP,
		core.IPv4Address{1, 2, 3, 4}, core.IPv4Address{5, 6, 7, 8},
		udpPacket(1, 2, nil))

	// No handler: silent drop.
	require.NoError(t, sink.ConsumeIPv4(netbuf.ViewOf(inner), nil))
	assert.Equal(t, 0, tap.Consumed)

	// Handler asks for a hole marker.
	seen := 0
	sink.OnUnknownUE = func(pkt netbuf.View) bool {
		seen++
		assert.Equal(t, inner, pkt.Bytes())
		return true
	}
	require.NoError(t, sink.ConsumeIPv4(netbuf.ViewOf(inner), nil))
	assert.Equal(t, 1, seen)
	require.Equal(t, 1, tap.Consumed)
	assert.True(t, tap.Last.IsEmpty())
	assert.Equal(t, core.UserDataUnknownUE, tap.LastUD.Int)

	// Handler declines: silent drop again.
	sink.OnUnknownUE = func(netbuf.View) bool { return false }
	require.NoError(t, sink.ConsumeIPv4(netbuf.ViewOf(inner), nil))
	assert.Equal(t, 1, tap.Consumed)
}

func TestParseRule(t *testing.T) {
	r, err := ParseRule("17-10.0.0.0/8-2152")
	require.NoError(t, err)
	assert.Equal(t, core.ProtoUDP, r.Protocol)
	assert.Equal(t, uint8(8), r.DstCIDR.Bits)
	assert.Equal(t, core.IPv4Address{10, 0, 0, 0}, r.DstCIDR.Addr)
	assert.Equal(t, core.Port(2152), r.DstPort)
	assert.Equal(t, "17-10.0.0.0/8-2152", r.String())

	r, err = ParseRule(" *-192.168.0.0/16-* ")
	require.NoError(t, err)
	assert.Equal(t, core.ProtoNone, r.Protocol)
	assert.Equal(t, core.PortInvalid, r.DstPort)
	assert.Equal(t, "*-192.168.0.0/16-*", r.String())

	r, err = ParseRule("6-0.0.0.0/0-0")
	require.NoError(t, err)
	assert.Equal(t, core.PortInvalid, r.DstPort)

	for _, bad := range []string{
		"",
		"17-10.0.0.0/8",
		"256-10.0.0.0/8-1",
		"17-10.0.0.0/33-1",
		"17-10.0.0.0/8-65536",
		"17-10.0.0.0/8-x",
		"udp-10.0.0.0/8-1",
	} {
		_, err := ParseRule(bad)
		assert.ErrorIs(t, err, core.ErrInvalidRule, "input %q", bad)
	}
}

func mustDecodeIPv4(t *testing.T, b []byte) *decode.IPv4Packet {
	t.Helper()
	p, err := decode.DecodeIPv4Packet(netbuf.ViewOf(b))
	require.NoError(t, err)
	return p
}

func TestRuleMatch(t *testing.T) {
	r, err := ParseRule("17-10.0.0.0/8-2152")
	require.NoError(t, err)

	match := mustDecodeIPv4(t, ipv4Packet(core.ProtoUDP,
		core.IPv4Address{1, 1, 1, 1}, core.IPv4Address{10, 1, 2, 3},
		udpPacket(9999, 2152, nil)))
	assert.True(t, r.Match(match))

	wrongNet := mustDecodeIPv4(t, ipv4Packet(core.ProtoUDP,
		core.IPv4Address{1, 1, 1, 1}, core.IPv4Address{11, 0, 0, 1},
		udpPacket(9999, 2152, nil)))
	assert.False(t, r.Match(wrongNet))

	wrongPort := mustDecodeIPv4(t, ipv4Packet(core.ProtoUDP,
		core.IPv4Address{1, 1, 1, 1}, core.IPv4Address{10, 1, 2, 3},
		udpPacket(9999, 53, nil)))
	assert.False(t, r.Match(wrongPort))

	wrongProto := mustDecodeIPv4(t, ipv4Packet(core.ProtoICMP,
		core.IPv4Address{1, 1, 1, 1}, core.IPv4Address{10, 1, 2, 3},
		udpPacket(9999, 2152, nil)))
	assert.False(t, r.Match(wrongProto))

	// A port rule never matches a non-transport protocol.
	icmpRule, err := ParseRule("*-10.0.0.0/8-2152")
	require.NoError(t, err)
	assert.False(t, icmpRule.Match(wrongProto))

	anyRule, err := ParseRule("*-0.0.0.0/0-*")
	require.NoError(t, err)
	assert.True(t, anyRule.Match(match))
	assert.True(t, anyRule.Match(wrongProto))
}

func TestRuleMatcherOrderAndClamping(t *testing.T) {
	m := NewRuleMatcher()
	a, _ := ParseRule("6-1.0.0.0/8-*")
	b, _ := ParseRule("17-2.0.0.0/8-*")
	c, _ := ParseRule("132-3.0.0.0/8-*")

	m.AddRule(a, 0)
	m.AddRule(b, 100) // clamped to end
	m.AddRule(c, -5)  // clamped to front
	require.Equal(t, []MatchingRule{c, a, b}, m.Rules())

	m.DelRule(1)
	require.Equal(t, []MatchingRule{c, b}, m.Rules())
	m.DelRule(10) // out of range, no-op
	require.Equal(t, []MatchingRule{c, b}, m.Rules())

	pkt := mustDecodeIPv4(t, ipv4Packet(core.ProtoUDP,
		core.IPv4Address{1, 1, 1, 1}, core.IPv4Address{2, 3, 4, 5},
		udpPacket(1, 2, nil)))
	assert.True(t, m.Match(pkt))
	m.SetRules(nil)
	assert.False(t, m.Match(pkt))
}
