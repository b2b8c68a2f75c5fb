package cmd

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/upflow/internal/config"
	"firestige.xyz/upflow/internal/core"
	"firestige.xyz/upflow/internal/decode"
	"firestige.xyz/upflow/internal/netbuf"
	"firestige.xyz/upflow/internal/pcapio"
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
		0, 0, 0, 1,
		0, 5,
		0, 0,
		byte(ppid >> 24), byte(ppid >> 16), byte(ppid >> 8), byte(ppid),
	}
	value = append(value, payload...)
	n := 4 + len(value)
	chunk := []byte{0, 0x03, byte(n >> 8), byte(n)}
	chunk = append(chunk, value...)
	for len(chunk)%4 != 0 {
		chunk = append(chunk, 0)
	}

	b := []byte{
		0x8E, 0x4C, 0x8E, 0x4C,
		0, 0, 0, 1,
		0, 0, 0, 0,
	}
	return append(b, chunk...)
}

func s1apFrame(payload []byte) []byte {
	sctp := sctpDataPacket(0x12, payload)
	ip := ipv4Packet(core.ProtoSCTP,
		core.IPv4Address{10, 0, 0, 1}, core.IPv4Address{10, 0, 0, 2}, sctp)
	return ethFrame(ip)
}

// writeTrace writes the given Ethernet frames, in order, into an input
// capture at path.
func writeTrace(t *testing.T, path string, frames ...[]byte) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	w, err := pcapio.NewEthWriter(f)
	require.NoError(t, err)
	for _, frame := range frames {
		require.NoError(t, w.ConsumeEth(netbuf.ViewOf(frame), nil))
	}
}

func TestEngineReplaysIntoTunnel(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.pcap")
	out := filepath.Join(dir, "out.pcap")

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
	inner := ipv4Packet(core.ProtoUDP,
		core.IPv4Address{203, 0, 113, 9}, core.IPv4Address{192, 0, 2, 7},
		udpPacket(5060, 5060, []byte{0xDE, 0xAD}))
	writeTrace(t, in, s1apFrame(req), s1apFrame(res), ethFrame(inner))

	cfg := &config.Config{
		Pool:   config.PoolConfig{Buffers: 16, BufferSize: 4096},
		Router: config.RouterConfig{UDPChecksum: true},
		Output: config.OutputConfig{Mode: "pcap", Path: out},
	}
	eng, err := newEngine(cfg, testLogger())
	require.NoError(t, err)

	src, err := pcapio.NewEthSource(in, 1)
	require.NoError(t, err)
	defer src.Close()

	require.NoError(t, eng.Run(context.Background(), src))
	eng.Close()

	assert.Equal(t, 1, eng.rt.UEMap().Len())
	assert.Equal(t, 16, eng.pool.FreeCount())

	// The output capture holds exactly the encapsulated user packet.
	outSrc, err := pcapio.NewIPv4Source(out, 1)
	require.NoError(t, err)
	defer outSrc.Close()

	buf := netbuf.NewWritableView(4096)
	pkt, err := outSrc.GetPacket(buf)
	require.NoError(t, err)
	require.False(t, pkt.IsEmpty())

	outer, err := decode.DecodeIPv4Packet(pkt.View)
	require.NoError(t, err)
	assert.Equal(t, core.IPv4Address{10, 0, 0, 1}, outer.SrcAddr())
	assert.Equal(t, core.IPv4Address{10, 0, 0, 2}, outer.DstAddr())
	assert.Equal(t, core.ProtoUDP, outer.Protocol())

	udp, err := decode.DecodeUDPPacket(outer.Data())
	require.NoError(t, err)
	assert.Equal(t, core.PortGTPv1U, udp.DstPort())
	require.True(t, udp.IsGTPv1U())

	gtp, err := decode.DecodeGTPv1UPacket(udp.Data())
	require.NoError(t, err)
	assert.Equal(t, core.TEID(0x200), gtp.TEID())
	assert.Equal(t, inner, gtp.Data().Bytes())

	_, err = outSrc.GetPacket(buf)
	require.NoError(t, err)
	assert.False(t, outSrc.PacketAvailable())
}

func TestEngineDropsMalformedFrames(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.pcap")
	writeTrace(t, in, []byte{0x01, 0x02, 0x03}, ethFrame(ipv4Packet(core.ProtoUDP,
		core.IPv4Address{10, 0, 0, 1}, core.IPv4Address{10, 0, 0, 2},
		udpPacket(1000, 2000, nil))))

	cfg := &config.Config{
		Pool:   config.PoolConfig{Buffers: 4, BufferSize: 2048},
		Output: config.OutputConfig{Mode: "discard"},
	}
	eng, err := newEngine(cfg, testLogger())
	require.NoError(t, err)
	defer eng.Close()

	src, err := pcapio.NewEthSource(in, 1)
	require.NoError(t, err)
	defer src.Close()

	require.NoError(t, eng.Run(context.Background(), src))
	assert.Equal(t, 4, eng.pool.FreeCount())
}

func TestEngineStaticUEs(t *testing.T) {
	dir := t.TempDir()
	ueFile := filepath.Join(dir, "ues.yaml")
	require.NoError(t, os.WriteFile(ueFile, []byte(`
ues:
  - ue: 192.0.2.7
    enb_addr: 10.0.0.2
    enb_teid: 0x200
    epc_addr: 10.0.0.1
    epc_teid: 0x100
`), 0o644))

	cfg := &config.Config{
		Pool:   config.PoolConfig{Buffers: 4, BufferSize: 2048},
		Router: config.RouterConfig{UEFile: ueFile},
		Output: config.OutputConfig{Mode: "discard"},
	}
	eng, err := newEngine(cfg, testLogger())
	require.NoError(t, err)
	defer eng.Close()

	tun, ok := eng.rt.UEMap().Lookup(core.IPv4Address{192, 0, 2, 7})
	require.True(t, ok)
	assert.True(t, tun.Complete())
}
