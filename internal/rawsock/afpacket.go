//go:build linux

// Package rawsock provides Linux packet sources and sinks: an
// AF_PACKET mmap capture source, an AF_PACKET injection sink, and a
// raw IP sink.
package rawsock

import (
	"fmt"
	"os"

	"github.com/google/gopacket/afpacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"golang.org/x/net/bpf"

	"firestige.xyz/upflow/internal/core"
	"firestige.xyz/upflow/internal/metrics"
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

// AFPacketSource captures Ethernet frames through a TPacket v3 mmap
// ring.
type AFPacketSource struct {
	handle *afpacket.TPacket
	closed bool
	name   string
}

// NewAFPacketSource opens the capture socket and attaches the BPF
// filter, if any.
func NewAFPacketSource(cfg CaptureConfig) (*AFPacketSource, error) {
	frameSize, blockSize, numBlocks, err := ringGeometry(
		cfg.BufferSizeMB, cfg.SnapLen, os.Getpagesize())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrConfigInvalid, err)
	}

	tp, err := afpacket.NewTPacket(
		afpacket.OptInterface(cfg.Interface),
		afpacket.OptFrameSize(frameSize),
		afpacket.OptBlockSize(blockSize),
		afpacket.OptNumBlocks(numBlocks),
		afpacket.OptPollTimeout(cfg.TimeoutMs),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: open AF_PACKET on %s: %v", core.ErrIO, cfg.Interface, err)
	}

	if cfg.FanoutID > 0 {
		if err := tp.SetFanout(afpacket.FanoutHashWithDefrag, cfg.FanoutID); err != nil {
			tp.Close()
			return nil, fmt.Errorf("%w: set fanout: %v", core.ErrIO, err)
		}
	}
	if cfg.BPFFilter != "" {
		prog, err := compileBPF(cfg.BPFFilter, frameSize)
		if err != nil {
			tp.Close()
			return nil, err
		}
		if err := tp.SetBPF(prog); err != nil {
			tp.Close()
			return nil, fmt.Errorf("%w: attach BPF: %v", core.ErrIO, err)
		}
	}
	return &AFPacketSource{handle: tp, name: "afpacket"}, nil
}

// compileBPF turns a pcap filter expression into the raw instruction
// form SO_ATTACH_FILTER wants.
func compileBPF(filter string, snapLen int) ([]bpf.RawInstruction, error) {
	insns, err := pcap.CompileBPFFilter(layers.LinkTypeEthernet, snapLen, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: compile BPF %q: %v", core.ErrConfigInvalid, filter, err)
	}
	prog := make([]bpf.RawInstruction, len(insns))
	for i, ins := range insns {
		prog[i] = bpf.RawInstruction{Op: ins.Code, Jt: ins.Jt, Jf: ins.Jf, K: ins.K}
	}
	return prog, nil
}

// PacketAvailable reports whether the source is still open.
func (s *AFPacketSource) PacketAvailable() bool { return !s.closed }

// GetPacket fills buf with the next captured frame. A poll timeout
// yields an empty view.
func (s *AFPacketSource) GetPacket(buf netbuf.WritableView) (netbuf.WritableView, error) {
	data, _, err := s.handle.ZeroCopyReadPacketData()
	if err != nil {
		if err == afpacket.ErrTimeout {
			return netbuf.WritableView{}, nil
		}
		return netbuf.WritableView{}, fmt.Errorf("%w: read AF_PACKET: %v", core.ErrIO, err)
	}
	out, err := buf.Sub(0, len(data))
	if err != nil {
		return netbuf.WritableView{}, err
	}
	if err := out.CopyAt(0, data); err != nil {
		return netbuf.WritableView{}, err
	}
	metrics.SourcePacketsTotal.WithLabelValues(s.name).Inc()
	return out, nil
}

// Close releases the mmap ring and socket.
func (s *AFPacketSource) Close() error {
	s.closed = true
	s.handle.Close()
	return nil
}
