// Package pcapio adapts PCAP files to the packet source and sink
// interfaces. Readers accept Ethernet and Linux cooked captures in
// all four magic variants; writers produce microsecond little-endian
// files.
package pcapio

import (
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/upflow/internal/core"
	"firestige.xyz/upflow/internal/metrics"
	"firestige.xyz/upflow/internal/netbuf"
)

const (
	// snapLen is the capture length written into file headers.
	snapLen = 262144

	cookedHeaderLen = 16
	ethHeaderLen    = 14
)

// fakeMAC stands in for link-layer addresses a cooked capture does
// not carry.
var fakeMAC = core.MACAddress{0xDE, 0xAD, 0xBE, 0xEF, 0xCA, 0xFE}

// reader walks a PCAP file, optionally repeating it.
type reader struct {
	path   string
	repeat int // passes over the file, 0 = endless
	pass   int
	f      *os.File
	r      *pcapgo.Reader
	done   bool
}

func openReader(path string, repeat int) (*reader, error) {
	r := &reader{path: path, repeat: repeat}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *reader) open() error {
	f, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", core.ErrIO, r.path, err)
	}
	pr, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("%w: read pcap header of %s: %v",
			core.ErrMalformedPacket, r.path, err)
	}
	switch pr.LinkType() {
	case layers.LinkTypeEthernet, layers.LinkTypeLinuxSLL:
	default:
		f.Close()
		return fmt.Errorf("%w: pcap link type %d", core.ErrUnsupportedProto, pr.LinkType())
	}
	r.f, r.r = f, pr
	return nil
}

func (r *reader) cooked() bool { return r.r.LinkType() == layers.LinkTypeLinuxSLL }

// next returns the raw bytes of the next record, rolling over to a
// new pass on EOF until the repeat count is spent.
func (r *reader) next() ([]byte, error) {
	for {
		data, _, err := r.r.ZeroCopyReadPacketData()
		if err == nil {
			return data, nil
		}
		if err != io.EOF {
			return nil, fmt.Errorf("%w: read %s: %v", core.ErrIO, r.path, err)
		}
		r.pass++
		if r.repeat != 0 && r.pass >= r.repeat {
			r.done = true
			return nil, io.EOF
		}
		if err := r.reopen(); err != nil {
			return nil, err
		}
	}
}

func (r *reader) reopen() error {
	r.f.Close()
	return r.open()
}

func (r *reader) Close() error {
	r.done = true
	return r.f.Close()
}

// cookedHeader is the parsed 16-byte Linux cooked pseudo header.
type cookedHeader struct {
	packetType uint16
	arphrd     uint16
	addrLen    uint16
	addr       [8]byte
	proto      uint16
}

func parseCookedHeader(data []byte) (cookedHeader, error) {
	var h cookedHeader
	if len(data) < cookedHeaderLen {
		return h, fmt.Errorf("%w: cooked record of %d bytes", core.ErrPacketTooShort, len(data))
	}
	h.packetType = uint16(data[0])<<8 | uint16(data[1])
	h.arphrd = uint16(data[2])<<8 | uint16(data[3])
	h.addrLen = uint16(data[4])<<8 | uint16(data[5])
	copy(h.addr[:], data[6:14])
	h.proto = uint16(data[14])<<8 | uint16(data[15])
	return h, nil
}

// srcMAC recovers the sender address when the cooked record carries
// an Ethernet-sized one.
func (h cookedHeader) srcMAC() core.MACAddress {
	if h.arphrd == 1 && h.addrLen == 6 {
		var mac core.MACAddress
		copy(mac[:], h.addr[:6])
		return mac
	}
	return fakeMAC
}

// EthSource yields Ethernet frames from a PCAP file. Linux cooked
// records are rewritten as synthetic Ethernet frames.
type EthSource struct {
	r    *reader
	name string
}

// NewEthSource opens path for repeat passes (0 = endless).
func NewEthSource(path string, repeat int) (*EthSource, error) {
	r, err := openReader(path, repeat)
	if err != nil {
		return nil, err
	}
	return &EthSource{r: r, name: "pcap-eth"}, nil
}

// PacketAvailable reports false once a read has hit the end of the
// last pass; until then it reports true.
func (s *EthSource) PacketAvailable() bool { return !s.r.done }

// GetPacket fills buf with the next frame.
func (s *EthSource) GetPacket(buf netbuf.WritableView) (netbuf.WritableView, error) {
	data, err := s.r.next()
	if err != nil {
		if err == io.EOF {
			return netbuf.WritableView{}, nil
		}
		return netbuf.WritableView{}, err
	}

	var out netbuf.WritableView
	if s.r.cooked() {
		out, err = cookedToEth(buf, data)
	} else {
		out, err = fillPacket(buf, data)
	}
	if err != nil {
		return netbuf.WritableView{}, err
	}
	metrics.SourcePacketsTotal.WithLabelValues(s.name).Inc()
	return out, nil
}

// Close releases the underlying file.
func (s *EthSource) Close() error { return s.r.Close() }

// IPv4Source yields the IPv4 packets of a PCAP file, skipping
// non-IPv4 records.
type IPv4Source struct {
	r    *reader
	name string
}

// NewIPv4Source opens path for repeat passes (0 = endless).
func NewIPv4Source(path string, repeat int) (*IPv4Source, error) {
	r, err := openReader(path, repeat)
	if err != nil {
		return nil, err
	}
	return &IPv4Source{r: r, name: "pcap-ipv4"}, nil
}

// PacketAvailable reports false once a read has hit the end of the
// last pass; until then it reports true.
func (s *IPv4Source) PacketAvailable() bool { return !s.r.done }

// GetPacket fills buf with the next IPv4 packet. Records of other
// protocols yield an empty view.
func (s *IPv4Source) GetPacket(buf netbuf.WritableView) (netbuf.WritableView, error) {
	data, err := s.r.next()
	if err != nil {
		if err == io.EOF {
			return netbuf.WritableView{}, nil
		}
		return netbuf.WritableView{}, err
	}

	var payload []byte
	if s.r.cooked() {
		h, err := parseCookedHeader(data)
		if err != nil {
			return netbuf.WritableView{}, err
		}
		if h.proto != core.EtherTypeIPv4 {
			return netbuf.WritableView{}, nil
		}
		payload = data[cookedHeaderLen:]
	} else {
		if len(data) < ethHeaderLen {
			return netbuf.WritableView{}, fmt.Errorf("%w: frame of %d bytes",
				core.ErrPacketTooShort, len(data))
		}
		if uint16(data[12])<<8|uint16(data[13]) != core.EtherTypeIPv4 {
			return netbuf.WritableView{}, nil
		}
		payload = data[ethHeaderLen:]
	}

	out, err := fillPacket(buf, payload)
	if err != nil {
		return netbuf.WritableView{}, err
	}
	metrics.SourcePacketsTotal.WithLabelValues(s.name).Inc()
	return out, nil
}

// Close releases the underlying file.
func (s *IPv4Source) Close() error { return s.r.Close() }

func fillPacket(buf netbuf.WritableView, data []byte) (netbuf.WritableView, error) {
	out, err := buf.Sub(0, len(data))
	if err != nil {
		return netbuf.WritableView{}, err
	}
	if err := out.CopyAt(0, data); err != nil {
		return netbuf.WritableView{}, err
	}
	return out, nil
}

// cookedToEth rewrites a cooked record as an Ethernet frame: fake
// destination, source from the cooked header when it is an Ethernet
// address, EtherType from the cooked protocol field.
func cookedToEth(buf netbuf.WritableView, data []byte) (netbuf.WritableView, error) {
	h, err := parseCookedHeader(data)
	if err != nil {
		return netbuf.WritableView{}, err
	}
	payload := data[cookedHeaderLen:]

	out, err := buf.Sub(0, ethHeaderLen+len(payload))
	if err != nil {
		return netbuf.WritableView{}, err
	}
	if err := out.PutMACAddress(0, fakeMAC); err != nil {
		return netbuf.WritableView{}, err
	}
	if err := out.PutMACAddress(6, h.srcMAC()); err != nil {
		return netbuf.WritableView{}, err
	}
	if err := out.PutUint16(12, h.proto); err != nil {
		return netbuf.WritableView{}, err
	}
	if err := out.CopyAt(ethHeaderLen, payload); err != nil {
		return netbuf.WritableView{}, err
	}
	return out, nil
}
