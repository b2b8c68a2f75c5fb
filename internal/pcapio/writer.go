package pcapio

import (
	"fmt"
	"io"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/upflow/internal/core"
	"firestige.xyz/upflow/internal/metrics"
	"firestige.xyz/upflow/internal/netbuf"
)

// EthWriter writes Ethernet frames to a PCAP stream. IPv4 packets may
// be fed too; they are wrapped in a synthetic Ethernet frame with
// configurable addresses.
type EthWriter struct {
	w       *pcapgo.Writer
	now     func() time.Time
	scratch []byte
	name    string

	// SrcMAC and DstMAC fill the synthetic frame around IPv4 packets.
	SrcMAC core.MACAddress
	DstMAC core.MACAddress
}

// NewEthWriter writes the file header and returns a sink.
func NewEthWriter(w io.Writer) (*EthWriter, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(snapLen, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("%w: write pcap header: %v", core.ErrIO, err)
	}
	return &EthWriter{w: pw, now: time.Now, name: "pcap-eth"}, nil
}

// ConsumeEth appends one frame. Empty views are skipped.
func (w *EthWriter) ConsumeEth(frame netbuf.View, _ *core.UserData) error {
	if frame.IsEmpty() {
		return nil
	}
	return w.write(frame.Bytes())
}

// ConsumeIPv4 appends one packet inside a synthetic Ethernet frame.
// Empty views are skipped.
func (w *EthWriter) ConsumeIPv4(pkt netbuf.View, _ *core.UserData) error {
	if pkt.IsEmpty() {
		return nil
	}
	w.scratch = w.scratch[:0]
	w.scratch = append(w.scratch, w.DstMAC[:]...)
	w.scratch = append(w.scratch, w.SrcMAC[:]...)
	w.scratch = append(w.scratch, byte(core.EtherTypeIPv4>>8), byte(core.EtherTypeIPv4&0xff))
	w.scratch = append(w.scratch, pkt.Bytes()...)
	return w.write(w.scratch)
}

func (w *EthWriter) write(data []byte) error {
	ci := gopacket.CaptureInfo{
		Timestamp:     w.now(),
		CaptureLength: len(data),
		Length:        len(data),
	}
	if err := w.w.WritePacket(ci, data); err != nil {
		return fmt.Errorf("%w: write pcap record: %v", core.ErrIO, err)
	}
	metrics.SinkPacketsTotal.WithLabelValues(w.name).Inc()
	return nil
}

// IPv4Writer writes IPv4 packets to a Linux cooked capture stream.
type IPv4Writer struct {
	w       *pcapgo.Writer
	now     func() time.Time
	scratch []byte
	name    string
}

// NewIPv4Writer writes the file header and returns a sink.
func NewIPv4Writer(w io.Writer) (*IPv4Writer, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(snapLen, layers.LinkTypeLinuxSLL); err != nil {
		return nil, fmt.Errorf("%w: write pcap header: %v", core.ErrIO, err)
	}
	return &IPv4Writer{w: pw, now: time.Now, name: "pcap-ipv4"}, nil
}

// ConsumeIPv4 appends one packet under a cooked pseudo header:
// outbound, ARPHRD Ethernet, the fake sender address. Empty views are
// skipped.
func (w *IPv4Writer) ConsumeIPv4(pkt netbuf.View, _ *core.UserData) error {
	if pkt.IsEmpty() {
		return nil
	}
	w.scratch = w.scratch[:0]
	w.scratch = append(w.scratch,
		0x00, 0x04, // packet type: sent by us
		0x00, 0x01, // ARPHRD_ETHER
		0x00, 0x06, // address length
	)
	w.scratch = append(w.scratch, fakeMAC[:]...)
	w.scratch = append(w.scratch, 0x00, 0x00) // address padding
	w.scratch = append(w.scratch, byte(core.EtherTypeIPv4>>8), byte(core.EtherTypeIPv4&0xff))
	w.scratch = append(w.scratch, pkt.Bytes()...)

	ci := gopacket.CaptureInfo{
		Timestamp:     w.now(),
		CaptureLength: len(w.scratch),
		Length:        len(w.scratch),
	}
	if err := w.w.WritePacket(ci, w.scratch); err != nil {
		return fmt.Errorf("%w: write pcap record: %v", core.ErrIO, err)
	}
	metrics.SinkPacketsTotal.WithLabelValues(w.name).Inc()
	return nil
}
