package router

import (
	"log/slog"

	"firestige.xyz/upflow/internal/core"
	"firestige.xyz/upflow/internal/decode"
	"firestige.xyz/upflow/internal/encap"
	"firestige.xyz/upflow/internal/metrics"
	"firestige.xyz/upflow/internal/netbuf"
	"firestige.xyz/upflow/internal/packetio"
)

// GTPv1UEncapSink wraps application IPv4 packets in GTPv1-U tunnels
// keyed by the UE map and forwards the result to a downstream IPv4
// sink. The destination address is tried before the source on the
// assumption that more traffic flows toward subscribers than from
// them.
type GTPv1UEncapSink struct {
	uemap *UEMap
	next  packetio.IPv4Sink
	enc   *encap.GTPv1UIPv4Encap
	ident *encap.IdentificationSource
	log   *slog.Logger

	// OnUnknownUE, when set, decides what happens to packets matching
	// no subscriber: returning true forwards an empty view tagged as a
	// hole marker, returning false drops the packet. Unset behaves
	// like false.
	OnUnknownUE func(pkt netbuf.View) bool
}

// NewGTPv1UEncapSink returns a sink forwarding into next. The sink
// owns its composition buffer, sized for the largest encapsulated
// packet.
func NewGTPv1UEncapSink(uemap *UEMap, next packetio.IPv4Sink, log *slog.Logger) (*GTPv1UEncapSink, error) {
	buf := netbuf.NewWritableView(encap.IPv4HeaderBytes + encap.MaxPayloadLen)
	enc, err := encap.NewGTPv1UIPv4Encap(buf)
	if err != nil {
		return nil, err
	}
	return &GTPv1UEncapSink{
		uemap: uemap,
		next:  next,
		enc:   enc,
		ident: &encap.IdentificationSource{},
		log:   log,
	}, nil
}

// EnableUDPChecksum toggles outer UDP checksumming.
func (s *GTPv1UEncapSink) EnableUDPChecksum(on bool) { s.enc.EnableUDPChecksum(on) }

// ConsumeIPv4 encapsulates one packet and forwards it.
func (s *GTPv1UEncapSink) ConsumeIPv4(pkt netbuf.View, ud *core.UserData) error {
	p, err := decode.DecodeIPv4Packet(pkt)
	if err != nil {
		return err
	}
	if ud == nil {
		ud = &core.UserData{}
	}

	var src, dst core.IPv4Address
	var teid core.TEID
	var direction string
	if t, ok := s.uemap.Lookup(p.DstAddr()); ok {
		src, dst, teid = t.EPC.Addr, t.ENB.Addr, t.ENB.TEID
		ud.Int = core.UserDataToENB
		direction = metrics.DirectionToENB
	} else if t, ok := s.uemap.Lookup(p.SrcAddr()); ok {
		src, dst, teid = t.ENB.Addr, t.EPC.Addr, t.EPC.TEID
		ud.Int = core.UserDataToEPC
		direction = metrics.DirectionToEPC
	} else {
		metrics.EncapUnknownUETotal.Inc()
		if s.OnUnknownUE != nil && s.OnUnknownUE(pkt) {
			ud.Int = core.UserDataUnknownUE
			return s.next.ConsumeIPv4(netbuf.View{}, ud)
		}
		return nil
	}

	s.enc.SetSrcAddr(src)
	s.enc.SetDstAddr(dst)
	s.enc.SetTEID(teid)
	s.enc.SetIdentification(s.ident.Next())
	if err := s.enc.SetPayload(pkt); err != nil {
		metrics.EncapErrorsTotal.Inc()
		s.log.Warn("encapsulation failed", "err", err, "dst", p.DstAddr())
		return err
	}
	s.enc.ComputeAndSetChecksums()
	metrics.EncapPacketsTotal.WithLabelValues(direction).Inc()
	return s.next.ConsumeIPv4(s.enc.IPv4Packet(), ud)
}
