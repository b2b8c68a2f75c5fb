package router

import (
	"errors"
	"log/slog"

	"firestige.xyz/upflow/internal/core"
	"firestige.xyz/upflow/internal/decode"
	"firestige.xyz/upflow/internal/metrics"
	"firestige.xyz/upflow/internal/netbuf"
	"firestige.xyz/upflow/internal/pipeline"
	"firestige.xyz/upflow/internal/s1ap"
)

// Router drives the dissection pipeline over captured traffic,
// feeds InitialContextSetup exchanges to the correlator and exposes
// the resulting subscriber map.
type Router struct {
	pipeline.BaseObserver

	proc       *pipeline.Processor
	uemap      *UEMap
	correlator *Correlator
	matcher    *RuleMatcher
	log        *slog.Logger

	// OnS1AP, when set, observes every decoded S1AP PDU after the
	// correlator has seen it.
	OnS1AP func(ctx *pipeline.Context, pdu *s1ap.PDU) error

	// PostIPv4, when set, receives IPv4 packets that survived
	// post-processing, i.e. everything except SCTP traffic (which
	// carries the S1 signalling).
	PostIPv4 func(ctx *pipeline.Context) error

	// Final, when set, runs once per packet after the descent.
	Final func(ctx *pipeline.Context) error
}

// NewRouter returns a router with an empty UE map and rule list.
func NewRouter(log *slog.Logger) *Router {
	r := &Router{
		uemap:   NewUEMap(),
		matcher: NewRuleMatcher(),
		log:     log,
	}
	r.correlator = NewCorrelator(r.uemap, log)
	r.proc = pipeline.NewProcessor(r)
	return r
}

// UEMap returns the subscriber map.
func (r *Router) UEMap() *UEMap { return r.uemap }

// Correlator returns the bearer-setup correlator.
func (r *Router) Correlator() *Correlator { return r.correlator }

// Matcher returns the rule matcher.
func (r *Router) Matcher() *RuleMatcher { return r.matcher }

// SetFinalOnIPv4 makes ConsumeIPv4 fire the final hook too.
func (r *Router) SetFinalOnIPv4(on bool) { r.proc.FinalOnIPv4 = on }

// ConsumeEth runs one Ethernet frame through the pipeline.
func (r *Router) ConsumeEth(frame netbuf.View, ud *core.UserData) error {
	return r.proc.ConsumeEth(frame, ud)
}

// ConsumeIPv4 runs one bare IPv4 packet through the pipeline.
func (r *Router) ConsumeIPv4(pkt netbuf.View, ud *core.UserData) error {
	return r.proc.ConsumeIPv4(pkt, ud)
}

// IsFromKnownUE reports whether the packet's source is an attached
// subscriber.
func (r *Router) IsFromKnownUE(p *decode.IPv4Packet) bool {
	return r.uemap.Contains(p.SrcAddr())
}

// IsToKnownUE reports whether the packet's destination is an attached
// subscriber.
func (r *Router) IsToKnownUE(p *decode.IPv4Packet) bool {
	return r.uemap.Contains(p.DstAddr())
}

// IsOfKnownUE reports whether either end of the packet is an attached
// subscriber.
func (r *Router) IsOfKnownUE(p *decode.IPv4Packet) bool {
	return r.IsFromKnownUE(p) || r.IsToKnownUE(p)
}

// MatchRules runs the packet against the ordered rule list.
func (r *Router) MatchRules(p *decode.IPv4Packet) bool {
	return r.matcher.Match(p)
}

func (r *Router) OnEth(*pipeline.Context) (bool, error) {
	metrics.PacketsTotal.WithLabelValues("eth").Inc()
	return true, nil
}

func (r *Router) OnIPv4(*pipeline.Context) (bool, error) {
	metrics.PacketsTotal.WithLabelValues("ipv4").Inc()
	return true, nil
}

func (r *Router) OnUDP(*pipeline.Context) (bool, error) {
	metrics.PacketsTotal.WithLabelValues("udp").Inc()
	return true, nil
}

func (r *Router) OnTCP(*pipeline.Context) (bool, error) {
	metrics.PacketsTotal.WithLabelValues("tcp").Inc()
	return true, nil
}

func (r *Router) OnGTPv1U(*pipeline.Context) (bool, error) {
	metrics.PacketsTotal.WithLabelValues("gtpv1u").Inc()
	return true, nil
}

// OnSCTP takes the whole SCTP packet out of the user-traffic path: S1
// signalling between eNB and EPC must never look like subscriber
// traffic.
func (r *Router) OnSCTP(ctx *pipeline.Context) (bool, error) {
	metrics.PacketsTotal.WithLabelValues("sctp").Inc()
	ctx.PostProcessIPv4 = false
	return true, nil
}

// OnSCTPData dissects S1AP DATA chunks and feeds InitialContextSetup
// exchanges to the correlator.
func (r *Router) OnSCTPData(ctx *pipeline.Context) (bool, error) {
	chunk := ctx.SCTPData
	if chunk.IsFragment() || !chunk.IsS1AP() {
		return true, nil
	}

	pdu, err := s1ap.DecodePDU(chunk.Data())
	if err != nil {
		if errors.Is(err, core.ErrUnsupportedProto) {
			r.log.Debug("undissectable S1AP PDU", "err", err)
			return true, nil
		}
		return false, err
	}
	metrics.PacketsTotal.WithLabelValues("s1ap").Inc()

	switch {
	case pdu.IsInitialContextSetupRequest():
		req, err := s1ap.DecodeInitialContextSetupRequest(pdu.Value)
		if err != nil {
			if errors.Is(err, core.ErrUnsupportedProto) {
				r.log.Debug("unsupported InitialContextSetupRequest", "err", err)
				break
			}
			return false, err
		}
		r.correlator.HandleRequest(req)
	case pdu.IsInitialContextSetupResponse():
		res, err := s1ap.DecodeInitialContextSetupResponse(pdu.Value)
		if err != nil {
			if errors.Is(err, core.ErrUnsupportedProto) {
				r.log.Debug("unsupported InitialContextSetupResponse", "err", err)
				break
			}
			return false, err
		}
		r.correlator.HandleResponse(res)
	}

	if r.OnS1AP != nil {
		if err := r.OnS1AP(ctx, pdu); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (r *Router) OnPostIPv4(ctx *pipeline.Context) (bool, error) {
	if r.PostIPv4 != nil {
		if err := r.PostIPv4(ctx); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (r *Router) OnFinal(ctx *pipeline.Context) error {
	if r.Final != nil {
		return r.Final(ctx)
	}
	return nil
}
