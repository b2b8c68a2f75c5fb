package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"firestige.xyz/upflow/internal/config"
	"firestige.xyz/upflow/internal/core"
	"firestige.xyz/upflow/internal/metrics"
	"firestige.xyz/upflow/internal/netbuf"
	"firestige.xyz/upflow/internal/packetio"
	"firestige.xyz/upflow/internal/pcapio"
	"firestige.xyz/upflow/internal/pipeline"
	"firestige.xyz/upflow/internal/rawsock"
	"firestige.xyz/upflow/internal/router"
)

// engine assembles the capture-to-output path: pool, router, and the
// encapsulating sink feeding the configured output.
type engine struct {
	cfg     *config.Config
	logger  *slog.Logger
	pool    *netbuf.Pool
	rt      *router.Router
	encap   *router.GTPv1UEncapSink
	closers []io.Closer
}

func newEngine(cfg *config.Config, logger *slog.Logger) (*engine, error) {
	e := &engine{
		cfg:    cfg,
		logger: logger,
		pool:   netbuf.NewPool(cfg.Pool.Buffers, cfg.Pool.BufferSize),
		rt:     router.NewRouter(logger),
	}
	e.rt.SetFinalOnIPv4(cfg.Router.FinalOnIPv4)
	e.rt.Matcher().SetRules(cfg.Router.Rules)

	if cfg.Router.UEFile != "" {
		ues, err := config.LoadStaticUEs(cfg.Router.UEFile)
		if err != nil {
			return nil, err
		}
		for ue, tun := range ues {
			e.rt.UEMap().Upsert(ue, tun)
		}
		logger.Info("loaded static subscribers", "file", cfg.Router.UEFile, "count", len(ues))
	}

	sink, err := e.buildSink()
	if err != nil {
		e.Close()
		return nil, err
	}
	e.encap, err = router.NewGTPv1UEncapSink(e.rt.UEMap(), sink, logger)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.encap.EnableUDPChecksum(cfg.Router.UDPChecksum)

	// Post-processed user-plane packets enter the tunnel when a rule
	// selects them or when either address belongs to a subscriber.
	e.rt.PostIPv4 = func(ctx *pipeline.Context) error {
		p := ctx.IPv4
		if !e.rt.MatchRules(p) && !e.rt.IsOfKnownUE(p) {
			return nil
		}
		return e.encap.ConsumeIPv4(p.Packet(), ctx.UserData)
	}
	return e, nil
}

func (e *engine) buildSink() (packetio.IPv4Sink, error) {
	switch e.cfg.Output.Mode {
	case "pcap":
		f, err := os.Create(e.cfg.Output.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: create %s: %v", core.ErrIO, e.cfg.Output.Path, err)
		}
		e.closers = append(e.closers, f)
		w, err := pcapio.NewIPv4Writer(f)
		if err != nil {
			return nil, err
		}
		return w, nil
	case "raw":
		s, err := rawsock.NewIPv4Sink()
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, s)
		return s, nil
	default:
		return packetio.DiscardSink{}, nil
	}
}

// ApplyConfig refreshes the hot-reloadable settings.
func (e *engine) ApplyConfig(cfg *config.Config) {
	e.rt.Matcher().SetRules(cfg.Router.Rules)
	e.encap.EnableUDPChecksum(cfg.Router.UDPChecksum)
	e.logger.Info("router rules replaced", "count", len(cfg.Router.Rules))
}

// Run drains the source until it is exhausted or ctx is canceled.
// Decode failures drop the packet and continue.
func (e *engine) Run(ctx context.Context, src packetio.Source) error {
	var n uint64
	for src.PacketAvailable() {
		if err := ctx.Err(); err != nil {
			return err
		}
		buf, err := e.pool.Acquire()
		if err != nil {
			metrics.PoolAcquireFailuresTotal.Inc()
			return err
		}
		pkt, err := src.GetPacket(buf)
		if err != nil {
			buf.Release()
			return err
		}
		if pkt.IsEmpty() {
			pkt.Release()
			buf.Release()
			continue
		}
		var ud core.UserData
		err = e.rt.ConsumeEth(pkt.View, &ud)
		pkt.Release()
		buf.Release()
		if err != nil {
			if !errors.Is(err, core.ErrMalformedPacket) && !errors.Is(err, core.ErrPacketTooShort) {
				return err
			}
			metrics.DecodeErrorsTotal.WithLabelValues("eth").Inc()
			e.logger.Debug("dropping undecodable packet", "error", err)
			continue
		}
		n++
	}
	e.logger.Info("source exhausted", "packets", n)
	return nil
}

// Close releases the output resources in reverse order.
func (e *engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil {
			e.logger.Warn("close failed", "error", err)
		}
	}
	e.closers = nil
}
