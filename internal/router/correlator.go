package router

import (
	"log/slog"

	"firestige.xyz/upflow/internal/core"
	"firestige.xyz/upflow/internal/metrics"
	"firestige.xyz/upflow/internal/s1ap"
)

// SetupKey identifies one pending bearer setup: the UE association on
// the S1 interface plus the bearer within it.
type SetupKey struct {
	MMEUES1APID uint32
	ENBUES1APID uint32
	ERABID      uint8
}

// setupData is the half of a bearer learned from the request: the
// EPC-side tunnel endpoint and the UE address from the NAS payload.
type setupData struct {
	tunnel core.GTPv1UTunnelInfo
	ueAddr core.IPv4Address
}

// Correlator pairs InitialContextSetup requests with their responses
// and promotes completed pairs into the UE map.
type Correlator struct {
	setups map[SetupKey]setupData
	uemap  *UEMap
	log    *slog.Logger

	// BeforeUEMapUpsert, when set, runs right before a completed
	// correlation lands in the UE map. Returning false drops the
	// upsert; the pending entry is consumed either way.
	BeforeUEMapUpsert func(ue core.IPv4Address, tunnel *core.GTPv1UTunnelInfo) bool
}

// NewCorrelator returns a correlator feeding the given UE map.
func NewCorrelator(uemap *UEMap, log *slog.Logger) *Correlator {
	return &Correlator{
		setups: make(map[SetupKey]setupData),
		uemap:  uemap,
		log:    log,
	}
}

// PendingLen returns the number of setups awaiting a response.
func (c *Correlator) PendingLen() int { return len(c.setups) }

// HandleRequest records the EPC-side endpoint and UE address of every
// E-RAB carried by an InitialContextSetupRequest. A bearer without a
// NAS-derived UE address cannot be routed and is skipped.
func (c *Correlator) HandleRequest(req *s1ap.InitialContextSetupRequest) {
	for _, erab := range req.ERABs {
		if !erab.HasUEAddress {
			c.log.Debug("bearer setup without UE address",
				"mme_ue_s1ap_id", req.MMEUES1APID,
				"erab_id", erab.ERABID)
			continue
		}
		key := SetupKey{
			MMEUES1APID: req.MMEUES1APID,
			ENBUES1APID: req.ENBUES1APID,
			ERABID:      erab.ERABID,
		}
		c.setups[key] = setupData{
			tunnel: core.GTPv1UTunnelInfo{
				EPC: core.NewGTPv1UEndPoint(erab.TransportAddr, erab.TEID),
			},
			ueAddr: erab.UEAddress,
		}
		c.log.Debug("bearer setup pending",
			"mme_ue_s1ap_id", req.MMEUES1APID,
			"enb_ue_s1ap_id", req.ENBUES1APID,
			"erab_id", erab.ERABID,
			"ue_addr", erab.UEAddress,
			"epc_teid", uint32(erab.TEID))
	}
	metrics.SetupTableSize.Set(float64(len(c.setups)))
}

// HandleResponse completes the pending setups named by an
// InitialContextSetupResponse with the eNB-side endpoints and moves
// them into the UE map. Responses with no pending request are counted
// and dropped.
func (c *Correlator) HandleResponse(res *s1ap.InitialContextSetupResponse) {
	for _, erab := range res.ERABs {
		key := SetupKey{
			MMEUES1APID: res.MMEUES1APID,
			ENBUES1APID: res.ENBUES1APID,
			ERABID:      erab.ERABID,
		}
		data, ok := c.setups[key]
		if !ok {
			metrics.OrphanResponsesTotal.Inc()
			c.log.Debug("setup response with no pending request",
				"mme_ue_s1ap_id", res.MMEUES1APID,
				"enb_ue_s1ap_id", res.ENBUES1APID,
				"erab_id", erab.ERABID)
			continue
		}
		delete(c.setups, key)

		data.tunnel.ENB = core.NewGTPv1UEndPoint(erab.TransportAddr, erab.TEID)
		if c.BeforeUEMapUpsert != nil && !c.BeforeUEMapUpsert(data.ueAddr, &data.tunnel) {
			continue
		}
		c.uemap.Upsert(data.ueAddr, data.tunnel)
		c.log.Info("subscriber attached",
			"ue_addr", data.ueAddr,
			"enb_addr", data.tunnel.ENB.Addr,
			"enb_teid", uint32(data.tunnel.ENB.TEID),
			"epc_addr", data.tunnel.EPC.Addr,
			"epc_teid", uint32(data.tunnel.EPC.TEID))
	}
	metrics.SetupTableSize.Set(float64(len(c.setups)))
}
