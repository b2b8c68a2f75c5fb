// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PacketsTotal counts packets observed per protocol layer.
	PacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upflow_packets_total",
			Help: "Total number of packets observed per layer",
		},
		[]string{"layer"},
	)

	// DecodeErrorsTotal counts packets dropped by a decode failure.
	DecodeErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upflow_decode_errors_total",
			Help: "Total number of packets dropped by decode failures",
		},
		[]string{"entry"},
	)

	// UEMapSize tracks the number of attached subscribers.
	UEMapSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "upflow_uemap_size",
			Help: "Number of subscribers currently in the UE map",
		},
	)

	// SetupTableSize tracks pending request/response correlations.
	SetupTableSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "upflow_setup_table_size",
			Help: "Number of setup requests awaiting a response",
		},
	)

	// UEMapUpsertsTotal counts completed correlations.
	UEMapUpsertsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "upflow_uemap_upserts_total",
			Help: "Total number of UE map insertions and overwrites",
		},
	)

	// OrphanResponsesTotal counts responses without a matching request.
	OrphanResponsesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "upflow_orphan_responses_total",
			Help: "Total number of setup responses with no pending request",
		},
	)

	// EncapPacketsTotal counts encapsulated packets by direction.
	EncapPacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upflow_encap_packets_total",
			Help: "Total number of packets encapsulated, by direction",
		},
		[]string{"direction"},
	)

	// EncapUnknownUETotal counts packets that matched no subscriber.
	EncapUnknownUETotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "upflow_encap_unknown_ue_total",
			Help: "Total number of packets addressed to no known UE",
		},
	)

	// EncapErrorsTotal counts packets dropped by composition failures.
	EncapErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "upflow_encap_errors_total",
			Help: "Total number of packets dropped by encapsulation failures",
		},
	)

	// PoolAcquireFailuresTotal counts buffer pool exhaustion events.
	PoolAcquireFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "upflow_pool_acquire_failures_total",
			Help: "Total number of buffer pool acquire failures",
		},
	)

	// SourcePacketsTotal counts packets delivered by packet sources.
	SourcePacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upflow_source_packets_total",
			Help: "Total number of packets delivered by packet sources",
		},
		[]string{"source"},
	)

	// SinkPacketsTotal counts packets handed to packet sinks.
	SinkPacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upflow_sink_packets_total",
			Help: "Total number of packets handed to packet sinks",
		},
		[]string{"sink"},
	)
)

// Direction labels for EncapPacketsTotal.
const (
	DirectionToENB = "to-enb"
	DirectionToEPC = "to-epc"
)
