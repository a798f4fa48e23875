// Package stats exposes this node's operational metrics via
// prometheus/client_golang: ring backpressure drops, send-job failure
// counts, and reconnect counts. This is separate from any external
// event-log sink — these are this process's own counters and gauges.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package stats

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Stats bundles every metric the fabric's runtime components touch. A
// single instance is constructed per process and threaded through
// connmgr/sendworker/recvworker; callers increment directly, never
// through a registry-lookup-by-name indirection.
type Stats struct {
	QueueDrops *prometheus.CounterVec // labels: transport
	SendFailures *prometheus.CounterVec // labels: transport
	RecvDrops prometheus.Counter
	Reconnects prometheus.Counter
	RingReinits prometheus.Counter
	DiscoveryRounds prometheus.Counter
}

// New registers every metric against reg, namespaced "netcomm_fabric".
// Callers typically pass prometheus.NewRegistry() in tests and
// prometheus.DefaultRegisterer in production.
func New(reg prometheus.Registerer) *Stats {
	s := &Stats{
		QueueDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netcomm_fabric",
			Name: "send_queue_drops_total",
			Help: "Send jobs dropped due to a full per-transport queue.",
		}, []string{"transport"}),
		SendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netcomm_fabric",
			Name: "send_failures_total",
			Help: "Per-transport send attempts that failed (transient or fatal).",
		}, []string{"transport"}),
		RecvDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netcomm_fabric",
			Name: "recv_drops_total",
			Help: "Inbound records dropped due to validation failure or oversized payload.",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netcomm_fabric",
			Name: "reconnects_total",
			Help: "TCP sessions re-established by the connection manager's monitor loop.",
		}),
		RingReinits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netcomm_fabric",
			Name: "ring_reinits_total",
			Help: "Shared-memory ring reinitializations (crash recovery or corruption).",
		}),
		DiscoveryRounds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netcomm_fabric",
			Name: "discovery_broadcasts_total",
			Help: "Multicast discovery broadcasts sent.",
		}),
	}
	reg.MustRegister(s.QueueDrops, s.SendFailures, s.RecvDrops, s.Reconnects, s.RingReinits, s.DiscoveryRounds)
	return s
}
