// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

// Package simmetrics exposes a simulation run's live counters and gauges
// as Prometheus metrics, for the same live-inspection use case
// runZeroInc-sockstats serves for real sockets: scrape a running
// simulation instead of only reading its CSV logs after the fact.
package simmetrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the per-host metric vectors for one simulation run. The
// "host" label distinguishes the two hosts in a run.
type Registry struct {
	reg *prometheus.Registry

	PacketsSent   *prometheus.CounterVec
	PacketsRcvd   *prometheus.CounterVec
	PacketsLost   *prometheus.CounterVec
	BytesSent     *prometheus.CounterVec
	EstRateBps    *prometheus.GaugeVec
	PacingRateBps *prometheus.GaugeVec
	QueueBytes    *prometheus.GaugeVec
	OneWayDelayUs *prometheus.GaugeVec
}

// New builds a Registry and registers all of its vectors with it.
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		PacketsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sceasim", Name: "packets_sent_total",
			Help: "Packets handed to the tx link.",
		}, []string{"host"}),
		PacketsRcvd: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sceasim", Name: "packets_rcvd_total",
			Help: "Packets delivered from the rx link.",
		}, []string{"host"}),
		PacketsLost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sceasim", Name: "packets_lost_total",
			Help: "Packets reported lost by the congestion controller.",
		}, []string{"host"}),
		BytesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sceasim", Name: "bytes_sent_total",
			Help: "Bytes handed to the tx link.",
		}, []string{"host"}),
		EstRateBps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sceasim", Name: "estimated_rate_bps",
			Help: "Congestion controller's current rate estimate.",
		}, []string{"host"}),
		PacingRateBps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sceasim", Name: "pacing_rate_bps",
			Help: "Pacer's current token-refill rate.",
		}, []string{"host"}),
		QueueBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sceasim", Name: "queue_bytes",
			Help: "Bytes queued in a host-side queue (rtx or app).",
		}, []string{"host", "queue"}),
		OneWayDelayUs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sceasim", Name: "one_way_delay_us",
			Help: "Most recently observed one-way packet delay.",
		}, []string{"host"}),
	}
	reg.MustRegister(r.PacketsSent, r.PacketsRcvd, r.PacketsLost, r.BytesSent,
		r.EstRateBps, r.PacingRateBps, r.QueueBytes, r.OneWayDelayUs)
	return r
}

// Handler returns the HTTP handler serving this registry's metrics in the
// Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
