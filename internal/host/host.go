// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

// Package host implements the generic packet pump shared by every host
// role (sender/receiver, RTP or Salsify wire format): the fixed tick
// order, send-loop priority and receive-loop demux are common; the RTP
// and Salsify variants in this package layer control-packet generation
// on top via optional hook functions, a composition substitute for
// original_source's virtual Host::OnPktSent/OnPktRcvd overrides.
//
// Grounded on original_source/simulator/host.{h,cc}.
package host

import (
	"github.com/sceasim/sceasim/internal/cc"
	"github.com/sceasim/sceasim/internal/link"
	"github.com/sceasim/sceasim/internal/pacer"
	"github.com/sceasim/sceasim/internal/packet"
	"github.com/sceasim/sceasim/internal/simmetrics"
	"github.com/sceasim/sceasim/internal/units"
)

// Application is the capability a host's payload-generating layer (the
// video sender or receiver) exposes to the generic pump.
type Application interface {
	PktToSendSize() units.Bytes
	PktToSend() *packet.Packet
	QueueSizeBytes() units.Bytes
	Tick(now units.Timestamp)
	Reset()
	DeliverPkt(p *packet.Packet)
}

// RtxManager is the capability both retransmit-manager variants
// (ACK-based and NACK-based) expose identically.
type RtxManager interface {
	Tick(now units.Timestamp)
	OnPktSent(p *packet.Packet)
	OnPktRcvd(p *packet.Packet)
	PktToSendSize() units.Bytes
	PktToSend() *packet.Packet
	QueueSizeBytes() units.Bytes
	Reset()
}

// targetBitrateSetter is implemented by video.Sender; checked with a type
// assertion in place of original_source's dynamic_cast<VideoSender*>.
type targetBitrateSetter interface {
	SetTargetBitrate(rate units.Rate)
}

// paddingSource is implemented by video.Sender when padding is enabled; it
// is the lowest send-loop priority, filling the pacer budget only once the
// control, rtx and frame queues are all empty.
type paddingSource interface {
	PaddingPktToSendSize() units.Bytes
	PaddingPktToSend() *packet.Packet
}

// Host is the generic packet pump: one congestion controller, one pacer,
// an optional retransmit manager, and an application layer, wired to a
// pair of directional links.
type Host struct {
	ID int

	txLink *link.Link
	rxLink *link.Link
	pacer  *pacer.Pacer
	cc     cc.Controller
	rtx    RtxManager // nil if this host role doesn't retransmit
	app    Application

	controlQueue []*packet.Packet // host-variant-populated control packets (RTCP/ACK/NACK)
	seq          packet.Seq
	lastPktSent  units.Timestamp

	// OnPktSent/OnPktRcvd are invoked after the corresponding built-in
	// processing, letting a host variant (RTP, Salsify) observe every
	// packet without subclassing.
	OnPktSent func(p *packet.Packet)
	OnPktRcvd func(p *packet.Packet)

	// PacingRateMultiplier scales the controller's estimated rate before
	// it's handed to the pacer; zero means the default of 1.0. The
	// Salsify host variant sets this to 1.5 to absorb its own burstiness.
	PacingRateMultiplier float64

	metrics      *simmetrics.Registry
	metricsLabel string
}

// WithMetrics attaches a live metrics registry to the host, labeling every
// series it updates with label ("sender"/"receiver"). A host with no
// registry attached skips all metrics bookkeeping.
func (h *Host) WithMetrics(reg *simmetrics.Registry, label string) *Host {
	h.metrics = reg
	h.metricsLabel = label
	return h
}

// New returns a Host wiring the given links, pacer, controller,
// (optional) retransmit manager and application.
func New(id int, txLink, rxLink *link.Link, pc *pacer.Pacer, controller cc.Controller, rtx RtxManager, app Application) *Host {
	if txLink == nil || rxLink == nil || pc == nil || controller == nil || app == nil {
		panic("host: New requires non-nil links, pacer, controller and application")
	}
	return &Host{
		ID:     id,
		txLink: txLink,
		rxLink: rxLink,
		pacer:  pc,
		cc:     controller,
		rtx:    rtx,
		app:    app,
	}
}

// App returns the host's application layer, for variant wrappers that
// need to inspect its concrete type (e.g. to skip receiver-only behavior
// on a sender-role host).
func (h *Host) App() Application { return h.app }

// controllerUnwrapper is implemented by decorators (e.g.
// simmetrics.ObservingController) that wrap a cc.Controller without
// extending its method set; unwrapController peels through any number
// of them so capability assertions against a concrete strategy (GCC's
// video.FrameGradientSink, its REMB-reporting method) still succeed.
type controllerUnwrapper interface {
	Unwrap() cc.Controller
}

func unwrapController(c cc.Controller) cc.Controller {
	for {
		u, ok := c.(controllerUnwrapper)
		if !ok {
			return c
		}
		c = u.Unwrap()
	}
}

// PacketsSent returns the host's monotonic send sequence counter, the
// number of data packets sent so far.
func (h *Host) PacketsSent() packet.Seq { return h.seq }

// Controller returns the host's congestion controller.
func (h *Host) Controller() cc.Controller { return h.cc }

// EnqueueControl pushes a host-variant-built control packet (RTCP report,
// ACK, NACK) ahead of the retransmit and application queues, mirroring
// original_source's Host::queue_ used by its subclasses.
func (h *Host) EnqueueControl(p *packet.Packet) {
	h.controlQueue = append(h.controlQueue, p)
}

// pktToSendSize returns the size of whatever packet pktToSend would
// return next, honoring the control > rtx > app priority.
func (h *Host) pktToSendSize() units.Bytes {
	if len(h.controlQueue) > 0 {
		return h.controlQueue[0].Size
	}
	if h.rtx != nil {
		if size := h.rtx.PktToSendSize(); size > 0 {
			return size
		}
	}
	if size := h.app.PktToSendSize(); size > 0 {
		return size
	}
	if ps, ok := h.app.(paddingSource); ok {
		return ps.PaddingPktToSendSize()
	}
	return 0
}

func (h *Host) pktToSend() *packet.Packet {
	if len(h.controlQueue) > 0 {
		p := h.controlQueue[0]
		h.controlQueue = h.controlQueue[1:]
		return p
	}
	if h.rtx != nil && h.rtx.PktToSendSize() > 0 {
		return h.rtx.PktToSend()
	}
	var p *packet.Packet
	if h.app.PktToSendSize() > 0 {
		p = h.app.PktToSend()
	} else if ps, ok := h.app.(paddingSource); ok {
		p = ps.PaddingPktToSend()
	}
	p.Seq = h.seq
	h.seq++
	return p
}

// Send drains everything the pacer currently allows onto the tx link.
func (h *Host) Send(now units.Timestamp) {
	for {
		size := h.pktToSendSize()
		if size <= 0 || !h.pacer.CanSend(size) {
			return
		}
		p := h.pktToSend()
		p.PrevPktSent = h.lastPktSent
		p.MarkSent(now)
		h.cc.OnPktSent(p)
		if h.rtx != nil {
			h.rtx.OnPktSent(p)
		}
		if h.OnPktSent != nil {
			h.OnPktSent(p)
		}
		h.txLink.Push(now, p)
		h.pacer.OnSent(size)
		h.lastPktSent = now
		if h.metrics != nil {
			h.metrics.PacketsSent.WithLabelValues(h.metricsLabel).Inc()
			h.metrics.BytesSent.WithLabelValues(h.metricsLabel).Add(float64(size))
		}
	}
}

// Receive drains every packet the rx link has delivered so far, demuxing
// it to the controller, retransmit manager, variant hook and application
// in that order.
func (h *Host) Receive(now units.Timestamp) {
	for {
		p := h.rxLink.Pull(now)
		if p == nil {
			return
		}
		p.Received = now
		h.cc.OnPktRcvd(p)
		if h.rtx != nil {
			h.rtx.OnPktRcvd(p)
		}
		if h.OnPktRcvd != nil {
			h.OnPktRcvd(p)
		}
		h.app.DeliverPkt(p)
		if h.metrics != nil {
			h.metrics.PacketsRcvd.WithLabelValues(h.metricsLabel).Inc()
			h.metrics.OneWayDelayUs.WithLabelValues(h.metricsLabel).Set(float64(p.TotalDelay()))
		}
	}
}

// updateRate recomputes the pacing rate from the controller's estimate
// once per pacer update interval, and, if the application is a video
// sender, allocates it down by the rtx/app queues already waiting so the
// sender doesn't encode above the rate the pacer can actually admit.
func (h *Host) updateRate(now units.Timestamp) {
	interval := h.pacer.UpdateInterval()
	if now != 0 && now.Sub(h.pacer.LastRateUpdate()) < interval {
		return
	}
	mult := h.PacingRateMultiplier
	if mult == 0 {
		mult = 1.0
	}
	estRate := h.cc.GetEstRate(now, now.Add(interval))
	h.pacer.SetRate(now, estRate.Mul(mult))

	var rtxQueueBytes units.Bytes
	if h.rtx != nil {
		rtxQueueBytes = h.rtx.QueueSizeBytes()
	}
	appQueueBytes := h.app.QueueSizeBytes()

	if h.metrics != nil {
		h.metrics.EstRateBps.WithLabelValues(h.metricsLabel).Set(float64(estRate))
		h.metrics.PacingRateBps.WithLabelValues(h.metricsLabel).Set(float64(h.pacer.Rate()))
		h.metrics.QueueBytes.WithLabelValues(h.metricsLabel, "rtx").Set(float64(rtxQueueBytes))
		h.metrics.QueueBytes.WithLabelValues(h.metricsLabel, "app").Set(float64(appQueueBytes))
	}

	vs, ok := h.app.(targetBitrateSetter)
	if !ok {
		return
	}
	reservedRate := units.Rate(float64(rtxQueueBytes.Bits()+appQueueBytes.Bits()) / interval.Seconds())
	pacingRate := h.pacer.Rate()
	vs.SetTargetBitrate(pacingRate.Sub(reservedRate))
}

// Tick runs one simulation step in original_source's fixed order: rate
// update, pacer refill, application encode, controller housekeeping, rtx
// ageing, then drain the send and receive loops.
func (h *Host) Tick(now units.Timestamp) {
	h.updateRate(now)
	h.pacer.Tick(now)
	h.app.Tick(now)
	h.cc.Tick(now)
	if h.rtx != nil {
		h.rtx.Tick(now)
	}
	h.Send(now)
	h.Receive(now)
}

// Reset clears all mutable host state back to its construction-time
// defaults.
func (h *Host) Reset() {
	if h.rtx != nil {
		h.rtx.Reset()
	}
	h.cc.Reset()
	h.pacer.Reset()
	h.app.Reset()
	h.controlQueue = nil
	h.seq = 0
	h.lastPktSent = 0
	h.updateRate(0)
}
