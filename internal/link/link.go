// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

// Package link implements the per-direction bottleneck: a bandwidth-trace
// backed queue with propagation delay, random loss and a finite byte cap.
//
// Grounded on original_source/simulator/link.{h,cc} for the bit-budget
// algorithm, and on heistp-scim/iface.go for the tick-driven Go idiom of a
// queue fed by a clock observer.
package link

import (
	"math/rand"

	"github.com/sceasim/sceasim/internal/packet"
	"github.com/sceasim/sceasim/internal/units"
)

// Config holds a Link's static parameters.
type Config struct {
	Trace         Trace
	PropDelay     units.Duration
	RandomLoss    float64 // probability in [0,1)
	QueueCapBytes units.Bytes // 0 means unbounded
}

// Link is one directional bottleneck between two hosts.
type Link struct {
	cfg Config
	rng *rand.Rand

	waiting    []*packet.Packet // FIFO, admitted but not yet budget-cleared
	waitBytes  units.Bytes
	ready      []*packet.Packet // budget-cleared, awaiting their delivery instant

	budgetBits int64
	lastUpdate units.Timestamp
}

// New returns a Link with the given configuration and loss RNG source.
func New(cfg Config, rng *rand.Rand) *Link {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Link{cfg: cfg, rng: rng}
}

// Push admits pkt for transmission. It is dropped silently (no
// notification) if a uniform random draw is below the random-loss
// probability, or if it would exceed the queue's byte cap; otherwise
// propagation delay is added and it joins the waiting queue.
func (l *Link) Push(now units.Timestamp, p *packet.Packet) {
	if l.rng.Float64() < l.cfg.RandomLoss {
		return
	}
	if l.cfg.QueueCapBytes > 0 && l.waitBytes+p.Size > l.cfg.QueueCapBytes {
		return
	}
	p.PropDelay = l.cfg.PropDelay
	l.waiting = append(l.waiting, p)
	l.waitBytes += p.Size
}

// QueuedBytes returns the bytes currently held in the waiting queue (not
// yet budget-cleared into the ready list).
func (l *Link) QueuedBytes() units.Bytes {
	return l.waitBytes
}

// Pull returns the head of the ready list whose sent instant plus total
// delay is <= now, or nil if none is yet deliverable.
func (l *Link) Pull(now units.Timestamp) *packet.Packet {
	if len(l.ready) == 0 {
		return nil
	}
	p := l.ready[0]
	if p.LastSent+units.Timestamp(p.TotalDelay()) > now {
		return nil
	}
	l.ready = l.ready[1:]
	return p
}

// AvailableBits returns the bits the bandwidth trace allots over [t0, t1),
// side-effect free.
func (l *Link) AvailableBits(t0, t1 units.Timestamp) int64 {
	return l.cfg.Trace.AvailableBits(t0, t1)
}

// Tick runs the bit-budget algorithm: while the waiting queue is
// non-empty, accumulate or replace the budget from the trace integration
// since the head packet was last viewed, and while the budget covers the
// head packet's size, move it to the ready list with its queueing delay
// stamped.
func (l *Link) Tick(now units.Timestamp) {
	for len(l.waiting) > 0 {
		p := l.waiting[0]
		prev := units.MaxTimestamp(p.LastSent, l.lastUpdate)
		gained := l.cfg.Trace.AvailableBits(prev, now)

		// A packet viewed for the first time since it was sent (prev ==
		// its own sent instant) starts a fresh budget; one already
		// straddling a prior tick (prev == lastUpdate) keeps accruing.
		if prev == p.LastSent {
			l.budgetBits = gained
		} else {
			l.budgetBits += gained
		}
		l.lastUpdate = now

		need := p.Size.Bits()
		if l.budgetBits < need {
			break
		}
		l.budgetBits -= need
		p.QueueDelay += now.Sub(p.LastSent)
		l.waiting = l.waiting[1:]
		l.waitBytes -= p.Size
		l.ready = append(l.ready, p)
	}
}

// Reset clears all queued state without reconfiguring the link.
func (l *Link) Reset() {
	l.waiting = nil
	l.waitBytes = 0
	l.ready = nil
	l.budgetBits = 0
	l.lastUpdate = 0
}
