// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

// Package pacer implements the token-bucket admission gate between a
// host's congestion controller and its send loop.
//
// Grounded on original_source/simulator/pacer.{h,cc}.
package pacer

import "github.com/sceasim/sceasim/internal/units"

// Pacer is a bit budget refreshed by the clock at a configured step.
type Pacer struct {
	ceilingBits      int64
	budgetBits       int64
	rate             units.Rate
	lastRateUpdate   units.Timestamp
	lastBudgetUpdate units.Timestamp
	updateInterval   units.Duration
}

// New returns a Pacer with budget initialized to one MSS, matching
// original_source's Pacer constructor. updateInterval is how often a host
// should recompute its pacing rate from the congestion controller's
// estimate (original_source's pacing_rate_update_step_ms).
func New(ceilingBytes units.Bytes, updateInterval units.Duration) *Pacer {
	return &Pacer{
		ceilingBits:    ceilingBytes.Bits(),
		budgetBits:     units.MSS.Bits(),
		updateInterval: updateInterval,
	}
}

// UpdateInterval returns how often the pacing rate should be recomputed.
func (p *Pacer) UpdateInterval() units.Duration {
	return p.updateInterval
}

// CanSend reports whether a packet of size may be sent now.
func (p *Pacer) CanSend(size units.Bytes) bool {
	return size.Bits() <= p.budgetBits && p.rate > 0
}

// OnSent decrements the budget unconditionally by the sent packet's size.
func (p *Pacer) OnSent(size units.Bytes) {
	p.budgetBits -= size.Bits()
}

// Tick adds rate * elapsed bits to the budget, clipped at the ceiling.
func (p *Pacer) Tick(now units.Timestamp) {
	elapsed := now.Sub(p.lastBudgetUpdate)
	p.budgetBits += p.rate.BitsOver(elapsed)
	if p.budgetBits > p.ceilingBits {
		p.budgetBits = p.ceilingBits
	}
	p.lastBudgetUpdate = now
}

// SetRate sets the pacing rate and stamps the last-rate-update instant,
// used by the host to throttle how often it recomputes the rate.
func (p *Pacer) SetRate(now units.Timestamp, rate units.Rate) {
	p.rate = rate
	p.lastRateUpdate = now
}

// Rate returns the current pacing rate.
func (p *Pacer) Rate() units.Rate {
	return p.rate
}

// LastRateUpdate returns the instant the pacing rate was last set.
func (p *Pacer) LastRateUpdate() units.Timestamp {
	return p.lastRateUpdate
}

// Reset clears budget and rate state.
func (p *Pacer) Reset() {
	p.budgetBits = units.MSS.Bits()
	p.rate = 0
	p.lastRateUpdate = 0
	p.lastBudgetUpdate = 0
}
