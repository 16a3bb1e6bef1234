// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package cc

import (
	"github.com/montanaflynn/stats"

	"github.com/sceasim/sceasim/internal/fec"
	"github.com/sceasim/sceasim/internal/packet"
	"github.com/sceasim/sceasim/internal/units"
)

type fbraState int

const (
	fbraStay fbraState = iota
	fbraUp
	fbraDown
	fbraProbe
)

const (
	fbraAlphaUndershoot = 2.0
	fbraAlphaStay       = 1.1
	fbraAlphaDown       = 1.6
	fbraBeta            = 1.2
	fbraMinFECInterval   = 2
	fbraMaxFECInterval   = 14
	fbraHistoryWindowSec = 2
	fbraMinRate          = 50 * units.Kbps
	fbraMaxRate          = 24 * units.Mbps
	fbraRTCPIntervalMs   = 50.0
	fbraDeactivationMs   = 1.05 * fbraRTCPIntervalMs
)

// FBRA is the delay-threshold, FEC-coupled controller. It owns the
// sender's FEC encoder directly and toggles it as part of its own state
// transitions (spec.md 4.16's title names this coupling explicitly).
//
// Grounded on original_source/congestion_control/fbra.cc.
type FBRA struct {
	rate units.Rate

	enabled        bool
	disableStart   units.Timestamp
	haveDisableStart bool

	state       fbraState
	fecInterval int
	fecEncoder  *fec.Encoder

	owdHistory []float64
	owdTs      []units.Timestamp

	goodputDuringUndershoot units.Rate
	lastLossFraction        float64
}

// NewFBRA returns an FBRA controller coupled to fecEncoder, which it will
// Enable/Disable/SetRate as it transitions states.
func NewFBRA(fecEncoder *fec.Encoder) *FBRA {
	f := &FBRA{
		rate:        100 * units.Kbps,
		enabled:     true,
		state:       fbraStay,
		fecInterval: 8,
		fecEncoder:  fecEncoder,
	}
	fecEncoder.SetRate(1.0 / float64(f.fecInterval))
	fecEncoder.Disable()
	return f
}

func (f *FBRA) Tick(now units.Timestamp) {
	if !f.enabled && f.haveDisableStart &&
		now.Sub(f.disableStart) >= units.FromMilliseconds(fbraDeactivationMs) {
		f.bounceBack()
	}
}

func (f *FBRA) Reset() {
	f.rate = 100 * units.Kbps
	f.enabled = true
	f.haveDisableStart = false
	f.state = fbraStay
	f.fecInterval = 8
	f.owdHistory = nil
	f.owdTs = nil
	f.goodputDuringUndershoot = 0
	f.fecEncoder.SetRate(1.0 / float64(f.fecInterval))
	f.fecEncoder.Disable()
}

func (f *FBRA) OnPktSent(*packet.Packet) {}
func (f *FBRA) OnPktLost(*packet.Packet) {}

// OnPktRcvd consumes RTCP reports: updates the OWD history, recomputes the
// p40/p80 correlation ratios, and drives the state machine.
func (f *FBRA) OnPktRcvd(p *packet.Packet) {
	if p.Kind != packet.KindRTCP {
		return
	}
	now := p.Received
	owdMs := p.OWD.Milliseconds()
	if owdMs == 0 {
		return
	}
	losses := p.LossFraction
	f.lastLossFraction = losses
	goodput := p.Throughput

	if losses == 0.0 || len(f.owdHistory) == 0 {
		f.owdHistory = append(f.owdHistory, owdMs)
		f.owdTs = append(f.owdTs, now)
		for len(f.owdTs) > 0 && now.Sub(f.owdTs[0]) > units.FromSeconds(fbraHistoryWindowSec) {
			f.owdHistory = f.owdHistory[1:]
			f.owdTs = f.owdTs[1:]
		}
	}

	if !f.enabled && f.haveDisableStart &&
		now.Sub(f.disableStart) < units.FromMilliseconds(fbraDeactivationMs) {
		f.goodputDuringUndershoot = goodput
	}

	p40, _ := stats.Percentile(f.owdHistory, 40)
	p80, _ := stats.Percentile(f.owdHistory, 80)
	if p40 == 0 {
		p40 = owdMs
	}
	if p80 == 0 {
		p80 = owdMs
	}
	corrLow := owdMs / p40
	corrHigh := owdMs / p80

	if !f.enabled {
		return
	}

	switch f.state {
	case fbraUp:
		f.up(now, losses, corrHigh)
	case fbraDown:
		f.down(now, losses, corrHigh)
	case fbraStay:
		f.stay(now, losses, corrLow, corrHigh)
	case fbraProbe:
		f.probe(now, losses, corrLow, corrHigh)
	}
}

func (f *FBRA) up(now units.Timestamp, losses, corrHigh float64) {
	if losses > 0 || corrHigh > fbraAlphaDown {
		f.undershoot()
		f.disableRateControl(now)
		f.state = fbraDown
	} else {
		f.state = fbraStay
		f.fecEncoder.Disable()
	}
}

func (f *FBRA) down(now units.Timestamp, losses, corrHigh float64) {
	switch {
	case losses > 0:
		f.state = fbraStay
	case corrHigh > fbraAlphaUndershoot:
		f.undershoot()
		f.disableRateControl(now)
		f.state = fbraDown
	default:
		f.state = fbraStay
	}
	f.fecEncoder.Disable()
}

func (f *FBRA) stay(now units.Timestamp, losses, corrLow, corrHigh float64) {
	switch {
	case losses > 0:
		f.undershoot()
		f.disableRateControl(now)
		f.state = fbraDown
		f.fecEncoder.Disable()
	case corrHigh > fbraAlphaStay:
		f.undershoot()
		f.disableRateControl(now)
		f.state = fbraDown
		f.fecEncoder.Disable()
	default:
		if corrLow <= 1.0 && corrHigh <= 1.0 {
			f.fecInterval = clampInt(f.fecInterval-1, fbraMinFECInterval, fbraMaxFECInterval)
			f.fecEncoder.SetRate(1.0 / float64(f.fecInterval))
		}
		f.state = fbraProbe
		f.fecEncoder.Enable()
	}
}

func (f *FBRA) probe(now units.Timestamp, losses, corrLow, corrHigh float64) {
	switch {
	case losses > 0:
		f.undershoot()
		f.disableRateControl(now)
		f.state = fbraDown
		f.fecEncoder.Disable()
	case corrHigh > fbraAlphaDown:
		f.undershoot()
		f.disableRateControl(now)
		f.state = fbraDown
		f.fecEncoder.Disable()
	case corrHigh > fbraAlphaStay:
		f.state = fbraStay
		f.fecEncoder.Disable()
	case corrLow > fbraBeta:
		f.fecInterval = clampInt(f.fecInterval+1, fbraMinFECInterval, fbraMaxFECInterval)
		f.fecEncoder.SetRate(1.0 / float64(f.fecInterval))
	default:
		f.state = fbraUp
		f.rate = f.rate.Mul(1.0 / (1.0 - f.fecEncoder.Rate())).Clamp(fbraMinRate, fbraMaxRate)
		f.fecEncoder.Disable()
	}
}

func (f *FBRA) undershoot() {
	f.rate = f.rate.Mul(0.85).Clamp(fbraMinRate, fbraMaxRate)
}

func (f *FBRA) disableRateControl(now units.Timestamp) {
	f.enabled = false
	f.haveDisableStart = true
	f.disableStart = now
}

func (f *FBRA) bounceBack() {
	if f.lastLossFraction > 0 {
		f.undershoot()
	} else {
		f.rate = f.goodputDuringUndershoot.Mul(0.9).Clamp(fbraMinRate, fbraMaxRate)
	}
	f.state = fbraStay
	f.enabled = true
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// GetEstRate returns the controller's current rate; side-effect free.
func (f *FBRA) GetEstRate(units.Timestamp, units.Timestamp) units.Rate {
	return f.rate
}

// State returns the controller's current state, for logging.
func (f *FBRA) State() int { return int(f.state) }

// FECInterval returns the controller's current FEC interval k (r = 1/k).
func (f *FBRA) FECInterval() int { return f.fecInterval }
