// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package cc

import (
	"math"

	"github.com/sceasim/sceasim/internal/packet"
	"github.com/sceasim/sceasim/internal/units"
)

// arrivalTimeFilter is a simple Kalman-style filter over the per-frame
// delay gradient, grounded on
// original_source/congestion_control/gcc/arrival_time_filter.cc.
type arrivalTimeFilter struct {
	sendTimes []units.Timestamp // bounded history of frame send instants, size frameHistoryK

	mHat  float64
	eVar  float64
	varV  float64
}

const (
	frameHistoryK = 5
	filterChi     = 0.1
	filterQ       = 1e-3
)

func (f *arrivalTimeFilter) addFrameSentTime(ts units.Timestamp) {
	f.sendTimes = append(f.sendTimes, ts)
	if len(f.sendTimes) > frameHistoryK {
		f.sendTimes = f.sendTimes[1:]
	}
}

// update feeds a new delay-gradient sample (ms) and returns the filtered
// estimate d-hat.
func (f *arrivalTimeFilter) update(delayGradientMs float64) float64 {
	fMax := 0.0
	for i := 0; i+1 < len(f.sendTimes); i++ {
		gapMs := f.sendTimes[i+1].Sub(f.sendTimes[i]).Milliseconds()
		if gapMs <= 0 {
			continue
		}
		r := 1000.0 / gapMs
		if r > fMax {
			fMax = r
		}
	}
	var alpha float64
	if fMax > 0 {
		alpha = pow(1-filterChi, 30/(1000*fMax))
	} else {
		alpha = 1 - filterChi
	}

	z := delayGradientMs - f.mHat
	f.varV = alpha*f.varV + (1-alpha)*z*z
	if f.varV < 1.0 {
		f.varV = 1.0
	}
	k := (f.eVar + filterQ) / (f.varV + f.eVar + filterQ)
	f.mHat += z * k
	f.eVar = (1 - k) * (f.eVar + filterQ)
	return f.mHat
}

func (f *arrivalTimeFilter) reset() {
	f.sendTimes = nil
	f.mHat, f.eVar, f.varV = 0, 0, 0
}

func pow(base, exp float64) float64 {
	return math.Pow(base, exp)
}

// rateControlState is the GCC-like delay-based estimator's state machine.
type rateControlState int

const (
	stateHold rateControlState = iota
	stateInc
	stateDec
)

type bwUsageSignal int

const (
	sigNormal bwUsageSignal = iota
	sigUnderuse
	sigOveruse
)

const (
	startGradThreshMs = 5.0
	overuseThreshMs   = 100.0 // confirmation window, in ms
	historyWindowMs   = 500.0
	kU                = 0.01
	kD                = 0.00018
	decAlpha          = 0.85
	incEta            = 1.05
)

// delayBasedBwe is the frame-gradient-driven sub-estimator.
//
// Grounded on original_source/congestion_control/gcc/delay_based_bwe.cc.
type delayBasedBwe struct {
	rate units.Rate

	filter arrivalTimeFilter
	thresh float64

	state   rateControlState
	sig     bwUsageSignal
	overuseStart units.Timestamp
	haveOveruseStart bool

	pktSizeWnd []units.Bytes
	tsRcvdWnd  []units.Timestamp
	rcvRate    units.Rate

	delayGrad    float64
	delayGradHat float64

	lastFrameIntervalMs float64
}

func newDelayBasedBwe(start units.Rate) *delayBasedBwe {
	return &delayBasedBwe{rate: start, thresh: startGradThreshMs, state: stateInc}
}

// onPktRcvd accumulates windowed bytes used to compute the receive rate.
func (d *delayBasedBwe) onPktRcvd(now units.Timestamp, size units.Bytes) {
	d.pktSizeWnd = append(d.pktSizeWnd, size)
	d.tsRcvdWnd = append(d.tsRcvdWnd, now)
}

func (d *delayBasedBwe) pruneWindow(now units.Timestamp) {
	i := 0
	for i < len(d.tsRcvdWnd) && now.Sub(d.tsRcvdWnd[i]).Milliseconds() > historyWindowMs {
		i++
	}
	d.tsRcvdWnd = d.tsRcvdWnd[i:]
	d.pktSizeWnd = d.pktSizeWnd[i:]

	var bytes units.Bytes
	for _, b := range d.pktSizeWnd {
		bytes += b
	}
	d.rcvRate = units.FromBytesPerSecond(float64(bytes) / (historyWindowMs / 1000))
}

// onFrameRcvd is the main per-frame update, computing the delay gradient,
// feeding the arrival-time filter, updating the overuse signal/state
// machine, and recomputing the target rate.
func (d *delayBasedBwe) onFrameRcvd(now units.Timestamp, sentCur, rcvdCur, sentPrev, rcvdPrev units.Timestamp) {
	d.pruneWindow(now)
	d.filter.addFrameSentTime(sentCur)

	d.delayGrad = rcvdCur.Sub(rcvdPrev).Milliseconds() - sentCur.Sub(sentPrev).Milliseconds()
	d.delayGradHat = d.filter.update(d.delayGrad)

	frameIntervalMs := sentCur.Sub(sentPrev).Milliseconds()
	if frameIntervalMs <= 0 {
		frameIntervalMs = 1
	}
	d.lastFrameIntervalMs = frameIntervalMs

	absHat := d.delayGradHat
	if absHat < 0 {
		absHat = -absHat
	}
	k := kD
	if absHat > d.thresh {
		k = kU
	}
	d.thresh += frameIntervalMs * k * (absHat - d.thresh)

	d.updateOveruseSignal(now)
	d.updateState()
	d.updateRate()
}

func (d *delayBasedBwe) updateOveruseSignal(now units.Timestamp) {
	var instant bwUsageSignal
	switch {
	case d.delayGradHat > d.thresh:
		instant = sigOveruse
	case d.delayGradHat < -d.thresh:
		instant = sigUnderuse
	default:
		instant = sigNormal
	}

	if instant != sigOveruse {
		d.sig = instant
		d.haveOveruseStart = false
		return
	}
	if !d.haveOveruseStart {
		d.haveOveruseStart = true
		d.overuseStart = now
	}
	if now.Sub(d.overuseStart).Milliseconds() >= overuseThreshMs {
		d.sig = sigOveruse
	}
}

func (d *delayBasedBwe) updateState() {
	switch d.state {
	case stateInc:
		switch d.sig {
		case sigOveruse:
			d.state = stateDec
		case sigUnderuse:
			d.state = stateHold
		}
	case stateHold:
		switch d.sig {
		case sigOveruse:
			d.state = stateDec
		case sigNormal:
			d.state = stateInc
		}
	case stateDec:
		if d.sig != sigOveruse {
			d.state = stateHold
		}
	}
}

func (d *delayBasedBwe) updateRate() {
	cap15 := d.rcvRate.Mul(1.5)
	switch d.state {
	case stateInc:
		elapsedSec := d.lastFrameIntervalMs / 1000
		if elapsedSec > 1 {
			elapsedSec = 1
		}
		d.rate = units.MinRate(d.rate.Mul(pow(incEta, elapsedSec)), cap15)
	case stateDec:
		d.rate = units.MinRate(d.rcvRate.Mul(decAlpha), cap15)
	case stateHold:
		d.rate = units.MinRate(d.rate, cap15)
	}
}

func (d *delayBasedBwe) reset(start units.Rate) {
	*d = *newDelayBasedBwe(start)
}

// lossBasedBwe is the loss-fraction-driven sub-estimator.
//
// Grounded on original_source/congestion_control/gcc/loss_based_bwe.h.
type lossBasedBwe struct {
	rate units.Rate
}

func (l *lossBasedBwe) onPktLoss(lossFraction float64) {
	switch {
	case lossFraction > 0.1:
		l.rate = l.rate.Mul(1 - 0.5*lossFraction)
	case lossFraction < 0.02:
		l.rate = l.rate.Mul(1.05)
	}
}

// GCC is the loss/delay hybrid controller: min(loss_based, receiver_estimate).
//
// Grounded on original_source/congestion_control/gcc/gcc.cc.
type GCC struct {
	rate        units.Rate
	bweIncoming units.Rate
	delayBased  delayBasedBwe
	lossBased   lossBasedBwe
}

const gccStartRate = 1000 * units.Kbps

// NewGCC returns a GCC controller at the standard 1Mbps start rate.
func NewGCC() *GCC {
	g := &GCC{rate: gccStartRate, bweIncoming: gccStartRate}
	g.delayBased = *newDelayBasedBwe(gccStartRate)
	g.lossBased = lossBasedBwe{rate: gccStartRate}
	return g
}

func (g *GCC) Tick(units.Timestamp) {}

func (g *GCC) Reset() {
	g.rate = gccStartRate
	g.bweIncoming = gccStartRate
	g.delayBased.reset(gccStartRate)
	g.lossBased.rate = gccStartRate
}

func (g *GCC) OnPktSent(*packet.Packet) {}

// OnPktRcvd consumes RTP data packets (feeding the receive-rate window) and
// RTCP reports (loss-based update + REMB combination).
func (g *GCC) OnPktRcvd(p *packet.Packet) {
	switch p.Kind {
	case packet.KindRTPData:
		g.delayBased.onPktRcvd(p.Received, p.Size)
	case packet.KindRTCP:
		g.lossBased.onPktLoss(p.LossFraction)
		if !p.ReceiverEstRate.IsZero() {
			g.bweIncoming = p.ReceiverEstRate
		}
		g.rate = units.MinRate(g.lossBased.rate, g.bweIncoming)
		g.lossBased.rate = g.rate
	}
}

func (g *GCC) OnPktLost(*packet.Packet) {}

// OnFrameRcvd bridges the video receiver's frame-arrival event into the
// delay-based sub-estimator, implementing FrameGradientInput.
func (g *GCC) OnFrameRcvd(sentCur, rcvdCur, sentPrev, rcvdPrev units.Timestamp) {
	g.delayBased.onFrameRcvd(rcvdCur, sentCur, rcvdCur, sentPrev, rcvdPrev)
}

// GetEstRate returns the last combined rate; side-effect free.
func (g *GCC) GetEstRate(units.Timestamp, units.Timestamp) units.Rate {
	return g.rate
}

// RemoteEstimatedRate exposes the delay-based sub-estimator's own rate, the
// value original_source calls GetRemoteEstimatedRate.
func (g *GCC) RemoteEstimatedRate() units.Rate {
	return g.delayBased.rate
}
