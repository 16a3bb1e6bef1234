// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package cc

import (
	"github.com/sceasim/sceasim/internal/packet"
	"github.com/sceasim/sceasim/internal/units"
)

const (
	salsifyTargetE2EDelayCapMs = 100.0
	salsifyMinRate             = 50 * units.Kbps
	salsifyMaxEncodeRate       = 24 * units.Mbps
)

// Salsify is the inter-arrival/rate-matching controller, driven by
// per-packet ACKs rather than periodic reports.
//
// Grounded on original_source/congestion_control/salsify.cc.
type Salsify struct {
	rate          units.Rate
	encodeBitrate units.Rate
	inflight      int
	fps           int
}

// NewSalsify returns a Salsify controller for the given frame rate.
func NewSalsify(fps int) *Salsify {
	return &Salsify{rate: 100 * units.Kbps, encodeBitrate: 100 * units.Kbps, fps: fps}
}

func (s *Salsify) Tick(units.Timestamp) {}

func (s *Salsify) Reset() {
	s.rate = 100 * units.Kbps
	s.inflight = 0
}

func (s *Salsify) OnPktSent(*packet.Packet) {
	s.inflight++
}

func (s *Salsify) OnPktLost(*packet.Packet) {
	if s.inflight > 0 {
		s.inflight--
	}
}

// OnPktRcvd consumes ACK packets: decrements inflight, derives the
// incoming rate from the ACK's smoothed inter-arrival time, and recomputes
// the target encode bitrate from the delay-cap/inflight relation.
func (s *Salsify) OnPktRcvd(p *packet.Packet) {
	if p.Kind != packet.KindAck {
		return
	}
	if s.inflight > 0 {
		s.inflight--
	}

	avgDelay := p.MeanInterarrival
	if avgDelay < 0 {
		return
	}
	if avgDelay < 1 {
		avgDelay = 1
	}

	incomingRate := units.FromBytesPerSecond(float64(units.MSS) / avgDelay.Seconds())

	maxFrameBytes := float64(units.MSS) * maxFloat(salsifyTargetE2EDelayCapMs/avgDelay.Milliseconds()-float64(s.inflight), 0)

	s.rate = incomingRate
	s.encodeBitrate = units.MaxRate(
		units.FromBytesPerSecond(maxFrameBytes*float64(s.fps)),
		salsifyMinRate,
	).Clamp(salsifyMinRate, salsifyMaxEncodeRate)
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// GetEstRate returns the last computed incoming (pacing target) rate.
func (s *Salsify) GetEstRate(units.Timestamp, units.Timestamp) units.Rate {
	return s.rate
}

// EncodeBitrate returns the target rate exposed separately to the video
// sender, decoupling pacing from encoding per spec.md 4.15.
func (s *Salsify) EncodeBitrate() units.Rate {
	return s.encodeBitrate
}

// Inflight returns the current inflight packet count.
func (s *Salsify) Inflight() int {
	return s.inflight
}
