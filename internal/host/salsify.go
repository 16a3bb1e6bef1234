// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package host

import (
	"github.com/sceasim/sceasim/internal/packet"
	"github.com/sceasim/sceasim/internal/units"
)

const salsifyTauAlpha = 0.1

// SalsifyHost replaces RTCP with a per-packet ACK, tracking a smoothed
// inter-arrival time net of the sender's own inter-packet grace period,
// and runs its pacer at 1.5x the controller's estimate to absorb its own
// burstiness.
//
// Grounded on original_source/salsify_host.{h,cc}.
type SalsifyHost struct {
	*Host

	tau          units.Duration
	prevPktRcvd  units.Timestamp
	havePrevRcvd bool
}

// NewSalsify wraps h as a Salsify host variant, setting its pacing rate
// multiplier to 1.5x.
func NewSalsify(h *Host) *SalsifyHost {
	s := &SalsifyHost{Host: h}
	h.OnPktRcvd = s.onPktRcvd
	h.PacingRateMultiplier = 1.5
	return s
}

// MeanInterarrival returns the current smoothed inter-arrival time tau.
func (s *SalsifyHost) MeanInterarrival() units.Duration { return s.tau }

// onPktRcvd updates tau for every non-ACK (data) packet received, net of
// the grace period the sender recorded between its previous and current
// send instants, then queues an ACK for it.
func (s *SalsifyHost) onPktRcvd(p *packet.Packet) {
	if p.Kind == packet.KindAck {
		return
	}

	if s.havePrevRcvd {
		grace := p.LastSent.Sub(p.PrevPktSent)
		sample := units.MaxDuration(0, p.Received.Sub(s.prevPktRcvd)-grace)
		s.tau = units.Duration(float64(sample)*salsifyTauAlpha + float64(s.tau)*(1-salsifyTauAlpha))
	}
	s.prevPktRcvd = p.Received
	s.havePrevRcvd = true

	s.sendAck(p.Seq, p.LastSent)
}

func (s *SalsifyHost) sendAck(seq packet.Seq, dataSentTs units.Timestamp) {
	s.EnqueueControl(&packet.Packet{
		Kind:             packet.KindAck,
		Size:             controlPktSize,
		AckSeq:           seq,
		MeanInterarrival: s.tau,
		DataSentTs:       dataSentTs,
	})
}

// Reset clears Salsify-specific state in addition to the generic host
// state.
func (s *SalsifyHost) Reset() {
	s.tau = 0
	s.havePrevRcvd = false
	s.Host.Reset()
}
