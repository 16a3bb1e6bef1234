// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package cc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sceasim/sceasim/internal/packet"
	"github.com/sceasim/sceasim/internal/units"
)

// Rate-matching on ACKs delayed by 40ms: the incoming rate tracks one MSS
// per inter-arrival interval, and the encode budget follows the e2e delay
// cap minus the in-flight packet count.
func TestSalsifyRateMatchesInterarrival(t *testing.T) {
	s := NewSalsify(25)
	p := &packet.Packet{Kind: packet.KindAck, MeanInterarrival: units.FromMilliseconds(40)}
	s.OnPktRcvd(p)

	wantRate := units.FromBytesPerSecond(float64(units.MSS) / 0.04)
	require.Equal(t, wantRate, s.GetEstRate(0, 0))

	wantEncode := units.FromBytesPerSecond(float64(units.MSS) * 2.5 * 25).Clamp(salsifyMinRate, salsifyMaxEncodeRate)
	require.Equal(t, wantEncode, s.EncodeBitrate())
}

func TestSalsifyInflightTracksSentAndAcked(t *testing.T) {
	s := NewSalsify(25)
	for i := 0; i < 3; i++ {
		s.OnPktSent(nil)
	}
	require.Equal(t, 3, s.Inflight())

	s.OnPktRcvd(&packet.Packet{Kind: packet.KindAck, MeanInterarrival: units.FromMilliseconds(40)})
	require.Equal(t, 2, s.Inflight())
}

func TestSalsifyIgnoresNonAckPackets(t *testing.T) {
	s := NewSalsify(25)
	before := s.GetEstRate(0, 0)
	s.OnPktRcvd(&packet.Packet{Kind: packet.KindData})
	require.Equal(t, before, s.GetEstRate(0, 0))
}

func TestSalsifyResetClearsInflight(t *testing.T) {
	s := NewSalsify(25)
	s.OnPktSent(nil)
	s.OnPktSent(nil)
	s.Reset()
	require.Equal(t, 0, s.Inflight())
	require.Equal(t, units.Rate(100*units.Kbps), s.GetEstRate(0, 0))
}
