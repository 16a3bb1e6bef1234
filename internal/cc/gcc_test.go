// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package cc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sceasim/sceasim/internal/packet"
	"github.com/sceasim/sceasim/internal/units"
)

// Overuse is only signaled once the delay gradient has exceeded the
// adaptive threshold continuously for overuseThreshMs (hybrid, step-trace
// scenario's detection delay).
func TestOveruseSignalRequiresSustainedWindow(t *testing.T) {
	d := newDelayBasedBwe(1 * units.Mbps)
	d.thresh = 5
	d.delayGradHat = 50

	now := units.Timestamp(0)
	d.updateOveruseSignal(now)
	require.Equal(t, sigNormal, d.sig, "overuse window just started")

	now = now.Add(units.FromMilliseconds(50))
	d.updateOveruseSignal(now)
	require.Equal(t, sigNormal, d.sig, "50ms < overuseThreshMs")

	now = now.Add(units.FromMilliseconds(60))
	d.updateOveruseSignal(now)
	require.Equal(t, sigOveruse, d.sig, "110ms >= overuseThreshMs")
}

func TestStateMachineEntersDecOnOveruse(t *testing.T) {
	d := newDelayBasedBwe(1 * units.Mbps)
	d.state = stateInc
	d.sig = sigOveruse
	d.updateState()
	require.Equal(t, stateDec, d.state)
}

func TestStateMachineRecoversToHoldAfterOveruseClears(t *testing.T) {
	d := newDelayBasedBwe(1 * units.Mbps)
	d.state = stateDec
	d.sig = sigNormal
	d.updateState()
	require.Equal(t, stateHold, d.state)
}

func TestUpdateRateDecreasesToFractionOfReceiveRate(t *testing.T) {
	d := newDelayBasedBwe(1 * units.Mbps)
	d.rcvRate = 1000 * units.Kbps
	d.state = stateDec
	d.updateRate()
	require.Equal(t, d.rcvRate.Mul(decAlpha), d.rate)
}

// GCC combines the loss-based estimate with the remote (REMB-equivalent)
// estimate via min(), per GetEstRate's doc comment.
func TestGCCCombinesLossAndReceiverEstimate(t *testing.T) {
	g := NewGCC()
	p := &packet.Packet{Kind: packet.KindRTCP, LossFraction: 0.2, ReceiverEstRate: 500 * units.Kbps}
	g.OnPktRcvd(p)

	require.Equal(t, units.Rate(500*units.Kbps), g.GetEstRate(0, 0))
}

func TestGCCIncreasesRateOnLowLoss(t *testing.T) {
	g := NewGCC()
	before := g.GetEstRate(0, 0)
	p := &packet.Packet{Kind: packet.KindRTCP, LossFraction: 0.0, ReceiverEstRate: gccStartRate * 2}
	g.OnPktRcvd(p)

	require.Greater(t, int64(g.GetEstRate(0, 0)), int64(before))
}

func TestGCCResetRestoresStartRate(t *testing.T) {
	g := NewGCC()
	g.OnPktRcvd(&packet.Packet{Kind: packet.KindRTCP, LossFraction: 0.5})
	require.NotEqual(t, gccStartRate, g.GetEstRate(0, 0))

	g.Reset()
	require.Equal(t, units.Rate(gccStartRate), g.GetEstRate(0, 0))
}
