// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

// Package cc defines the congestion-control contract and its four
// interchangeable strategies (oracle, GCC-like, Salsify-like, FBRA-like).
//
// Grounded on original_source/simulator/congestion_control/congestion_control.h
// and heistp-scim/cca.go's CCA-interface-with-concrete-strategies pattern.
package cc

import (
	"github.com/sceasim/sceasim/internal/packet"
	"github.com/sceasim/sceasim/internal/units"
)

// Controller is the capability every congestion-control strategy exposes
// to a host. It supersedes original_source's down-cast-heavy
// CongestionControlInterface dispatch with a single typed interface.
type Controller interface {
	Tick(now units.Timestamp)
	Reset()
	OnPktSent(p *packet.Packet)
	OnPktRcvd(p *packet.Packet)
	OnPktLost(p *packet.Packet)
	// GetEstRate returns the target rate for the window [t0, t1]. It is
	// side-effect free for every strategy; state updates happen in the On*
	// callbacks and Tick.
	GetEstRate(t0, t1 units.Timestamp) units.Rate
}

// FrameGradientInput is the frame-arrival signal the GCC-like controller's
// delay-based estimator consumes: the last-packet sent/received instants
// for the current and previous frame. Exposed as a typed capability
// interface per spec.md's REDESIGN FLAGS (replacing a down-cast dispatch
// from the application to the controller).
type FrameGradientInput interface {
	OnFrameRcvd(sentCur, rcvdCur, sentPrev, rcvdPrev units.Timestamp)
}
