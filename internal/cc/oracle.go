// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package cc

import (
	"github.com/sceasim/sceasim/internal/packet"
	"github.com/sceasim/sceasim/internal/units"
)

// linkBitSource is the capability Oracle needs from its tx link: the bits
// the bandwidth trace allots over an interval, side-effect free.
type linkBitSource interface {
	AvailableBits(t0, t1 units.Timestamp) int64
}

// Oracle reads the tx link's bit budget directly rather than inferring it
// from observed signals.
//
// Grounded on original_source/congestion_control/oracle_cc.h.
type Oracle struct {
	link linkBitSource
}

// NewOracle returns an Oracle reading capacity from link.
func NewOracle(link linkBitSource) *Oracle {
	return &Oracle{link: link}
}

func (o *Oracle) Tick(units.Timestamp)             {}
func (o *Oracle) Reset()                           {}
func (o *Oracle) OnPktSent(*packet.Packet)         {}
func (o *Oracle) OnPktRcvd(*packet.Packet)         {}
func (o *Oracle) OnPktLost(*packet.Packet)         {}

// GetEstRate returns the link's bits available over [t0,t1] divided by the
// window.
func (o *Oracle) GetEstRate(t0, t1 units.Timestamp) units.Rate {
	d := t1.Sub(t0)
	if d <= 0 {
		return 0
	}
	bits := o.link.AvailableBits(t0, t1)
	return units.Rate(float64(bits) / d.Seconds())
}
