// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package simmetrics

import (
	"github.com/sceasim/sceasim/internal/cc"
	"github.com/sceasim/sceasim/internal/packet"
)

// ObservingController wraps a cc.Controller, incrementing the registry's
// PacketsLost counter on every loss the controller is told about, then
// forwarding to the wrapped controller unchanged.
type ObservingController struct {
	cc.Controller
	Registry *Registry
	Label    string
}

// OnPktLost records the loss before delegating.
func (o *ObservingController) OnPktLost(p *packet.Packet) {
	o.Registry.PacketsLost.WithLabelValues(o.Label).Inc()
	o.Controller.OnPktLost(p)
}

// Unwrap returns the wrapped controller, letting callers that need a
// strategy-specific capability (e.g. GCC's video.FrameGradientSink or
// its REMB-reporting method) see past this decorator's narrower
// cc.Controller method set.
func (o *ObservingController) Unwrap() cc.Controller {
	return o.Controller
}
