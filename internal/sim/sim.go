// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

// Package sim wires one simulation run: a clock, a pair of directional
// links, and two hosts (sender and receiver roles), selecting the
// congestion-control strategy and wire-format variant named in Config.
//
// Grounded on original_source/simulator/sim.{h,cc} for the top-level
// wiring order, and on heistp-scim/sim.go for the Go idiom of a Sim type
// owning a slice of clock.Observer-like handlers driven by a single loop.
package sim

import (
	"fmt"
	"math/rand"

	"github.com/sceasim/sceasim/internal/cc"
	"github.com/sceasim/sceasim/internal/clock"
	"github.com/sceasim/sceasim/internal/codec"
	"github.com/sceasim/sceasim/internal/fec"
	"github.com/sceasim/sceasim/internal/host"
	"github.com/sceasim/sceasim/internal/link"
	"github.com/sceasim/sceasim/internal/pacer"
	"github.com/sceasim/sceasim/internal/rtx"
	"github.com/sceasim/sceasim/internal/simlog"
	"github.com/sceasim/sceasim/internal/simmetrics"
	"github.com/sceasim/sceasim/internal/units"
	"github.com/sceasim/sceasim/internal/video"
)

// Variant selects the host wire-format: RTP (RTCP reports + NACK) or
// Salsify (per-packet ACK).
type Variant string

const (
	VariantRTP     Variant = "rtp"
	VariantSalsify Variant = "salsify"
)

// Strategy names the four congestion-control strategies spec.md §4.13-16
// names.
type Strategy string

const (
	StrategyOracle  Strategy = "oracle"
	StrategySalsify Strategy = "salsify"
	StrategyGCC     Strategy = "gcc"
	StrategyFBRA    Strategy = "fbra"
)

// Pacer ceilings and update cadences, grounded on original_source's
// simulator.cc construction (`Pacer(1500*10, 40)` for the sender,
// `Pacer(1500*10, 1)` for the receiver).
const (
	senderPacerCeilingBytes   = 15 * units.Bytes(1000)
	senderPacerUpdateMs       = 40
	receiverPacerCeilingBytes = 15 * units.Bytes(1000)
	receiverPacerUpdateMs     = 1

	fecRedundancyRate = 0.1
	videoFPS          = video.FPS
	rngSeed           = 1
)

// Config is the fully-resolved set of parameters a Simulation is built
// from, after config.Options has read them from the CLI/disk.
type Config struct {
	Strategy   Strategy
	Variant    Variant
	LinkFwd    link.Config // sender -> receiver
	LinkRev    link.Config // receiver -> sender (feedback)
	CodecTable codec.Table

	// Metrics, if non-nil, is a live Prometheus registry both hosts
	// report packet/rate/queue counters and gauges to.
	Metrics *simmetrics.Registry
}

// Simulation owns the clock and the two hosts/links of one run.
type Simulation struct {
	clock *clock.Clock

	linkFwd *link.Link
	linkRev *link.Link

	senderCC   cc.Controller
	receiverCC cc.Controller

	sender   clockObserver
	receiver clockObserver
}

// clockObserver is the narrow capability sim needs from whichever host
// variant wraps the generic host.Host (RtpHost or SalsifyHost), since
// neither embeds a common interface type beyond *Host itself.
type clockObserver interface {
	Tick(now units.Timestamp)
	Reset()
}

// New builds a Simulation from cfg: two links, two congestion controllers,
// a retransmit manager on the sender host, a video sender and a video
// receiver, wrapped in the requested host Variant.
func New(cfg Config) (*Simulation, error) {
	clk := clock.New(units.FromMilliseconds(1))

	rngFwd := rand.New(rand.NewSource(rngSeed))
	rngRev := rand.New(rand.NewSource(rngSeed + 1))
	linkFwd := link.New(cfg.LinkFwd, rngFwd)
	linkRev := link.New(cfg.LinkRev, rngRev)
	clk.Register(linkFwd)
	clk.Register(linkRev)

	fecEnc := fec.NewEncoder(fecRedundancyRate)
	fecDec := fec.NewDecoder(fecRedundancyRate)

	videoSender := video.NewSender(cfg.CodecTable, fecEnc)
	videoReceiver := video.NewReceiver(cfg.CodecTable, fecDec)

	senderCC, err := newController(cfg.Strategy, linkFwd, fecEnc)
	if err != nil {
		return nil, err
	}
	// The receiver side always runs Oracle (reading its own tx link's
	// capacity directly) except for gcc, which is symmetric and runs on
	// both ends; matches original_source/simulator.cc's wiring exactly.
	receiverStrategy := StrategyOracle
	if cfg.Strategy == StrategyGCC {
		receiverStrategy = StrategyGCC
	}
	receiverCC, err := newController(receiverStrategy, linkRev, nil)
	if err != nil {
		return nil, err
	}

	if cfg.Metrics != nil {
		senderCC = &simmetrics.ObservingController{Controller: senderCC, Registry: cfg.Metrics, Label: "sender"}
		receiverCC = &simmetrics.ObservingController{Controller: receiverCC, Registry: cfg.Metrics, Label: "receiver"}
	}

	senderPacer := pacer.New(senderPacerCeilingBytes, units.FromMilliseconds(senderPacerUpdateMs))
	receiverPacer := pacer.New(receiverPacerCeilingBytes, units.FromMilliseconds(receiverPacerUpdateMs))

	s := &Simulation{clock: clk, linkFwd: linkFwd, linkRev: linkRev, senderCC: senderCC, receiverCC: receiverCC}

	switch cfg.Variant {
	case VariantSalsify:
		videoSender.DisablePadding()
		videoSender.MTUBasePacketize()

		senderRtx := rtx.NewAckManager(senderCC)
		senderHost := host.New(0, linkFwd, linkRev, senderPacer, senderCC, senderRtx, videoSender).WithMetrics(cfg.Metrics, "sender")
		s.sender = host.NewSalsify(senderHost)

		receiverHost := host.New(1, linkRev, linkFwd, receiverPacer, receiverCC, nil, videoReceiver).WithMetrics(cfg.Metrics, "receiver")
		s.receiver = host.NewSalsify(receiverHost)

	case VariantRTP, "":
		senderRtx := rtx.NewNackManager()
		senderHost := host.New(0, linkFwd, linkRev, senderPacer, senderCC, senderRtx, videoSender).WithMetrics(cfg.Metrics, "sender")
		s.sender = host.NewRTP(senderHost, nil)

		receiverHost := host.New(1, linkRev, linkFwd, receiverPacer, receiverCC, nil, videoReceiver).WithMetrics(cfg.Metrics, "receiver")
		rtpReceiver := host.NewRTP(receiverHost, videoReceiver)
		s.receiver = rtpReceiver

	default:
		return nil, fmt.Errorf("sim: unknown host variant %q", cfg.Variant)
	}

	clk.Register(s.sender)
	clk.Register(s.receiver)

	return s, nil
}

func newController(strategy Strategy, txLink *link.Link, fecEnc *fec.Encoder) (cc.Controller, error) {
	switch strategy {
	case StrategyOracle:
		return cc.NewOracle(txLink), nil
	case StrategySalsify:
		return cc.NewSalsify(videoFPS), nil
	case StrategyGCC:
		return cc.NewGCC(), nil
	case StrategyFBRA:
		return cc.NewFBRA(fecEnc), nil
	default:
		return nil, fmt.Errorf("sim: unknown congestion controller %q", strategy)
	}
}

// Run advances the clock for the given wall-clock-equivalent simulated
// duration, then logs one completion message at info level.
func (s *Simulation) Run(duration units.Duration) {
	steps := int64(duration) / int64(s.clock.Resolution())
	for i := int64(0); i < steps; i++ {
		s.clock.Tick()
	}
	simlog.For(s.clock.Now(), 0).Tickf("simulation complete after %d steps", steps)
}

// Now returns the simulation's current instant.
func (s *Simulation) Now() units.Timestamp { return s.clock.Now() }

// Reset rewinds every observer (links and hosts) to its construction-time
// state. The links' loss RNGs are not reseeded and keep their state.
func (s *Simulation) Reset() {
	s.clock.Reset()
}
