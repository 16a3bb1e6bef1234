// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

// Package clock implements the simulator's tick dispatcher: a fixed
// resolution clock that advances a registered list of observers in
// lockstep.
//
// Grounded on original_source/simulator/clock.{h,cc} (ClockObserverInterface,
// Tick/Reset/Elapse), restructured per spec.md's REDESIGN FLAGS as an
// explicit handle instead of a process-wide singleton (Clock::GetClock()).
package clock

import "github.com/sceasim/sceasim/internal/units"

// Observer is ticked once per clock step, in registration order. Links are
// conventionally registered before the hosts that depend on them.
type Observer interface {
	Tick(now units.Timestamp)
	Reset()
}

// Clock is a fixed-resolution tick dispatcher holding non-owning references
// to its observers.
type Clock struct {
	resolution units.Duration
	now        units.Timestamp
	observers  []Observer
}

// New returns a Clock with the given tick resolution (1ms if zero).
func New(resolution units.Duration) *Clock {
	if resolution <= 0 {
		resolution = units.FromMilliseconds(1)
	}
	return &Clock{resolution: resolution}
}

// Register appends an observer. Order is preserved across ticks and resets.
func (c *Clock) Register(o Observer) {
	c.observers = append(c.observers, o)
}

// Now returns the current simulated instant.
func (c *Clock) Now() units.Timestamp {
	return c.now
}

// Resolution returns the clock's fixed tick step.
func (c *Clock) Resolution() units.Duration {
	return c.resolution
}

// Tick advances simulated time by one resolution step and invokes every
// observer in registration order.
func (c *Clock) Tick() {
	c.now = c.now.Add(c.resolution)
	for _, o := range c.observers {
		o.Tick(c.now)
	}
}

// Elapse ticks the clock d/resolution times (rounded down), so a d that
// is not a multiple of the resolution advances by less than d.
func (c *Clock) Elapse(d units.Duration) {
	n := int64(d) / int64(c.resolution)
	for i := int64(0); i < n; i++ {
		c.Tick()
	}
}

// Reset invokes every observer's Reset, then zeroes simulated time.
// Reset clears per-observer transient state but preserves configuration.
func (c *Clock) Reset() {
	for _, o := range c.observers {
		o.Reset()
	}
	c.now = 0
}
