// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package link

import "github.com/sceasim/sceasim/internal/units"

// Trace is a fixed-step bandwidth schedule. The time axis is cyclic modulo
// the trace's total duration once the simulation outruns it.
//
// Grounded on original_source/simulator/link.cc's GetAvailBitsToSend, which
// walks the bins intersecting an interval, adding bw*bin_width for fully
// covered bins and bandwidth-weighted fractional bits for the partial
// prefix/suffix bins.
type Trace struct {
	Step  units.Duration // fixed bin width
	Rates []units.Rate   // bandwidth sample per bin
}

// Duration returns the trace's total cyclic length.
func (t *Trace) Duration() units.Duration {
	return t.Step * units.Duration(len(t.Rates))
}

// AvailableBits integrates the trace over [t0, t1) and returns the number
// of bits the bandwidth schedule allotted in that window. Side-effect
// free; t1 must not precede t0.
func (t *Trace) AvailableBits(t0, t1 units.Timestamp) int64 {
	if t1 <= t0 || len(t.Rates) == 0 {
		return 0
	}
	step := int64(t.Step)
	n := int64(len(t.Rates))
	total := n * step

	start := int64(t0) % total
	if start < 0 {
		start += total
	}
	span := int64(t1) - int64(t0)
	end := start + span

	var bits int64
	pos := start
	for pos < end {
		binIdx := (pos / step) % n
		binStart := (pos / step) * step
		binEnd := binStart + step
		segEnd := binEnd
		if segEnd > end {
			segEnd = end
		}
		dur := units.Duration(segEnd - pos)
		bits += t.Rates[binIdx].BitsOver(dur)
		pos = segEnd
	}
	return bits
}
