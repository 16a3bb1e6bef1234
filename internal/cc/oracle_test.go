// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package cc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sceasim/sceasim/internal/units"
)

type fakeLink struct {
	bits int64
}

func (f *fakeLink) AvailableBits(t0, t1 units.Timestamp) int64 {
	return f.bits
}

// Oracle on a constant 2Mbps trace: GetEstRate tracks the link's available
// bits over the window exactly, with no smoothing or convergence lag.
func TestOracleTracksLinkCapacityExactly(t *testing.T) {
	link := &fakeLink{bits: int64(2 * units.Mbps)} // 1 second's worth of bits
	o := NewOracle(link)

	rate := o.GetEstRate(0, units.FromSeconds(1))
	require.Equal(t, units.Rate(2*units.Mbps), rate)
}

func TestOracleZeroWindowReturnsZero(t *testing.T) {
	link := &fakeLink{bits: 1000}
	o := NewOracle(link)
	require.Equal(t, units.Rate(0), o.GetEstRate(10, 10))
}
