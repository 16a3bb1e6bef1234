// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package units

import "fmt"

// Rate is a non-negative bit rate, in bits per second.
//
// original_source's Rate type performs rate - rate with an assert that the
// left operand is not smaller than the right, which silently misbehaves if
// ported as a raw subtraction. Rate.Sub and Rate.Mul here saturate at zero
// instead; Rate.Add is plain int64 addition.
type Rate int64

// Rate constructors over common units.
const (
	Bps  = Rate(1)
	Kbps = Bps * 1000
	Mbps = Kbps * 1000
	Gbps = Mbps * 1000
)

// FromBytesPerSecond returns the Rate equivalent to the given byte rate.
func FromBytesPerSecond(bps float64) Rate {
	return Rate(bps * 8)
}

// BytesPerSecond returns r as bytes per second.
func (r Rate) BytesPerSecond() float64 {
	return float64(r) / 8
}

// Mbps returns r as megabits per second.
func (r Rate) Mbps() float64 {
	return float64(r) / float64(Mbps)
}

// IsZero reports whether r is the zero rate.
func (r Rate) IsZero() bool {
	return r == 0
}

// Mul returns r scaled by f, floored, never negative.
func (r Rate) Mul(f float64) Rate {
	v := Rate(float64(r) * f)
	if v < 0 {
		return 0
	}
	return v
}

// Add returns the sum of two rates.
func (r Rate) Add(o Rate) Rate {
	return r + o
}

// Sub returns r - o, saturating at zero (see the type doc comment).
func (r Rate) Sub(o Rate) Rate {
	if o >= r {
		return 0
	}
	return r - o
}

// MinRate returns the smaller of two rates.
func MinRate(a, b Rate) Rate {
	if a < b {
		return a
	}
	return b
}

// MaxRate returns the larger of two rates.
func MaxRate(a, b Rate) Rate {
	if a > b {
		return a
	}
	return b
}

// Clamp returns r clamped to [lo, hi].
func (r Rate) Clamp(lo, hi Rate) Rate {
	if r < lo {
		return lo
	}
	if r > hi {
		return hi
	}
	return r
}

// BitsOver returns the number of bits transferable at rate r over d,
// floored to an integer bit count.
func (r Rate) BitsOver(d Duration) int64 {
	return int64(float64(r) * d.Seconds())
}

// TransferTime returns the time needed to send size at rate r.
func (r Rate) TransferTime(size Bytes) Duration {
	if r == 0 {
		return Duration(1<<63 - 1)
	}
	return FromSeconds(float64(size.Bits()) / float64(r))
}

// String implements fmt.Stringer.
func (r Rate) String() string {
	return fmt.Sprintf("%.3fMbps", r.Mbps())
}
