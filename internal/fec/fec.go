// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

// Package fec implements frame-level forward error correction: byte-size
// inflation on encode, threshold-based reconstruction on decode.
//
// Grounded on original_source/simulator/fec.h.
package fec

import "github.com/sceasim/sceasim/internal/units"

// Encoder inflates a frame's byte size by 1/(1-rate) when enabled.
type Encoder struct {
	enabled bool
	rate    float64 // redundancy rate r, in [0,1)
}

// NewEncoder returns a disabled Encoder with the given redundancy rate.
func NewEncoder(rate float64) *Encoder {
	return &Encoder{rate: rate}
}

// Enable turns FEC encoding on.
func (e *Encoder) Enable() { e.enabled = true }

// Disable turns FEC encoding off; Encode then passes sizes through.
func (e *Encoder) Disable() { e.enabled = false }

// Enabled reports whether FEC is currently applied.
func (e *Encoder) Enabled() bool { return e.enabled }

// Rate returns the configured redundancy rate.
func (e *Encoder) Rate() float64 { return e.rate }

// SetRate sets the redundancy rate used by subsequent Encode calls.
func (e *Encoder) SetRate(r float64) { e.rate = r }

// Encode returns the FEC-inflated size of a frame of size bytes.
func (e *Encoder) Encode(size units.Bytes) units.Bytes {
	if !e.enabled || e.rate <= 0 {
		return size
	}
	return units.Bytes(float64(size) / (1 - e.rate))
}

// Decoder decides whether a frame is fully reconstructed from a partial
// byte count against the configured redundancy rate.
type Decoder struct {
	rate float64
}

// NewDecoder returns a Decoder with the given redundancy rate.
func NewDecoder(rate float64) *Decoder {
	return &Decoder{rate: rate}
}

// SetRate sets the redundancy rate used by subsequent Decode calls.
func (d *Decoder) SetRate(r float64) { d.rate = r }

// Decode returns the decoded byte count: the full FEC-encoded size if the
// observed loss fraction is within the redundancy rate, else the bytes
// actually received.
func (d *Decoder) Decode(fecEncSize, bytesReceived units.Bytes) units.Bytes {
	if fecEncSize <= 0 {
		return bytesReceived
	}
	lossFrac := 1 - float64(bytesReceived)/float64(fecEncSize)
	if lossFrac <= d.rate {
		return fecEncSize
	}
	return bytesReceived
}
