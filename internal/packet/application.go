// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package packet

import "github.com/sceasim/sceasim/internal/units"

// ApplicationPayload is the video application's per-packet metadata,
// grounded on original_source's ApplicationData/VideoData structs.
type ApplicationPayload struct {
	FrameID        int64
	ModelID        int
	Offset         units.Bytes
	NumPkts        int
	FrameSize      units.Bytes // raw, pre-FEC
	FrameSizeFEC   units.Bytes // post-FEC-inflation
	EncodeTs       units.Timestamp
	EncodeBitrate  units.Rate
	FECRate        float64
	Padding        bool
	PaddingSize    units.Bytes
}

// Frame is the receiver-side reassembly unit for one encoded video frame.
//
// Grounded on original_source/simulator/application/frame.h.
type Frame struct {
	FrameID      int64
	ModelID      int
	FirstPktSeq  Seq
	FrameSize    units.Bytes
	FrameSizeFEC units.Bytes
	BytesRcvd    units.Bytes
	BytesDecoded units.Bytes
	NumPkts      int
	NumPktsRcvd  int
	EncodeBitrate units.Rate
	EncodeTs     units.Timestamp
	DecodeTs     units.Timestamp
	LastPktSent  units.Timestamp
	LastPktRcvd  units.Timestamp
	FECRate      float64
	PktsRcvd     map[Seq]struct{}

	// Quality metrics, -1 until decode succeeds.
	PSNR float64
	SSIM float64
}

// NewFrame returns a Frame ready to accumulate packets for frameID.
func NewFrame(frameID int64) *Frame {
	return &Frame{
		FrameID:  frameID,
		PktsRcvd: make(map[Seq]struct{}),
		PSNR:     -1.0,
		SSIM:     -1.0,
	}
}

// FrameDelay returns decode_ts - encode_ts. Only meaningful once decoded.
func (f *Frame) FrameDelay() units.Duration {
	return f.DecodeTs.Sub(f.EncodeTs)
}

// LossRate returns the frame's loss rate per the three-way rule in
// spec.md's Invariants: after FEC decode, before FEC decode, against the
// raw (non-FEC-inflated) frame size when the frame carries no FEC at all,
// or -1.0 when none of those byte counts are yet meaningful.
func (f *Frame) LossRate() float64 {
	switch {
	case f.FrameSizeFEC > 0 && f.BytesDecoded > 0:
		return 1.0 - float64(f.BytesDecoded)/float64(f.FrameSizeFEC)
	case f.FrameSizeFEC > 0:
		return 1.0 - float64(f.BytesRcvd)/float64(f.FrameSizeFEC)
	case f.FrameSize > 0:
		return 1.0 - float64(f.BytesRcvd)/float64(f.FrameSize)
	default:
		return -1.0
	}
}

// Decoded reports whether the frame has completed decode.
func (f *Frame) Decoded() bool {
	return f.DecodeTs != 0
}
