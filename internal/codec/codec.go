// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

// Package codec implements the target-size encoder and loss-conditioned
// quality decoder that sit between the video sender/receiver and the
// (external, file-backed) lookup table.
//
// Grounded on original_source/simulator/application/codec.cc: the
// model-selection tie-break rule and the decode gating/rounding rule. The
// row skip of frame_id==0 with a following frame_id-- (1-based file
// convention -> 0-based internal) happens when the table is built, in
// csvlog.BuildCodecTable.
package codec

import (
	"math"

	"github.com/sceasim/sceasim/internal/units"
)

// Stats is the {size, psnr, ssim} bundle for one (frame row, model,
// rounded loss rate) entry.
type Stats struct {
	Size units.Bytes
	PSNR float64
	SSIM float64
}

// LossTable maps a rounded loss rate (to the nearest 0.1) to Stats for one
// model.
type LossTable map[float64]Stats

// Row is one frame_id mod N entry: model id -> loss table. Invariant: every
// row exposes at least one model at loss 0.0, and no model carries more
// than 10 loss bins.
type Row map[int]LossTable

// Table is the dense, frame_id-mod-N-indexed codec lookup table.
type Table []Row

// Size returns the number of distinct frame rows in the table.
func (t Table) Size() int {
	return len(t)
}

// row returns the table row for frameID, wrapping modulo the table size.
func (t Table) row(frameID int64) Row {
	n := int64(len(t))
	idx := frameID % n
	if idx < 0 {
		idx += n
	}
	return t[idx]
}

// EncodeResult is the outcome of a model-selection call.
type EncodeResult struct {
	ModelID int
	Size    units.Bytes
	MinSize units.Bytes
	MaxSize units.Bytes
}

// Encoder selects a zero-loss model size closest to (without routinely
// exceeding) a target byte budget.
type Encoder struct {
	Table Table
}

// Encode selects, from frameID's row, the model whose zero-loss size is the
// largest not exceeding targetBytes (tie-broken by smallest positive gap);
// if no model fits under the target, selects the one whose size is closest
// above it. Also reports the {min, max} zero-loss sizes over all models in
// the row.
func (e *Encoder) Encode(frameID int64, targetBytes units.Bytes) EncodeResult {
	row := e.Table.row(frameID)

	var res EncodeResult
	haveBest := false
	bestPositiveGap := units.Bytes(math.MaxInt64)
	haveFallback := false
	bestNegativeGap := units.Bytes(math.MaxInt64)

	first := true
	for modelID, lt := range row {
		st, ok := lt[0.0]
		if !ok {
			continue
		}
		if first {
			res.MinSize, res.MaxSize = st.Size, st.Size
			first = false
		} else {
			if st.Size < res.MinSize {
				res.MinSize = st.Size
			}
			if st.Size > res.MaxSize {
				res.MaxSize = st.Size
			}
		}

		if st.Size <= targetBytes {
			gap := targetBytes - st.Size
			if !haveBest || gap < bestPositiveGap {
				haveBest = true
				bestPositiveGap = gap
				res.ModelID, res.Size = modelID, st.Size
			}
		} else {
			gap := st.Size - targetBytes
			if !haveFallback || gap < bestNegativeGap {
				haveFallback = true
				bestNegativeGap = gap
				if !haveBest {
					res.ModelID, res.Size = modelID, st.Size
				}
			}
		}
	}
	return res
}

// Decoder looks up quality metrics once a frame is decodable.
type Decoder struct {
	Table Table
}

// RoundLoss rounds a loss rate to the nearest 0.1, the table's bin width.
func RoundLoss(lossRate float64) float64 {
	return math.Round(lossRate*10) / 10
}

// CanDecode reports whether frameID is decodable given its own loss rate
// and whether at least one packet of the next frame has arrived.
func CanDecode(frameID int64, lossRate float64, nextFrameHasPacket bool) bool {
	if frameID == 0 {
		return lossRate == 0.0
	}
	return nextFrameHasPacket && lossRate <= 0.9
}

// Decode looks up (modelID, round(lossRate,1)) in frameID's row and
// reports the PSNR/SSIM bundle, or ok=false if absent.
func (d *Decoder) Decode(frameID int64, modelID int, lossRate float64) (psnr, ssim float64, ok bool) {
	row := d.Table.row(frameID)
	lt, ok := row[modelID]
	if !ok {
		return 0, 0, false
	}
	st, ok := lt[RoundLoss(lossRate)]
	if !ok {
		return 0, 0, false
	}
	return st.PSNR, st.SSIM, true
}
