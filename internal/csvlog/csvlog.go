// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

// Package csvlog holds the CSV row schemas and marshal/unmarshal helpers
// for every external CSV surface named in spec.md section 6: the
// bandwidth trace, the codec lookup table, and the per-host/application/
// controller run logs.
//
// Grounded on m-lab-tcp-info/cmd/csvtool's gocsv.Marshal/Unmarshal usage.
package csvlog

import (
	"io"

	"github.com/gocarina/gocsv"

	"github.com/sceasim/sceasim/internal/codec"
	"github.com/sceasim/sceasim/internal/link"
	"github.com/sceasim/sceasim/internal/units"
)

// TraceRow is one row of the bandwidth-trace CSV. The 6th column
// ("reserved", called T_s by the original tool) is parsed but
// deliberately never acted on, per spec.md's Open Questions.
type TraceRow struct {
	TimeMs         float64 `csv:"time_ms"`
	BandwidthMbps  float64 `csv:"bandwidth_mbps"`
	PropDelayMs    float64 `csv:"prop_delay_ms"`
	RandomLossRate float64 `csv:"random_loss_rate"`
	QueueCapByte   int64   `csv:"queue_cap_byte"`
	Reserved       string  `csv:"reserved"`
}

// ReadTrace unmarshals a bandwidth-trace CSV from r.
func ReadTrace(r io.Reader) ([]*TraceRow, error) {
	var rows []*TraceRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// BuildLinkConfig turns parsed trace rows into a link.Config: the bandwidth
// column becomes the cyclic trace, and the scalar columns (propagation
// delay, random loss, queue cap) start from the first row's values and are
// overridden by any later row's non-zero value, so the last non-zero value
// wins; rows may leave them empty to inherit.
func BuildLinkConfig(rows []*TraceRow) link.Config {
	if len(rows) == 0 {
		return link.Config{}
	}
	var step units.Duration
	if len(rows) > 1 {
		step = units.FromMilliseconds(rows[1].TimeMs - rows[0].TimeMs)
	}
	rates := make([]units.Rate, len(rows))
	propDelayMs := rows[0].PropDelayMs
	lossRate := rows[0].RandomLossRate
	queueCap := rows[0].QueueCapByte
	for i, row := range rows {
		rates[i] = units.Rate(row.BandwidthMbps * 1e6)
		if row.PropDelayMs != 0 {
			propDelayMs = row.PropDelayMs
		}
		if row.RandomLossRate != 0 {
			lossRate = row.RandomLossRate
		}
		if row.QueueCapByte != 0 {
			queueCap = row.QueueCapByte
		}
	}
	return link.Config{
		Trace:         link.Trace{Step: step, Rates: rates},
		PropDelay:     units.FromMilliseconds(propDelayMs),
		RandomLoss:    lossRate,
		QueueCapBytes: units.Bytes(queueCap),
	}
}

// BuildCodecTable turns parsed codec-table rows into a codec.Table, folding
// the file's 1-based frame ids (with 0 reserved as a skip marker) down to
// the table's internal 0-based, mod-NFrames row index.
func BuildCodecTable(rows []*CodecRow) codec.Table {
	if len(rows) == 0 {
		return nil
	}
	n := rows[0].NFrames
	table := make(codec.Table, n)
	for i := range table {
		table[i] = codec.Row{}
	}
	for _, row := range rows {
		if row.FrameID == 0 {
			continue
		}
		idx := (row.FrameID - 1) % n
		lt, ok := table[idx][row.ModelID]
		if !ok {
			lt = codec.LossTable{}
			table[idx][row.ModelID] = lt
		}
		lt[codec.RoundLoss(row.LossRate)] = codec.Stats{
			Size: units.Bytes(row.SizeBytes),
			PSNR: row.PSNR,
			SSIM: row.SSIM,
		}
	}
	return table
}

// CodecRow is one row of the codec lookup-table CSV. FrameID is 1-based
// in the file; callers convert to the table's internal 0-based,
// mod-NFrames indexing.
type CodecRow struct {
	SizeBytes int64   `csv:"size_bytes"`
	PSNR      float64 `csv:"psnr"`
	SSIM      float64 `csv:"ssim"`
	LossRate  float64 `csv:"loss_rate"`
	FrameID   int64   `csv:"frame_id"`
	NFrames   int64   `csv:"n_frames"`
	ModelID   int     `csv:"model_id"`
	VideoName string  `csv:"video_name"`
}

// ReadCodecTable unmarshals a codec lookup-table CSV from r.
func ReadCodecTable(r io.Reader) ([]*CodecRow, error) {
	var rows []*CodecRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// PacketLogRow is one send or receive event in a host's packet log.
type PacketLogRow struct {
	TimestampUs int64  `csv:"timestamp_us"`
	Event       string `csv:"event"` // "sent" or "rcvd"
	Kind        string `csv:"kind"`
	Seq         uint64 `csv:"seq"`
	AckSeq      uint64 `csv:"ack_seq"`
	SizeByte    int64  `csv:"size_byte"`
	OWDUs       int64  `csv:"owd_us"`
	RTTUs       int64  `csv:"rtt_us"`
	TxQSizeByte int64  `csv:"tx_qsize_byte"`
	RxQSizeByte int64  `csv:"rx_qsize_byte"`
}

// VideoSenderLogRow is one encoded-frame event in the sender's video log.
type VideoSenderLogRow struct {
	TimestampUs        int64   `csv:"timestamp_us"`
	TargetBitrateBps   int64   `csv:"target_bitrate_bps"`
	FECDataRateBps     int64   `csv:"fec_data_rate_bps"`
	FrameBitrateBps    int64   `csv:"frame_bitrate_bps"`
	MinFrameBitrateBps int64   `csv:"min_frame_bitrate_bps"`
	MaxFrameBitrateBps int64   `csv:"max_frame_bitrate_bps"`
	FECRate            float64 `csv:"fec_rate"`
	ModelID            int     `csv:"model_id"`
	PaddingByte        int64   `csv:"padding_byte"`
}

// VideoReceiverLogRow is one decoded-frame event in the receiver's video
// log.
type VideoReceiverLogRow struct {
	FrameID         int64   `csv:"frame_id"`
	ModelID         int     `csv:"model_id"`
	FrameEncodeTsUs int64   `csv:"frame_encode_ts_us"`
	FrameDecodeTsUs int64   `csv:"frame_decode_ts_us"`
	EncodeBitrateBps int64  `csv:"encode_bitrate_bps"`
	FrameLossRate   float64 `csv:"frame_loss_rate"`
	SSIM            float64 `csv:"ssim"`
	PSNR            float64 `csv:"psnr"`
}

// GCCLogRow is one RTCP-report event in the GCC-like controller's log.
type GCCLogRow struct {
	TimestampUs      int64   `csv:"timestamp_us"`
	RateBps          int64   `csv:"rate_bps"`
	LossBasedRateBps int64   `csv:"loss_based_rate_bps"`
	DelayBasedRateBps int64  `csv:"delay_based_rate_bps"`
	State            string  `csv:"remote_rate_control_state"`
	DelayGradient    float64 `csv:"delay_gradient"`
	DelayGradientHat float64 `csv:"delay_gradient_hat"`
	Threshold        float64 `csv:"delay_gradient_thresh"`
	RcvRateBps       int64   `csv:"rcv_rate_bps"`
	Overuse          bool    `csv:"overuse_signal"`
	LossFraction     float64 `csv:"loss_fraction"`
}

// FBRALogRow is one state-transition event in the threshold/FEC
// controller's log.
type FBRALogRow struct {
	TimestampUs int64   `csv:"timestamp_us"`
	RateBps     int64   `csv:"rate_bps"`
	State       string  `csv:"state"`
	FECInterval int     `csv:"fec_interval"`
	CorrLow     float64 `csv:"corr_low"`
	CorrHigh    float64 `csv:"corr_high"`
}

// SalsifyLogRow is one ACK event in the rate-matching controller's log.
type SalsifyLogRow struct {
	TimestampUs      int64 `csv:"timestamp_us"`
	RateBps          int64 `csv:"rate_bps"`
	EncodeBitrateBps int64 `csv:"encode_bitrate_bps"`
	Inflight         int   `csv:"inflight"`
	InterarrivalUs   int64 `csv:"interarrival_us"`
}

// Writer buffers rows of type T and marshals them to w on Flush, keeping
// the simulation's hot path free of per-row I/O.
type Writer[T any] struct {
	w    io.Writer
	rows []T
}

// NewWriter returns a Writer sinking to w.
func NewWriter[T any](w io.Writer) *Writer[T] {
	return &Writer[T]{w: w}
}

// Append queues one row.
func (wr *Writer[T]) Append(row T) {
	wr.rows = append(wr.rows, row)
}

// Flush marshals all queued rows as CSV and clears the buffer.
func (wr *Writer[T]) Flush() error {
	if len(wr.rows) == 0 {
		return nil
	}
	if err := gocsv.Marshal(wr.rows, wr.w); err != nil {
		return err
	}
	wr.rows = wr.rows[:0]
	return nil
}
