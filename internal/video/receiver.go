// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package video

import (
	"github.com/sceasim/sceasim/internal/codec"
	"github.com/sceasim/sceasim/internal/fec"
	"github.com/sceasim/sceasim/internal/packet"
	"github.com/sceasim/sceasim/internal/units"
)

// FrameGradientSink is the capability a host variant plugs in to learn
// about consecutive decoded frames' send/receive instants, e.g. to feed
// a GCC-like controller's delay-based estimator. Defined here (rather
// than importing internal/cc) so video has no dependency on any
// congestion-control strategy; internal/cc.GCC satisfies this
// structurally.
type FrameGradientSink interface {
	OnFrameRcvd(sentCur, rcvdCur, sentPrev, rcvdPrev units.Timestamp)
}

// FrameDecodedSink is the capability a host variant plugs in to learn
// about newly decoded frames, e.g. to truncate a NACK module's gap
// tracking up to a frame no longer worth retransmitting packets for.
// internal/host.RtpHost satisfies this structurally.
type FrameDecodedSink interface {
	OnFrameDecoded(highestSeq packet.Seq)
}

// Receiver is the video application's receiving half: it reassembles
// packets into frames keyed by frame id, FEC-decodes, gates decode on
// the next frame having at least one packet arrived, and evicts frames
// two behind the current decode point.
type Receiver struct {
	decoder    codec.Decoder
	fecDecoder *fec.Decoder

	frames map[int64]*packet.Frame

	frameID         int64
	firstDecodeTs   units.Timestamp
	haveFirstDecode bool
	frameInterval   units.Duration

	gradientSink   FrameGradientSink
	decodedSink    FrameDecodedSink
	lastDecoded    *packet.Frame
	lastDecodedID  int64
	haveLastDecoded bool
}

// NewReceiver returns a Receiver using table for quality lookup and
// fecDecoder for the optional FEC reconstruction step (nil means no FEC).
func NewReceiver(table codec.Table, fecDecoder *fec.Decoder) *Receiver {
	return &Receiver{
		decoder:       codec.Decoder{Table: table},
		fecDecoder:    fecDecoder,
		frames:        make(map[int64]*packet.Frame),
		frameInterval: units.FromSeconds(1.0 / FPS),
	}
}

// SetFrameGradientSink registers the host's delay-gradient sink; nil
// disables the callback (the default).
func (r *Receiver) SetFrameGradientSink(sink FrameGradientSink) {
	r.gradientSink = sink
}

// SetFrameDecodedSink registers the host's NACK-truncation sink; nil
// disables the callback (the default).
func (r *Receiver) SetFrameDecodedSink(sink FrameDecodedSink) {
	r.decodedSink = sink
}

// DeliverPkt accumulates an arriving data packet into its frame's
// reassembly state. Padding packets and already-seen sequence numbers
// (duplicate delivery from a retransmit race) are dropped.
func (r *Receiver) DeliverPkt(p *packet.Packet) {
	if p.App == nil || p.App.Padding {
		return
	}
	app := p.App

	f, ok := r.frames[app.FrameID]
	if ok {
		if _, dup := f.PktsRcvd[p.Seq]; dup {
			return
		}
		f.BytesRcvd += p.Size
		f.NumPktsRcvd++
		f.PktsRcvd[p.Seq] = struct{}{}
		f.LastPktSent = p.LastSent
		f.LastPktRcvd = p.Received
		return
	}

	f = packet.NewFrame(app.FrameID)
	f.ModelID = app.ModelID
	f.FirstPktSeq = p.Seq
	f.FrameSize = app.FrameSize
	f.FrameSizeFEC = app.FrameSizeFEC
	f.BytesRcvd = p.Size
	f.NumPkts = app.NumPkts
	f.NumPktsRcvd = 1
	f.EncodeBitrate = app.EncodeBitrate
	f.EncodeTs = app.EncodeTs
	f.FECRate = app.FECRate
	f.PktsRcvd[p.Seq] = struct{}{}
	f.LastPktSent = p.LastSent
	f.LastPktRcvd = p.Received
	r.frames[app.FrameID] = f
}

// Tick advances the decode point as far as contiguous, decodable frames
// allow: frame 0 decodes as soon as it has arrived lossless; no later
// frame decodes until one frame interval has passed since frame 0
// decoded, and each later frame also waits for at least one packet of the
// next frame id to have arrived (original_source's "defensive, not a real
// signal" probe of whether more data is still coming).
func (r *Receiver) Tick(now units.Timestamp) {
	for {
		f, ok := r.frames[r.frameID]
		if !ok {
			return
		}
		if r.frameID != 0 && (!r.haveFirstDecode || now.Sub(r.firstDecodeTs) < r.frameInterval) {
			return
		}

		if r.fecDecoder != nil {
			f.BytesDecoded = r.fecDecoder.Decode(f.FrameSizeFEC, f.BytesRcvd)
		} else {
			f.BytesDecoded = f.BytesRcvd
		}

		_, nextHasPacket := r.frames[r.frameID+1]
		lossRate := f.LossRate()
		if !codec.CanDecode(r.frameID, lossRate, nextHasPacket) {
			return
		}

		psnr, ssim, ok := r.decoder.Decode(r.frameID, f.ModelID, lossRate)
		if !ok {
			return
		}
		f.PSNR, f.SSIM = psnr, ssim
		f.DecodeTs = now

		if r.gradientSink != nil && r.frameID > 0 {
			if prev, ok := r.frames[r.frameID-1]; ok {
				r.gradientSink.OnFrameRcvd(f.LastPktSent, f.LastPktRcvd, prev.LastPktSent, prev.LastPktRcvd)
			}
		}

		if r.decodedSink != nil {
			r.decodedSink.OnFrameDecoded(f.FirstPktSeq + packet.Seq(f.NumPkts) - 1)
		}

		r.lastDecoded = f
		r.lastDecodedID = r.frameID
		r.haveLastDecoded = true

		if !r.haveFirstDecode {
			r.haveFirstDecode = true
			r.firstDecodeTs = now
		}
		delete(r.frames, r.frameID-2)
		r.frameID++
	}
}

// LastDecodedFrameID returns the most recently decoded frame's id, or -1
// if no frame has decoded yet.
func (r *Receiver) LastDecodedFrameID() int64 {
	if !r.haveLastDecoded {
		return -1
	}
	return r.lastDecodedID
}

// LastDecodedFrame returns the most recently decoded Frame, or nil.
func (r *Receiver) LastDecodedFrame() *packet.Frame {
	return r.lastDecoded
}

// PktToSendSize always reports 0: a receiver emits no application data of
// its own (RTP/Salsify host variants build their control packets directly
// via Host.EnqueueControl, bypassing this path).
func (r *Receiver) PktToSendSize() units.Bytes { return 0 }

// PktToSend never has anything to return; see PktToSendSize.
func (r *Receiver) PktToSend() *packet.Packet { return nil }

// QueueSizeBytes returns the bytes buffered across all in-flight frames.
func (r *Receiver) QueueSizeBytes() units.Bytes {
	var total units.Bytes
	for _, f := range r.frames {
		total += f.BytesRcvd
	}
	return total
}

// Reset clears all receiver state back to frame 0.
func (r *Receiver) Reset() {
	r.frameID = 0
	r.haveFirstDecode = false
	r.frames = make(map[int64]*packet.Frame)
	r.lastDecoded = nil
	r.haveLastDecoded = false
}
