// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package host

import (
	"github.com/sceasim/sceasim/internal/packet"
	"github.com/sceasim/sceasim/internal/units"
	"github.com/sceasim/sceasim/internal/video"
)

const (
	rtcpIntervalMs  = 50
	rembIntervalMs  = 1000
	controlPktSize  = units.Bytes(40) // RTCP/NACK/ACK overhead, not MSS-packetized
	owdSmoothingAlpha = 0.1
)

type rtpState struct {
	maxSeq, baseSeq       packet.Seq
	haveBaseSeq           bool
	received              uint64
	expectedPrior         uint64
	receivedPrior         uint64
	bytesReceived         units.Bytes
	bytesReceivedPrior    units.Bytes
	rtt                   units.Duration
}

// RtpHost layers RTCP report generation and NACK-based gap recovery on
// top of the generic Host, for the RTP wire-format variant.
//
// Grounded on original_source/rtp_host.{h,cc} (declared NackModule
// contract implemented per spec.md 4.11, since the .cc body for it was
// not present in the source handed to us) and
// rtx_manager/rtp_rtx_manager.{h,cc}.
type RtpHost struct {
	*Host

	receiver *video.Receiver // non-nil only on the receiving end of this flow

	state rtpState
	owdMs float64
	haveOWD bool

	lastRTCPReport units.Timestamp
	lastREMB       units.Timestamp

	nack *nackModule
}

// remoteEstimator is satisfied by cc.GCC; checked with a type assertion
// to obtain the REMB value carried in RTCP reports.
type remoteEstimator interface {
	RemoteEstimatedRate() units.Rate
}

// NewRTP wraps h as an RTP host variant. receiver is the video receiver
// to read the last-decoded frame id and frame-arrival events from; pass
// nil when h's application is the video sender (RTCP generation and NACK
// tracking are receiver-only, matching original_source's early-return
// when app_ is a VideoSender).
func NewRTP(h *Host, receiver *video.Receiver) *RtpHost {
	r := &RtpHost{Host: h, receiver: receiver, nack: newNackModule()}
	h.OnPktSent = r.onPktSent
	h.OnPktRcvd = r.onPktRcvd
	if receiver != nil {
		if sink, ok := unwrapController(h.Controller()).(video.FrameGradientSink); ok {
			receiver.SetFrameGradientSink(sink)
		}
		receiver.SetFrameDecodedSink(r)
	}
	return r
}

// onPktSent marks outgoing application data as RTP data, so the
// receiving RtpHost's sequence bookkeeping and NACK module see it.
func (r *RtpHost) onPktSent(p *packet.Packet) {
	if p.Kind == packet.KindData {
		p.Kind = packet.KindRTPData
	}
}

// onPktRcvd updates RTP sequence-gap bookkeeping and the receiver-state
// RTCP accumulators. original_source estimates RTT directly from a
// sender-carried round trip sample; absent that signal here, the NACK
// module's ageing threshold uses 2x the packet's one-way delay as an RTT
// proxy, a simplifying choice recorded in DESIGN.md.
func (r *RtpHost) onPktRcvd(p *packet.Packet) {
	switch p.Kind {
	case packet.KindRTPData:
		if !r.state.haveBaseSeq {
			r.state.baseSeq = p.Seq
			r.state.maxSeq = p.Seq
			r.state.haveBaseSeq = true
		}
		if p.Seq > r.state.maxSeq {
			r.state.maxSeq = p.Seq
		}
		r.state.received++
		r.state.bytesReceived += p.Size

		owd := p.TotalDelay().Milliseconds()
		if !r.haveOWD {
			r.owdMs = owd
			r.haveOWD = true
		} else {
			r.owdMs = owdSmoothingAlpha*owd + (1-owdSmoothingAlpha)*r.owdMs
		}
		r.state.rtt = units.FromMilliseconds(2 * owd)

		r.nack.onPktRcvd(p.Seq)
	case packet.KindNack:
	case packet.KindRTCP:
	}
}

// Tick runs the generic host tick, then layers RTCP report generation
// (every rtcpIntervalMs) and NACK emission on top.
func (r *RtpHost) Tick(now units.Timestamp) {
	r.Host.Tick(now)

	if now.Sub(r.lastRTCPReport) >= units.FromMilliseconds(rtcpIntervalMs) {
		r.sendRTCPReport(now)
		r.lastRTCPReport = now
	}
	if r.receiver != nil {
		r.sendNacks(now)
	}
}

func (r *RtpHost) sendRTCPReport(now units.Timestamp) {
	if _, isSender := r.App().(targetBitrateSetter); isSender {
		return
	}

	expected := uint64(r.state.maxSeq-r.state.baseSeq) + 1
	expectedInterval := expected - r.state.expectedPrior
	r.state.expectedPrior = expected
	receivedInterval := r.state.received - r.state.receivedPrior
	r.state.receivedPrior = r.state.received

	var lossFraction float64
	if expectedInterval > 0 && receivedInterval < expectedInterval {
		lossFraction = float64(expectedInterval-receivedInterval) / float64(expectedInterval)
	}

	tput := units.FromBytesPerSecond(float64(r.state.bytesReceived-r.state.bytesReceivedPrior) * 1000 / rtcpIntervalMs)
	r.state.bytesReceivedPrior = r.state.bytesReceived

	var remb units.Rate
	if now.Sub(r.lastREMB) >= units.FromMilliseconds(rembIntervalMs) {
		if re, ok := unwrapController(r.Controller()).(remoteEstimator); ok {
			remb = re.RemoteEstimatedRate()
			r.lastREMB = now
		}
	}

	var lastDecoded int64 = -1
	if r.receiver != nil {
		lastDecoded = r.receiver.LastDecodedFrameID()
	}

	r.EnqueueControl(&packet.Packet{
		Kind:             packet.KindRTCP,
		Size:             controlPktSize,
		LossFraction:     lossFraction,
		OWD:              units.FromMilliseconds(r.owdMs),
		Throughput:       tput,
		ReceiverEstRate:  remb,
		LastDecodedFrame: lastDecoded,
	})
}

func (r *RtpHost) sendNacks(now units.Timestamp) {
	for _, seq := range r.nack.generateNacks(now, r.state.rtt) {
		r.EnqueueControl(&packet.Packet{
			Kind:    packet.KindNack,
			Size:    controlPktSize,
			NackSeq: seq,
		})
	}
}

// OnFrameDecoded truncates the NACK module's gap tracking up to the
// highest sequence number covered by a just-decoded frame. NewRTP
// registers r as receiver's video.FrameDecodedSink, so this runs as part
// of the receiver's own Tick, immediately after each frame decodes.
func (r *RtpHost) OnFrameDecoded(highestSeq packet.Seq) {
	r.nack.truncateUpTo(highestSeq)
}

// Reset clears RTP-specific state in addition to the generic host state.
func (r *RtpHost) Reset() {
	r.state = rtpState{}
	r.haveOWD = false
	r.owdMs = 0
	r.lastRTCPReport = 0
	r.lastREMB = 0
	r.nack.reset()
	r.Host.Reset()
}
