// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

// Package video implements the application layer that rides on top of a
// host: per-frame encode/packetize on the sender side, reassembly/decode
// on the receiver side.
//
// Grounded on original_source/simulator/application/video_conferencing.{h,cc}.
package video

import (
	"github.com/sceasim/sceasim/internal/codec"
	"github.com/sceasim/sceasim/internal/fec"
	"github.com/sceasim/sceasim/internal/packet"
	"github.com/sceasim/sceasim/internal/units"
)

// FPS is the sender's fixed encode frame rate.
const FPS = 25

// Packetize policy names; PacketizeAtLeast5 is the default and
// MTUBasePacketize selects PacketizeMTU.
type packetizePolicy int

const (
	// PacketizeAtLeast5 is the default: a frame is always split into at
	// least 5 packets even if it would fit in fewer MTU-sized ones.
	PacketizeAtLeast5 packetizePolicy = iota
	// PacketizeMTU packs a frame into as few MSS-sized packets as possible.
	PacketizeMTU
)

// Sender is the video application's sending half: it encodes one frame
// per tick at the frame interval, FEC-inflates it, computes padding up to
// the target bitrate, and packetizes the result into the host's
// application send queue.
type Sender struct {
	encoder    codec.Encoder
	fecEncoder *fec.Encoder

	queue        []*packet.Packet
	paddingQueue []*packet.Packet

	frameID       int64
	lastEncodeTs  units.Timestamp
	haveEncoded   bool
	frameInterval units.Duration
	targetBitrate units.Rate

	padding  bool
	packetize packetizePolicy
}

// NewSender returns a Sender using table for frame encoding and fecEncoder
// for the optional FEC inflation step (nil means no FEC).
func NewSender(table codec.Table, fecEncoder *fec.Encoder) *Sender {
	return &Sender{
		encoder:       codec.Encoder{Table: table},
		fecEncoder:    fecEncoder,
		frameInterval: units.FromSeconds(1.0 / FPS),
	}
}

// EnablePadding turns on target-bitrate padding of the final frame.
func (s *Sender) EnablePadding() { s.padding = true }

// DisablePadding turns off target-bitrate padding.
func (s *Sender) DisablePadding() { s.padding = false }

// MTUBasePacketize selects the fewest-packets packetization policy.
func (s *Sender) MTUBasePacketize() { s.packetize = PacketizeMTU }

// SetTargetBitrate sets the bitrate the next encoded frame is sized
// against; called by the host on each pacing-rate update (once per pacer
// update interval) from the active congestion controller's estimate.
func (s *Sender) SetTargetBitrate(rate units.Rate) {
	s.targetBitrate = rate
}

// PktToSendSize returns the size of the next queued packet, 0 if empty.
func (s *Sender) PktToSendSize() units.Bytes {
	if len(s.queue) == 0 {
		return 0
	}
	return s.queue[0].Size
}

// PktToSend pops and returns the next queued packet.
func (s *Sender) PktToSend() *packet.Packet {
	p := s.queue[0]
	s.queue = s.queue[1:]
	return p
}

// QueueSizeBytes returns the total bytes still queued to send.
func (s *Sender) QueueSizeBytes() units.Bytes {
	var total units.Bytes
	for _, p := range s.queue {
		total += p.Size
	}
	return total
}

// Tick encodes and packetizes a new frame once frameInterval has elapsed
// since the last one.
func (s *Sender) Tick(now units.Timestamp) {
	if s.haveEncoded && now.Sub(s.lastEncodeTs) < s.frameInterval {
		return
	}

	targetDataSize := units.Bytes(s.targetBitrate.BytesPerSecond() * s.frameInterval.Seconds())

	targetFrameSize := targetDataSize
	if s.fecEncoder != nil && s.fecEncoder.Enabled() {
		targetFrameSize = units.Bytes(float64(targetDataSize) * (1.0 - s.fecEncoder.Rate()))
	}

	result := s.encoder.Encode(s.frameID, targetFrameSize)

	fecEncSize := result.Size
	if s.fecEncoder != nil {
		fecEncSize = s.fecEncoder.Encode(result.Size)
	}

	var paddingSize units.Bytes
	if s.padding && targetDataSize > fecEncSize {
		paddingSize = targetDataSize - fecEncSize
	}

	fecRate := 0.0
	if s.fecEncoder != nil {
		fecRate = s.fecEncoder.Rate()
	}
	encodeBitrate := s.targetBitrate.Mul(1.0 - fecRate)

	s.packetizeFrame(now, encodeBitrate, result, fecEncSize, fecRate, paddingSize)

	s.lastEncodeTs = now
	s.haveEncoded = true
	s.frameID++
}

func (s *Sender) packetizeFrame(now units.Timestamp, encodeBitrate units.Rate, result codec.EncodeResult, fecEncSize units.Bytes, fecRate float64, paddingSize units.Bytes) {
	minPkts := 1
	if s.packetize == PacketizeAtLeast5 {
		minPkts = 5
	}

	nPkts := int(fecEncSize / units.MSS)
	if fecEncSize%units.MSS > 0 {
		nPkts++
	}
	if nPkts < minPkts {
		nPkts = minPkts
	}
	if nPkts == 0 {
		nPkts = minPkts
	}

	base := fecEncSize / units.Bytes(nPkts)
	extra := int(fecEncSize % units.Bytes(nPkts))
	for i := 0; i < nPkts; i++ {
		size := base
		if i < extra {
			size++
		}
		if s.packetize == PacketizeMTU {
			size = units.MSS
			if i == nPkts-1 {
				size = fecEncSize - units.MSS*units.Bytes(nPkts-1)
			}
		}
		if size <= 0 {
			continue
		}
		s.queue = append(s.queue, &packet.Packet{
			Kind: packet.KindData,
			Size: size,
			App: &packet.ApplicationPayload{
				FrameID:       s.frameID,
				ModelID:       result.ModelID,
				Offset:        units.Bytes(i),
				NumPkts:       nPkts,
				FrameSize:     result.Size,
				FrameSizeFEC:  fecEncSize,
				EncodeTs:      now,
				EncodeBitrate: encodeBitrate,
				FECRate:       fecRate,
				PaddingSize:   paddingSize,
			},
		})
	}

	if paddingSize <= 0 {
		return
	}
	nPad := int(paddingSize / units.MSS)
	remainder := paddingSize % units.MSS
	for i := 0; i < nPad; i++ {
		s.paddingQueue = append(s.paddingQueue, s.newPaddingPkt(now, units.MSS, result, fecEncSize, fecRate, paddingSize, nPad))
	}
	if remainder > 0 {
		s.paddingQueue = append(s.paddingQueue, s.newPaddingPkt(now, remainder, result, fecEncSize, fecRate, paddingSize, nPad))
	}
}

func (s *Sender) newPaddingPkt(now units.Timestamp, size units.Bytes, result codec.EncodeResult, fecEncSize units.Bytes, fecRate float64, paddingSize units.Bytes, nPad int) *packet.Packet {
	return &packet.Packet{
		Kind: packet.KindData,
		Size: size,
		App: &packet.ApplicationPayload{
			FrameID:      s.frameID,
			ModelID:      result.ModelID,
			NumPkts:      nPad,
			FrameSize:    result.Size,
			FrameSizeFEC: fecEncSize,
			EncodeTs:     now,
			Padding:      true,
			PaddingSize:  paddingSize,
		},
	}
}

// PaddingPktToSendSize returns the size of the next queued padding packet.
func (s *Sender) PaddingPktToSendSize() units.Bytes {
	if len(s.paddingQueue) == 0 {
		return 0
	}
	return s.paddingQueue[0].Size
}

// PaddingPktToSend pops and returns the next queued padding packet.
func (s *Sender) PaddingPktToSend() *packet.Packet {
	p := s.paddingQueue[0]
	s.paddingQueue = s.paddingQueue[1:]
	return p
}

// DeliverPkt is a no-op: a sender never decodes inbound application
// data (only ACK/NACK/RTCP control packets reach it, handed here after
// the congestion controller and retransmit manager have processed them).
func (s *Sender) DeliverPkt(*packet.Packet) {}

// Reset clears all sender state back to frame 0.
func (s *Sender) Reset() {
	s.queue = nil
	s.paddingQueue = nil
	s.frameID = 0
	s.haveEncoded = false
	s.targetBitrate = 0
}
