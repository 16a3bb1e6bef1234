// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package rtx

import (
	"github.com/sceasim/sceasim/internal/packet"
	"github.com/sceasim/sceasim/internal/units"
)

// NackManager is keyed the same way as AckManager but its retransmit queue
// is populated exclusively by incoming NACK packets; an ageing sweep runs
// at most once per simulated second, evicting entries older than 1s.
//
// Grounded on original_source/rtx_manager/rtp_rtx_manager.cc.
type NackManager struct {
	buf          *buffer
	sentAt       map[packet.Seq]units.Timestamp
	lastSweep    units.Timestamp
}

// NewNackManager returns an empty NackManager.
func NewNackManager() *NackManager {
	return &NackManager{
		buf:    newBuffer(),
		sentAt: make(map[packet.Seq]units.Timestamp),
	}
}

// Tick runs the once-per-second ageing sweep, evicting buffer entries (and
// any matching retransmit-queue entries) older than one second.
func (m *NackManager) Tick(now units.Timestamp) {
	if now.Sub(m.lastSweep) < units.FromSeconds(1) {
		return
	}
	m.lastSweep = now
	for seq, sentAt := range m.sentAt {
		if now.Sub(sentAt) > units.FromSeconds(1) {
			m.buf.drop(seq)
			delete(m.sentAt, seq)
		}
	}
	m.buf.purge()
}

// OnPktSent records or refreshes the sent-packet image. Padding packets are
// never retransmitted.
func (m *NackManager) OnPktSent(p *packet.Packet) {
	if p.App != nil && p.App.Padding {
		return
	}
	m.buf.onSent(p.Seq, p, 0)
	m.sentAt[p.Seq] = p.LastSent
}

// OnPktRcvd enqueues the NACKed sequence for retransmission if it is still
// buffered.
func (m *NackManager) OnPktRcvd(p *packet.Packet) {
	if p.Kind != packet.KindNack {
		return
	}
	if _, ok := m.buf.records[p.NackSeq]; ok {
		m.buf.enqueue(p.NackSeq)
	}
}

// TruncateUpTo drops every buffered sequence number <= seq, used when the
// receiver's decode of a frame makes earlier NACK candidates moot.
func (m *NackManager) TruncateUpTo(seq packet.Seq) {
	for s := range m.buf.records {
		if s <= seq {
			m.buf.drop(s)
			delete(m.sentAt, s)
		}
	}
}

// PktToSendSize returns the byte size of the queue's head entry.
func (m *NackManager) PktToSendSize() units.Bytes {
	return m.buf.frontSize()
}

// PktToSend pops and returns the queue's head packet image.
func (m *NackManager) PktToSend() *packet.Packet {
	return m.buf.pop()
}

// QueueSizeBytes sums the byte sizes of all queued entries.
func (m *NackManager) QueueSizeBytes() units.Bytes {
	return m.buf.queueSizeBytes()
}

// Reset clears all buffered state.
func (m *NackManager) Reset() {
	m.buf.reset()
	m.sentAt = make(map[packet.Seq]units.Timestamp)
	m.lastSweep = 0
}
