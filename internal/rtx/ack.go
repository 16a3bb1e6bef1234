// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package rtx

import (
	"github.com/sceasim/sceasim/internal/packet"
	"github.com/sceasim/sceasim/internal/units"
)

// LossNotifier is the minimal congestion-controller capability an rtx
// manager needs: notification of an inferred or reported loss.
type LossNotifier interface {
	OnPktLost(p *packet.Packet)
}

// AckManager infers loss from the gap between acknowledged sequence
// numbers and estimates RTO via Karn/Jacobson SRTT/RTTVAR.
//
// Grounded on original_source/rtx_manager/ack_based_rtx_manager.cc.
type AckManager struct {
	buf    *buffer
	cc     LossNotifier
	maxAck int64

	srtt   units.Duration
	rttvar units.Duration
	rto    units.Duration
}

const (
	srttAlpha = 1.0 / 8
	srttBeta  = 1.0 / 4
	rtoK      = 4
)

// NewAckManager returns an AckManager with the initial 3s RTO.
func NewAckManager(cc LossNotifier) *AckManager {
	return &AckManager{
		buf:    newBuffer(),
		cc:     cc,
		maxAck: -1,
		rto:    units.FromSeconds(3),
	}
}

// Tick is a no-op for the ACK-based manager (original_source's Tick is
// empty; all state transitions happen on OnPktRcvd).
func (m *AckManager) Tick(units.Timestamp) {}

// OnPktSent records or refreshes the image of a sent data packet. Padding
// packets are never retransmitted, so they are ignored.
func (m *AckManager) OnPktSent(p *packet.Packet) {
	if p.App != nil && p.App.Padding {
		return
	}
	m.buf.onSent(p.Seq, p, m.rto)
}

// OnPktRcvd processes an incoming ACK: drops the acked record, infers loss
// for any gap between the last contiguous ack and this one, and updates
// the RTO estimate.
func (m *AckManager) OnPktRcvd(p *packet.Packet) {
	if p.Kind != packet.KindAck {
		return
	}
	ackNum := p.AckSeq

	if _, ok := m.buf.records[ackNum]; ok {
		m.buf.drop(ackNum)
	} else {
		return
	}

	for seq := packet.Seq(m.maxAck + 1); seq < ackNum; seq++ {
		e, ok := m.buf.records[seq]
		if !ok {
			continue
		}
		if _, queued := m.buf.queue[seq]; queued {
			continue
		}
		if e.numRtx == 0 || p.Received.Sub(e.pkt.LastSent) > e.rto {
			m.cc.OnPktLost(e.pkt)
			m.buf.enqueue(seq)
		}
	}
	m.buf.purge()

	if int64(ackNum) == m.maxAck+1 {
		m.maxAck = int64(ackNum)
	}

	m.updateRTO(p)
}

func (m *AckManager) updateRTO(ack *packet.Packet) {
	rtt := ack.Received.Sub(ack.DataSentTs)
	if m.srtt == 0 && m.rttvar == 0 {
		m.srtt = rtt
		m.rttvar = rtt / 2
	} else {
		m.srtt = units.Duration(float64(m.srtt)*(1-srttAlpha) + float64(rtt)*srttAlpha)
		diff := m.srtt - rtt
		if diff < 0 {
			diff = -diff
		}
		m.rttvar = units.Duration(float64(m.rttvar)*(1-srttBeta) + float64(diff)*srttBeta)
	}
	m.rto = (m.srtt + m.rttvar*rtoK).Clamp(units.FromSeconds(1), units.FromSeconds(60))
}

// PktToSendSize returns the byte size of the queue's head entry.
func (m *AckManager) PktToSendSize() units.Bytes {
	return m.buf.frontSize()
}

// PktToSend pops and returns the queue's head packet image.
func (m *AckManager) PktToSend() *packet.Packet {
	return m.buf.pop()
}

// QueueSizeBytes sums the byte sizes of all queued entries.
func (m *AckManager) QueueSizeBytes() units.Bytes {
	return m.buf.queueSizeBytes()
}

// SRTT returns the current smoothed RTT estimate.
func (m *AckManager) SRTT() units.Duration { return m.srtt }

// RTO returns the current retransmission timeout.
func (m *AckManager) RTO() units.Duration { return m.rto }

// Reset clears all buffered and estimator state.
func (m *AckManager) Reset() {
	m.buf.reset()
	m.maxAck = -1
	m.srtt, m.rttvar = 0, 0
	m.rto = units.FromSeconds(3)
}
