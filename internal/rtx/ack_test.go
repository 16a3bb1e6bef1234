// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package rtx

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sceasim/sceasim/internal/packet"
	"github.com/sceasim/sceasim/internal/units"
)

type fakeLossNotifier struct {
	losses []*packet.Packet
}

func (f *fakeLossNotifier) OnPktLost(p *packet.Packet) {
	f.losses = append(f.losses, p)
}

func sentPkt(seq packet.Seq, sentAt units.Timestamp) *packet.Packet {
	return &packet.Packet{Kind: packet.KindData, Seq: seq, Size: 1000, FirstSent: sentAt, LastSent: sentAt}
}

func ackPkt(seq packet.Seq, dataSentAt, rcvdAt units.Timestamp) *packet.Packet {
	return &packet.Packet{Kind: packet.KindAck, AckSeq: seq, DataSentTs: dataSentAt, Received: rcvdAt}
}

// ACK-based rtx scenario: a 10-packet sequence with the 4th dropped. After
// the ACK of the 5th, the 4th packet (seq 3) is queued for retransmit exactly once and
// the controller sees exactly one loss notification (invariant 6 / the
// concrete ACK-based rtx scenario).
func TestAckManagerDetectsSingleLossFromGap(t *testing.T) {
	cc := &fakeLossNotifier{}
	m := NewAckManager(cc)

	// Every packet's image is still buffered (the drop happens on the
	// link, which the rtx manager never observes directly). Packets 1-3
	// (seq 0-2) are acknowledged, packet 4 (seq 3) never is, and then the
	// ACK for packet 5 (seq 4) arrives, so the manager infers packet 4
	// was lost from the acked-sequence gap.
	for i := packet.Seq(0); i < 10; i++ {
		sentAt := units.FromMilliseconds(float64(i) * 10)
		m.OnPktSent(sentPkt(i, sentAt))
	}
	for i := packet.Seq(0); i < 3; i++ {
		sentAt := units.FromMilliseconds(float64(i) * 10)
		m.OnPktRcvd(ackPkt(i, sentAt, sentAt.Add(units.FromMilliseconds(5))))
	}

	rcvdAt := units.FromMilliseconds(45)
	m.OnPktRcvd(ackPkt(4, units.FromMilliseconds(40), rcvdAt))

	require.Len(t, cc.losses, 1)
	require.Equal(t, packet.Seq(3), cc.losses[0].Seq)
	require.Equal(t, units.Bytes(1000), m.PktToSendSize())

	// A second, identical ACK for the same seq must not double-notify.
	m.OnPktRcvd(ackPkt(4, units.FromMilliseconds(40), rcvdAt))
	require.Len(t, cc.losses, 1)
}

// RTO bounds (invariant 9): after any ACK with RTT sample s, rto is
// clamped to [1s, 60s] and rto >= srtt.
func TestUpdateRTOStaysWithinBounds(t *testing.T) {
	cc := &fakeLossNotifier{}
	m := NewAckManager(cc)

	samples := []units.Duration{
		units.FromMilliseconds(20),
		units.FromMilliseconds(200),
		units.FromMilliseconds(5),
		units.FromMilliseconds(80),
	}
	now := units.Timestamp(0)
	for i, s := range samples {
		seq := packet.Seq(i)
		sentAt := now
		m.OnPktSent(sentPkt(seq, sentAt))
		rcvdAt := sentAt.Add(s)
		m.OnPktRcvd(ackPkt(seq, sentAt, rcvdAt))
		now = rcvdAt

		require.GreaterOrEqual(t, int64(m.RTO()), int64(units.FromSeconds(1)))
		require.LessOrEqual(t, int64(m.RTO()), int64(units.FromSeconds(60)))
		require.GreaterOrEqual(t, int64(m.RTO()), int64(m.SRTT()))
	}
}
