// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package rtx

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sceasim/sceasim/internal/packet"
	"github.com/sceasim/sceasim/internal/units"
)

func TestNackManagerQueuesOnlyBufferedSequences(t *testing.T) {
	m := NewNackManager()
	m.OnPktSent(sentPkt(5, 0))

	m.OnPktRcvd(&packet.Packet{Kind: packet.KindNack, NackSeq: 5})
	require.Equal(t, units.Bytes(1000), m.PktToSendSize())

	// A NACK for a sequence never sent (or already dropped) is ignored.
	m.OnPktRcvd(&packet.Packet{Kind: packet.KindNack, NackSeq: 99})
	require.Equal(t, units.Bytes(1000), m.PktToSendSize())
}

func TestNackManagerAgesOutAfterOneSecond(t *testing.T) {
	m := NewNackManager()
	m.OnPktSent(sentPkt(1, 0))
	m.OnPktRcvd(&packet.Packet{Kind: packet.KindNack, NackSeq: 1})
	require.Equal(t, units.Bytes(1000), m.PktToSendSize())

	m.Tick(units.FromMilliseconds(500))
	require.Equal(t, units.Bytes(1000), m.PktToSendSize(), "not yet aged out")

	m.Tick(units.FromSeconds(2))
	require.Equal(t, units.Bytes(0), m.PktToSendSize(), "aged out after 1s")
}

func TestNackManagerTruncateUpToDropsEarlierSequences(t *testing.T) {
	m := NewNackManager()
	m.OnPktSent(sentPkt(1, 0))
	m.OnPktSent(sentPkt(2, 0))
	m.OnPktSent(sentPkt(3, 0))
	m.OnPktRcvd(&packet.Packet{Kind: packet.KindNack, NackSeq: 3})

	m.TruncateUpTo(3)
	require.Equal(t, units.Bytes(0), m.PktToSendSize(), "seq 3 dropped, no longer queued")
}
