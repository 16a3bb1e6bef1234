// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package host

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sceasim/sceasim/internal/link"
	"github.com/sceasim/sceasim/internal/pacer"
	"github.com/sceasim/sceasim/internal/packet"
	"github.com/sceasim/sceasim/internal/units"
)

type fakeApp struct {
	queue     []*packet.Packet
	delivered []*packet.Packet
}

func (a *fakeApp) PktToSendSize() units.Bytes {
	if len(a.queue) == 0 {
		return 0
	}
	return a.queue[0].Size
}

func (a *fakeApp) PktToSend() *packet.Packet {
	p := a.queue[0]
	a.queue = a.queue[1:]
	return p
}

func (a *fakeApp) QueueSizeBytes() units.Bytes {
	var total units.Bytes
	for _, p := range a.queue {
		total += p.Size
	}
	return total
}

func (a *fakeApp) Tick(units.Timestamp)        {}
func (a *fakeApp) Reset()                      { a.queue = nil }
func (a *fakeApp) DeliverPkt(p *packet.Packet) { a.delivered = append(a.delivered, p) }

type paddingApp struct {
	fakeApp
	padQueue []*packet.Packet
}

func (a *paddingApp) PaddingPktToSendSize() units.Bytes {
	if len(a.padQueue) == 0 {
		return 0
	}
	return a.padQueue[0].Size
}

func (a *paddingApp) PaddingPktToSend() *packet.Packet {
	p := a.padQueue[0]
	a.padQueue = a.padQueue[1:]
	return p
}

type fakeRtx struct {
	queue []*packet.Packet
}

func (r *fakeRtx) Tick(units.Timestamp)       {}
func (r *fakeRtx) OnPktSent(*packet.Packet)   {}
func (r *fakeRtx) OnPktRcvd(*packet.Packet)   {}
func (r *fakeRtx) Reset()                     { r.queue = nil }
func (r *fakeRtx) PktToSendSize() units.Bytes {
	if len(r.queue) == 0 {
		return 0
	}
	return r.queue[0].Size
}
func (r *fakeRtx) PktToSend() *packet.Packet {
	p := r.queue[0]
	r.queue = r.queue[1:]
	return p
}
func (r *fakeRtx) QueueSizeBytes() units.Bytes {
	var total units.Bytes
	for _, p := range r.queue {
		total += p.Size
	}
	return total
}

type fakeController struct {
	rate units.Rate
}

func (c *fakeController) Tick(units.Timestamp)                               {}
func (c *fakeController) Reset()                                             {}
func (c *fakeController) OnPktSent(*packet.Packet)                           {}
func (c *fakeController) OnPktRcvd(*packet.Packet)                           {}
func (c *fakeController) OnPktLost(*packet.Packet)                           {}
func (c *fakeController) GetEstRate(units.Timestamp, units.Timestamp) units.Rate { return c.rate }

func fastLink() *link.Link {
	trace := link.Trace{Step: units.FromMilliseconds(1), Rates: []units.Rate{1000 * units.Mbps}}
	return link.New(link.Config{Trace: trace}, rand.New(rand.NewSource(1)))
}

// Monotone sequence numbers (invariant 1): every data packet drained from
// the application queue gets a strictly increasing Seq, starting at 0.
func TestSendAssignsMonotoneSequenceNumbers(t *testing.T) {
	txLink := fastLink()
	rxLink := fastLink()
	pc := pacer.New(1_000_000, units.FromMilliseconds(1))
	ctrl := &fakeController{rate: 100 * units.Mbps}
	app := &fakeApp{}
	for i := 0; i < 5; i++ {
		app.queue = append(app.queue, &packet.Packet{Kind: packet.KindData, Size: 100})
	}
	h := New(0, txLink, rxLink, pc, ctrl, nil, app)

	h.Tick(units.FromMilliseconds(2))
	txLink.Tick(units.FromMilliseconds(3))

	var seqs []packet.Seq
	for {
		p := txLink.Pull(units.FromSeconds(1))
		if p == nil {
			break
		}
		seqs = append(seqs, p.Seq)
	}

	require.Len(t, seqs, 5)
	for i, s := range seqs {
		require.Equal(t, packet.Seq(i), s)
	}
}

// Send-loop priority: control packets drain first, then the retransmit
// queue, then fresh application data, and padding only fills what's left.
func TestSendLoopPriorityOrder(t *testing.T) {
	txLink := fastLink()
	rxLink := fastLink()
	pc := pacer.New(1_000_000, units.FromMilliseconds(1))
	ctrl := &fakeController{rate: 100 * units.Mbps}
	app := &paddingApp{}
	app.queue = []*packet.Packet{{Kind: packet.KindData, Size: 70}}
	app.padQueue = []*packet.Packet{{Kind: packet.KindData, Size: 80}}
	rtx := &fakeRtx{queue: []*packet.Packet{{Kind: packet.KindData, Size: 60}}}

	h := New(0, txLink, rxLink, pc, ctrl, rtx, app)
	h.EnqueueControl(&packet.Packet{Kind: packet.KindAck, Size: 50})

	h.Tick(units.FromMilliseconds(2))
	txLink.Tick(units.FromMilliseconds(3))

	var sizes []units.Bytes
	for {
		p := txLink.Pull(units.FromSeconds(1))
		if p == nil {
			break
		}
		sizes = append(sizes, p.Size)
	}

	require.Equal(t, []units.Bytes{50, 60, 70, 80}, sizes)
}

func TestReceiveDeliversPulledPacketToApp(t *testing.T) {
	txLink := fastLink()
	rxLink := fastLink()
	pc := pacer.New(1_000_000, units.FromMilliseconds(1))
	ctrl := &fakeController{rate: 100 * units.Mbps}
	app := &fakeApp{}
	h := New(0, txLink, rxLink, pc, ctrl, nil, app)

	rxLink.Push(0, &packet.Packet{Kind: packet.KindData, Size: 200})
	rxLink.Tick(units.FromMilliseconds(1))

	h.Receive(units.FromSeconds(1))

	require.Len(t, app.delivered, 1)
	require.Equal(t, units.Bytes(200), app.delivered[0].Size)
}

func TestResetClearsHostState(t *testing.T) {
	txLink := fastLink()
	rxLink := fastLink()
	pc := pacer.New(1_000_000, units.FromMilliseconds(1))
	ctrl := &fakeController{rate: 100 * units.Mbps}
	app := &fakeApp{queue: []*packet.Packet{{Kind: packet.KindData, Size: 100}}}
	h := New(0, txLink, rxLink, pc, ctrl, nil, app)
	h.EnqueueControl(&packet.Packet{Kind: packet.KindAck})

	h.Reset()

	require.Equal(t, packet.Seq(0), h.seq)
	require.Empty(t, h.controlQueue)
	require.Nil(t, app.queue)
}
