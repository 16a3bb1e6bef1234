// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

// Package rtx implements the shared retransmit-buffer component and its two
// policy variants: ACK-gap inference (spec.md 4.6) and NACK receipt
// (spec.md 4.7). Grounded on original_source/simulator/rtx_manager/*, with
// the REDESIGN FLAGS' "Duplicated retransmit-buffer logic" addressed by
// factoring the shared map/queue here.
package rtx

import (
	"github.com/sceasim/sceasim/internal/packet"
	"github.com/sceasim/sceasim/internal/units"
)

// entry is one buffered retransmit record.
type entry struct {
	numRtx int
	rto    units.Duration
	pkt    *packet.Packet
}

// buffer is the sequence-indexed retransmit record store shared by both
// manager variants, plus the queue of sequence numbers pending resend.
type buffer struct {
	records map[packet.Seq]*entry
	queue   map[packet.Seq]struct{}
	order   []packet.Seq // queue insertion order, for FIFO PktToSend
}

func newBuffer() *buffer {
	return &buffer{
		records: make(map[packet.Seq]*entry),
		queue:   make(map[packet.Seq]struct{}),
	}
}

// onSent records or refreshes the packet image for a non-padding data
// packet's image at sequence seq.
func (b *buffer) onSent(seq packet.Seq, p *packet.Packet, initialRTO units.Duration) {
	if e, ok := b.records[seq]; ok {
		e.numRtx++
		e.pkt = p.Clone()
		return
	}
	b.records[seq] = &entry{pkt: p.Clone(), rto: initialRTO}
}

// enqueue marks seq for retransmission if not already queued.
func (b *buffer) enqueue(seq packet.Seq) {
	if _, ok := b.queue[seq]; ok {
		return
	}
	b.queue[seq] = struct{}{}
	b.order = append(b.order, seq)
}

// drop removes seq from the buffer entirely (acknowledged, or aged out).
func (b *buffer) drop(seq packet.Seq) {
	delete(b.records, seq)
	delete(b.queue, seq)
}

// purge removes any queue entries with no backing buffer record.
func (b *buffer) purge() {
	kept := b.order[:0]
	for _, seq := range b.order {
		if _, ok := b.records[seq]; ok {
			kept = append(kept, seq)
		} else {
			delete(b.queue, seq)
		}
	}
	b.order = kept
}

// frontSize returns the byte size of the queue's head entry, or 0 if empty.
func (b *buffer) frontSize() units.Bytes {
	b.purge()
	if len(b.order) == 0 {
		return 0
	}
	return b.records[b.order[0]].pkt.Size
}

// pop removes and returns the queue's head packet image, or nil if empty.
func (b *buffer) pop() *packet.Packet {
	b.purge()
	if len(b.order) == 0 {
		return nil
	}
	seq := b.order[0]
	b.order = b.order[1:]
	delete(b.queue, seq)
	e := b.records[seq]
	return e.pkt.Clone()
}

// queueSizeBytes sums the byte sizes of all queued (purged-valid) entries.
func (b *buffer) queueSizeBytes() units.Bytes {
	b.purge()
	var sum units.Bytes
	for seq := range b.queue {
		sum += b.records[seq].pkt.Size
	}
	return sum
}

func (b *buffer) reset() {
	b.records = make(map[packet.Seq]*entry)
	b.queue = make(map[packet.Seq]struct{})
	b.order = nil
}
