// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

// Package packet defines the tagged packet family exchanged between hosts
// and links, and the application payload and frame reassembly types that
// ride inside data packets.
//
// Grounded on original_source/simulator/packet/{packet,rtp_packet}.h, but
// restructured per spec.md's REDESIGN FLAGS as a tagged sum type (a Kind
// enum on a single concrete struct with variant-specific fields) instead of
// the original's runtime down-casts from a Packet base class.
package packet

import "github.com/sceasim/sceasim/internal/units"

// Kind distinguishes the packet variants.
type Kind int

// Packet variants.
const (
	KindData Kind = iota
	KindRTPData
	KindRTCP
	KindNack
	KindAck
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindRTPData:
		return "rtp"
	case KindRTCP:
		return "rtcp"
	case KindNack:
		return "nack"
	case KindAck:
		return "ack"
	default:
		return "unknown"
	}
}

// Seq is a per-host monotonic sequence number.
type Seq uint64

// Packet is the single concrete type carrying all variant fields. Only the
// fields relevant to Kind are meaningful; this keeps the family a closed,
// exhaustively-switchable sum type rather than an interface hierarchy, which
// would reopen the down-cast problem the redesign is meant to close.
type Packet struct {
	Kind Kind

	// Common to all data-bearing variants.
	Size Bytes
	Seq  Seq

	// Instants, accumulated delays. FirstSent == LastSent distinguishes an
	// original transmission from a retransmission. PrevPktSent is the host's
	// own previous-packet-sent instant, stamped at send time for the
	// Salsify host variant's inter-arrival/grace-period accounting.
	FirstSent   units.Timestamp
	LastSent    units.Timestamp
	PrevPktSent units.Timestamp
	Received    units.Timestamp
	PropDelay   units.Duration
	QueueDelay  units.Duration

	// Application payload, present on Data and RTPData packets.
	App *ApplicationPayload

	// RTPData: round-trip-time snapshot carried sender->receiver.
	RTT units.Duration

	// RTCP: receiver feedback report.
	LossFraction    float64
	OWD             units.Duration
	Throughput      units.Rate
	ReceiverEstRate units.Rate // REMB; zero means "no estimate"
	LastDecodedFrame int64

	// Nack: single missing sequence number.
	NackSeq Seq

	// Ack: acknowledges a data packet and carries inter-arrival feedback.
	AckSeq             Seq
	MeanInterarrival   units.Duration
	DataSentTs         units.Timestamp
	DataSize           Bytes
	AckLastDecodedFrame int64
}

// Bytes is a local alias to avoid importing units.Bytes verbosely in this
// file's many field declarations.
type Bytes = units.Bytes

// TotalDelay returns the propagation plus queueing delay accumulated on the
// packet while it traversed a link.
func (p *Packet) TotalDelay() units.Duration {
	return p.PropDelay + p.QueueDelay
}

// IsRetransmission reports whether this image of the packet is a resend.
func (p *Packet) IsRetransmission() bool {
	return p.FirstSent != p.LastSent
}

// MarkSent stamps the packet as sent at now. FirstSent is set only the
// first time (mirrors original_source Packet::SetTsSent).
func (p *Packet) MarkSent(now units.Timestamp) {
	if p.FirstSent == 0 {
		p.FirstSent = now
	}
	p.LastSent = now
}

// Clone returns a deep-enough copy of p suitable for a retransmit buffer
// entry: value semantics already copy every field, App is replaced with a
// cloned pointer so subsequent App mutation by value on the queued image
// does not leak back into the original's payload.
func (p *Packet) Clone() *Packet {
	c := *p
	if p.App != nil {
		a := *p.App
		c.App = &a
	}
	return &c
}
