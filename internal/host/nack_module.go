// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package host

import (
	"sort"

	"github.com/sceasim/sceasim/internal/packet"
	"github.com/sceasim/sceasim/internal/units"
)

const nackMaxRetries = 10

type nackEntry struct {
	sentAt   units.Timestamp
	everSent bool
	retries  int
}

// nackModule tracks sequence-number gaps observed in an incoming RTP
// stream and decides when to re-request them. Declared in
// original_source/rtp_host.h as NackModule; its .cc body was not present
// in the source tree handed to us, so the retry/ageing policy here
// follows spec.md 4.11's description of the same contract directly.
type nackModule struct {
	missing    map[packet.Seq]*nackEntry
	maxSeen    packet.Seq
	haveMaxSeen bool
}

func newNackModule() *nackModule {
	return &nackModule{missing: make(map[packet.Seq]*nackEntry)}
}

// onPktRcvd closes the gap between the previous high-water sequence and
// seq, recording every sequence number in between as missing, then
// advances the high-water mark. A sequence number that was itself
// missing (a late or retransmitted arrival) is cleared.
func (n *nackModule) onPktRcvd(seq packet.Seq) {
	delete(n.missing, seq)
	if !n.haveMaxSeen {
		n.maxSeen = seq
		n.haveMaxSeen = true
		return
	}
	if seq > n.maxSeen {
		n.addMissing(n.maxSeen+1, seq)
		n.maxSeen = seq
	}
}

func (n *nackModule) addMissing(from, to packet.Seq) {
	for s := from; s < to; s++ {
		if _, ok := n.missing[s]; !ok {
			n.missing[s] = &nackEntry{}
		}
	}
}

// generateNacks selects every missing entry that has never been sent, or
// was last sent 1.5*rtt or more ago, for (re)emission; an entry reaching
// nackMaxRetries is dropped instead. The returned sequence numbers are
// sorted for deterministic packet generation.
func (n *nackModule) generateNacks(now units.Timestamp, rtt units.Duration) []packet.Seq {
	threshold := units.Duration(float64(rtt) * 1.5)
	var nacks []packet.Seq
	for seq, e := range n.missing {
		if e.everSent && now.Sub(e.sentAt) < threshold {
			continue
		}
		if e.retries >= nackMaxRetries {
			delete(n.missing, seq)
			continue
		}
		e.everSent = true
		e.sentAt = now
		e.retries++
		nacks = append(nacks, seq)
	}
	sort.Slice(nacks, func(i, j int) bool { return nacks[i] < nacks[j] })
	return nacks
}

// truncateUpTo drops every tracked missing sequence number <= seq, called
// once a frame covering it has decoded.
func (n *nackModule) truncateUpTo(seq packet.Seq) {
	for s := range n.missing {
		if s <= seq {
			delete(n.missing, s)
		}
	}
}

func (n *nackModule) reset() {
	n.missing = make(map[packet.Seq]*nackEntry)
	n.maxSeen = 0
	n.haveMaxSeen = false
}
