// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package link

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sceasim/sceasim/internal/packet"
	"github.com/sceasim/sceasim/internal/units"
)

func constantTrace(rate units.Rate, step units.Duration, bins int) Trace {
	rates := make([]units.Rate, bins)
	for i := range rates {
		rates[i] = rate
	}
	return Trace{Step: step, Rates: rates}
}

// Propagation floor: ts_rcvd - ts_sent >= prop_delay for every delivered
// packet (invariant 5).
func TestPropagationFloor(t *testing.T) {
	cfg := Config{
		Trace:     constantTrace(10*units.Mbps, units.FromMilliseconds(1), 1000),
		PropDelay: units.FromMilliseconds(50),
	}
	l := New(cfg, rand.New(rand.NewSource(1)))

	now := units.Timestamp(0)
	l.Push(now, &packet.Packet{Size: 1000, LastSent: now})

	step := units.FromMilliseconds(1)
	for i := 0; i < 200; i++ {
		now = now.Add(step)
		l.Tick(now)
		if p := l.Pull(now); p != nil {
			require.GreaterOrEqual(t, int64(now.Sub(p.LastSent)), int64(cfg.PropDelay))
			return
		}
	}
	t.Fatal("packet never delivered")
}

// Queue cap: queued bytes never exceed the configured cap (invariant 4).
func TestQueueCap(t *testing.T) {
	cfg := Config{
		Trace:         constantTrace(1*units.Kbps, units.FromMilliseconds(1), 1000), // tiny budget so packets pile up
		QueueCapBytes: 2000,
	}
	l := New(cfg, rand.New(rand.NewSource(1)))

	now := units.Timestamp(0)
	for i := 0; i < 10; i++ {
		l.Push(now, &packet.Packet{Size: 1000, LastSent: now})
		require.LessOrEqual(t, int64(l.QueuedBytes()), int64(cfg.QueueCapBytes))
	}
}

// Link admission bound: bytes delivered over [t0,t1] <= integrated trace
// bandwidth plus at most one packet's worth of initial budget (invariant 3).
func TestAdmissionBound(t *testing.T) {
	rate := units.Rate(1 * units.Mbps)
	step := units.FromMilliseconds(1)
	cfg := Config{Trace: constantTrace(rate, step, 100000)}
	l := New(cfg, rand.New(rand.NewSource(1)))

	now := units.Timestamp(0)
	const pktSize = units.Bytes(1000)
	var delivered units.Bytes
	var pushed int

	for i := 0; i < 5000; i++ {
		now = now.Add(step)
		l.Push(now, &packet.Packet{Size: pktSize, LastSent: now})
		pushed++
		l.Tick(now)
		for {
			p := l.Pull(now)
			if p == nil {
				break
			}
			delivered += p.Size
		}
	}

	bound := units.Bytes(cfg.Trace.AvailableBits(0, now)/8) + pktSize
	require.LessOrEqual(t, int64(delivered), int64(bound))
}

func TestResetClearsQueues(t *testing.T) {
	cfg := Config{Trace: constantTrace(1*units.Mbps, units.FromMilliseconds(1), 10)}
	l := New(cfg, rand.New(rand.NewSource(1)))
	l.Push(0, &packet.Packet{Size: 100, LastSent: 0})
	require.Equal(t, units.Bytes(100), l.QueuedBytes())
	l.Reset()
	require.Equal(t, units.Bytes(0), l.QueuedBytes())
}
