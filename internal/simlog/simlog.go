// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

// Package simlog is the simulator's structured logger, generalizing
// heistp-scim's logf-with-clock-prefix idiom to apex/log's leveled,
// field-carrying API.
package simlog

import (
	"github.com/apex/log"

	"github.com/sceasim/sceasim/internal/units"
)

// Entry is the per-tick logging handle: every call is automatically
// tagged with the simulated instant and the host id it concerns.
type Entry struct {
	*log.Entry
}

// For returns an Entry prefixed with now and id, mirroring heistp-scim's
// logf(now, id, format, args) call shape but leveled and structured.
func For(now units.Timestamp, id int) Entry {
	return Entry{log.WithFields(log.Fields{
		"ts": now.String(),
		"id": id,
	})}
}

// Tickf logs an informational message for one simulated tick.
func (e Entry) Tickf(format string, args ...any) {
	e.Infof(format, args...)
}

// Dropf logs a packet drop or other recoverable anomaly.
func (e Entry) Dropf(format string, args ...any) {
	e.Warnf(format, args...)
}
