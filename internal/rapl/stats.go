// SPDX-FileCopyrightText: 2025 The eteam Authors
// SPDX-License-Identifier: Apache-2.0

package rapl

import "time"

// Stats accumulates the energy attributed to one measured entity along
// with bookkeeping about the measurement overhead.
type Stats struct {
	// NrUpdates counts how often the statistics were updated.
	NrUpdates uint64

	// NrDefers counts the updates that had to wait for a hardware
	// counter update.
	NrDefers uint64

	// DeferredTime is the total time spent waiting for counter
	// updates.
	DeferredTime time.Duration

	// Consumed is the attributed energy per counter.
	Consumed [numCounters]Energy
}

// Energy returns the attributed energy of one counter.
func (s *Stats) Energy(c Counter) Energy {
	if c < 0 || c >= numCounters {
		return 0
	}
	return s.Consumed[c]
}

// Clone returns a copy that is safe to hand out while the original
// keeps being updated.
func (s *Stats) Clone() *Stats {
	clone := *s
	return &clone
}
