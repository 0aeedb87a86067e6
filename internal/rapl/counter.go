// SPDX-FileCopyrightText: 2025 The eteam Authors
// SPDX-License-Identifier: Apache-2.0

package rapl

import "time"

// Counter identifies one of the hardware energy counters exposed by RAPL.
type Counter int

const (
	// Package covers the whole processor package. It is the primary
	// counter; update waits are keyed off it.
	Package Counter = iota

	// DRAM covers the memory attached to the package.
	DRAM

	// Core covers the processor cores (power plane 0).
	Core

	// GPU covers the integrated graphics (power plane 1).
	GPU

	numCounters
)

// AllCounters lists every counter in accounting order.
var AllCounters = []Counter{Package, DRAM, Core, GPU}

func (c Counter) String() string {
	switch c {
	case Package:
		return "package"
	case DRAM:
		return "dram"
	case Core:
		return "core"
	case GPU:
		return "gpu"
	default:
		return "unknown"
	}
}

// Counters is one sample of all raw counter values. LastUpdate records
// when the package counter was last observed changing.
type Counters struct {
	LastUpdate time.Time
	Raw        [numCounters]uint64
}

// deltaWrapAround returns how far a counter advanced from prev to curr,
// assuming it wrapped around at max if it appears to have moved backwards.
func deltaWrapAround(curr, prev, max uint64) uint64 {
	if curr < prev {
		return (max - prev) + curr
	}
	return curr - prev
}
