// SPDX-FileCopyrightText: 2025 The eteam Authors
// SPDX-License-Identifier: Apache-2.0

package rapl

import (
	"fmt"
	"time"

	"k8s.io/utils/clock"
)

// Calibration holds the measurement constants determined once at
// startup. They are needed to turn raw counter deltas into energy that
// is attributable to the measured workload rather than to the
// measurement itself.
type Calibration struct {
	// UpdateInterval is the average time between hardware counter
	// updates.
	UpdateInterval time.Duration

	// Unit is the energy in microjoules represented by one raw
	// counter increment.
	Unit float64

	// LoopCost is the raw counter advance consumed by one full read
	// cycle, per counter.
	LoopCost [numCounters]uint64
}

// charge converts a raw counter delta into attributable energy. The
// consumption of the measurement loop itself, scaled to how long the
// read waited, is subtracted first; a delta smaller than the loop cost
// yields zero rather than wrapping.
func (cal *Calibration) charge(c Counter, raw uint64, waited time.Duration) Energy {
	var loop uint64
	if interval := cal.UpdateInterval.Microseconds(); interval > 0 {
		loop = cal.LoopCost[c] * uint64(waited.Microseconds()) / uint64(interval)
	}

	if loop > raw {
		return 0
	}

	return Energy(float64(raw-loop) * cal.Unit)
}

// waitForUpdate polls the counter until its value changes, returning
// the new value and how long the wait took. maxPolls bounds the number
// of reads; zero or negative means unbounded.
func waitForUpdate(reader Reader, c Counter, clk clock.PassiveClock, maxPolls int) (uint64, time.Duration, error) {
	start := clk.Now()

	prev, err := reader.Read(c)
	if err != nil {
		return 0, 0, err
	}

	for polls := 0; maxPolls <= 0 || polls < maxPolls; polls++ {
		value, err := reader.Read(c)
		if err != nil {
			return 0, 0, err
		}
		if value != prev {
			return value, clk.Since(start), nil
		}
	}

	return prev, clk.Since(start), fmt.Errorf("%w: %s after %d reads", ErrNoUpdate, c, maxPolls)
}

// readCounters samples every counter into dst. With wait set it first
// blocks until the package counter updates, so that all counters are
// read right after a hardware update. Counters that fail to read keep
// their previous value in dst. The returned duration is how long the
// package wait took.
func readCounters(reader Reader, clk clock.PassiveClock, maxPolls int, dst *Counters, wait bool) (time.Duration, error) {
	var waited time.Duration

	if wait {
		value, duration, err := waitForUpdate(reader, Package, clk, maxPolls)
		if err != nil {
			return 0, err
		}
		dst.Raw[Package] = value
		dst.LastUpdate = clk.Now()
		waited = duration
	} else {
		value, err := reader.Read(Package)
		if err != nil {
			return 0, err
		}
		dst.Raw[Package] = value
		dst.LastUpdate = clk.Now()
	}

	for _, c := range []Counter{DRAM, Core, GPU} {
		value, err := reader.Read(c)
		if err != nil {
			continue
		}
		dst.Raw[c] = value
	}

	return waited, nil
}

// calibrate measures the counter update interval and the energy cost of
// the measurement loop itself.
func calibrate(reader Reader, clk clock.PassiveClock, intervalIters, loopIters, maxPolls int) (Calibration, error) {
	cal := Calibration{}

	unit, err := reader.EnergyUnit()
	if err != nil {
		return cal, fmt.Errorf("failed to determine energy unit: %w", err)
	}
	cal.Unit = unit

	// Align with an update boundary so the timed waits measure full
	// intervals.
	if _, _, err := waitForUpdate(reader, Package, clk, maxPolls); err != nil {
		return cal, fmt.Errorf("failed to calibrate update interval: %w", err)
	}

	var total time.Duration
	for i := 0; i < intervalIters; i++ {
		_, waited, err := waitForUpdate(reader, Package, clk, maxPolls)
		if err != nil {
			return cal, fmt.Errorf("failed to calibrate update interval: %w", err)
		}
		total += waited
	}
	cal.UpdateInterval = total / time.Duration(intervalIters)

	var first Counters
	if _, err := readCounters(reader, clk, maxPolls, &first, true); err != nil {
		return cal, fmt.Errorf("failed to calibrate loop cost: %w", err)
	}

	last := first
	for i := 0; i < loopIters; i++ {
		if _, err := readCounters(reader, clk, maxPolls, &last, true); err != nil {
			return cal, fmt.Errorf("failed to calibrate loop cost: %w", err)
		}
	}

	for _, c := range AllCounters {
		delta := deltaWrapAround(last.Raw[c], first.Raw[c], reader.MaxValue(c))
		cal.LoopCost[c] = delta / uint64(loopIters)
	}

	return cal, nil
}
