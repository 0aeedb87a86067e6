// SPDX-FileCopyrightText: 2025 The eteam Authors
// SPDX-License-Identifier: Apache-2.0

package rapl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

// simulatedReader mimics the hardware counters. Every read advances the
// fake clock by step, and the counters advance by their rate once per
// interval, so waits and loop costs come out deterministic.
type simulatedReader struct {
	clk      *testingclock.FakePassiveClock
	start    time.Time
	step     time.Duration
	interval time.Duration
	base     [numCounters]uint64
	rates    [numCounters]uint64
	unit     float64
}

func newSimulatedReader(clk *testingclock.FakePassiveClock) *simulatedReader {
	return &simulatedReader{
		clk:      clk,
		step:     100 * time.Microsecond,
		interval: time.Millisecond,
		rates:    [numCounters]uint64{Package: 500, DRAM: 50, Core: 300, GPU: 20},
		unit:     2.5,
	}
}

func (r *simulatedReader) Name() string { return "simulated" }

func (r *simulatedReader) Init() error {
	r.start = r.clk.Now()
	return nil
}

func (r *simulatedReader) Read(c Counter) (uint64, error) {
	if c < 0 || c >= numCounters {
		return 0, ErrCounterUnavailable
	}

	r.clk.SetTime(r.clk.Now().Add(r.step))
	ticks := uint64(r.clk.Since(r.start) / r.interval)
	return r.base[c] + ticks*r.rates[c], nil
}

func (r *simulatedReader) MaxValue(Counter) uint64 { return 1<<32 - 1 }

func (r *simulatedReader) EnergyUnit() (float64, error) { return r.unit, nil }

func (r *simulatedReader) Close() error { return nil }

func TestCharge(t *testing.T) {
	cal := &Calibration{
		UpdateInterval: time.Millisecond,
		Unit:           1.0,
		LoopCost:       [numCounters]uint64{Package: 5, DRAM: 5, Core: 5, GPU: 5},
	}

	tt := []struct {
		name     string
		counter  Counter
		raw      uint64
		waited   time.Duration
		expected Energy
	}{{
		// 5 counts per interval over 2.5 intervals rounds down to a
		// loop cost of 12.
		name:     "loop cost subtracted",
		counter:  Package,
		raw:      100,
		waited:   2500 * time.Microsecond,
		expected: 88,
	}, {
		name:     "loop cost exceeds delta",
		counter:  GPU,
		raw:      10,
		waited:   2500 * time.Microsecond,
		expected: 0,
	}, {
		name:     "no wait means no loop cost",
		counter:  Package,
		raw:      100,
		waited:   0,
		expected: 100,
	}, {
		name:     "zero delta",
		counter:  Core,
		raw:      0,
		waited:   time.Millisecond,
		expected: 0,
	}}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, cal.charge(tc.counter, tc.raw, tc.waited))
		})
	}
}

func TestChargeAppliesUnit(t *testing.T) {
	cal := &Calibration{
		UpdateInterval: time.Millisecond,
		Unit:           15.25,
	}
	assert.Equal(t, Energy(1525), cal.charge(Package, 100, 0))
}

func TestChargeUncalibrated(t *testing.T) {
	// A zero update interval must not divide by zero.
	cal := &Calibration{Unit: 1.0, LoopCost: [numCounters]uint64{Package: 5}}
	assert.Equal(t, Energy(100), cal.charge(Package, 100, time.Millisecond))
}

func TestWaitForUpdate(t *testing.T) {
	clk := testingclock.NewFakePassiveClock(time.Now())
	reader := newSimulatedReader(clk)
	require.NoError(t, reader.Init())

	value, waited, err := waitForUpdate(reader, Package, clk, 1000)
	require.NoError(t, err)

	// The counter updates once per interval, so the wait spans exactly
	// one interval of simulated time.
	assert.Equal(t, reader.interval, waited)
	assert.Equal(t, reader.rates[Package], value)
}

func TestWaitForUpdateBounded(t *testing.T) {
	clk := testingclock.NewFakePassiveClock(time.Now())
	reader := &simulatedReader{
		clk:      clk,
		step:     time.Microsecond,
		interval: time.Hour,
		unit:     1.0,
	}
	require.NoError(t, reader.Init())

	_, _, err := waitForUpdate(reader, Package, clk, 10)
	require.ErrorIs(t, err, ErrNoUpdate)
}

func TestReadCountersKeepsFailedValues(t *testing.T) {
	reader := &sequenceReader{
		values: map[Counter][]uint64{
			Package: {100, 200},
			Core:    {50},
		},
	}
	clk := testingclock.NewFakePassiveClock(time.Now())

	counters := Counters{Raw: [numCounters]uint64{DRAM: 77}}
	_, err := readCounters(reader, clk, 100, &counters, true)
	require.NoError(t, err)

	assert.Equal(t, uint64(200), counters.Raw[Package])
	assert.Equal(t, uint64(50), counters.Raw[Core])
	// DRAM is unavailable and must keep its previous value.
	assert.Equal(t, uint64(77), counters.Raw[DRAM])
}

func TestCalibrate(t *testing.T) {
	clk := testingclock.NewFakePassiveClock(time.Now())
	reader := newSimulatedReader(clk)
	require.NoError(t, reader.Init())

	cal, err := calibrate(reader, clk, 5, 4, 1000)
	require.NoError(t, err)

	assert.Equal(t, time.Millisecond, cal.UpdateInterval)
	assert.Equal(t, 2.5, cal.Unit)

	// Every read cycle spans exactly one counter update, so the loop
	// cost per cycle equals the per update rate.
	assert.Equal(t, reader.rates[Package], cal.LoopCost[Package])
	assert.Equal(t, reader.rates[DRAM], cal.LoopCost[DRAM])
	assert.Equal(t, reader.rates[Core], cal.LoopCost[Core])
	assert.Equal(t, reader.rates[GPU], cal.LoopCost[GPU])
}
