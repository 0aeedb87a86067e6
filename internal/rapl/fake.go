// SPDX-FileCopyrightText: 2025 The eteam Authors
// SPDX-License-Identifier: Apache-2.0

package rapl

import (
	"math"
	"time"

	"k8s.io/utils/clock"
)

// fakeRates approximate a lightly loaded desktop in counts per update,
// with one count worth one microjoule.
var fakeRates = [numCounters]uint64{
	Package: 50000,
	DRAM:    5000,
	Core:    30000,
	GPU:     2000,
}

// fakeReader synthesizes energy counters from the wall clock. The
// counters advance in fixed steps at a fixed interval, mimicking the
// update behavior of the hardware so that calibration works against it.
type fakeReader struct {
	clock    clock.PassiveClock
	start    time.Time
	interval time.Duration
}

var _ Reader = (*fakeReader)(nil)

// NewFakeReader creates a reader with synthetic counters. A nil clk
// uses the real clock.
func NewFakeReader(clk clock.PassiveClock) Reader {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &fakeReader{
		clock:    clk,
		interval: time.Millisecond,
	}
}

func (r *fakeReader) Name() string {
	return "fake"
}

func (r *fakeReader) Init() error {
	r.start = r.clock.Now()
	return nil
}

func (r *fakeReader) Read(c Counter) (uint64, error) {
	if c < 0 || c >= numCounters {
		return 0, ErrCounterUnavailable
	}

	ticks := uint64(r.clock.Since(r.start) / r.interval)
	return (ticks * fakeRates[c]) & math.MaxUint32, nil
}

func (r *fakeReader) MaxValue(Counter) uint64 {
	return math.MaxUint32
}

func (r *fakeReader) EnergyUnit() (float64, error) {
	return 1.0, nil
}

func (r *fakeReader) Close() error {
	return nil
}
