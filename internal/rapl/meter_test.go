// SPDX-FileCopyrightText: 2025 The eteam Authors
// SPDX-License-Identifier: Apache-2.0

package rapl

import (
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

// sequenceReader serves canned counter values, repeating the last one
// once a sequence is exhausted. Counters without a sequence are
// unavailable. If a clock is set, every read advances it by step.
type sequenceReader struct {
	values map[Counter][]uint64
	pos    map[Counter]int
	max    uint64
	clk    *testingclock.FakePassiveClock
	step   time.Duration
	closed bool
}

func (r *sequenceReader) Name() string { return "sequence" }

func (r *sequenceReader) Init() error { return nil }

func (r *sequenceReader) Read(c Counter) (uint64, error) {
	if r.clk != nil && r.step > 0 {
		r.clk.SetTime(r.clk.Now().Add(r.step))
	}

	seq, ok := r.values[c]
	if !ok || len(seq) == 0 {
		return 0, ErrCounterUnavailable
	}

	if r.pos == nil {
		r.pos = make(map[Counter]int)
	}
	i := r.pos[c]
	if i >= len(seq) {
		i = len(seq) - 1
	} else {
		r.pos[c]++
	}
	return seq[i], nil
}

func (r *sequenceReader) MaxValue(Counter) uint64 {
	if r.max == 0 {
		return math.MaxUint32
	}
	return r.max
}

func (r *sequenceReader) EnergyUnit() (float64, error) { return 1.0, nil }

func (r *sequenceReader) Close() error {
	r.closed = true
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewMeterDefaults(t *testing.T) {
	m := NewMeter(&sequenceReader{})
	assert.Equal(t, defaultMaxPolls, m.maxPolls)
	assert.Equal(t, defaultIntervalIters, m.intervalIters)
	assert.Equal(t, defaultLoopIters, m.loopIters)
	assert.Equal(t, "rapl", m.Name())
	assert.Equal(t, "sequence", m.ReaderName())
}

func TestMeterAccount(t *testing.T) {
	clk := testingclock.NewFakePassiveClock(time.Now())
	reader := &sequenceReader{
		clk:  clk,
		step: 500 * time.Microsecond,
		values: map[Counter][]uint64{
			Package: {1000, 1000, 1000, 1000, 1100},
			DRAM:    {1080},
			Core:    {1050},
			GPU:     {1010},
		},
	}

	m := &Meter{
		logger:   discardLogger(),
		reader:   reader,
		clock:    clk,
		maxPolls: 100,
		cal: Calibration{
			UpdateInterval: time.Millisecond,
			Unit:           1.0,
			LoopCost:       [numCounters]uint64{Package: 5, DRAM: 5, Core: 5, GPU: 5},
		},
		last: Counters{
			Raw: [numCounters]uint64{Package: 1000, DRAM: 1000, Core: 1000, GPU: 1000},
		},
	}

	stats := &Stats{}
	m.Account(stats)

	assert.Equal(t, uint64(1), stats.NrUpdates)
	assert.Equal(t, uint64(1), stats.NrDefers)

	// Five reads at 500us each until the package counter updates.
	assert.Equal(t, 2500*time.Microsecond, stats.DeferredTime)

	// Raw deltas of 100/80/50/10 minus a loop cost of 5*2500/1000=12,
	// floored at zero for the gpu counter.
	assert.Equal(t, Energy(88), stats.Energy(Package))
	assert.Equal(t, Energy(68), stats.Energy(DRAM))
	assert.Equal(t, Energy(38), stats.Energy(Core))
	assert.Equal(t, Energy(0), stats.Energy(GPU))

	// With the sequences exhausted the package counter never updates
	// again; the failed refresh must leave the energy untouched.
	m.Account(stats)
	assert.Equal(t, uint64(2), stats.NrUpdates)
	assert.Equal(t, uint64(1), stats.NrDefers)
	assert.Equal(t, 2500*time.Microsecond, stats.DeferredTime)
	assert.Equal(t, Energy(88), stats.Energy(Package))
}

func TestMeterAccountWrapAround(t *testing.T) {
	clk := testingclock.NewFakePassiveClock(time.Now())
	reader := &sequenceReader{
		max: 1000,
		values: map[Counter][]uint64{
			Package: {990, 20},
		},
	}

	m := &Meter{
		logger:   discardLogger(),
		reader:   reader,
		clock:    clk,
		maxPolls: 100,
		cal:      Calibration{UpdateInterval: time.Millisecond, Unit: 1.0},
		last:     Counters{Raw: [numCounters]uint64{Package: 990}},
	}

	stats := &Stats{}
	m.Account(stats)

	assert.Equal(t, Energy(30), stats.Energy(Package))
}

func TestMeterInitAndAccount(t *testing.T) {
	clk := testingclock.NewFakePassiveClock(time.Now())
	reader := newSimulatedReader(clk)

	m := NewMeter(reader,
		WithLogger(discardLogger()),
		WithClock(clk),
		WithMaxPolls(1000),
		WithCalibrationIters(5, 4),
	)
	require.NoError(t, m.Init())

	cal := m.Calibration()
	assert.Equal(t, time.Millisecond, cal.UpdateInterval)
	assert.Equal(t, 2.5, cal.Unit)

	stats := &Stats{}
	m.Account(stats)

	assert.Equal(t, uint64(1), stats.NrUpdates)
	assert.Equal(t, uint64(1), stats.NrDefers)

	// The three trailing counter reads of the previous cycle eat into
	// the next update interval, so the wait spans only 700us of it.
	assert.Equal(t, 700*time.Microsecond, stats.DeferredTime)

	// One full update per counter, less the loop cost scaled to the
	// wait, times the 2.5uJ unit.
	assert.Equal(t, Energy(375), stats.Energy(Package))
	assert.Equal(t, Energy(37), stats.Energy(DRAM))
	assert.Equal(t, Energy(225), stats.Energy(Core))
	assert.Equal(t, Energy(15), stats.Energy(GPU))
}

func TestMeterShutdown(t *testing.T) {
	reader := &sequenceReader{}
	m := NewMeter(reader, WithLogger(discardLogger()))
	require.NoError(t, m.Shutdown())
	assert.True(t, reader.closed)
}

func TestStatsClone(t *testing.T) {
	stats := &Stats{
		NrUpdates:    3,
		NrDefers:     2,
		DeferredTime: time.Second,
	}
	stats.Consumed[Package] = 100

	clone := stats.Clone()
	clone.Consumed[Package] = 200
	clone.NrUpdates = 7

	assert.Equal(t, Energy(100), stats.Energy(Package))
	assert.Equal(t, uint64(3), stats.NrUpdates)
	assert.Equal(t, Energy(200), clone.Energy(Package))
}
