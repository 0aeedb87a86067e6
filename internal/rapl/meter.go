// SPDX-FileCopyrightText: 2025 The eteam Authors
// SPDX-License-Identifier: Apache-2.0

package rapl

import (
	"fmt"
	"log/slog"
	"sync"

	"k8s.io/utils/clock"
)

const (
	// defaultMaxPolls bounds a single wait for a counter update. The
	// hardware updates roughly every millisecond, so hitting this
	// bound means the counter is stuck.
	defaultMaxPolls = 10_000_000

	defaultIntervalIters = 100
	defaultLoopIters     = 50
)

// Opts holds the configurable options of a Meter.
type Opts struct {
	logger        *slog.Logger
	clock         clock.PassiveClock
	maxPolls      int
	intervalIters int
	loopIters     int
}

// DefaultOpts returns the default options of a Meter.
func DefaultOpts() Opts {
	return Opts{
		logger:        slog.Default(),
		clock:         clock.RealClock{},
		maxPolls:      defaultMaxPolls,
		intervalIters: defaultIntervalIters,
		loopIters:     defaultLoopIters,
	}
}

// OptionFn sets one option of a Meter.
type OptionFn func(*Opts)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = logger
	}
}

// WithClock sets the clock used for timing counter updates.
func WithClock(clk clock.PassiveClock) OptionFn {
	return func(o *Opts) {
		o.clock = clk
	}
}

// WithMaxPolls bounds how many reads a single wait for a counter
// update may take. Zero or negative means unbounded.
func WithMaxPolls(n int) OptionFn {
	return func(o *Opts) {
		o.maxPolls = n
	}
}

// WithCalibrationIters sets how many timed waits the update interval is
// averaged over and how many read cycles the loop cost is averaged
// over.
func WithCalibrationIters(interval, loop int) OptionFn {
	return func(o *Opts) {
		o.intervalIters = interval
		o.loopIters = loop
	}
}

// Meter owns the last known counter sample and turns counter updates
// into energy statistics. All reads go through the meter, so the last
// sample stays consistent across the entities being accounted.
type Meter struct {
	logger        *slog.Logger
	reader        Reader
	clock         clock.PassiveClock
	maxPolls      int
	intervalIters int
	loopIters     int

	mu   sync.Mutex
	cal  Calibration
	last Counters
}

// NewMeter creates a meter on top of reader.
func NewMeter(reader Reader, opts ...OptionFn) *Meter {
	opt := DefaultOpts()
	for _, fn := range opts {
		fn(&opt)
	}

	return &Meter{
		logger:        opt.logger.With("service", "rapl"),
		reader:        reader,
		clock:         opt.clock,
		maxPolls:      opt.maxPolls,
		intervalIters: opt.intervalIters,
		loopIters:     opt.loopIters,
	}
}

func (m *Meter) Name() string {
	return "rapl"
}

// ReaderName returns the name of the underlying reader.
func (m *Meter) ReaderName() string {
	return m.reader.Name()
}

// Init initializes the reader, calibrates the measurement constants and
// takes the first counter sample.
func (m *Meter) Init() error {
	if err := m.reader.Init(); err != nil {
		return fmt.Errorf("failed to initialize %s reader: %w", m.reader.Name(), err)
	}

	cal, err := calibrate(m.reader, m.clock, m.intervalIters, m.loopIters, m.maxPolls)
	if err != nil {
		return fmt.Errorf("failed to calibrate %s reader: %w", m.reader.Name(), err)
	}
	m.cal = cal

	m.logger.Info("Calibrated energy counters",
		"reader", m.reader.Name(),
		"update.interval", cal.UpdateInterval,
		"unit.uj", cal.Unit,
		"loop.package", cal.LoopCost[Package],
		"loop.dram", cal.LoopCost[DRAM],
		"loop.core", cal.LoopCost[Core],
		"loop.gpu", cal.LoopCost[GPU],
	)

	if _, err := readCounters(m.reader, m.clock, m.maxPolls, &m.last, true); err != nil {
		return fmt.Errorf("failed to take initial counter sample: %w", err)
	}

	return nil
}

// Shutdown closes the underlying reader.
func (m *Meter) Shutdown() error {
	return m.reader.Close()
}

// Calibration returns the measurement constants determined during Init.
func (m *Meter) Calibration() Calibration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cal
}

// Account refreshes the counters and attributes the energy consumed
// since the previous refresh to stats. The refresh waits for a hardware
// update so that the counters reflect everything up to now; the energy
// consumed by the wait itself is subtracted again.
func (m *Meter) Account(stats *Stats) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.last
	waited, err := readCounters(m.reader, m.clock, m.maxPolls, &m.last, true)
	if err != nil {
		m.logger.Warn("Failed to refresh energy counters", "error", err)
		stats.NrUpdates++
		return
	}

	stats.NrUpdates++
	stats.NrDefers++
	stats.DeferredTime += waited

	for _, c := range AllCounters {
		raw := deltaWrapAround(m.last.Raw[c], prev.Raw[c], m.reader.MaxValue(c))
		stats.Consumed[c] += m.cal.charge(c, raw, waited)
	}
}
