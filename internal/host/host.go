// SPDX-FileCopyrightText: 2025 The eteam Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"k8s.io/utils/clock"
	"k8s.io/utils/cpuset"

	"github.com/l3nkz/eteam/internal/sched"
)

// cpuState is what the host believes about one of its CPUs. The fields
// are atomic because the scheduler updates them from within its own
// locked sections and reads them as decision heuristics.
type cpuState struct {
	load    atomic.Int64
	resched atomic.Bool
}

// Host is a virtual baseline scheduler. It mirrors the load accounting
// surface a kernel would offer: per CPU runnable counters, a monotonic
// scheduling clock and reschedule flags. The energy scheduler borrows
// and returns CPUs by manipulating exactly this state.
type Host struct {
	logger *slog.Logger
	clock  clock.PassiveClock
	cpus   cpuset.CPUSet
	start  time.Time
	state  map[int]*cpuState
}

// Opts holds the configurable options of a Host.
type Opts struct {
	logger *slog.Logger
	clock  clock.PassiveClock
}

// DefaultOpts returns the default options of a Host.
func DefaultOpts() Opts {
	return Opts{
		logger: slog.Default(),
		clock:  clock.RealClock{},
	}
}

// OptionFn sets one option of a Host.
type OptionFn func(*Opts)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = logger
	}
}

// WithClock sets the clock the scheduling clock is derived from.
func WithClock(c clock.PassiveClock) OptionFn {
	return func(o *Opts) {
		o.clock = c
	}
}

var _ sched.Host = (*Host)(nil)

// New creates a virtual host scheduling the given CPUs.
func New(cpus cpuset.CPUSet, opts ...OptionFn) *Host {
	opt := DefaultOpts()
	for _, fn := range opts {
		fn(&opt)
	}

	h := &Host{
		logger: opt.logger.With("service", "host"),
		clock:  opt.clock,
		cpus:   cpus,
		start:  opt.clock.Now(),
		state:  make(map[int]*cpuState),
	}

	for _, cpu := range cpus.List() {
		h.state[cpu] = &cpuState{}
	}

	return h
}

func (h *Host) CPUs() cpuset.CPUSet {
	return h.cpus
}

func (h *Host) stateOf(cpu int) *cpuState {
	st, ok := h.state[cpu]
	if !ok {
		panic(fmt.Sprintf("cpu %d is not scheduled by this host", cpu))
	}
	return st
}

// Clock returns the monotonic scheduling clock of a CPU.
func (h *Host) Clock(cpu int) time.Duration {
	return h.clock.Since(h.start)
}

// NrRunning returns the number of runnable units visible across all
// CPUs.
func (h *Host) NrRunning() int {
	total := int64(0)
	for _, st := range h.state {
		total += st.load.Load()
	}
	return int(total)
}

// CPUNrRunning returns the number of runnable units visible on one CPU.
func (h *Host) CPUNrRunning(cpu int) int {
	return int(h.stateOf(cpu).load.Load())
}

// AddNrRunning makes count additional runnable units visible on cpu.
func (h *Host) AddNrRunning(cpu, count int) {
	h.stateOf(cpu).load.Add(int64(count))
}

// SubNrRunning hides count runnable units on cpu.
func (h *Host) SubNrRunning(cpu, count int) {
	h.stateOf(cpu).load.Add(-int64(count))
}

// ReschedCurr flags cpu for a reschedule at the next driver step.
func (h *Host) ReschedCurr(cpu int) {
	h.stateOf(cpu).resched.Store(true)
}

// takeResched consumes a pending reschedule request for cpu.
func (h *Host) takeResched(cpu int) bool {
	return h.stateOf(cpu).resched.Swap(false)
}

// InjectLoad accounts delta unmanaged runnable units on cpu, emulating
// work of other scheduling classes.
func (h *Host) InjectLoad(cpu, delta int) {
	h.stateOf(cpu).load.Add(int64(delta))
}
