// SPDX-FileCopyrightText: 2025 The eteam Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"context"
	"log/slog"
	"time"

	"k8s.io/utils/clock"

	"github.com/l3nkz/eteam/internal/sched"
	"github.com/l3nkz/eteam/internal/service"
)

// DefaultTick is the interval between scheduling opportunities.
const DefaultTick = 1 * time.Millisecond

// Scheduler is the hook surface the driver feeds with scheduling
// opportunities.
type Scheduler interface {
	Tick(cpu int, t *sched.Thread)
	PickNext(cpu int, prev *sched.Thread) *sched.Thread
	PutPrev(cpu int, t *sched.Thread)
}

// DriverOpts holds the configurable options of a Driver.
type DriverOpts struct {
	logger *slog.Logger
	clock  clock.WithTicker
	tick   time.Duration
}

// DefaultDriverOpts returns the default options of a Driver.
func DefaultDriverOpts() DriverOpts {
	return DriverOpts{
		logger: slog.Default(),
		clock:  clock.RealClock{},
		tick:   DefaultTick,
	}
}

// DriverOptionFn sets one option of a Driver.
type DriverOptionFn func(*DriverOpts)

// WithDriverLogger sets the logger.
func WithDriverLogger(logger *slog.Logger) DriverOptionFn {
	return func(o *DriverOpts) {
		o.logger = logger
	}
}

// WithDriverClock sets the clock the tick interval runs on.
func WithDriverClock(c clock.WithTicker) DriverOptionFn {
	return func(o *DriverOpts) {
		o.clock = c
	}
}

// WithTick sets the interval between scheduling opportunities.
func WithTick(tick time.Duration) DriverOptionFn {
	return func(o *DriverOpts) {
		o.tick = tick
	}
}

// Driver periodically grants every host CPU a scheduling opportunity:
// a tick for the executing thread, then a pick where a reschedule was
// requested. It is the stand-in for the interrupt driven scheduler
// entry points of a kernel.
type Driver struct {
	logger *slog.Logger
	host   *Host
	sched  Scheduler
	clock  clock.WithTicker
	tick   time.Duration

	// curr tracks what each CPU currently executes; only the driver
	// goroutine touches it.
	curr map[int]*sched.Thread
}

var _ service.Runner = (*Driver)(nil)

// NewDriver creates a driver stepping scheduler on the CPUs of host.
func NewDriver(host *Host, scheduler Scheduler, opts ...DriverOptionFn) *Driver {
	opt := DefaultDriverOpts()
	for _, fn := range opts {
		fn(&opt)
	}

	return &Driver{
		logger: opt.logger.With("service", "driver"),
		host:   host,
		sched:  scheduler,
		clock:  opt.clock,
		tick:   opt.tick,
		curr:   make(map[int]*sched.Thread),
	}
}

func (d *Driver) Name() string {
	return "driver"
}

func (d *Driver) Run(ctx context.Context) error {
	d.logger.Info("Driver is running...", "tick", d.tick)

	ticker := d.clock.NewTicker(d.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Driver has terminated.")
			return nil
		case <-ticker.C():
			d.step()
		}
	}
}

// step grants one scheduling opportunity to every CPU.
func (d *Driver) step() {
	for _, cpu := range d.host.CPUs().List() {
		curr := d.curr[cpu]

		if curr != nil {
			d.sched.Tick(cpu, curr)
		}

		if !d.host.takeResched(cpu) && curr != nil {
			continue
		}

		next := d.sched.PickNext(cpu, curr)
		if next == nil && curr != nil {
			// The scheduler gave up the CPU; put the thread it was
			// executing the way a class switch would.
			d.sched.PutPrev(cpu, curr)
		}
		d.curr[cpu] = next
	}
}
