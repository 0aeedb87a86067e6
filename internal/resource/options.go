// SPDX-FileCopyrightText: 2025 The eteam Authors
// SPDX-License-Identifier: Apache-2.0

package resource

import (
	"log/slog"
	"time"

	"k8s.io/utils/clock"
	"k8s.io/utils/cpuset"
)

// DefaultInterval is the default interval between procfs scans.
const DefaultInterval = 100 * time.Millisecond

// Opts holds the configurable options of a Mirror.
type Opts struct {
	logger   *slog.Logger
	reader   procReader
	clock    clock.WithTicker
	interval time.Duration
	cpus     cpuset.CPUSet
}

// DefaultOpts returns the default options of a Mirror.
func DefaultOpts() Opts {
	return Opts{
		logger:   slog.Default(),
		clock:    clock.RealClock{},
		interval: DefaultInterval,
	}
}

// OptionFn sets one option of a Mirror.
type OptionFn func(*Opts)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = logger
	}
}

// WithProcReader sets the thread enumeration source. Defaults to the
// proc filesystem at /proc.
func WithProcReader(r procReader) OptionFn {
	return func(o *Opts) {
		o.reader = r
	}
}

// WithClock sets the clock the scan interval runs on.
func WithClock(c clock.WithTicker) OptionFn {
	return func(o *Opts) {
		o.clock = c
	}
}

// WithInterval sets the interval between procfs scans.
func WithInterval(d time.Duration) OptionFn {
	return func(o *Opts) {
		o.interval = d
	}
}

// WithCPUs sets the CPU set new threads are allowed to run on. Threads
// seen on CPUs outside this set are accounted on its first CPU.
func WithCPUs(cpus cpuset.CPUSet) OptionFn {
	return func(o *Opts) {
		o.cpus = cpus
	}
}
