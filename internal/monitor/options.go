// SPDX-FileCopyrightText: 2025 The eteam Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"log/slog"
	"time"

	"k8s.io/utils/clock"
)

// Opts holds the configurable options of the EnergyMonitor.
type Opts struct {
	logger       *slog.Logger
	clock        clock.WithTicker
	interval     time.Duration
	maxStaleness time.Duration
}

// DefaultOpts returns the default options of the EnergyMonitor.
func DefaultOpts() Opts {
	return Opts{
		logger:       slog.Default(),
		clock:        clock.RealClock{},
		interval:     0 * time.Second, // no periodic collection
		maxStaleness: 500 * time.Millisecond,
	}
}

// OptionFn sets one option of the EnergyMonitor.
type OptionFn func(*Opts)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = logger
	}
}

// WithClock sets the clock snapshots are timed on.
func WithClock(c clock.WithTicker) OptionFn {
	return func(o *Opts) {
		o.clock = c
	}
}

// WithInterval sets the interval between periodic snapshot
// collections. 0 collects only on demand.
func WithInterval(d time.Duration) OptionFn {
	return func(o *Opts) {
		o.interval = d
	}
}

// WithMaxStaleness sets the age after which a snapshot is recomputed
// when requested.
func WithMaxStaleness(d time.Duration) OptionFn {
	return func(o *Opts) {
		o.maxStaleness = d
	}
}
