// SPDX-FileCopyrightText: 2025 The eteam Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"log/slog"
)

// Opts holds the configurable options of the control service.
type Opts struct {
	logger   *slog.Logger
	resolver resolver
	policy   Policy
}

// DefaultOpts returns the default options of the control service.
func DefaultOpts() Opts {
	return Opts{
		logger: slog.Default(),
		policy: DefaultEnergyPolicy,
	}
}

// OptionFn sets one option of the control service.
type OptionFn func(*Opts)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = logger
	}
}

// WithResolver sets the process table used to resolve pids. Defaults
// to the proc filesystem at /proc.
func WithResolver(r resolver) OptionFn {
	return func(o *Opts) {
		o.resolver = r
	}
}

// WithPolicy sets the policy number threads are switched to when
// energy scheduling starts.
func WithPolicy(p Policy) OptionFn {
	return func(o *Opts) {
		o.policy = p
	}
}
