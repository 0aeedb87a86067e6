// SPDX-FileCopyrightText: 2025 The eteam Authors
// SPDX-License-Identifier: Apache-2.0

package service

import "context"

// Service is the minimal interface every service implements.
type Service interface {
	// Name returns the name of the service
	Name() string
}

// Initializer is implemented by services that need a one-time setup
// before the run group starts.
type Initializer interface {
	Service
	Init() error
}

// Runner is implemented by services that run in the background. Run is
// expected to block until the context is cancelled and to be safe for
// concurrent use with the service's other methods.
type Runner interface {
	Service
	Run(ctx context.Context) error
}

// Shutdowner is implemented by services that need cleanup on termination.
type Shutdowner interface {
	Service
	Shutdown() error
}
