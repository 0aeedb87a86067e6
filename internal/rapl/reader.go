// SPDX-FileCopyrightText: 2025 The eteam Authors
// SPDX-License-Identifier: Apache-2.0

package rapl

import "errors"

var (
	// ErrCounterUnavailable is returned when the platform does not
	// expose the requested counter.
	ErrCounterUnavailable = errors.New("energy counter unavailable")

	// ErrNoUpdate is returned when a counter did not change within the
	// polling bound while waiting for a hardware update.
	ErrNoUpdate = errors.New("energy counter did not update")
)

// Reader provides raw access to the wrapping hardware energy counters.
// Implementations are not required to be safe for concurrent use; the
// meter serializes all reads.
type Reader interface {
	// Name returns the name of the reader implementation.
	Name() string

	// Init prepares the reader for use.
	Init() error

	// Read returns the current raw value of the counter.
	Read(c Counter) (uint64, error)

	// MaxValue returns the value at which the counter wraps around.
	MaxValue(c Counter) uint64

	// EnergyUnit returns the energy in microjoules represented by one
	// raw counter increment.
	EnergyUnit() (float64, error)

	// Close releases any resources held by the reader.
	Close() error
}
