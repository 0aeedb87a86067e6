// SPDX-FileCopyrightText: 2025 The eteam Authors
// SPDX-License-Identifier: Apache-2.0

package sched

import (
	"time"

	"k8s.io/utils/cpuset"

	"github.com/l3nkz/eteam/internal/rapl"
)

// Host is the baseline scheduler the energy scheduler is embedded in.
// It owns the CPUs, their monotonic clocks and the per CPU load
// accounting that decides what the baseline scheduler believes is
// runnable. The energy scheduler borrows CPUs by manipulating exactly
// this surface.
type Host interface {
	// CPUs returns the set of CPUs the host schedules on.
	CPUs() cpuset.CPUSet

	// Clock returns the monotonic scheduling clock of a CPU.
	Clock(cpu int) time.Duration

	// NrRunning returns the number of runnable units the host sees
	// across all CPUs.
	NrRunning() int

	// CPUNrRunning returns the number of runnable units the host sees
	// on one CPU.
	CPUNrRunning(cpu int) int

	// AddNrRunning makes count additional runnable units visible to
	// the host's load accounting on one CPU.
	AddNrRunning(cpu int, count int)

	// SubNrRunning hides count runnable units from the host's load
	// accounting on one CPU.
	SubNrRunning(cpu int, count int)

	// ReschedCurr asks the host to reschedule the given CPU at the
	// next opportunity.
	ReschedCurr(cpu int)
}

// Accountant attributes the energy consumed since its last invocation
// to the given statistics.
type Accountant interface {
	Account(stats *rapl.Stats)
}
