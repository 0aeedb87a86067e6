// SPDX-FileCopyrightText: 2025 The eteam Authors
// SPDX-License-Identifier: Apache-2.0

package sched

import (
	"slices"
	"time"

	"k8s.io/utils/cpuset"

	"github.com/l3nkz/eteam/internal/rapl"
)

// TaskSnapshot is a point in time copy of one energy task.
type TaskSnapshot struct {
	PID        int
	Comm       string
	Running    bool
	NrRunnable int
	Domain     cpuset.CPUSet
	Stats      rapl.Stats
}

// CPUSnapshot is a point in time copy of one local run queue.
type CPUSnapshot struct {
	CPU        int
	Blocked    bool
	NrRunnable int
	NrAssigned int
	CurrentTID int
	CurrentPID int
}

// Snapshot is a point in time copy of the scheduler state, safe to
// read without any locks.
type Snapshot struct {
	Running   bool
	NrTasks   int
	NrThreads int
	Quantum   time.Duration
	Tasks     []TaskSnapshot
	CPUs      []CPUSnapshot
}

// Clone returns a copy whose slices are independent of the original.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}

	clone := *s
	clone.Tasks = slices.Clone(s.Tasks)
	clone.CPUs = slices.Clone(s.CPUs)
	return &clone
}

// Snapshot copies the current scheduler state. The task and CPU parts
// are each internally consistent but captured one after the other.
func (s *Scheduler) Snapshot() *Snapshot {
	snap := &Snapshot{Quantum: s.quantum}

	s.grq.lock()
	snap.Running = s.grq.running
	snap.NrTasks = s.grq.nrTasks
	snap.NrThreads = s.grq.nrThreads

	snap.Tasks = make([]TaskSnapshot, 0, len(s.grq.tasks))
	for _, et := range s.grq.tasks {
		snap.Tasks = append(snap.Tasks, TaskSnapshot{
			PID:        et.leader,
			Comm:       et.comm,
			Running:    et.running,
			NrRunnable: int(et.nrRunnable.Load()),
			Domain:     et.domain,
			Stats:      et.stats,
		})
	}
	s.grq.unlock()

	cpus := s.host.CPUs().List()
	snap.CPUs = make([]CPUSnapshot, 0, len(cpus))
	for _, cpu := range cpus {
		l := s.localOf(cpu)

		l.lock()
		cs := CPUSnapshot{
			CPU:        cpu,
			Blocked:    l.blocked,
			NrRunnable: int(l.nrRunnable.Load()),
			NrAssigned: int(l.nrAssigned.Load()),
		}
		if l.curr != nil {
			cs.CurrentTID = l.curr.tid
		}
		if l.currTask != nil {
			cs.CurrentPID = l.currTask.leader
		}
		l.unlock()

		snap.CPUs = append(snap.CPUs, cs)
	}

	return snap
}

// NrTasks returns the number of energy tasks.
func (s *Scheduler) NrTasks() int {
	s.grq.lock()
	defer s.grq.unlock()
	return s.grq.nrTasks
}

// NrThreads returns the total number of runnable threads across all
// energy tasks.
func (s *Scheduler) NrThreads() int {
	s.grq.lock()
	defer s.grq.unlock()
	return s.grq.nrThreads
}

// Running reports whether this scheduler currently holds the CPUs.
func (s *Scheduler) Running() bool {
	s.grq.lock()
	defer s.grq.unlock()
	return s.grq.running
}
