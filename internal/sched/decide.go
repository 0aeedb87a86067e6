// SPDX-FileCopyrightText: 2025 The eteam Authors
// SPDX-License-Identifier: Apache-2.0

package sched

import (
	"math"
	"time"
)

// sinceSaturating returns how much time passed since stamp, clamped at
// zero when the stamp is not in the past.
func sinceSaturating(now, stamp time.Duration) time.Duration {
	if now <= stamp {
		return 0
	}
	return now - stamp
}

// classSliceLocked returns how long the energy scheduler as a whole may
// hold the CPUs.
func (s *Scheduler) classSliceLocked() time.Duration {
	return time.Duration(s.grq.nrThreads) * s.quantum
}

// taskSlice returns how long one energy task may run, proportional to
// its thread count.
func (s *Scheduler) taskSlice(et *Task) time.Duration {
	if et == nil {
		return 0
	}
	return time.Duration(et.nrRunnable.Load()) * s.quantum
}

// localSlice returns how long one thread may run on l: the task's slice
// divided among the threads assigned there.
func (s *Scheduler) localSlice(l *LocalRQ, et *Task) time.Duration {
	nr := l.nrRunnable.Load()
	if nr == 0 {
		return s.taskSlice(et)
	}
	return s.taskSlice(et) / time.Duration(nr)
}

// otherSliceLocked returns how long unmanaged work may hold the CPUs,
// proportional to the runnable units the host sees beyond the managed
// threads. The host count can drop below the managed thread count while
// CPUs are blocked; the slice saturates rather than going negative.
func (s *Scheduler) otherSliceLocked() time.Duration {
	n := s.host.NrRunning() - s.grq.nrThreads
	if n < 0 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(n) * s.quantum
}

// shouldSwitchToLocked decides whether this scheduler should take over
// the CPUs from the host.
func (s *Scheduler) shouldSwitchToLocked(cpu int) bool {
	nrRunning := s.host.NrRunning()

	switch {
	case s.grq.nrThreads == 0:
		return false
	case nrRunning == s.grq.nrThreads:
		// All runnable work belongs to energy tasks.
		return true
	case nrRunning == int(s.localOf(cpu).nrAssigned.Load()):
		// Every other CPU is idle and this one only has managed
		// threads.
		return true
	case nrRunning == 0:
		return true
	default:
		notRunning := sinceSaturating(s.clock(cpu), s.grq.stopRunning)
		return notRunning > s.otherSliceLocked()
	}
}

func (s *Scheduler) shouldCheckCPUsLocked() bool {
	return s.grq.nrTasks != 0
}

// shouldSwitchFromLocked decides whether this scheduler should hand the
// CPUs back to the host.
func (s *Scheduler) shouldSwitchFromLocked(cpu int) bool {
	nrRunning := s.host.NrRunning()

	switch {
	case s.grq.nrThreads == 0:
		return true
	case nrRunning == s.grq.nrThreads:
		return false
	default:
		running := sinceSaturating(s.clock(cpu), s.grq.startRunning)
		return running > s.classSliceLocked()
	}
}

// shouldSwitchInLocked decides whether the CPUs should rotate to the
// next energy task.
func (s *Scheduler) shouldSwitchInLocked(cpu int) bool {
	if s.grq.nrTasks <= 1 {
		return false
	}

	et := s.localOf(cpu).currentTask()
	if et == nil {
		return true
	}

	running := sinceSaturating(s.clock(cpu), et.startRunning)
	return running > s.taskSlice(et)
}

// shouldSwitchLocalLocked decides whether l should rotate to its next
// assigned thread.
func (s *Scheduler) shouldSwitchLocalLocked(l *LocalRQ) bool {
	if l.nrRunnable.Load() <= 1 {
		return false
	}

	if l.curr == nil {
		return true
	}

	exec := l.curr.sumExec - l.curr.prevSumExec
	return exec > s.localSlice(l, l.currTask)
}

// shouldRedistribute decides whether a thread arriving at or departing
// from et requires redistributing the task right away.
func shouldRedistribute(et *Task, t *Thread) bool {
	return et.running || t.running()
}
