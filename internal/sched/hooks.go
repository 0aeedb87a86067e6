// SPDX-FileCopyrightText: 2025 The eteam Authors
// SPDX-License-Identifier: Apache-2.0

package sched

import (
	"fmt"
	"time"

	"k8s.io/utils/cpuset"
)

// The methods in this file form the hook surface the host drives on
// every thread lifecycle event and scheduling opportunity. Enqueue and
// dequeue are invoked on the CPU the thread is placed on.

// EnqueueThread makes t runnable, creating its energy task if this is
// the first thread of the process.
func (s *Scheduler) EnqueueThread(t *Thread) {
	s.grq.lock()
	defer s.grq.unlock()

	et := s.grq.findTaskLocked(t.tgid)
	if et == nil {
		et = newTask(t.tgid, t.comm)
		s.grq.enqueueTaskLocked(et)

		s.logger.Debug("Created energy task", "pid", et.leader, "comm", et.comm)
	}

	s.enqueueRunnableLocked(et, t)

	if shouldRedistribute(et, t) {
		s.redistributeLocked(t.CPU(), et, true)
	}
}

// DequeueThread removes t from the runnable set of its energy task.
func (s *Scheduler) DequeueThread(t *Thread) {
	s.grq.lock()
	defer s.grq.unlock()

	et := s.grq.findTaskLocked(t.tgid)
	if et == nil {
		panic(fmt.Sprintf("thread %d has no energy task", t.tid))
	}

	if t.onCPURQ() {
		l := s.localOf(t.CPU())

		l.lock()
		l.dequeueRunningLocked(t)
		l.unlock()
	}

	s.dequeueRunnableLocked(et, t)

	if shouldRedistribute(et, t) {
		s.redistributeLocked(t.CPU(), et, false)
	}
}

// enqueueRunnableLocked adds t to et's runnable set and to the global
// and per CPU thread accounting.
func (s *Scheduler) enqueueRunnableLocked(et *Task, t *Thread) {
	et.addRunnableLocked(t)
	s.grq.nrThreads++

	l := s.localOf(t.CPU())
	l.lock()
	s.incNrRunningLocked(l)
	l.unlock()
}

// dequeueRunnableLocked removes t from et's runnable set and from the
// global and per CPU thread accounting.
func (s *Scheduler) dequeueRunnableLocked(et *Task, t *Thread) {
	et.removeRunnableLocked(t)
	s.grq.nrThreads--

	l := s.localOf(t.CPU())
	l.lock()
	s.decNrRunningLocked(l)
	l.unlock()
}

// PickNext evaluates the class and task level switch decisions, then
// returns the thread that should execute on cpu. A nil result means
// this scheduler has nothing to run there; an idle thread result means
// the CPU is held idle on purpose.
func (s *Scheduler) PickNext(cpu int, prev *Thread) *Thread {
	l := s.localOf(cpu)

	s.grq.lock()

	if !s.grq.running {
		if s.shouldSwitchToLocked(cpu) {
			s.switchToLocked(cpu, s.grq.rotateAndPickLocked())
		} else if s.shouldCheckCPUsLocked() {
			s.checkCPUs(l.domain)
		}
	} else {
		et := l.currentTask()

		if s.shouldSwitchFromLocked(cpu) {
			s.switchFromLocked(cpu, et)
		} else if s.shouldSwitchInLocked(cpu) {
			s.switchInLocked(cpu, et, s.grq.rotateAndPickLocked())
		}
	}

	s.grq.unlock()

	if l.needResched() {
		if prev != nil {
			s.PutPrev(cpu, prev)
		}
		s.pickNextLocal(l)
	}

	return l.current()
}

// PutPrev tells the scheduler that t is losing its CPU.
func (s *Scheduler) PutPrev(cpu int, t *Thread) {
	s.putLocalThread(s.localOf(cpu), t)
}

// SetCurr tells the scheduler that t keeps executing on cpu, for
// example after it was moved into this scheduling policy while already
// running.
func (s *Scheduler) SetCurr(cpu int, t *Thread) {
	l := s.localOf(cpu)

	l.lock()

	if !t.onTaskRQ() {
		l.enqueueRunningLocked(t)
	}
	s.setLocalThreadLocked(l, t)

	l.unlock()
}

// Tick drives the time sliced switch decisions for the thread currently
// executing on cpu.
func (s *Scheduler) Tick(cpu int, t *Thread) {
	l := s.localOf(cpu)

	l.lock()
	s.updateLocalStatsLocked(l, t)
	l.unlock()

	s.grq.lock()
	if s.shouldSwitchInLocked(cpu) || s.shouldSwitchFromLocked(cpu) {
		s.host.ReschedCurr(cpu)
	}
	s.grq.unlock()

	l.lock()
	if s.shouldSwitchLocalLocked(l) {
		s.reschedCurrLocal(l)
	}
	l.unlock()
}

// Yield rotates to another local thread, which only has an effect when
// several threads of the task share this CPU.
func (s *Scheduler) Yield(cpu int) {
	l := s.localOf(cpu)

	if l.nrRunnable.Load() > 2 {
		s.reschedCurrLocal(l)
	}
}

// YieldTo would hand the CPU to a specific thread; not supported.
func (s *Scheduler) YieldTo(cpu int, t *Thread) bool {
	return false
}

// RRInterval returns the local slice of cpu, the round robin interval
// reported for its threads.
func (s *Scheduler) RRInterval(cpu int) time.Duration {
	l := s.localOf(cpu)
	return s.localSlice(l, l.currentTask())
}

// UpdateCurr folds the runtime of cpu's executing thread into its
// accounting outside of a tick.
func (s *Scheduler) UpdateCurr(cpu int) {
	l := s.localOf(cpu)

	l.lock()
	s.updateLocalStatsLocked(l, l.curr)
	l.unlock()
}

// SetCPUsAllowed replaces the set of CPUs t may run on. The placement
// is not reevaluated until the task is distributed the next time.
func (s *Scheduler) SetCPUsAllowed(t *Thread, allowed cpuset.CPUSet) {
	s.grq.lock()
	t.allowed = allowed
	s.grq.unlock()
}

// SelectRQ returns the CPU t should be placed on when it wakes up. The
// distribution engine owns placement, so the current CPU is kept.
func (s *Scheduler) SelectRQ(t *Thread, cpu int) int {
	return cpu
}

// CheckPreempt never preempts the executing thread in favor of another.
func (s *Scheduler) CheckPreempt(cpu int, t *Thread) {}

// Fork is a no-op; the new thread enters via its first enqueue.
func (s *Scheduler) Fork(t *Thread) {}

// Dead is a no-op; the thread already left via dequeue.
func (s *Scheduler) Dead(t *Thread) {}

// SwitchedFrom is a no-op.
func (s *Scheduler) SwitchedFrom(cpu int, t *Thread) {}

// SwitchedTo is a no-op.
func (s *Scheduler) SwitchedTo(cpu int, t *Thread) {}

// PrioChanged is a no-op; priorities do not exist in this scheduler.
func (s *Scheduler) PrioChanged(cpu int, t *Thread, oldPrio int) {}

// Migrate is a no-op; the distribution engine moves threads itself.
func (s *Scheduler) Migrate(t *Thread, newCPU int) {}

// Waking is a no-op.
func (s *Scheduler) Waking(t *Thread) {}

// Woken is a no-op.
func (s *Scheduler) Woken(cpu int, t *Thread) {}

// RQOnline is a no-op; CPU hotplug does not reshape the domain.
func (s *Scheduler) RQOnline(cpu int) {}

// RQOffline is a no-op.
func (s *Scheduler) RQOffline(cpu int) {}
