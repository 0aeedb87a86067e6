// SPDX-FileCopyrightText: 2025 The eteam Authors
// SPDX-License-Identifier: Apache-2.0

package sched

import (
	"k8s.io/utils/cpuset"
)

// distributeLocked marks et as the running task and distributes its
// threads over the energy domain of the invoking CPU.
func (s *Scheduler) distributeLocked(cpu int, et *Task) {
	et.running = true
	et.startRunning = s.clock(cpu)
	et.domain = s.localOf(cpu).domain

	s.distributeThreadsLocked(et)
}

// distributeThreadsLocked places every thread of et that is not yet
// assigned to a CPU onto the domain CPU with the lowest local load,
// then designates et on all domain CPUs and requests local reschedules.
func (s *Scheduler) distributeThreadsLocked(et *Task) {
	for _, t := range et.runnable {
		if t.onCPURQ() {
			continue
		}

		// Start with the CPU the thread is already placed on, which
		// biases against needless migration.
		best := s.localOf(t.CPU())
		minLoad := best.nrRunnable.Load()

		for _, cpu := range et.domain.List() {
			if !t.allowed.Contains(cpu) {
				continue
			}

			l := s.localOf(cpu)
			if load := l.nrRunnable.Load(); load < minLoad {
				minLoad = load
				best = l
			}
		}

		s.placeLocalThread(best, t)
	}

	for _, cpu := range et.domain.List() {
		l := s.localOf(cpu)

		l.lock()
		l.currTask = et
		l.unlock()

		s.reschedCurrLocal(l)
	}
}

// placeLocalThread assigns t to l and enqueues it into l's thread ring.
func (s *Scheduler) placeLocalThread(l *LocalRQ, t *Thread) {
	l.clearResched()

	s.moveLocalThread(t, l.cpu)

	l.lock()
	l.enqueueRunningLocked(t)
	l.unlock()
}

// moveLocalThread reassigns t to the given CPU, moving its contribution
// to the load accounting from the old CPU to the new one. The two local
// locks are taken one after the other, never together.
func (s *Scheduler) moveLocalThread(t *Thread, cpu int) {
	if t.CPU() == cpu {
		return
	}

	old := s.localOf(t.CPU())
	old.lock()
	s.decNrRunningLocked(old)
	old.unlock()

	t.cpu.Store(int32(cpu))

	next := s.localOf(cpu)
	next.lock()
	s.incNrRunningLocked(next)
	next.unlock()
}

// clearTask removes et's threads from every domain CPU.
func (s *Scheduler) clearTask(et *Task) {
	for _, cpu := range et.domain.List() {
		s.clearLocalThreads(s.localOf(cpu))
	}
}

// clearLocalThreads drains l's thread ring and drops the current
// designations, forcing the host to reschedule that CPU.
func (s *Scheduler) clearLocalThreads(l *LocalRQ) {
	l.lock()

	for len(l.runnable) > 0 {
		l.dequeueRunningLocked(l.runnable[0])
	}
	l.nrRunnable.Store(0)

	l.curr = nil
	l.currTask = nil

	l.clearResched()

	l.unlock()

	s.host.ReschedCurr(l.cpu)
}

// putTaskLocked removes et from its running standing: the energy
// consumed while it ran is attributed to it, its threads are pulled off
// the domain CPUs and, if it has no runnable threads left, the task is
// destroyed.
func (s *Scheduler) putTaskLocked(et *Task) {
	if s.accountant != nil {
		s.accountant.Account(&et.stats)
	}

	s.clearTask(et)

	et.running = false
	et.domain = cpuset.New()

	if et.nrRunnable.Load() == 0 {
		s.grq.dequeueTaskLocked(et)
		s.logger.Debug("Destroyed energy task", "pid", et.leader, "comm", et.comm)
	}
}

// putLocalThread removes t as the thread executing on l.
func (s *Scheduler) putLocalThread(l *LocalRQ, t *Thread) {
	l.lock()

	s.updateLocalStatsLocked(l, t)

	t.clearState(threadRunning)
	l.curr = nil

	l.unlock()
}

// pickNextLocal rotates l's thread ring and makes its head the
// executing thread, falling back to the idle thread on an empty ring.
func (s *Scheduler) pickNextLocal(l *LocalRQ) *Thread {
	l.clearResched()

	l.lock()

	var next *Thread
	if len(l.runnable) != 0 {
		next = l.runnable[0]
		l.runnable = append(l.runnable[1:], next)
	} else {
		next = l.idle
	}

	s.setLocalThreadLocked(l, next)

	l.unlock()

	return next
}

// setLocalThreadLocked marks t as executing on l and snapshots its
// execution counters for the local slice bookkeeping.
func (s *Scheduler) setLocalThreadLocked(l *LocalRQ, t *Thread) {
	t.setState(threadRunning)
	l.curr = t

	t.execStart = s.clock(l.cpu)
	t.prevSumExec = t.sumExec
}

// updateLocalStatsLocked folds the time since t's execution start into
// its accumulated runtime.
func (s *Scheduler) updateLocalStatsLocked(l *LocalRQ, t *Thread) {
	if t == nil {
		return
	}

	now := s.clock(l.cpu)
	delta := now - t.execStart
	if delta <= 0 {
		return
	}

	t.execStart = now

	if delta > t.execMax {
		t.execMax = delta
	}
	t.sumExec += delta
}
