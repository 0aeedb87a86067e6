// SPDX-FileCopyrightText: 2025 The eteam Authors
// SPDX-License-Identifier: Apache-2.0

package sched

// switchToClassLocked takes control of the CPUs for this scheduler.
func (s *Scheduler) switchToClassLocked(cpu int) {
	s.grq.running = true
	s.grq.startRunning = s.clock(cpu)

	s.acquireCPUs(s.localOf(cpu).domain)

	s.logger.Debug("Acquired energy domain", "cpu", cpu)
}

// switchFromClassLocked hands the CPUs back to the host.
func (s *Scheduler) switchFromClassLocked(cpu int) {
	s.releaseCPUs(s.localOf(cpu).domain)

	s.grq.running = false
	s.grq.stopRunning = s.clock(cpu)

	s.logger.Debug("Released energy domain", "cpu", cpu)
}

// switchToLocked enters this scheduler with to as the running task.
func (s *Scheduler) switchToLocked(cpu int, to *Task) {
	if to == nil {
		return
	}

	s.switchToClassLocked(cpu)
	s.distributeLocked(cpu, to)
}

// switchFromLocked leaves this scheduler, tearing down the distribution
// of the task that was running.
func (s *Scheduler) switchFromLocked(cpu int, from *Task) {
	if from != nil {
		s.putTaskLocked(from)
	}

	s.switchFromClassLocked(cpu)
}

// switchInLocked rotates from one energy task to another without
// leaving the scheduler.
func (s *Scheduler) switchInLocked(cpu int, from, to *Task) {
	if from != nil {
		s.putTaskLocked(from)
	}
	if to != nil {
		s.distributeLocked(cpu, to)
	}
}

// redistributeLocked reevaluates the thread placement of et after a
// thread arrived or departed, entering or leaving the scheduler as the
// task's thread count dictates.
func (s *Scheduler) redistributeLocked(cpu int, et *Task, arrived bool) {
	if arrived {
		if !s.grq.running {
			s.switchToClassLocked(cpu)
		}

		if !et.running {
			s.switchInLocked(cpu, s.localOf(cpu).currentTask(), et)
		} else {
			s.distributeThreadsLocked(et)
		}
		return
	}

	if et.nrRunnable.Load() != 0 {
		s.distributeThreadsLocked(et)
		return
	}

	s.putTaskLocked(et)

	if s.grq.nrTasks == 0 {
		s.switchFromClassLocked(cpu)
	}
}
