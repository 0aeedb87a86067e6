// SPDX-FileCopyrightText: 2025 The eteam Authors
// SPDX-License-Identifier: Apache-2.0

package sched

import (
	"sync"
	"time"
)

// GlobalRQ is the process wide registry of all energy tasks. The task
// collection doubles as a rotation ring: rotateAndPickLocked scans it
// by rotating, so the position of the ring is itself scheduling state.
type GlobalRQ struct {
	mu sync.Mutex

	// running is set while this scheduler holds the CPUs.
	running bool

	tasks     []*Task
	nrTasks   int
	nrThreads int

	startRunning time.Duration
	stopRunning  time.Duration
}

func newGlobalRQ() *GlobalRQ {
	return &GlobalRQ{}
}

func (g *GlobalRQ) lock() {
	g.mu.Lock()
}

func (g *GlobalRQ) unlock() {
	g.mu.Unlock()
}

// enqueueTaskLocked prepends et to the task ring.
func (g *GlobalRQ) enqueueTaskLocked(et *Task) {
	g.tasks = append([]*Task{et}, g.tasks...)
	g.nrTasks++
}

// dequeueTaskLocked removes et from the task ring.
func (g *GlobalRQ) dequeueTaskLocked(et *Task) {
	for i, task := range g.tasks {
		if task == et {
			g.tasks = append(g.tasks[:i], g.tasks[i+1:]...)
			g.nrTasks--
			return
		}
	}
}

// findTaskLocked returns the task of the given thread group leader, or
// nil if no such task exists.
func (g *GlobalRQ) findTaskLocked(leader int) *Task {
	for _, et := range g.tasks {
		if et.leader == leader {
			return et
		}
	}
	return nil
}

// rotateAndPickLocked scans the task ring for the next task that is not
// already running but has runnable threads. The ring is rotated while
// scanning, so consecutive calls with unchanged state keep returning
// the same task. Returns nil after a full rotation without a match.
func (g *GlobalRQ) rotateAndPickLocked() *Task {
	if len(g.tasks) == 0 {
		return nil
	}

	head := g.tasks[0]
	for {
		next := g.tasks[0]
		g.tasks = append(g.tasks[1:], next)

		if !next.running && next.nrRunnable.Load() != 0 {
			return next
		}
		if g.tasks[0] == head {
			return nil
		}
	}
}
