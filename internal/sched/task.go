// SPDX-FileCopyrightText: 2025 The eteam Authors
// SPDX-License-Identifier: Apache-2.0

package sched

import (
	"fmt"
	"sync/atomic"
	"time"

	"k8s.io/utils/cpuset"

	"github.com/l3nkz/eteam/internal/rapl"
)

// Task groups all threads of one managed process into a single
// schedulable unit. Except for the runnable count, which is read
// outside the lock as a slice heuristic, all fields are guarded by the
// global run queue lock. The energy statistics are only ever touched
// while the task leaves its running standing, serialized by the same
// lock.
type Task struct {
	leader int
	comm   string

	running bool

	// domain is the CPU set the threads are distributed over while
	// the task is running.
	domain cpuset.CPUSet

	// runnable is a rotation ring; order matters for fairness but
	// carries no other meaning.
	runnable   []*Thread
	nrRunnable atomic.Int32

	startRunning time.Duration

	stats rapl.Stats
}

func newTask(leader int, comm string) *Task {
	return &Task{
		leader: leader,
		comm:   comm,
	}
}

// PID returns the thread group leader of the managed process.
func (et *Task) PID() int {
	return et.leader
}

func (et *Task) Comm() string {
	return et.comm
}

// addRunnableLocked prepends t to the task's runnable ring.
func (et *Task) addRunnableLocked(t *Thread) {
	if t.onTaskRQ() {
		panic(fmt.Sprintf("thread %d is already queued at task %d", t.tid, et.leader))
	}

	et.runnable = append([]*Thread{t}, et.runnable...)
	et.nrRunnable.Add(1)

	t.setState(threadTaskQueued)
}

// removeRunnableLocked removes t from the task's runnable ring.
func (et *Task) removeRunnableLocked(t *Thread) {
	if !t.onTaskRQ() {
		panic(fmt.Sprintf("thread %d is not queued at task %d", t.tid, et.leader))
	}

	for i, thread := range et.runnable {
		if thread == t {
			et.runnable = append(et.runnable[:i], et.runnable[i+1:]...)
			et.nrRunnable.Add(-1)

			t.clearState(threadTaskQueued)
			return
		}
	}

	panic(fmt.Sprintf("thread %d is flagged as queued but not in the ring of task %d", t.tid, et.leader))
}
