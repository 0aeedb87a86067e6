// SPDX-FileCopyrightText: 2025 The eteam Authors
// SPDX-License-Identifier: Apache-2.0

package sched

import (
	"fmt"
	"sync"
	"sync/atomic"

	"k8s.io/utils/cpuset"
)

// Local reschedule request flags.
const localResched uint32 = 0x1

// LocalRQ holds the threads currently assigned to one CPU. The thread
// ring and the current pointers are guarded by the lock; the counts and
// the reschedule flags are additionally read outside it as heuristics.
type LocalRQ struct {
	mu sync.Mutex

	cpu    int
	domain cpuset.CPUSet

	// runnable is the local rotation ring.
	runnable   []*Thread
	nrRunnable atomic.Int32

	curr     *Thread
	currTask *Task

	// blocked marks that the assigned threads are currently hidden
	// from the host's load accounting.
	blocked    bool
	nrAssigned atomic.Int32

	resched atomic.Uint32

	idle *Thread
}

func newLocalRQ(cpu int, domain cpuset.CPUSet) *LocalRQ {
	return &LocalRQ{
		cpu:    cpu,
		domain: domain,
		idle:   newIdleThread(cpu, domain),
	}
}

func (l *LocalRQ) lock() {
	l.mu.Lock()
}

func (l *LocalRQ) unlock() {
	l.mu.Unlock()
}

// currentTask returns the energy task designated for this CPU.
func (l *LocalRQ) currentTask() *Task {
	l.lock()
	defer l.unlock()
	return l.currTask
}

// current returns the thread executing on this CPU.
func (l *LocalRQ) current() *Thread {
	l.lock()
	defer l.unlock()
	return l.curr
}

// enqueueRunningLocked adds t to this CPU's thread ring.
func (l *LocalRQ) enqueueRunningLocked(t *Thread) {
	if t.onCPURQ() {
		panic(fmt.Sprintf("thread %d is already queued on a cpu", t.tid))
	}

	l.runnable = append([]*Thread{t}, l.runnable...)
	l.nrRunnable.Add(1)

	t.setState(threadCPUQueued)
}

// dequeueRunningLocked removes t from its CPU's thread ring.
func (l *LocalRQ) dequeueRunningLocked(t *Thread) {
	if !t.onCPURQ() {
		panic(fmt.Sprintf("thread %d is not queued on a cpu", t.tid))
	}

	for i, thread := range l.runnable {
		if thread == t {
			l.runnable = append(l.runnable[:i], l.runnable[i+1:]...)
			l.nrRunnable.Add(-1)

			t.clearState(threadCPUQueued)
			return
		}
	}

	panic(fmt.Sprintf("thread %d is flagged as queued but not in the ring of cpu %d", t.tid, l.cpu))
}

// requestResched marks that this CPU must pick a new local thread at
// the next scheduling opportunity.
func (l *LocalRQ) requestResched() {
	l.resched.Or(localResched)
}

func (l *LocalRQ) needResched() bool {
	return l.resched.Load()&localResched != 0
}

func (l *LocalRQ) clearResched() {
	l.resched.And(^localResched)
}
