// SPDX-FileCopyrightText: 2025 The eteam Authors
// SPDX-License-Identifier: Apache-2.0

package sched

import (
	"fmt"
	"sync/atomic"
	"time"

	"k8s.io/utils/cpuset"
)

// Thread membership states. A thread can be queued at the task level,
// queued at one CPU and executing independently; the flags must stay
// consistent with the list memberships.
const (
	threadTaskQueued uint32 = 0x1
	threadCPUQueued  uint32 = 0x2
	threadRunning    uint32 = 0x4
)

// Thread is one schedulable unit belonging to exactly one energy task.
// The structural fields are guarded by the global and local run queue
// locks; the state flags and the CPU assignment are read outside the
// locks as scheduling heuristics and are therefore atomic.
type Thread struct {
	tid  int
	tgid int
	comm string

	state atomic.Uint32
	cpu   atomic.Int32

	// allowed is guarded by the global run queue lock.
	allowed cpuset.CPUSet

	// Execution time accounting, guarded by the lock of the CPU the
	// thread is assigned to.
	execStart   time.Duration
	sumExec     time.Duration
	prevSumExec time.Duration
	execMax     time.Duration
}

// NewThread creates a thread with the given identity, belonging to the
// process led by tgid, currently placed on cpu and allowed to run on
// the given CPU set.
func NewThread(tid, tgid int, comm string, cpu int, allowed cpuset.CPUSet) *Thread {
	t := &Thread{
		tid:     tid,
		tgid:    tgid,
		comm:    comm,
		allowed: allowed,
	}
	t.cpu.Store(int32(cpu))
	return t
}

func newIdleThread(cpu int, allowed cpuset.CPUSet) *Thread {
	id := -(cpu + 1)
	return NewThread(id, id, fmt.Sprintf("e_idle/%d", cpu), cpu, allowed)
}

func (t *Thread) TID() int {
	return t.tid
}

// TGID returns the thread group leader of the process t belongs to.
func (t *Thread) TGID() int {
	return t.tgid
}

func (t *Thread) Comm() string {
	return t.comm
}

// CPU returns the CPU the thread is currently assigned to.
func (t *Thread) CPU() int {
	return int(t.cpu.Load())
}

// Idle reports whether this is a per CPU idle fallback thread.
func (t *Thread) Idle() bool {
	return t.tid < 0
}

func (t *Thread) onTaskRQ() bool {
	return t.state.Load()&threadTaskQueued != 0
}

func (t *Thread) onCPURQ() bool {
	return t.state.Load()&threadCPUQueued != 0
}

func (t *Thread) running() bool {
	return t.state.Load()&threadRunning != 0
}

func (t *Thread) setState(flag uint32) {
	t.state.Or(flag)
}

func (t *Thread) clearState(flag uint32) {
	t.state.And(^flag)
}
