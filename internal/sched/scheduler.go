// SPDX-FileCopyrightText: 2025 The eteam Authors
// SPDX-License-Identifier: Apache-2.0

package sched

import (
	"fmt"
	"log/slog"
	"time"

	"k8s.io/utils/cpuset"
)

// DefaultQuantum is the scheduling slice granted per thread. All slice
// budgets are multiples of it.
const DefaultQuantum = 10 * time.Millisecond

// Opts holds the configurable options of a Scheduler.
type Opts struct {
	logger     *slog.Logger
	quantum    time.Duration
	domain     cpuset.CPUSet
	accountant Accountant
}

// DefaultOpts returns the default options of a Scheduler.
func DefaultOpts() Opts {
	return Opts{
		logger:  slog.Default(),
		quantum: DefaultQuantum,
	}
}

// OptionFn sets one option of a Scheduler.
type OptionFn func(*Opts)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = logger
	}
}

// WithQuantum sets the per thread scheduling slice.
func WithQuantum(quantum time.Duration) OptionFn {
	return func(o *Opts) {
		o.quantum = quantum
	}
}

// WithDomain restricts the energy domain to the given CPUs. An empty
// set means all host CPUs.
func WithDomain(domain cpuset.CPUSet) OptionFn {
	return func(o *Opts) {
		o.domain = domain
	}
}

// WithAccountant sets the energy accountant invoked whenever a task
// leaves its running standing.
func WithAccountant(a Accountant) OptionFn {
	return func(o *Opts) {
		o.accountant = a
	}
}

// Scheduler is the two level energy scheduler. It groups the threads of
// managed processes into energy tasks, runs one task at a time gang
// style across the energy domain and attributes the consumed energy to
// it when it stops running.
type Scheduler struct {
	logger     *slog.Logger
	host       Host
	accountant Accountant
	quantum    time.Duration

	grq   *GlobalRQ
	local map[int]*LocalRQ
}

// New creates a scheduler on top of host.
func New(host Host, opts ...OptionFn) *Scheduler {
	opt := DefaultOpts()
	for _, fn := range opts {
		fn(&opt)
	}

	domain := opt.domain
	if domain.IsEmpty() {
		domain = host.CPUs()
	}

	s := &Scheduler{
		logger:     opt.logger.With("service", "sched"),
		host:       host,
		accountant: opt.accountant,
		quantum:    opt.quantum,
		grq:        newGlobalRQ(),
		local:      make(map[int]*LocalRQ),
	}

	for _, cpu := range host.CPUs().List() {
		s.local[cpu] = newLocalRQ(cpu, domain)
	}

	return s
}

func (s *Scheduler) Name() string {
	return "sched"
}

func (s *Scheduler) localOf(cpu int) *LocalRQ {
	l, ok := s.local[cpu]
	if !ok {
		panic(fmt.Sprintf("cpu %d has no local run queue", cpu))
	}
	return l
}

func (s *Scheduler) clock(cpu int) time.Duration {
	return s.host.Clock(cpu)
}

// incNrRunningLocked accounts one additional runnable thread on l.
// Blocked CPUs keep bookkeeping the assignment but stay invisible to
// the host's load accounting.
func (s *Scheduler) incNrRunningLocked(l *LocalRQ) {
	if !l.blocked {
		s.host.AddNrRunning(l.cpu, 1)
	}
	l.nrAssigned.Add(1)
}

// decNrRunningLocked accounts one runnable thread less on l.
func (s *Scheduler) decNrRunningLocked(l *LocalRQ) {
	if !l.blocked {
		s.host.SubNrRunning(l.cpu, 1)
	}
	l.nrAssigned.Add(-1)
}

// acquireCPUs unblocks every blocked CPU of the domain, making their
// assigned threads visible to the host again.
func (s *Scheduler) acquireCPUs(domain cpuset.CPUSet) {
	for _, cpu := range domain.List() {
		l := s.localOf(cpu)

		l.lock()
		if l.blocked {
			l.blocked = false
			s.host.AddNrRunning(l.cpu, int(l.nrAssigned.Load()))
		}
		l.unlock()
	}
}

// releaseCPUs blocks every domain CPU whose visible load consists of
// nothing but its own assigned threads. A CPU with foreign work keeps
// contributing its threads so the foreign work is not starved.
func (s *Scheduler) releaseCPUs(domain cpuset.CPUSet) {
	for _, cpu := range domain.List() {
		l := s.localOf(cpu)

		l.lock()
		if !l.blocked && s.host.CPUNrRunning(cpu) == int(l.nrAssigned.Load()) {
			l.blocked = true
			s.host.SubNrRunning(l.cpu, int(l.nrAssigned.Load()))
		}
		l.unlock()
	}
}

// checkCPUs reconciles the blocked state of every domain CPU without a
// full acquire or release cycle.
func (s *Scheduler) checkCPUs(domain cpuset.CPUSet) {
	for _, cpu := range domain.List() {
		l := s.localOf(cpu)

		l.lock()
		load := s.host.CPUNrRunning(cpu)
		if l.blocked && load > 0 {
			l.blocked = false
			s.host.AddNrRunning(l.cpu, int(l.nrAssigned.Load()))
		} else if !l.blocked && load == int(l.nrAssigned.Load()) {
			l.blocked = true
			s.host.SubNrRunning(l.cpu, int(l.nrAssigned.Load()))
		}
		l.unlock()
	}
}

// reschedCurrLocal requests a local thread rotation on l and nudges the
// host to reschedule that CPU.
func (s *Scheduler) reschedCurrLocal(l *LocalRQ) {
	l.requestResched()
	s.host.ReschedCurr(l.cpu)
}
