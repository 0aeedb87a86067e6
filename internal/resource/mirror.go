// SPDX-FileCopyrightText: 2025 The eteam Authors
// SPDX-License-Identifier: Apache-2.0

package resource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"k8s.io/utils/clock"
	"k8s.io/utils/cpuset"

	"github.com/l3nkz/eteam/internal/sched"
	"github.com/l3nkz/eteam/internal/service"
)

// Scheduler is the thread lifecycle surface the mirror feeds.
type Scheduler interface {
	EnqueueThread(t *sched.Thread)
	DequeueThread(t *sched.Thread)
}

// Mirror keeps the scheduler's view of managed processes in sync with
// procfs: threads observed in the running state are enqueued, threads
// that stopped running or disappeared are dequeued. Threads created
// after a process became managed are picked up automatically.
type Mirror struct {
	logger    *slog.Logger
	reader    procReader
	scheduler Scheduler
	clock     clock.WithTicker
	interval  time.Duration
	cpus      cpuset.CPUSet

	mu sync.Mutex
	// managed maps a process to its currently enqueued threads.
	managed map[int]map[int]*sched.Thread
}

var _ service.Runner = (*Mirror)(nil)

// NewMirror creates a mirror feeding scheduler.
func NewMirror(scheduler Scheduler, opts ...OptionFn) (*Mirror, error) {
	opt := DefaultOpts()
	for _, fn := range opts {
		fn(&opt)
	}

	if opt.reader == nil {
		reader, err := NewProcFSReader("/proc")
		if err != nil {
			return nil, err
		}
		opt.reader = reader
	}

	if opt.cpus.IsEmpty() {
		return nil, fmt.Errorf("mirror needs at least one CPU for new threads")
	}

	return &Mirror{
		logger:    opt.logger.With("service", "mirror"),
		reader:    opt.reader,
		scheduler: scheduler,
		clock:     opt.clock,
		interval:  opt.interval,
		cpus:      opt.cpus,
		managed:   make(map[int]map[int]*sched.Thread),
	}, nil
}

func (m *Mirror) Name() string {
	return "mirror"
}

func (m *Mirror) Run(ctx context.Context) error {
	m.logger.Info("Mirror is running...", "interval", m.interval)

	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Mirror has terminated.")
			return nil
		case <-ticker.C():
			if err := m.Refresh(); err != nil {
				m.logger.Warn("Failed to refresh managed processes", "error", err)
			}
		}
	}
}

// Register makes pid a managed process. Its currently running threads
// enter the scheduler right away.
func (m *Mirror) Register(pid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.managed[pid]; ok {
		return nil
	}
	m.managed[pid] = make(map[int]*sched.Thread)

	m.logger.Info("Managing process", "pid", pid)
	return m.refreshLocked(pid)
}

// Unregister removes pid from the managed processes, dequeueing all of
// its threads.
func (m *Mirror) Unregister(pid int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	threads, ok := m.managed[pid]
	if !ok {
		return
	}

	for _, t := range threads {
		m.scheduler.DequeueThread(t)
	}
	delete(m.managed, pid)

	m.logger.Info("Unmanaging process", "pid", pid)
}

// Managed returns the pids of all managed processes.
func (m *Mirror) Managed() []int {
	m.mu.Lock()
	defer m.mu.Unlock()

	pids := make([]int, 0, len(m.managed))
	for pid := range m.managed {
		pids = append(pids, pid)
	}
	sort.Ints(pids)
	return pids
}

// Refresh reconciles the scheduler's thread view of every managed
// process with procfs.
func (m *Mirror) Refresh() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for pid := range m.managed {
		if err := m.refreshLocked(pid); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Mirror) refreshLocked(pid int) error {
	tracked := m.managed[pid]

	infos, err := m.reader.Threads(pid)
	if err != nil {
		// The process is gone; its remaining threads leave the
		// scheduler and the pid stops being managed.
		for _, t := range tracked {
			m.scheduler.DequeueThread(t)
		}
		delete(m.managed, pid)

		m.logger.Info("Managed process exited", "pid", pid)
		return nil
	}

	seen := make(map[int]bool, len(infos))
	for _, info := range infos {
		tid := info.TID()

		st, err := info.Stat()
		if err != nil {
			// Exited between the directory listing and the read; the
			// cleanup below catches it.
			continue
		}
		seen[tid] = true

		running := st.state == "R"
		t := tracked[tid]

		switch {
		case running && t == nil:
			comm, err := info.Comm()
			if err != nil {
				continue
			}

			cpu := st.cpu
			if !m.cpus.Contains(cpu) {
				cpu = m.cpus.List()[0]
			}

			t = sched.NewThread(tid, pid, comm, cpu, m.cpus)
			m.scheduler.EnqueueThread(t)
			tracked[tid] = t

			m.logger.Debug("Thread entered", "pid", pid, "tid", tid, "comm", comm)
		case !running && t != nil:
			m.scheduler.DequeueThread(t)
			delete(tracked, tid)

			m.logger.Debug("Thread stopped running", "pid", pid, "tid", tid)
		}
	}

	for tid, t := range tracked {
		if !seen[tid] {
			m.scheduler.DequeueThread(t)
			delete(tracked, tid)

			m.logger.Debug("Thread exited", "pid", pid, "tid", tid)
		}
	}

	return nil
}
