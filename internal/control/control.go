// SPDX-FileCopyrightText: 2025 The eteam Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/prometheus/procfs"

	"github.com/l3nkz/eteam/internal/service"
)

var (
	// ErrInvalidPID reports a negative process id.
	ErrInvalidPID = errors.New("invalid pid")

	// ErrNoSuchProcess reports a process that could not be resolved.
	ErrNoSuchProcess = errors.New("no such process")
)

// resolver resolves process ids against the process table.
type resolver interface {
	// TGID returns the thread group leader of pid.
	TGID(pid int) (int, error)
	// Threads returns the ids of all current threads of tgid.
	Threads(tgid int) ([]int, error)
}

// procFSResolver resolves processes through the proc filesystem.
type procFSResolver struct {
	fs procfs.FS
}

var _ resolver = (*procFSResolver)(nil)

// NewProcFSResolver creates a resolver on top of the proc filesystem
// mounted at procfsPath.
func NewProcFSResolver(procfsPath string) (*procFSResolver, error) {
	fs, err := procfs.NewFS(procfsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open procfs at %s: %w", procfsPath, err)
	}
	return &procFSResolver{fs: fs}, nil
}

func (r *procFSResolver) TGID(pid int) (int, error) {
	proc, err := r.fs.Proc(pid)
	if err != nil {
		return 0, err
	}

	status, err := proc.NewStatus()
	if err != nil {
		return 0, err
	}
	return status.TGID, nil
}

func (r *procFSResolver) Threads(tgid int) ([]int, error) {
	procs, err := r.fs.AllThreads(tgid)
	if err != nil {
		return nil, err
	}

	tids := make([]int, 0, len(procs))
	for _, proc := range procs {
		tids = append(tids, proc.PID)
	}
	sort.Ints(tids)
	return tids, nil
}

// Service is the start/stop surface that moves processes in and out of
// energy scheduling.
type Service struct {
	logger   *slog.Logger
	resolver resolver
	switcher Switcher
	policy   Policy
}

var _ service.Service = (*Service)(nil)

// New creates a control service switching threads with switcher.
func New(switcher Switcher, opts ...OptionFn) (*Service, error) {
	opt := DefaultOpts()
	for _, fn := range opts {
		fn(&opt)
	}

	if switcher == nil {
		return nil, fmt.Errorf("control needs a switcher")
	}

	if opt.resolver == nil {
		resolver, err := NewProcFSResolver("/proc")
		if err != nil {
			return nil, err
		}
		opt.resolver = resolver
	}

	return &Service{
		logger:   opt.logger.With("service", "control"),
		resolver: opt.resolver,
		switcher: switcher,
		policy:   opt.policy,
	}, nil
}

func (s *Service) Name() string {
	return "control"
}

// Start switches every current thread of pid into the energy policy.
// Threads the process creates later inherit it. A pid of 0 targets the
// calling process.
func (s *Service) Start(pid int) error {
	return s.switchAll(pid, s.policy)
}

// Stop switches every thread of pid back to the default policy.
func (s *Service) Stop(pid int) error {
	return s.switchAll(pid, PolicyNormal)
}

func (s *Service) switchAll(pid int, policy Policy) error {
	if pid < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPID, pid)
	}
	if pid == 0 {
		pid = os.Getpid()
	}

	tgid, err := s.resolver.TGID(pid)
	if err != nil {
		return fmt.Errorf("%w: %d", ErrNoSuchProcess, pid)
	}

	tids, err := s.resolver.Threads(tgid)
	if err != nil {
		return fmt.Errorf("%w: %d", ErrNoSuchProcess, tgid)
	}

	// Best effort over all threads, the last failure wins.
	var lastErr error
	for _, tid := range tids {
		if err := s.switcher.Switch(tgid, tid, policy); err != nil {
			s.logger.Warn("Failed to switch thread",
				"tgid", tgid, "tid", tid, "policy", policy, "error", err)
			lastErr = err
		}
	}

	if lastErr == nil {
		s.logger.Info("Switched process", "tgid", tgid, "policy", policy, "threads", len(tids))
	}
	return lastErr
}
