// SPDX-FileCopyrightText: 2025 The eteam Authors
// SPDX-License-Identifier: Apache-2.0

package resource

import (
	"fmt"

	"github.com/prometheus/procfs"
)

// threadStat holds the scheduling relevant parts of a thread's stat.
type threadStat struct {
	state string
	cpu   int
}

// threadInfo is an interface that wraps the necessary methods from
// procfs.Proc to be used by the mirror.
type threadInfo interface {
	TID() int
	Comm() (string, error)
	Stat() (threadStat, error)
}

// threadWrapper implements threadInfo by wrapping procfs.Proc. This is
// needed because procfs.Proc does not expose the id as a method.
type threadWrapper struct {
	proc procfs.Proc
}

var _ threadInfo = (*threadWrapper)(nil)

func (w *threadWrapper) TID() int {
	return w.proc.PID
}

func (w *threadWrapper) Comm() (string, error) {
	return w.proc.Comm()
}

func (w *threadWrapper) Stat() (threadStat, error) {
	st, err := w.proc.Stat()
	if err != nil {
		return threadStat{}, err
	}

	return threadStat{
		state: st.State,
		cpu:   int(st.Processor),
	}, nil
}

// procReader enumerates the threads of processes.
type procReader interface {
	// Threads returns all threads of the given process.
	Threads(pid int) ([]threadInfo, error)
}

// procFSReader is the default implementation of procReader using procfs.
type procFSReader struct {
	fs procfs.FS
}

var _ procReader = (*procFSReader)(nil)

// NewProcFSReader creates a procReader on top of the proc filesystem
// mounted at procfsPath.
func NewProcFSReader(procfsPath string) (*procFSReader, error) {
	fs, err := procfs.NewFS(procfsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open procfs at %s: %w", procfsPath, err)
	}
	return &procFSReader{fs: fs}, nil
}

func (r *procFSReader) Threads(pid int) ([]threadInfo, error) {
	procs, err := r.fs.AllThreads(pid)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads of %d: %w", pid, err)
	}

	threads := make([]threadInfo, 0, len(procs))
	for _, proc := range procs {
		threads = append(threads, &threadWrapper{proc: proc})
	}
	return threads, nil
}
