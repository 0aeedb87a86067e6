// SPDX-FileCopyrightText: 2025 The eteam Authors
// SPDX-License-Identifier: Apache-2.0

package stdout

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/l3nkz/eteam/internal/monitor"
	"github.com/l3nkz/eteam/internal/rapl"
	"github.com/l3nkz/eteam/internal/sched"
)

// MockMonitor mocks the Monitor interface
type MockMonitor struct {
	mock.Mock
}

func (m *MockMonitor) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockMonitor) Snapshot() (*monitor.Snapshot, error) {
	args := m.Called()
	if s := args.Get(0); s != nil {
		return s.(*monitor.Snapshot), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockMonitor) DataChannel() <-chan struct{} {
	args := m.Called()
	return args.Get(0).(<-chan struct{})
}

func (m *MockMonitor) Calibration() rapl.Calibration {
	args := m.Called()
	return args.Get(0).(rapl.Calibration)
}

func (m *MockMonitor) ReaderName() string {
	args := m.Called()
	return args.String(0)
}

var _ Monitor = (*MockMonitor)(nil)

func TestNewExporter(t *testing.T) {
	tests := []struct {
		name          string
		expectService string
		opts          []OptionFn
		out           io.WriteCloser
		interval      time.Duration
	}{{
		name:          "default options",
		expectService: "stdout",
		opts:          []OptionFn{},
		out:           os.Stdout,
		interval:      5 * time.Second,
	}, {
		name:          "custom options",
		expectService: "stdout",
		opts: []OptionFn{
			WithLogger(slog.Default()),
			WithOutput(os.Stderr),
			WithInterval(20 * time.Second),
		},
		out:      os.Stderr,
		interval: 20 * time.Second,
	}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockMonitor := &MockMonitor{}
			exporter := NewExporter(mockMonitor, tt.opts...)
			assert.NotNil(t, exporter)
			assert.Equal(t, tt.expectService, exporter.Name())
			assert.NotNil(t, exporter.logger)
			assert.Same(t, mockMonitor, exporter.monitor)
			assert.Same(t, tt.out, exporter.out)
			assert.Equal(t, tt.interval, exporter.interval)
		})
	}
}

type dummyTarget struct {
	io.Writer
}

func (dwc *dummyTarget) Close() error {
	return nil
}

func TestExporter_InitRunShutdown(t *testing.T) {
	mockMonitor := &MockMonitor{}
	mockMonitor.On("Snapshot").Return(getTestSnapshot(), nil)

	out := &dummyTarget{&bytes.Buffer{}}
	exporter := NewExporter(mockMonitor, WithInterval(10*time.Millisecond), WithOutput(out))

	assert.NoError(t, exporter.Init())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- exporter.Run(ctx)
	}()

	// let a few ticks pass
	time.Sleep(100 * time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
	assert.NoError(t, exporter.Shutdown())

	mockMonitor.AssertExpectations(t)
}

func Test_write(t *testing.T) {
	buf := bytes.Buffer{}
	now, err := time.Parse(time.RFC3339, "2025-05-15T01:01:01Z")
	assert.NoError(t, err, "unexpected time parse error")

	write(&buf, now, getTestSnapshot())
	output := buf.String()

	// summary line
	assert.Contains(t, output, "2025-05-15T01:01:01Z tasks: 2 threads: 3 running: true")

	// header columns
	for _, header := range []string{"PID", "COMM", "STATE", "THREADS", "PACKAGE", "DRAM", "CORE", "GPU", "UPDATES"} {
		assert.Contains(t, output, header)
	}

	// task rows
	assert.Contains(t, output, "worker")
	assert.Contains(t, output, "running")
	assert.Contains(t, output, "12.000000J")
	assert.Contains(t, output, "batch")
	assert.Contains(t, output, "queued")
	assert.Contains(t, output, "1.000000J")

	// rows are sorted by PID
	assert.Less(t, strings.Index(output, "worker"), strings.Index(output, "batch"))
}

func Test_writeNoScheduler(t *testing.T) {
	buf := bytes.Buffer{}
	write(&buf, time.Now(), &monitor.Snapshot{})
	assert.Empty(t, buf.String())
}

func getTestSnapshot() *monitor.Snapshot {
	workerStats := rapl.Stats{NrUpdates: 42}
	workerStats.Consumed[rapl.Package] = 12 * rapl.Joule
	workerStats.Consumed[rapl.DRAM] = 3 * rapl.Joule

	batchStats := rapl.Stats{NrUpdates: 5}
	batchStats.Consumed[rapl.Package] = 1 * rapl.Joule

	return &monitor.Snapshot{
		Timestamp: time.Now(),
		Scheduler: &sched.Snapshot{
			Running:   true,
			NrTasks:   2,
			NrThreads: 3,
			Quantum:   10 * time.Millisecond,
			Tasks: []sched.TaskSnapshot{
				// deliberately unsorted
				{PID: 200, Comm: "batch", Running: false, NrRunnable: 1, Stats: batchStats},
				{PID: 100, Comm: "worker", Running: true, NrRunnable: 2, Stats: workerStats},
			},
		},
	}
}
