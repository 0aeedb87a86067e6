// SPDX-FileCopyrightText: 2025 The eteam Authors
// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/l3nkz/eteam/internal/monitor"
	"github.com/l3nkz/eteam/internal/rapl"
	"github.com/l3nkz/eteam/internal/sched"
)

type MockMonitor struct {
	mock.Mock
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

var _ EnergyDataProvider = (*MockMonitor)(nil)

type MockAPIRegistry struct {
	mock.Mock
}

func (m *MockAPIRegistry) Register(endpoint, summary, description string, handler http.Handler) error {
	args := m.Called(endpoint, summary, description, handler)
	return args.Error(0)
}

var _ APIRegistry = (*MockAPIRegistry)(nil)

func getTestSnapshot() *monitor.Snapshot {
	workerStats := rapl.Stats{
		NrUpdates:    42,
		NrDefers:     7,
		DeferredTime: 1500 * time.Millisecond,
	}
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
				{PID: 200, Comm: "batch", Running: false, NrRunnable: 1, Stats: batchStats},
				{PID: 100, Comm: "worker", Running: true, NrRunnable: 2, Stats: workerStats},
			},
			CPUs: []sched.CPUSnapshot{
				{CPU: 0, NrRunnable: 1, NrAssigned: 2, CurrentTID: 101, CurrentPID: 100},
				{CPU: 1, Blocked: true},
			},
		},
	}
}

// resultText extracts the text payload of a tool call result.
func resultText(t *testing.T, result *mcp.CallToolResultFor[any]) string {
	t.Helper()
	require.NotNil(t, result)
	require.Len(t, result.Content, 1)

	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok, "expected text content")
	return text.Text
}

func TestNewServer(t *testing.T) {
	mockMonitor := &MockMonitor{}

	t.Run("defaults to stdio transport", func(t *testing.T) {
		s := NewServer(mockMonitor, slog.Default())
		assert.Equal(t, "mcp", s.Name())
		assert.False(t, s.useHTTP)
		assert.Equal(t, "stdio", s.transport)
		assert.Equal(t, "/mcp", s.httpPath)
	})

	t.Run("with HTTP transport", func(t *testing.T) {
		registry := &MockAPIRegistry{}
		s := NewServer(mockMonitor, slog.Default(), WithHTTPTransport(registry, "/mcp"))
		assert.True(t, s.useHTTP)
		assert.Equal(t, "sse", s.transport)
	})

	t.Run("with streamable HTTP transport", func(t *testing.T) {
		registry := &MockAPIRegistry{}
		s := NewServer(mockMonitor, slog.Default(), WithStreamableHTTP(registry, "/mcp/stream"))
		assert.True(t, s.useHTTP)
		assert.Equal(t, "streamable", s.transport)
		assert.Equal(t, "/mcp/stream", s.httpPath)
	})
}

func TestServer_Init(t *testing.T) {
	mockMonitor := &MockMonitor{}

	t.Run("stdio transport registers nothing", func(t *testing.T) {
		registry := &MockAPIRegistry{}
		s := NewServer(mockMonitor, slog.Default())

		err := s.Init()
		require.NoError(t, err)
		registry.AssertNotCalled(t, "Register")
	})

	t.Run("HTTP transport registers handler", func(t *testing.T) {
		registry := &MockAPIRegistry{}
		registry.On("Register", "/mcp", mock.Anything, mock.Anything, mock.Anything).Return(nil)

		s := NewServer(mockMonitor, slog.Default(), WithSSETransport(registry, "/mcp"))

		err := s.Init()
		require.NoError(t, err)
		registry.AssertExpectations(t)
	})

	t.Run("registration error is returned", func(t *testing.T) {
		expectedErr := fmt.Errorf("endpoint already registered")
		registry := &MockAPIRegistry{}
		registry.On("Register", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(expectedErr)

		s := NewServer(mockMonitor, slog.Default(), WithStreamableHTTP(registry, "/mcp"))

		err := s.Init()
		assert.Equal(t, expectedErr, err)
	})
}

func TestListTopConsumers(t *testing.T) {
	ctx := context.Background()

	t.Run("sorted by total energy", func(t *testing.T) {
		mockMonitor := &MockMonitor{}
		mockMonitor.On("Snapshot").Return(getTestSnapshot(), nil)
		s := NewServer(mockMonitor, slog.Default())

		result, err := s.handleListTopConsumers(ctx, nil, &mcp.CallToolParamsFor[ListTopConsumersParams]{})
		require.NoError(t, err)

		text := resultText(t, result)
		assert.Contains(t, text, "Top 2 energy tasks by total")
		assert.Contains(t, text, "pid 100 (worker): running, Threads: 2, Energy: 15.00J, Updates: 42")
		assert.Contains(t, text, "pid 200 (batch): queued, Threads: 1, Energy: 1.00J, Updates: 5")

		// worker consumed more and must come first
		assert.Contains(t, text, "1. pid 100")
		assert.Contains(t, text, "2. pid 200")
	})

	t.Run("sorted by counter", func(t *testing.T) {
		mockMonitor := &MockMonitor{}
		mockMonitor.On("Snapshot").Return(getTestSnapshot(), nil)
		s := NewServer(mockMonitor, slog.Default())

		result, err := s.handleListTopConsumers(ctx, nil, &mcp.CallToolParamsFor[ListTopConsumersParams]{
			Arguments: ListTopConsumersParams{SortBy: "dram"},
		})
		require.NoError(t, err)

		text := resultText(t, result)
		assert.Contains(t, text, "Top 2 energy tasks by dram")
		assert.Contains(t, text, "1. pid 100")
	})

	t.Run("limit truncates", func(t *testing.T) {
		mockMonitor := &MockMonitor{}
		mockMonitor.On("Snapshot").Return(getTestSnapshot(), nil)
		s := NewServer(mockMonitor, slog.Default())

		result, err := s.handleListTopConsumers(ctx, nil, &mcp.CallToolParamsFor[ListTopConsumersParams]{
			Arguments: ListTopConsumersParams{Limit: 1},
		})
		require.NoError(t, err)

		text := resultText(t, result)
		assert.Contains(t, text, "worker")
		assert.NotContains(t, text, "batch")
	})

	t.Run("unsupported sort key", func(t *testing.T) {
		mockMonitor := &MockMonitor{}
		mockMonitor.On("Snapshot").Return(getTestSnapshot(), nil)
		s := NewServer(mockMonitor, slog.Default())

		_, err := s.handleListTopConsumers(ctx, nil, &mcp.CallToolParamsFor[ListTopConsumersParams]{
			Arguments: ListTopConsumersParams{SortBy: "bogus"},
		})
		assert.ErrorContains(t, err, "unsupported sort key: bogus")
	})

	t.Run("snapshot error", func(t *testing.T) {
		mockMonitor := &MockMonitor{}
		mockMonitor.On("Snapshot").Return(nil, fmt.Errorf("not started"))
		s := NewServer(mockMonitor, slog.Default())

		_, err := s.handleListTopConsumers(ctx, nil, &mcp.CallToolParamsFor[ListTopConsumersParams]{})
		assert.ErrorContains(t, err, "failed to get snapshot")
	})
}

func TestGetTaskEnergy(t *testing.T) {
	ctx := context.Background()

	t.Run("existing task", func(t *testing.T) {
		mockMonitor := &MockMonitor{}
		mockMonitor.On("Snapshot").Return(getTestSnapshot(), nil)
		s := NewServer(mockMonitor, slog.Default())

		result, err := s.handleGetTaskEnergy(ctx, nil, &mcp.CallToolParamsFor[GetTaskEnergyParams]{
			Arguments: GetTaskEnergyParams{PID: 100},
		})
		require.NoError(t, err)

		text := resultText(t, result)
		assert.Contains(t, text, "PID: 100")
		assert.Contains(t, text, "Comm: worker")
		assert.Contains(t, text, "State: running")
		assert.Contains(t, text, "Runnable Threads: 2")
		assert.Contains(t, text, "Total Energy: 15.00J")
		assert.Contains(t, text, "package: 12.00J")
		assert.Contains(t, text, "dram: 3.00J")
		assert.Contains(t, text, "core: 0.00J")
		assert.Contains(t, text, "updates: 42")
		assert.Contains(t, text, "defers: 7")
		assert.Contains(t, text, "deferred: 1.500s")
	})

	t.Run("unknown pid", func(t *testing.T) {
		mockMonitor := &MockMonitor{}
		mockMonitor.On("Snapshot").Return(getTestSnapshot(), nil)
		s := NewServer(mockMonitor, slog.Default())

		_, err := s.handleGetTaskEnergy(ctx, nil, &mcp.CallToolParamsFor[GetTaskEnergyParams]{
			Arguments: GetTaskEnergyParams{PID: 999},
		})
		assert.ErrorContains(t, err, "task not found: 999")
	})
}

func TestSearchTasks(t *testing.T) {
	ctx := context.Background()

	newServer := func() *Server {
		mockMonitor := &MockMonitor{}
		mockMonitor.On("Snapshot").Return(getTestSnapshot(), nil)
		return NewServer(mockMonitor, slog.Default())
	}

	t.Run("by comm pattern", func(t *testing.T) {
		s := newServer()

		result, err := s.handleSearchTasks(ctx, nil, &mcp.CallToolParamsFor[SearchTasksParams]{
			Arguments: SearchTasksParams{CommPattern: "WORK"},
		})
		require.NoError(t, err)

		text := resultText(t, result)
		assert.Contains(t, text, "Found 1 energy tasks")
		assert.Contains(t, text, "worker")
		assert.NotContains(t, text, "batch")
	})

	t.Run("running only", func(t *testing.T) {
		s := newServer()

		result, err := s.handleSearchTasks(ctx, nil, &mcp.CallToolParamsFor[SearchTasksParams]{
			Arguments: SearchTasksParams{RunningOnly: true},
		})
		require.NoError(t, err)

		text := resultText(t, result)
		assert.Contains(t, text, "worker")
		assert.NotContains(t, text, "batch")
	})

	t.Run("by energy range", func(t *testing.T) {
		s := newServer()

		result, err := s.handleSearchTasks(ctx, nil, &mcp.CallToolParamsFor[SearchTasksParams]{
			Arguments: SearchTasksParams{EnergyMax: 5.0},
		})
		require.NoError(t, err)

		text := resultText(t, result)
		assert.Contains(t, text, "batch")
		assert.NotContains(t, text, "worker")
	})

	t.Run("no match", func(t *testing.T) {
		s := newServer()

		result, err := s.handleSearchTasks(ctx, nil, &mcp.CallToolParamsFor[SearchTasksParams]{
			Arguments: SearchTasksParams{CommPattern: "no-such-task"},
		})
		require.NoError(t, err)

		text := resultText(t, result)
		assert.Contains(t, text, "No energy tasks found")
	})
}

func TestSchedulerStatus(t *testing.T) {
	ctx := context.Background()

	mockMonitor := &MockMonitor{}
	mockMonitor.On("Snapshot").Return(getTestSnapshot(), nil)
	mockMonitor.On("ReaderName").Return("msr")
	mockMonitor.On("Calibration").Return(rapl.Calibration{
		UpdateInterval: time.Millisecond,
		Unit:           61.0,
	})

	s := NewServer(mockMonitor, slog.Default())

	result, err := s.handleSchedulerStatus(ctx, nil, &mcp.CallToolParamsFor[SchedulerStatusParams]{})
	require.NoError(t, err)

	text := resultText(t, result)
	assert.Contains(t, text, "Running: true")
	assert.Contains(t, text, "Tasks: 2")
	assert.Contains(t, text, "Runnable Threads: 3")
	assert.Contains(t, text, "Quantum: 10ms")
	assert.Contains(t, text, "reader: msr")
	assert.Contains(t, text, "update interval: 1ms")
	assert.Contains(t, text, "unit: 61.00uJ")
	assert.Contains(t, text, "cpu 0: runnable 1, assigned 2, current pid 100")
	assert.Contains(t, text, "cpu 1: runnable 0, assigned 0, blocked")
}
