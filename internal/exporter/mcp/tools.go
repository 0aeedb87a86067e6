// SPDX-FileCopyrightText: 2025 The eteam Authors
// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/l3nkz/eteam/internal/rapl"
	"github.com/l3nkz/eteam/internal/sched"
)

// ListTopConsumersParams defines parameters for list_top_consumers tool
type ListTopConsumersParams struct {
	Limit  int    `json:"limit,omitempty" jsonschema:"Maximum number of results (default: 5)"`
	SortBy string `json:"sort_by,omitempty" jsonschema:"Sort by total, package, dram, core, gpu or updates (default: total)"`
}

// GetTaskEnergyParams defines parameters for get_task_energy tool
type GetTaskEnergyParams struct {
	PID int `json:"pid" jsonschema:"Process ID of the energy task"`
}

// SearchTasksParams defines parameters for search_tasks tool
type SearchTasksParams struct {
	CommPattern string  `json:"comm_pattern,omitempty" jsonschema:"Command name pattern to match (substring search)"`
	EnergyMin   float64 `json:"energy_min,omitempty" jsonschema:"Minimum total energy consumption in joules"`
	EnergyMax   float64 `json:"energy_max,omitempty" jsonschema:"Maximum total energy consumption in joules"`
	RunningOnly bool    `json:"running_only,omitempty" jsonschema:"Only return tasks that currently occupy CPUs"`
	Limit       int     `json:"limit,omitempty" jsonschema:"Maximum number of results (default: 10)"`
}

// SchedulerStatusParams defines parameters for scheduler_status tool
type SchedulerStatusParams struct{}

// TaskEnergyInfo represents energy accounting data for MCP responses
type TaskEnergyInfo struct {
	PID             int                `json:"pid"`
	Comm            string             `json:"comm"`
	Running         bool               `json:"running"`
	RunnableThreads int                `json:"runnableThreads"`
	Energy          map[string]float64 `json:"energy"` // Counter -> Joules
	Updates         uint64             `json:"updates"`
	Defers          uint64             `json:"defers"`
	DeferredSeconds float64            `json:"deferredSeconds"`
}

// handleListTopConsumers handles the list_top_consumers tool call
func (s *Server) handleListTopConsumers(ctx context.Context, cc *mcp.ServerSession, params *mcp.CallToolParamsFor[ListTopConsumersParams]) (*mcp.CallToolResultFor[any], error) {
	s.logger.Debug("Handling list_top_consumers request", "sort_by", params.Arguments.SortBy)

	snapshot, err := s.monitor.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	// Set defaults
	limit := params.Arguments.Limit
	if limit <= 0 {
		limit = 5
	}
	sortBy := params.Arguments.SortBy
	if sortBy == "" {
		sortBy = "total"
	}
	if !validSortKey(sortBy) {
		return nil, fmt.Errorf("unsupported sort key: %s", sortBy)
	}

	tasks := s.convertTasks(snapshot.Scheduler.Tasks, limit, sortBy)
	result := formatTopConsumersResult(tasks, sortBy)

	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{&mcp.TextContent{Text: result}},
	}, nil
}

// handleGetTaskEnergy handles the get_task_energy tool call
func (s *Server) handleGetTaskEnergy(ctx context.Context, cc *mcp.ServerSession, params *mcp.CallToolParamsFor[GetTaskEnergyParams]) (*mcp.CallToolResultFor[any], error) {
	s.logger.Debug("Handling get_task_energy request", "pid", params.Arguments.PID)

	snapshot, err := s.monitor.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	var task *TaskEnergyInfo
	for _, candidate := range snapshot.Scheduler.Tasks {
		if candidate.PID == params.Arguments.PID {
			converted := s.convertTasks([]sched.TaskSnapshot{candidate}, 1, "total")
			task = &converted[0]
			break
		}
	}

	if task == nil {
		return nil, fmt.Errorf("task not found: %d", params.Arguments.PID)
	}

	result := formatTaskDetails(*task)

	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{&mcp.TextContent{Text: result}},
	}, nil
}

// handleSearchTasks handles the search_tasks tool call
func (s *Server) handleSearchTasks(ctx context.Context, cc *mcp.ServerSession, params *mcp.CallToolParamsFor[SearchTasksParams]) (*mcp.CallToolResultFor[any], error) {
	s.logger.Debug("Handling search_tasks request",
		"comm_pattern", params.Arguments.CommPattern,
		"energy_min", params.Arguments.EnergyMin,
		"energy_max", params.Arguments.EnergyMax)

	snapshot, err := s.monitor.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	limit := params.Arguments.Limit
	if limit <= 0 {
		limit = 10
	}

	allTasks := s.convertTasks(snapshot.Scheduler.Tasks, 0, "total") // 0 = no limit initially

	// Apply filters
	filtered := s.filterTasks(allTasks, params.Arguments)
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}

	result := formatSearchResults(filtered, params.Arguments)

	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{&mcp.TextContent{Text: result}},
	}, nil
}

// handleSchedulerStatus handles the scheduler_status tool call
func (s *Server) handleSchedulerStatus(ctx context.Context, cc *mcp.ServerSession, params *mcp.CallToolParamsFor[SchedulerStatusParams]) (*mcp.CallToolResultFor[any], error) {
	s.logger.Debug("Handling scheduler_status request")

	snapshot, err := s.monitor.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	result := formatSchedulerStatus(snapshot.Scheduler, s.monitor.ReaderName(), s.monitor.Calibration())

	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{&mcp.TextContent{Text: result}},
	}, nil
}

// Helper methods for data conversion and formatting

func validSortKey(sortBy string) bool {
	switch sortBy {
	case "total", "updates":
		return true
	}
	for _, counter := range rapl.AllCounters {
		if sortBy == counter.String() {
			return true
		}
	}
	return false
}

func (s *Server) convertTasks(tasks []sched.TaskSnapshot, limit int, sortBy string) []TaskEnergyInfo {
	resources := make([]TaskEnergyInfo, 0, len(tasks))

	for _, task := range tasks {
		energy := make(map[string]float64)
		for _, counter := range rapl.AllCounters {
			energy[counter.String()] = task.Stats.Energy(counter).Joules()
		}

		resources = append(resources, TaskEnergyInfo{
			PID:             task.PID,
			Comm:            task.Comm,
			Running:         task.Running,
			RunnableThreads: task.NrRunnable,
			Energy:          energy,
			Updates:         task.Stats.NrUpdates,
			Defers:          task.Stats.NrDefers,
			DeferredSeconds: task.Stats.DeferredTime.Seconds(),
		})
	}

	return s.sortAndLimit(resources, limit, sortBy)
}

func (s *Server) sortAndLimit(tasks []TaskEnergyInfo, limit int, sortBy string) []TaskEnergyInfo {
	sort.Slice(tasks, func(i, j int) bool {
		return sortValue(tasks[i], sortBy) > sortValue(tasks[j], sortBy) // Descending order
	})

	if limit > 0 && len(tasks) > limit {
		tasks = tasks[:limit]
	}

	return tasks
}

func sortValue(task TaskEnergyInfo, sortBy string) float64 {
	switch sortBy {
	case "updates":
		return float64(task.Updates)
	case "total":
		return totalEnergy(task)
	default:
		return task.Energy[sortBy]
	}
}

func totalEnergy(task TaskEnergyInfo) float64 {
	total := 0.0
	for _, energy := range task.Energy {
		total += energy
	}
	return total
}

func (s *Server) filterTasks(tasks []TaskEnergyInfo, params SearchTasksParams) []TaskEnergyInfo {
	filtered := make([]TaskEnergyInfo, 0)

	for _, task := range tasks {
		total := totalEnergy(task)

		// Apply energy filters
		if params.EnergyMin > 0 && total < params.EnergyMin {
			continue
		}
		if params.EnergyMax > 0 && total > params.EnergyMax {
			continue
		}

		if params.RunningOnly && !task.Running {
			continue
		}

		// Apply comm pattern filter
		if params.CommPattern != "" && !strings.Contains(strings.ToLower(task.Comm), strings.ToLower(params.CommPattern)) {
			continue
		}

		filtered = append(filtered, task)
	}

	return filtered
}

// Formatting helper functions

func formatTopConsumersResult(tasks []TaskEnergyInfo, sortBy string) string {
	if len(tasks) == 0 {
		return "No energy tasks found with energy consumption data."
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Top %d energy tasks by %s:\n\n", len(tasks), sortBy))

	for i, task := range tasks {
		state := "queued"
		if task.Running {
			state = "running"
		}

		sb.WriteString(fmt.Sprintf("%d. pid %d (%s): %s, Threads: %d, Energy: %.2fJ, Updates: %d\n",
			i+1, task.PID, task.Comm, state, task.RunnableThreads, totalEnergy(task), task.Updates))
	}

	return sb.String()
}

func formatTaskDetails(task TaskEnergyInfo) string {
	var sb strings.Builder

	state := "queued"
	if task.Running {
		state = "running"
	}

	sb.WriteString("Energy Task Details:\n")
	sb.WriteString(fmt.Sprintf("PID: %d\n", task.PID))
	sb.WriteString(fmt.Sprintf("Comm: %s\n", task.Comm))
	sb.WriteString(fmt.Sprintf("State: %s\n", state))
	sb.WriteString(fmt.Sprintf("Runnable Threads: %d\n", task.RunnableThreads))
	sb.WriteString(fmt.Sprintf("Total Energy: %.2fJ\n", totalEnergy(task)))

	sb.WriteString("\nEnergy by Counter:\n")
	for _, counter := range rapl.AllCounters {
		sb.WriteString(fmt.Sprintf("  %s: %.2fJ\n", counter, task.Energy[counter.String()]))
	}

	sb.WriteString("\nAccounting:\n")
	sb.WriteString(fmt.Sprintf("  updates: %d\n", task.Updates))
	sb.WriteString(fmt.Sprintf("  defers: %d\n", task.Defers))
	sb.WriteString(fmt.Sprintf("  deferred: %.3fs\n", task.DeferredSeconds))

	return sb.String()
}

func formatSearchResults(tasks []TaskEnergyInfo, params SearchTasksParams) string {
	if len(tasks) == 0 {
		return "No energy tasks found matching the search criteria."
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d energy tasks matching criteria:\n\n", len(tasks)))

	for i, task := range tasks {
		sb.WriteString(fmt.Sprintf("%d. pid %d (%s): Energy: %.2fJ\n",
			i+1, task.PID, task.Comm, totalEnergy(task)))
	}

	return sb.String()
}

func formatSchedulerStatus(scheduler *sched.Snapshot, reader string, cal rapl.Calibration) string {
	var sb strings.Builder

	sb.WriteString("Scheduler Status:\n")
	sb.WriteString(fmt.Sprintf("Running: %v\n", scheduler.Running))
	sb.WriteString(fmt.Sprintf("Tasks: %d\n", scheduler.NrTasks))
	sb.WriteString(fmt.Sprintf("Runnable Threads: %d\n", scheduler.NrThreads))
	sb.WriteString(fmt.Sprintf("Quantum: %s\n", scheduler.Quantum))

	sb.WriteString("\nCounter Calibration:\n")
	sb.WriteString(fmt.Sprintf("  reader: %s\n", reader))
	sb.WriteString(fmt.Sprintf("  update interval: %s\n", cal.UpdateInterval))
	sb.WriteString(fmt.Sprintf("  unit: %.2fuJ\n", cal.Unit))

	sb.WriteString("\nCPUs:\n")
	for _, cpu := range scheduler.CPUs {
		sb.WriteString(fmt.Sprintf("  cpu %d: runnable %d, assigned %d", cpu.CPU, cpu.NrRunnable, cpu.NrAssigned))
		if cpu.Blocked {
			sb.WriteString(", blocked")
		}
		if cpu.CurrentPID != 0 {
			sb.WriteString(fmt.Sprintf(", current pid %d", cpu.CurrentPID))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
