// SPDX-FileCopyrightText: 2025 The eteam Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/l3nkz/eteam/internal/monitor"
	"github.com/l3nkz/eteam/internal/rapl"
	"github.com/l3nkz/eteam/internal/sched"
)

type EnergyDataProvider = monitor.EnergyDataProvider

// EnergyCollector exports scheduler, task and CPU metrics from a single
// snapshot per scrape so that the exported series are consistent with
// each other
type EnergyCollector struct {
	edp    EnergyDataProvider
	logger *slog.Logger

	// Lock to ensure thread safety during collection
	mutex sync.RWMutex
	ready bool

	// Scheduler state metrics
	schedTasksDescriptor   *prometheus.Desc
	schedThreadsDescriptor *prometheus.Desc
	schedRunningDescriptor *prometheus.Desc
	schedQuantumDescriptor *prometheus.Desc

	// Task energy metrics
	taskEnergyDescriptor   *prometheus.Desc
	taskUpdatesDescriptor  *prometheus.Desc
	taskDefersDescriptor   *prometheus.Desc
	taskDeferredDescriptor *prometheus.Desc
	taskThreadsDescriptor  *prometheus.Desc
	taskRunningDescriptor  *prometheus.Desc

	// Per CPU run queue metrics
	cpuRunnableDescriptor *prometheus.Desc
	cpuAssignedDescriptor *prometheus.Desc
	cpuBlockedDescriptor  *prometheus.Desc
}

// NewEnergyCollector creates a collector that exports the energy
// accounting and scheduler state of every energy task
func NewEnergyCollector(edp EnergyDataProvider, logger *slog.Logger) *EnergyCollector {
	const (
		schedSubsystem = "scheduler"
		taskSubsystem  = "task"
		cpuSubsystem   = "cpu"
	)

	// these labels should remain the same across all task descriptors
	// to ease querying
	taskLabels := []string{"pid", "comm"}

	c := &EnergyCollector{
		edp:    edp,
		logger: logger.With("collector", "energy"),

		schedTasksDescriptor: prometheus.NewDesc(
			prometheus.BuildFQName(eteamNS, schedSubsystem, "tasks"),
			"Number of energy tasks known to the scheduler",
			nil, nil),
		schedThreadsDescriptor: prometheus.NewDesc(
			prometheus.BuildFQName(eteamNS, schedSubsystem, "threads"),
			"Number of runnable threads across all energy tasks",
			nil, nil),
		schedRunningDescriptor: prometheus.NewDesc(
			prometheus.BuildFQName(eteamNS, schedSubsystem, "running"),
			"Whether the scheduler currently holds its CPUs (1) or has handed them back (0)",
			nil, nil),
		schedQuantumDescriptor: prometheus.NewDesc(
			prometheus.BuildFQName(eteamNS, schedSubsystem, "quantum_seconds"),
			"Scheduling slice granted per runnable thread in seconds",
			nil, nil),

		taskEnergyDescriptor: prometheus.NewDesc(
			prometheus.BuildFQName(eteamNS, taskSubsystem, "energy_joules_total"),
			"Energy attributed to the task per hardware counter in joules",
			append(taskLabels, "counter"), nil),
		taskUpdatesDescriptor: prometheus.NewDesc(
			prometheus.BuildFQName(eteamNS, taskSubsystem, "updates_total"),
			"Number of accounting updates of the task",
			taskLabels, nil),
		taskDefersDescriptor: prometheus.NewDesc(
			prometheus.BuildFQName(eteamNS, taskSubsystem, "defers_total"),
			"Number of accounting updates that waited for a hardware counter update",
			taskLabels, nil),
		taskDeferredDescriptor: prometheus.NewDesc(
			prometheus.BuildFQName(eteamNS, taskSubsystem, "deferred_seconds_total"),
			"Total time accounting updates spent waiting for counter updates in seconds",
			taskLabels, nil),
		taskThreadsDescriptor: prometheus.NewDesc(
			prometheus.BuildFQName(eteamNS, taskSubsystem, "runnable_threads"),
			"Number of runnable threads of the task",
			taskLabels, nil),
		taskRunningDescriptor: prometheus.NewDesc(
			prometheus.BuildFQName(eteamNS, taskSubsystem, "running"),
			"Whether the task currently occupies CPUs (1) or waits in the global queue (0)",
			taskLabels, nil),

		cpuRunnableDescriptor: prometheus.NewDesc(
			prometheus.BuildFQName(eteamNS, cpuSubsystem, "runnable_threads"),
			"Number of runnable threads queued on the CPU",
			[]string{"cpu"}, nil),
		cpuAssignedDescriptor: prometheus.NewDesc(
			prometheus.BuildFQName(eteamNS, cpuSubsystem, "assigned_threads"),
			"Number of threads assigned to the CPU",
			[]string{"cpu"}, nil),
		cpuBlockedDescriptor: prometheus.NewDesc(
			prometheus.BuildFQName(eteamNS, cpuSubsystem, "blocked"),
			"Whether the threads assigned to the CPU are currently parked (1)",
			[]string{"cpu"}, nil),
	}

	go c.waitForData()

	return c
}

func (c *EnergyCollector) waitForData() {
	<-c.edp.DataChannel()
	c.mutex.Lock()
	c.ready = true
	c.mutex.Unlock()
}

// Describe implements the prometheus.Collector interface
func (c *EnergyCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.schedTasksDescriptor
	ch <- c.schedThreadsDescriptor
	ch <- c.schedRunningDescriptor
	ch <- c.schedQuantumDescriptor

	ch <- c.taskEnergyDescriptor
	ch <- c.taskUpdatesDescriptor
	ch <- c.taskDefersDescriptor
	ch <- c.taskDeferredDescriptor
	ch <- c.taskThreadsDescriptor
	ch <- c.taskRunningDescriptor

	ch <- c.cpuRunnableDescriptor
	ch <- c.cpuAssignedDescriptor
	ch <- c.cpuBlockedDescriptor
}

func (c *EnergyCollector) isReady() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.ready
}

// Collect implements the prometheus.Collector interface
func (c *EnergyCollector) Collect(ch chan<- prometheus.Metric) {
	if !c.isReady() {
		c.logger.Debug("Collect called before monitor is ready")
		return
	}

	started := time.Now()
	c.logger.Debug("Collecting energy task data")
	defer func() {
		c.logger.Debug("Collected energy task data", "duration", time.Since(started))
	}()

	snapshot, err := c.edp.Snapshot() // snapshot is thread-safe
	if err != nil {
		c.logger.Error("Failed to collect energy task data", "error", err)
		return
	}

	scheduler := snapshot.Scheduler
	if scheduler == nil {
		return
	}

	c.collectSchedulerMetrics(ch, scheduler)
	c.collectTaskMetrics(ch, scheduler.Tasks)
	c.collectCPUMetrics(ch, scheduler.CPUs)
}

// collectSchedulerMetrics collects global scheduler state
func (c *EnergyCollector) collectSchedulerMetrics(ch chan<- prometheus.Metric, s *sched.Snapshot) {
	ch <- prometheus.MustNewConstMetric(
		c.schedTasksDescriptor,
		prometheus.GaugeValue,
		float64(s.NrTasks),
	)
	ch <- prometheus.MustNewConstMetric(
		c.schedThreadsDescriptor,
		prometheus.GaugeValue,
		float64(s.NrThreads),
	)
	ch <- prometheus.MustNewConstMetric(
		c.schedRunningDescriptor,
		prometheus.GaugeValue,
		boolValue(s.Running),
	)
	ch <- prometheus.MustNewConstMetric(
		c.schedQuantumDescriptor,
		prometheus.GaugeValue,
		s.Quantum.Seconds(),
	)
}

// collectTaskMetrics collects per task energy and state metrics
func (c *EnergyCollector) collectTaskMetrics(ch chan<- prometheus.Metric, tasks []sched.TaskSnapshot) {
	if len(tasks) == 0 {
		c.logger.Debug("No energy tasks to export metrics for")
		return
	}

	for _, task := range tasks {
		pid := strconv.Itoa(task.PID)

		for _, counter := range rapl.AllCounters {
			ch <- prometheus.MustNewConstMetric(
				c.taskEnergyDescriptor,
				prometheus.CounterValue,
				task.Stats.Energy(counter).Joules(),
				pid, task.Comm, counter.String(),
			)
		}

		ch <- prometheus.MustNewConstMetric(
			c.taskUpdatesDescriptor,
			prometheus.CounterValue,
			float64(task.Stats.NrUpdates),
			pid, task.Comm,
		)
		ch <- prometheus.MustNewConstMetric(
			c.taskDefersDescriptor,
			prometheus.CounterValue,
			float64(task.Stats.NrDefers),
			pid, task.Comm,
		)
		ch <- prometheus.MustNewConstMetric(
			c.taskDeferredDescriptor,
			prometheus.CounterValue,
			task.Stats.DeferredTime.Seconds(),
			pid, task.Comm,
		)
		ch <- prometheus.MustNewConstMetric(
			c.taskThreadsDescriptor,
			prometheus.GaugeValue,
			float64(task.NrRunnable),
			pid, task.Comm,
		)
		ch <- prometheus.MustNewConstMetric(
			c.taskRunningDescriptor,
			prometheus.GaugeValue,
			boolValue(task.Running),
			pid, task.Comm,
		)
	}
}

// collectCPUMetrics collects per CPU run queue metrics
func (c *EnergyCollector) collectCPUMetrics(ch chan<- prometheus.Metric, cpus []sched.CPUSnapshot) {
	for _, cpu := range cpus {
		id := strconv.Itoa(cpu.CPU)

		ch <- prometheus.MustNewConstMetric(
			c.cpuRunnableDescriptor,
			prometheus.GaugeValue,
			float64(cpu.NrRunnable),
			id,
		)
		ch <- prometheus.MustNewConstMetric(
			c.cpuAssignedDescriptor,
			prometheus.GaugeValue,
			float64(cpu.NrAssigned),
			id,
		)
		ch <- prometheus.MustNewConstMetric(
			c.cpuBlockedDescriptor,
			prometheus.GaugeValue,
			boolValue(cpu.Blocked),
			id,
		)
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
