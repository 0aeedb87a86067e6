// SPDX-FileCopyrightText: 2025 The eteam Authors
// SPDX-License-Identifier: Apache-2.0

package stdout

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/l3nkz/eteam/internal/monitor"
	"github.com/l3nkz/eteam/internal/rapl"
	"github.com/l3nkz/eteam/internal/sched"
	"github.com/l3nkz/eteam/internal/service"
)

type (
	Initializer = service.Initializer
	Runner      = service.Runner
	Shutdowner  = service.Shutdowner
	Monitor     = monitor.Service
)

// Exporter exports energy task statistics to stdout
type Exporter struct {
	logger   *slog.Logger
	monitor  Monitor
	out      io.WriteCloser
	ticker   time.Ticker
	interval time.Duration
}

var (
	_ Initializer = (*Exporter)(nil)
	_ Runner      = (*Exporter)(nil)
	_ Shutdowner  = (*Exporter)(nil)
)

type Opts struct {
	logger   *slog.Logger
	out      io.WriteCloser
	interval time.Duration
}

// DefaultOpts() returns a new Opts with defaults set
func DefaultOpts() Opts {
	return Opts{
		logger:   slog.Default(),
		out:      os.Stdout,
		interval: 5 * time.Second,
	}
}

// OptionFn is a function sets one more more options in Opts struct
type OptionFn func(*Opts)

// WithLogger sets the logger for the exporter
func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = logger
	}
}

func WithOutput(out io.WriteCloser) OptionFn {
	return func(o *Opts) {
		o.out = out
	}
}

func WithInterval(interval time.Duration) OptionFn {
	return func(o *Opts) {
		o.interval = interval
	}
}

func NewExporter(em Monitor, applyOpts ...OptionFn) *Exporter {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}

	exporter := &Exporter{
		logger:   opts.logger.With("service", "stdout"),
		monitor:  em,
		out:      opts.out,
		interval: opts.interval,
	}

	return exporter
}

func (e *Exporter) Init() error {
	e.ticker = *time.NewTicker(e.interval)
	return nil
}

func (e *Exporter) Run(ctx context.Context) error {
	for {
		select {
		case now := <-e.ticker.C:
			snapshot, err := e.monitor.Snapshot()
			if err != nil {
				e.logger.Error("Failed to collect energy task data", "error", err)
				return nil
			}
			write(e.out, now, snapshot)
		case <-ctx.Done():
			e.logger.Info("Exiting ticker")
			return nil
		}
	}
}

func write(out io.Writer, now time.Time, snapshot *monitor.Snapshot) {
	scheduler := snapshot.Scheduler
	if scheduler == nil {
		return
	}

	fmt.Fprintf(out, "%s tasks: %d threads: %d running: %v\n",
		now.Format(time.RFC3339), scheduler.NrTasks, scheduler.NrThreads, scheduler.Running)
	writeTasks(out, scheduler.Tasks)
}

func writeTasks(out io.Writer, tasks []sched.TaskSnapshot) {
	// the snapshot is a private copy, sorting in place is fine
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].PID < tasks[j].PID
	})

	header := []string{"PID", "Comm", "State", "Threads"}
	for _, counter := range rapl.AllCounters {
		header = append(header, counter.String()+"(J)")
	}
	header = append(header, "Updates")

	rows := [][]string{}
	for _, task := range tasks {
		state := "queued"
		if task.Running {
			state = "running"
		}

		row := []string{
			strconv.Itoa(task.PID),
			task.Comm,
			state,
			strconv.Itoa(task.NrRunnable),
		}
		for _, counter := range rapl.AllCounters {
			row = append(row, task.Stats.Energy(counter).String())
		}
		row = append(row, strconv.FormatUint(task.Stats.NrUpdates, 10))

		rows = append(rows, row)
	}

	table := tablewriter.NewWriter(out)
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Formatting.Alignment = tw.AlignRight
	})
	table.Header(header)
	_ = table.Bulk(rows)
	_ = table.Render()
}

func (e *Exporter) Shutdown() error {
	return e.out.Close()
}

// Name implements service.Name
func (e *Exporter) Name() string {
	return "stdout"
}
