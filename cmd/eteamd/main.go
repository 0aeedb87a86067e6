// SPDX-FileCopyrightText: 2025 The eteam Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"k8s.io/utils/clock"
	"k8s.io/utils/cpuset"

	"github.com/l3nkz/eteam/internal/config"
	"github.com/l3nkz/eteam/internal/control"
	"github.com/l3nkz/eteam/internal/exporter/mcp"
	"github.com/l3nkz/eteam/internal/exporter/prometheus"
	"github.com/l3nkz/eteam/internal/exporter/stdout"
	"github.com/l3nkz/eteam/internal/host"
	"github.com/l3nkz/eteam/internal/logger"
	"github.com/l3nkz/eteam/internal/monitor"
	"github.com/l3nkz/eteam/internal/rapl"
	"github.com/l3nkz/eteam/internal/resource"
	"github.com/l3nkz/eteam/internal/sched"
	"github.com/l3nkz/eteam/internal/server"
	"github.com/l3nkz/eteam/internal/service"
	"github.com/l3nkz/eteam/internal/version"
)

func main() {
	// parse args and config and exit with error if there is an error
	cfg, err := parseArgsAndConfig()
	if err != nil {
		os.Exit(1)
	}

	logger := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	logVersionInfo(logger)
	printConfigInfo(logger, cfg)

	services, err := createServices(logger, cfg)
	if err != nil {
		logger.Error("Failed to create services", "error", err)
		os.Exit(1)
	}
	services = append(services,
		service.NewSignalHandler(logger, os.Interrupt, syscall.SIGTERM),
	)

	if err := service.Init(logger, services); err != nil {
		logger.Error("Failed to initialize services", "error", err)
		os.Exit(1)
	}

	logger.Info("Starting eteamd")
	if err := service.Run(context.Background(), logger, services); err != nil {
		logger.Error("eteamd terminated with an error", "error", err)
		os.Exit(1)
	}
	logger.Info("Graceful shutdown completed")
}

func logVersionInfo(logger *slog.Logger) {
	v := version.Info()
	logger.Info("eteamd version information",
		"version", v.Version,
		"buildTime", v.BuildTime,
		"gitBranch", v.GitBranch,
		"gitCommit", v.GitCommit,
		"goVersion", v.GoVersion,
		"goOS", v.GoOS,
		"goArch", v.GoArch,
	)
}

func parseArgsAndConfig() (*config.Config, error) {
	const appName = "eteamd"
	app := kingpin.New(appName, "Energy task scheduling and accounting daemon.")

	configFiles := app.Flag(config.ConfigFileFlag, "Path to YAML configuration file (repeatable, later files override earlier ones)").Strings()
	updateConfig := config.RegisterFlags(app)
	kingpin.MustParse(app.Parse(os.Args[1:]))

	logger := logger.New("info", "text", os.Stderr)
	if len(*configFiles) > 0 {
		logger.Info("Loading configuration files", "paths", strings.Join(*configFiles, ", "))
	}
	cfg, err := config.FromFiles(*configFiles...)
	if err != nil {
		logger.Error("Error loading configuration files", "error", err.Error())
		return nil, err
	}

	// Apply command line flags (these override config file settings)
	if err := updateConfig(cfg); err != nil {
		logger.Error("Error applying command line flags", "error", err.Error())
		return nil, err
	}

	return cfg, nil
}

func printConfigInfo(logger *slog.Logger, cfg *config.Config) {
	if !logger.Enabled(context.Background(), slog.LevelInfo) || cfg.Log.Format == "json" {
		return
	}

	fmt.Printf(`
Configuration
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
%s
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
`, cfg)
}

func createServices(logger *slog.Logger, cfg *config.Config) ([]service.Service, error) {
	logger.Debug("Creating all services")

	reader, err := raplReader(cfg)
	if err != nil {
		return nil, err
	}
	meter := rapl.NewMeter(reader, rapl.WithLogger(logger))

	cpus := hostCPUs(cfg)
	h := host.New(cpus, host.WithLogger(logger))

	domain := cpus
	if cfg.Scheduler.Domain != "" {
		domain, err = cpuset.Parse(cfg.Scheduler.Domain)
		if err != nil {
			return nil, fmt.Errorf("failed to parse scheduler domain: %w", err)
		}
	}

	scheduler := sched.New(h,
		sched.WithLogger(logger),
		sched.WithQuantum(time.Duration(cfg.Scheduler.Quantum)),
		sched.WithDomain(domain),
		sched.WithAccountant(meter),
	)

	driver := host.NewDriver(h, scheduler,
		host.WithDriverLogger(logger),
		host.WithTick(time.Duration(cfg.Host.Tick)),
	)

	mirror, err := resource.NewMirror(scheduler,
		resource.WithLogger(logger),
		resource.WithInterval(time.Duration(cfg.Mirror.Interval)),
		resource.WithCPUs(cpus),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource mirror: %w", err)
	}

	var switcher control.Switcher
	switch cfg.Control.Switcher {
	case config.SwitcherMirror:
		switcher = control.NewMirrorSwitcher(mirror)
	case config.SwitcherSetsched:
		switcher = control.NewSetschedSwitcher()
	default:
		return nil, fmt.Errorf("unsupported control switcher: %s", cfg.Control.Switcher)
	}

	ctl, err := control.New(switcher,
		control.WithLogger(logger),
		control.WithPolicy(control.Policy(cfg.Control.Policy)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create control service: %w", err)
	}

	em := monitor.NewEnergyMonitor(scheduler, meter,
		monitor.WithLogger(logger),
		monitor.WithInterval(time.Duration(cfg.Monitor.Interval)),
		monitor.WithMaxStaleness(time.Duration(cfg.Monitor.Staleness)),
	)

	apiServer := server.NewAPIServer(
		server.WithLogger(logger),
		server.WithListenAddress(cfg.Web.ListenAddresses),
		server.WithWebConfig(cfg.Web.Config),
	)

	services := []service.Service{
		meter,
		em,
		driver,
		mirror,
		ctl,
		server.NewControlAPI(apiServer, ctl, logger),
		server.NewProbe(apiServer, em),
		server.NewPprof(apiServer),
		apiServer,
	}

	if cfg.Exporter.Prometheus.Enabled {
		collectors, err := prometheus.CreateCollectors(em, prometheus.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create collectors: %w", err)
		}
		promExporter := prometheus.NewExporter(em, apiServer,
			prometheus.WithLogger(logger),
			prometheus.WithDebugCollectors(cfg.Exporter.Prometheus.DebugCollectors),
			prometheus.WithCollectors(collectors),
		)
		services = append(services, promExporter)
	}

	if cfg.Exporter.Stdout.Enabled {
		stdoutExporter := stdout.NewExporter(em,
			stdout.WithLogger(logger),
			stdout.WithInterval(time.Duration(cfg.Exporter.Stdout.Interval)),
		)
		services = append(services, stdoutExporter)
	}

	if cfg.Exporter.MCP.Enabled {
		var opts []mcp.Option
		switch cfg.Exporter.MCP.Transport {
		case config.MCPTransportSSE:
			opts = append(opts, mcp.WithSSETransport(apiServer, "/mcp"))
		case config.MCPTransportStreamable:
			opts = append(opts, mcp.WithStreamableHTTP(apiServer, "/mcp"))
		case config.MCPTransportStdio:
			// stdio is the default transport
		}
		services = append(services, mcp.NewServer(em, logger, opts...))
	}

	return services, nil
}

func raplReader(cfg *config.Config) (rapl.Reader, error) {
	switch cfg.Rapl.Reader {
	case config.RaplReaderMSR:
		return rapl.NewMSRReader(cfg.Rapl.MSRPath), nil
	case config.RaplReaderSysfs:
		return rapl.NewSysfsReader(cfg.Rapl.SysfsPath), nil
	case config.RaplReaderFake:
		return rapl.NewFakeReader(clock.RealClock{}), nil
	default:
		return nil, fmt.Errorf("unsupported rapl reader: %s", cfg.Rapl.Reader)
	}
}

func hostCPUs(cfg *config.Config) cpuset.CPUSet {
	n := cfg.Host.CPUs
	if n <= 0 {
		n = runtime.NumCPU()
	}
	ids := make([]int, n)
	for i := range ids {
		ids[i] = i
	}
	return cpuset.New(ids...)
}
