// SPDX-FileCopyrightText: 2025 The eteam Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/alecthomas/kingpin/v2"
	"github.com/prometheus/common/model"
	"gopkg.in/yaml.v3"
	"k8s.io/utils/cpuset"
)

// Config is the complete eteamd configuration.
type (
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	}

	Web struct {
		Config          string   `yaml:"configFile"`
		ListenAddresses []string `yaml:"listenAddresses"`
	}

	Scheduler struct {
		// Quantum is the scheduling slice granted per runnable thread.
		Quantum model.Duration `yaml:"quantum"`
		// Domain restricts the energy domain to a cpuset list such as
		// "0-3,8". Empty means all host CPUs.
		Domain string `yaml:"domain"`
	}

	Rapl struct {
		// Reader selects the counter source: msr, sysfs or fake.
		Reader    string `yaml:"reader"`
		MSRPath   string `yaml:"msrPath"`
		SysfsPath string `yaml:"sysfsPath"`
	}

	Host struct {
		// CPUs is the number of scheduled CPUs. 0 means all host CPUs.
		CPUs int `yaml:"cpus"`
		// Tick is the interval between scheduling opportunities.
		Tick model.Duration `yaml:"tick"`
	}

	Mirror struct {
		// Interval between procfs scans of managed processes.
		Interval model.Duration `yaml:"interval"`
	}

	Monitor struct {
		// Interval between snapshot collections. 0 collects only on
		// demand.
		Interval model.Duration `yaml:"interval"`
		// Staleness is the age after which a snapshot is recomputed
		// when requested.
		Staleness model.Duration `yaml:"staleness"`
	}

	Control struct {
		// Switcher selects how threads change policy: mirror or setsched.
		Switcher string `yaml:"switcher"`
		// Policy is the scheduling policy number used by the setsched
		// switcher for managed threads.
		Policy int `yaml:"policy"`
	}

	StdoutExporter struct {
		Enabled  bool           `yaml:"enabled"`
		Interval model.Duration `yaml:"interval"`
	}

	PrometheusExporter struct {
		Enabled         bool     `yaml:"enabled"`
		DebugCollectors []string `yaml:"debugCollectors"`
	}

	MCPExporter struct {
		Enabled bool `yaml:"enabled"`
		// Transport selects how the MCP server is exposed: sse,
		// streamable (both over the web listen address) or stdio.
		Transport string `yaml:"transport"`
	}

	Exporter struct {
		Stdout     StdoutExporter     `yaml:"stdout"`
		Prometheus PrometheusExporter `yaml:"prometheus"`
		MCP        MCPExporter        `yaml:"mcp"`
	}

	Config struct {
		Log       Log       `yaml:"log"`
		Web       Web       `yaml:"web"`
		Scheduler Scheduler `yaml:"scheduler"`
		Rapl      Rapl      `yaml:"rapl"`
		Host      Host      `yaml:"host"`
		Mirror    Mirror    `yaml:"mirror"`
		Monitor   Monitor   `yaml:"monitor"`
		Control   Control   `yaml:"control"`
		Exporter  Exporter  `yaml:"exporter"`
	}
)

const (
	// Flags
	ConfigFileFlag         = "config.file"
	LogLevelFlag           = "log.level"
	LogFormatFlag          = "log.format"
	ListenAddressFlag      = "web.listen-address"
	StdoutExporterFlag     = "exporter.stdout"
	PrometheusExporterFlag = "exporter.prometheus"
	MCPExporterFlag        = "exporter.mcp"

	// Reader choices
	RaplReaderMSR   = "msr"
	RaplReaderSysfs = "sysfs"
	RaplReaderFake  = "fake"

	// Switcher choices
	SwitcherMirror   = "mirror"
	SwitcherSetsched = "setsched"

	// MCP transport choices
	MCPTransportSSE        = "sse"
	MCPTransportStreamable = "streamable"
	MCPTransportStdio      = "stdio"

	DefaultListenAddress = ":28100"
)

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Web: Web{
			ListenAddresses: []string{DefaultListenAddress},
		},
		Scheduler: Scheduler{
			Quantum: model.Duration(10 * time.Millisecond),
		},
		Rapl: Rapl{
			Reader:    RaplReaderMSR,
			MSRPath:   "/dev/cpu/0/msr",
			SysfsPath: "/sys/class/powercap/intel-rapl",
		},
		Host: Host{
			CPUs: 0,
			Tick: model.Duration(1 * time.Millisecond),
		},
		Mirror: Mirror{
			Interval: model.Duration(100 * time.Millisecond),
		},
		Monitor: Monitor{
			Interval:  model.Duration(5 * time.Second),
			Staleness: model.Duration(500 * time.Millisecond),
		},
		Control: Control{
			Switcher: SwitcherMirror,
			Policy:   7,
		},
		Exporter: Exporter{
			Stdout: StdoutExporter{
				Enabled:  false,
				Interval: model.Duration(5 * time.Second),
			},
			Prometheus: PrometheusExporter{
				Enabled:         true,
				DebugCollectors: []string{"go"},
			},
			MCP: MCPExporter{
				Enabled:   false,
				Transport: MCPTransportSSE,
			},
		},
	}
}

// Load loads configuration from an io.Reader on top of the defaults.
func Load(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.sanitize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// FromFiles loads configuration from one or more files. The first file is
// applied on top of the defaults; every further file is an overlay whose
// set fields override the result so far.
func FromFiles(paths ...string) (*Config, error) {
	if len(paths) == 0 {
		return DefaultConfig(), nil
	}

	cfg, err := fromFile(paths[0])
	if err != nil {
		return nil, err
	}

	for _, path := range paths[1:] {
		overlay := &Config{}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, overlay); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}

		if err := mergo.Merge(cfg, overlay, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge config file %s: %w", path, err)
		}
		cfg.sanitize()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func fromFile(filePath string) (*Config, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return Load(file)
}

type ConfigUpdaterFn func(*Config) error

// RegisterFlags registers command-line flags with the kingpin app and
// returns a ConfigUpdaterFn that applies the flags a user actually set on
// top of the config, so that flags override config file settings.
func RegisterFlags(app *kingpin.Application) ConfigUpdaterFn {
	// track flags that were explicitly set
	flagsSet := map[string]bool{}

	app.PreAction(func(ctx *kingpin.ParseContext) error {
		// Clear the map in case this function is called multiple times
		flagsSet = map[string]bool{}

		for _, element := range ctx.Elements {
			if flag, ok := element.Clause.(*kingpin.FlagClause); ok && element.Value != nil {
				flagsSet[flag.Model().Name] = true
			}
		}
		return nil
	})

	logLevel := app.Flag(LogLevelFlag, "Logging level: debug, info, warn, error").Default("info").Enum("debug", "info", "warn", "error")
	logFormat := app.Flag(LogFormatFlag, "Logging format: text or json").Default("text").Enum("text", "json")
	listenAddresses := app.Flag(ListenAddressFlag, "Addresses on which to expose the web interface (repeatable)").Default(DefaultListenAddress).Strings()
	stdoutExporter := app.Flag(StdoutExporterFlag, "Enable the stdout energy statistics exporter").Default("false").Bool()
	prometheusExporter := app.Flag(PrometheusExporterFlag, "Enable the Prometheus exporter").Default("true").Bool()
	mcpExporter := app.Flag(MCPExporterFlag, "Enable the MCP server").Default("false").Bool()

	return func(cfg *Config) error {
		if flagsSet[LogLevelFlag] {
			cfg.Log.Level = *logLevel
		}

		if flagsSet[LogFormatFlag] {
			cfg.Log.Format = *logFormat
		}

		if flagsSet[ListenAddressFlag] {
			cfg.Web.ListenAddresses = *listenAddresses
		}

		if flagsSet[StdoutExporterFlag] {
			cfg.Exporter.Stdout.Enabled = *stdoutExporter
		}

		if flagsSet[PrometheusExporterFlag] {
			cfg.Exporter.Prometheus.Enabled = *prometheusExporter
		}

		if flagsSet[MCPExporterFlag] {
			cfg.Exporter.MCP.Enabled = *mcpExporter
		}

		cfg.sanitize()
		return cfg.Validate()
	}
}

func (c *Config) sanitize() {
	c.Log.Level = strings.TrimSpace(c.Log.Level)
	c.Log.Format = strings.TrimSpace(c.Log.Format)
	c.Scheduler.Domain = strings.TrimSpace(c.Scheduler.Domain)
	c.Rapl.Reader = strings.TrimSpace(c.Rapl.Reader)
	c.Rapl.MSRPath = strings.TrimSpace(c.Rapl.MSRPath)
	c.Rapl.SysfsPath = strings.TrimSpace(c.Rapl.SysfsPath)
	c.Control.Switcher = strings.TrimSpace(c.Control.Switcher)
	c.Exporter.MCP.Transport = strings.TrimSpace(c.Exporter.MCP.Transport)

	for i := range c.Exporter.Prometheus.DebugCollectors {
		c.Exporter.Prometheus.DebugCollectors[i] = strings.TrimSpace(c.Exporter.Prometheus.DebugCollectors[i])
	}
}

// Validate checks for configuration errors.
func (c *Config) Validate() error {
	var errs []string

	{ // log
		validLogLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}
		if !validLogLevels[c.Log.Level] {
			errs = append(errs, fmt.Sprintf("invalid log level: %s", c.Log.Level))
		}

		validFormats := map[string]bool{
			"text": true,
			"json": true,
		}
		if !validFormats[c.Log.Format] {
			errs = append(errs, fmt.Sprintf("invalid log format: %s", c.Log.Format))
		}
	}

	{ // scheduler
		if c.Scheduler.Quantum <= 0 {
			errs = append(errs, fmt.Sprintf("scheduler quantum must be positive: %s", c.Scheduler.Quantum))
		}
		if c.Scheduler.Domain != "" {
			if _, err := cpuset.Parse(c.Scheduler.Domain); err != nil {
				errs = append(errs, fmt.Sprintf("invalid scheduler domain %q: %s", c.Scheduler.Domain, err))
			}
		}
	}

	{ // rapl
		validReaders := map[string]bool{
			RaplReaderMSR:   true,
			RaplReaderSysfs: true,
			RaplReaderFake:  true,
		}
		if !validReaders[c.Rapl.Reader] {
			errs = append(errs, fmt.Sprintf("invalid rapl reader: %s", c.Rapl.Reader))
		}
	}

	{ // host
		if c.Host.CPUs < 0 {
			errs = append(errs, fmt.Sprintf("host cpus must not be negative: %d", c.Host.CPUs))
		}
		if c.Host.Tick <= 0 {
			errs = append(errs, fmt.Sprintf("host tick must be positive: %s", c.Host.Tick))
		}
	}

	{ // mirror
		if c.Mirror.Interval <= 0 {
			errs = append(errs, fmt.Sprintf("mirror interval must be positive: %s", c.Mirror.Interval))
		}
	}

	{ // monitor
		if c.Monitor.Interval < 0 {
			errs = append(errs, fmt.Sprintf("monitor interval must not be negative: %s", c.Monitor.Interval))
		}
		if c.Monitor.Staleness <= 0 {
			errs = append(errs, fmt.Sprintf("monitor staleness must be positive: %s", c.Monitor.Staleness))
		}
	}

	{ // control
		validSwitchers := map[string]bool{
			SwitcherMirror:   true,
			SwitcherSetsched: true,
		}
		if !validSwitchers[c.Control.Switcher] {
			errs = append(errs, fmt.Sprintf("invalid control switcher: %s", c.Control.Switcher))
		}
		if c.Control.Policy < 0 {
			errs = append(errs, fmt.Sprintf("control policy must not be negative: %d", c.Control.Policy))
		}
	}

	{ // exporters
		if c.Exporter.Stdout.Enabled && c.Exporter.Stdout.Interval <= 0 {
			errs = append(errs, fmt.Sprintf("stdout exporter interval must be positive: %s", c.Exporter.Stdout.Interval))
		}

		validTransports := map[string]bool{
			MCPTransportSSE:        true,
			MCPTransportStreamable: true,
			MCPTransportStdio:      true,
		}
		if c.Exporter.MCP.Enabled && !validTransports[c.Exporter.MCP.Transport] {
			errs = append(errs, fmt.Sprintf("invalid mcp transport: %s", c.Exporter.MCP.Transport))
		}
	}

	{ // web
		if len(c.Web.ListenAddresses) == 0 {
			errs = append(errs, "at least one web listen address is required")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, ", "))
	}

	return nil
}

func (c *Config) String() string {
	bytes, err := yaml.Marshal(c)
	if err == nil {
		return string(bytes)
	}
	// NOTE: this code path should not happen but if yaml marshal fails for
	// some reason, manually build the string
	return c.manualString()
}

func (c *Config) manualString() string {
	cfgs := []struct {
		Name  string
		Value string
	}{
		{LogLevelFlag, c.Log.Level},
		{LogFormatFlag, c.Log.Format},
		{"scheduler.quantum", c.Scheduler.Quantum.String()},
		{"scheduler.domain", c.Scheduler.Domain},
		{"rapl.reader", c.Rapl.Reader},
		{"control.switcher", c.Control.Switcher},
	}
	sb := strings.Builder{}

	for _, cfg := range cfgs {
		sb.WriteString(cfg.Name)
		sb.WriteString(": ")
		sb.WriteString(cfg.Value)
		sb.WriteString("\n")
	}

	return sb.String()
}
