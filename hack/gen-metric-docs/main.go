// SPDX-FileCopyrightText: 2025 The eteam Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/l3nkz/eteam/internal/exporter/prometheus/collector"
	"github.com/l3nkz/eteam/internal/monitor"
	"github.com/l3nkz/eteam/internal/rapl"
)

// MetricInfo holds information about a Prometheus metric
type MetricInfo struct {
	Name        string
	Type        string
	Description string
	Labels      []string
	ConstLabels map[string]string
}

// staticMonitor implements the minimal interface the collectors need to
// describe their metrics
type staticMonitor struct {
	dataCh chan struct{}
}

func newStaticMonitor() *staticMonitor {
	m := &staticMonitor{dataCh: make(chan struct{})}
	close(m.dataCh)
	return m
}

func (m *staticMonitor) Snapshot() (*monitor.Snapshot, error) {
	return &monitor.Snapshot{Timestamp: time.Now()}, nil
}

func (m *staticMonitor) DataChannel() <-chan struct{} {
	return m.dataCh
}

func (m *staticMonitor) Calibration() rapl.Calibration {
	return rapl.Calibration{}
}

func (m *staticMonitor) ReaderName() string {
	return "fake"
}

// extractMetricsInfo extracts metric information from a Prometheus collector
func extractMetricsInfo(c prometheus.Collector) ([]MetricInfo, error) {
	ch := make(chan *prometheus.Desc, 100)
	c.Describe(ch)
	close(ch)

	var metrics []MetricInfo
	fqNameRegex := regexp.MustCompile(`fqName: "([^"]+)"`)
	helpRegex := regexp.MustCompile(`help: "([^"]+)"`)
	variableLabelsRegex := regexp.MustCompile(`variableLabels: \{([^}]*)\}`)
	constLabelsRegex := regexp.MustCompile(`constLabels: \{([^}]*)\}`)

	for desc := range ch {
		descStr := desc.String()
		fqNameMatch := fqNameRegex.FindStringSubmatch(descStr)
		if len(fqNameMatch) < 2 {
			fmt.Printf("Warning: Could not parse fqName from: %s\n", descStr)
			continue
		}
		name := fqNameMatch[1]

		helpMatch := helpRegex.FindStringSubmatch(descStr)
		if len(helpMatch) < 2 {
			fmt.Printf("Warning: Could not parse help from: %s\n", descStr)
			continue
		}
		help := helpMatch[1]

		var labels []string
		variableLabelsMatch := variableLabelsRegex.FindStringSubmatch(descStr)
		if len(variableLabelsMatch) >= 2 && variableLabelsMatch[1] != "" {
			labels = strings.Split(variableLabelsMatch[1], ",")
			for i, label := range labels {
				labels[i] = strings.TrimSpace(label)
			}
		}

		constLabels := make(map[string]string)
		constLabelsMatch := constLabelsRegex.FindStringSubmatch(descStr)
		if len(constLabelsMatch) >= 2 && constLabelsMatch[1] != "" {
			labelPairRegex := regexp.MustCompile(`(\w+)="([^"]*)"`)
			for _, match := range labelPairRegex.FindAllStringSubmatch(constLabelsMatch[1], -1) {
				if len(match) >= 3 {
					constLabels[match[1]] = match[2]
				}
			}
		}

		metricType := "GAUGE"
		if strings.HasSuffix(name, "_total") {
			metricType = "COUNTER"
		}

		metrics = append(metrics, MetricInfo{
			Name:        name,
			Type:        metricType,
			Description: help,
			Labels:      labels,
			ConstLabels: constLabels,
		})
	}

	return metrics, nil
}

// generateMarkdown generates Markdown documentation from metric information
func generateMarkdown(metrics []MetricInfo) string {
	var md strings.Builder
	sort.Slice(metrics, func(i, j int) bool {
		return metrics[i].Name < metrics[j].Name
	})

	md.WriteString("# eteam Metrics\n\n")
	md.WriteString("This document describes the metrics exported by eteam for monitoring the energy scheduler and the energy consumption of its tasks.\n\n")
	md.WriteString("## Overview\n\n")
	md.WriteString("eteam exports metrics in Prometheus format that can be scraped by Prometheus or other compatible monitoring systems.\n\n")
	md.WriteString("### Metric Types\n\n")
	md.WriteString("- **COUNTER**: A cumulative metric that only increases over time\n")
	md.WriteString("- **GAUGE**: A metric that can increase and decrease\n\n")
	md.WriteString("## Metrics Reference\n\n")

	schedulerMetrics := []MetricInfo{}
	taskMetrics := []MetricInfo{}
	cpuMetrics := []MetricInfo{}
	calibrationMetrics := []MetricInfo{}
	otherMetrics := []MetricInfo{}

	for _, metric := range metrics {
		switch {
		case strings.HasPrefix(metric.Name, "eteam_scheduler_"):
			schedulerMetrics = append(schedulerMetrics, metric)
		case strings.HasPrefix(metric.Name, "eteam_task_"):
			taskMetrics = append(taskMetrics, metric)
		case strings.HasPrefix(metric.Name, "eteam_cpu_"):
			cpuMetrics = append(cpuMetrics, metric)
		case strings.HasPrefix(metric.Name, "eteam_calibration_"):
			calibrationMetrics = append(calibrationMetrics, metric)
		default:
			otherMetrics = append(otherMetrics, metric)
		}
	}

	if len(schedulerMetrics) > 0 {
		md.WriteString("### Scheduler Metrics\n\n")
		md.WriteString("These metrics describe the global state of the energy scheduler.\n\n")
		writeMetricsSection(&md, schedulerMetrics)
	}
	if len(taskMetrics) > 0 {
		md.WriteString("### Task Metrics\n\n")
		md.WriteString("These metrics provide energy and scheduling information per energy task.\n\n")
		writeMetricsSection(&md, taskMetrics)
	}
	if len(cpuMetrics) > 0 {
		md.WriteString("### CPU Metrics\n\n")
		md.WriteString("These metrics describe the per CPU run queues of the scheduler.\n\n")
		writeMetricsSection(&md, cpuMetrics)
	}
	if len(calibrationMetrics) > 0 {
		md.WriteString("### Calibration Metrics\n\n")
		md.WriteString("These metrics expose the counter calibration determined at startup.\n\n")
		writeMetricsSection(&md, calibrationMetrics)
	}
	if len(otherMetrics) > 0 {
		md.WriteString("### Other Metrics\n\n")
		md.WriteString("Additional metrics provided by eteam.\n\n")
		writeMetricsSection(&md, otherMetrics)
	}

	md.WriteString("---\n\n")
	md.WriteString("This documentation was automatically generated by the gen-metric-docs tool.")
	md.WriteString("\n")
	return md.String()
}

// writeMetricsSection writes a section of metrics to the markdown builder
func writeMetricsSection(md *strings.Builder, metrics []MetricInfo) {
	for _, metric := range metrics {
		fmt.Fprintf(md, "#### %s\n\n", metric.Name)
		fmt.Fprintf(md, "- **Type**: %s\n", metric.Type)
		fmt.Fprintf(md, "- **Description**: %s\n", metric.Description)
		if len(metric.Labels) > 0 {
			md.WriteString("- **Labels**:\n")
			for _, label := range metric.Labels {
				fmt.Fprintf(md, "  - `%s`\n", label)
			}
		}
		if len(metric.ConstLabels) > 0 {
			md.WriteString("- **Constant Labels**:\n")
			var keys []string
			for key := range metric.ConstLabels {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			for _, key := range keys {
				fmt.Fprintf(md, "  - `%s`\n", key)
			}
		}
		md.WriteString("\n")
	}
}

func main() {
	outputPath := flag.String("output", "metrics.md", "Path to output Markdown file")
	flag.Parse()

	fmt.Println("Starting eteam metrics extractor...")

	em := newStaticMonitor()

	fmt.Println("Creating collectors...")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	allCollectors := []prometheus.Collector{
		collector.NewEnergyCollector(em, logger),
		collector.NewCalibrationCollector(em),
		collector.NewBuildInfoCollector(),
	}

	var allMetrics []MetricInfo
	for _, c := range allCollectors {
		metrics, err := extractMetricsInfo(c)
		if err != nil {
			fmt.Printf("Failed to extract metrics: %v\n", err)
			os.Exit(1)
		}
		allMetrics = append(allMetrics, metrics...)
	}
	fmt.Printf("Total metrics extracted: %d\n", len(allMetrics))

	markdown := generateMarkdown(allMetrics)

	fmt.Printf("Writing metrics documentation to: %s\n", *outputPath)
	outputDir := filepath.Dir(*outputPath)
	if outputDir != "" && outputDir != "." {
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			fmt.Printf("Failed to create output directory: %v\n", err)
			os.Exit(1)
		}
	}

	if err := os.WriteFile(*outputPath, []byte(markdown), 0644); err != nil {
		fmt.Printf("Failed to write markdown file: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Metrics documentation generated successfully!")
}
