// SPDX-FileCopyrightText: 2025 The eteam Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/l3nkz/eteam/internal/monitor"
	"github.com/l3nkz/eteam/internal/rapl"
)

type Calibrator = monitor.Calibrator

// CalibrationCollector exports the measurement constants the accounting
// works with. They are determined once at startup and only change on
// restart.
type CalibrationCollector struct {
	meter Calibrator

	infoDescriptor     *prometheus.Desc
	intervalDescriptor *prometheus.Desc
	unitDescriptor     *prometheus.Desc
	loopCostDescriptor *prometheus.Desc
}

// NewCalibrationCollector creates a collector for the accounting
// calibration of meter
func NewCalibrationCollector(meter Calibrator) *CalibrationCollector {
	const calibrationSubsystem = "calibration"

	return &CalibrationCollector{
		meter: meter,

		infoDescriptor: prometheus.NewDesc(
			prometheus.BuildFQName(eteamNS, calibrationSubsystem, "info"),
			"A metric with a constant '1' value labeled with the active counter reader",
			[]string{"reader"}, nil),
		intervalDescriptor: prometheus.NewDesc(
			prometheus.BuildFQName(eteamNS, calibrationSubsystem, "update_interval_seconds"),
			"Average time between hardware counter updates in seconds",
			nil, nil),
		unitDescriptor: prometheus.NewDesc(
			prometheus.BuildFQName(eteamNS, calibrationSubsystem, "unit_microjoules"),
			"Energy in microjoules represented by one raw counter increment",
			nil, nil),
		loopCostDescriptor: prometheus.NewDesc(
			prometheus.BuildFQName(eteamNS, calibrationSubsystem, "loop_cost"),
			"Raw counter increments consumed by one full read cycle",
			[]string{"counter"}, nil),
	}
}

// Describe implements the prometheus.Collector interface
func (c *CalibrationCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.infoDescriptor
	ch <- c.intervalDescriptor
	ch <- c.unitDescriptor
	ch <- c.loopCostDescriptor
}

// Collect implements the prometheus.Collector interface
func (c *CalibrationCollector) Collect(ch chan<- prometheus.Metric) {
	cal := c.meter.Calibration()

	ch <- prometheus.MustNewConstMetric(
		c.infoDescriptor,
		prometheus.GaugeValue,
		1,
		c.meter.ReaderName(),
	)
	ch <- prometheus.MustNewConstMetric(
		c.intervalDescriptor,
		prometheus.GaugeValue,
		cal.UpdateInterval.Seconds(),
	)
	ch <- prometheus.MustNewConstMetric(
		c.unitDescriptor,
		prometheus.GaugeValue,
		cal.Unit,
	)

	for _, counter := range rapl.AllCounters {
		ch <- prometheus.MustNewConstMetric(
			c.loopCostDescriptor,
			prometheus.GaugeValue,
			float64(cal.LoopCost[counter]),
			counter.String(),
		)
	}
}
