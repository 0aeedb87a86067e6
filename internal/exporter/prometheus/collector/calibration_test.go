// SPDX-FileCopyrightText: 2025 The eteam Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"github.com/l3nkz/eteam/internal/rapl"
)

func TestCalibrationCollector(t *testing.T) {
	mockMonitor := NewMockEnergyMonitor()

	cal := rapl.Calibration{
		UpdateInterval: time.Millisecond,
		Unit:           61.0,
	}
	cal.LoopCost[rapl.Package] = 15
	cal.LoopCost[rapl.DRAM] = 4

	mockMonitor.On("Calibration").Return(cal)
	mockMonitor.On("ReaderName").Return("msr")

	registry := prometheus.NewRegistry()
	registry.MustRegister(NewCalibrationCollector(mockMonitor))

	metrics, err := registry.Gather()
	assert.NoError(t, err)

	expectedMetricNames := []string{
		"eteam_calibration_info",
		"eteam_calibration_update_interval_seconds",
		"eteam_calibration_unit_microjoules",
		"eteam_calibration_loop_cost",
	}
	assert.ElementsMatch(t, expectedMetricNames, metricNames(metrics))

	assertMetricValue(t, registry, "eteam_calibration_info",
		map[string]string{"reader": "msr"}, 1)
	assertMetricValue(t, registry, "eteam_calibration_update_interval_seconds", nil, 0.001)
	assertMetricValue(t, registry, "eteam_calibration_unit_microjoules", nil, 61.0)
	assertMetricValue(t, registry, "eteam_calibration_loop_cost",
		map[string]string{"counter": "package"}, 15)
	assertMetricValue(t, registry, "eteam_calibration_loop_cost",
		map[string]string{"counter": "dram"}, 4)
	assertMetricValue(t, registry, "eteam_calibration_loop_cost",
		map[string]string{"counter": "core"}, 0)

	mockMonitor.AssertExpectations(t)
}

func TestCalibrationCollector_Describe(t *testing.T) {
	collector := NewCalibrationCollector(NewMockEnergyMonitor())

	ch := make(chan *prometheus.Desc, 8)
	collector.Describe(ch)
	assert.Len(t, ch, 4, "expected one description per calibration metric")
}
