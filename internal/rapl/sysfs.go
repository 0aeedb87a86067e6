// SPDX-FileCopyrightText: 2025 The eteam Authors
// SPDX-License-Identifier: Apache-2.0

package rapl

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// sysfsZone is one powercap zone directory with its paths resolved.
type sysfsZone struct {
	energyPath string
	maxEnergy  uint64
}

// sysfsReader reads the energy counters of the first package from the
// powercap intel-rapl hierarchy. The counters are exposed in
// microjoules, so the energy unit is 1.
type sysfsReader struct {
	root  string
	zones map[Counter]sysfsZone
}

var _ Reader = (*sysfsReader)(nil)

// NewSysfsReader creates a reader backed by the powercap hierarchy at
// root, usually /sys/class/powercap/intel-rapl.
func NewSysfsReader(root string) Reader {
	return &sysfsReader{root: root}
}

func (r *sysfsReader) Name() string {
	return "sysfs"
}

func (r *sysfsReader) Init() error {
	pkgPath, err := r.findPackage()
	if err != nil {
		return err
	}

	zones := make(map[Counter]sysfsZone)

	zone, err := readZone(pkgPath)
	if err != nil {
		return err
	}
	zones[Package] = zone

	subDirs, err := filepath.Glob(filepath.Join(pkgPath, "intel-rapl:*"))
	if err != nil {
		return fmt.Errorf("failed to list zones under %s: %w", pkgPath, err)
	}

	for _, dir := range subDirs {
		name, err := readStringFile(filepath.Join(dir, "name"))
		if err != nil {
			continue
		}

		var counter Counter
		switch name {
		case "dram":
			counter = DRAM
		case "core":
			counter = Core
		case "uncore":
			counter = GPU
		default:
			continue
		}

		zone, err := readZone(dir)
		if err != nil {
			return err
		}
		zones[counter] = zone
	}

	r.zones = zones
	return nil
}

// findPackage returns the directory of the first package zone.
func (r *sysfsReader) findPackage() (string, error) {
	dirs, err := filepath.Glob(filepath.Join(r.root, "intel-rapl:*"))
	if err != nil {
		return "", fmt.Errorf("failed to list zones under %s: %w", r.root, err)
	}
	sort.Strings(dirs)

	for _, dir := range dirs {
		name, err := readStringFile(filepath.Join(dir, "name"))
		if err != nil {
			continue
		}
		if strings.HasPrefix(name, "package") {
			return dir, nil
		}
	}

	return "", fmt.Errorf("no package zone found under %s", r.root)
}

func (r *sysfsReader) Read(c Counter) (uint64, error) {
	zone, ok := r.zones[c]
	if !ok {
		return 0, ErrCounterUnavailable
	}

	value, err := readUintFile(zone.energyPath)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s counter: %w", c, err)
	}

	return value, nil
}

func (r *sysfsReader) MaxValue(c Counter) uint64 {
	zone, ok := r.zones[c]
	if !ok || zone.maxEnergy == 0 {
		return math.MaxUint32
	}
	return zone.maxEnergy
}

func (r *sysfsReader) EnergyUnit() (float64, error) {
	return 1.0, nil
}

func (r *sysfsReader) Close() error {
	return nil
}

func readZone(dir string) (sysfsZone, error) {
	zone := sysfsZone{
		energyPath: filepath.Join(dir, "energy_uj"),
	}

	if _, err := os.Stat(zone.energyPath); err != nil {
		return zone, fmt.Errorf("zone %s has no energy counter: %w", dir, err)
	}

	// max_energy_range_uj is optional; without it the counter is
	// assumed to wrap at 32 bits.
	if max, err := readUintFile(filepath.Join(dir, "max_energy_range_uj")); err == nil {
		zone.maxEnergy = max
	}

	return zone, nil
}

func readStringFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func readUintFile(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
}
