// SPDX-FileCopyrightText: 2025 The eteam Authors
// SPDX-License-Identifier: Apache-2.0

package rapl

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

const (
	msrPowerUnit        = 0x606
	msrPkgEnergyStatus  = 0x611
	msrDRAMEnergyStatus = 0x619
	msrPP0EnergyStatus  = 0x639
	msrPP1EnergyStatus  = 0x641

	// Bits 12:8 of MSR_RAPL_POWER_UNIT encode the energy status unit.
	energyUnitOffset = 8
	energyUnitMask   = 0x1F
)

var msrOffsets = map[Counter]int64{
	Package: msrPkgEnergyStatus,
	DRAM:    msrDRAMEnergyStatus,
	Core:    msrPP0EnergyStatus,
	GPU:     msrPP1EnergyStatus,
}

// msrReader reads the energy counters from the model specific registers
// of one package through the msr device file.
type msrReader struct {
	path string
	file *os.File
}

var _ Reader = (*msrReader)(nil)

// NewMSRReader creates a reader backed by the msr device at path,
// usually /dev/cpu/<n>/msr of a CPU in the measured package.
func NewMSRReader(path string) Reader {
	return &msrReader{path: path}
}

func (r *msrReader) Name() string {
	return "msr"
}

func (r *msrReader) Init() error {
	file, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("failed to open msr device %s: %w", r.path, err)
	}
	r.file = file

	// Probe the unit register so a device without RAPL fails at
	// startup rather than on the first read.
	if _, err := r.EnergyUnit(); err != nil {
		_ = r.file.Close()
		r.file = nil
		return err
	}

	return nil
}

func (r *msrReader) readMSR(offset int64) (uint64, error) {
	if r.file == nil {
		return 0, fmt.Errorf("msr device %s is not open", r.path)
	}

	if _, err := r.file.Seek(offset, io.SeekStart); err != nil {
		return 0, fmt.Errorf("failed to seek to msr 0x%x: %w", offset, err)
	}

	var value uint64
	if err := binary.Read(r.file, binary.LittleEndian, &value); err != nil {
		return 0, fmt.Errorf("failed to read msr 0x%x: %w", offset, err)
	}

	return value, nil
}

func (r *msrReader) Read(c Counter) (uint64, error) {
	offset, ok := msrOffsets[c]
	if !ok {
		return 0, ErrCounterUnavailable
	}

	value, err := r.readMSR(offset)
	if err != nil {
		return 0, err
	}

	// The energy status registers are 32 bit counters.
	return value & math.MaxUint32, nil
}

func (r *msrReader) MaxValue(Counter) uint64 {
	return math.MaxUint32
}

func (r *msrReader) EnergyUnit() (float64, error) {
	value, err := r.readMSR(msrPowerUnit)
	if err != nil {
		return 0, err
	}

	bits := (value >> energyUnitOffset) & energyUnitMask
	return 1e6 / float64(uint64(1)<<bits), nil
}

func (r *msrReader) Close() error {
	if r.file == nil {
		return nil
	}

	err := r.file.Close()
	r.file = nil
	return err
}
