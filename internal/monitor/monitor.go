// SPDX-FileCopyrightText: 2025 The eteam Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
	"k8s.io/utils/clock"

	"github.com/l3nkz/eteam/internal/rapl"
	"github.com/l3nkz/eteam/internal/sched"
	"github.com/l3nkz/eteam/internal/service"
)

// Snapshotter is the scheduler state source.
type Snapshotter interface {
	Snapshot() *sched.Snapshot
}

// Calibrator exposes the accounting constants determined at startup.
type Calibrator interface {
	Calibration() rapl.Calibration
	ReaderName() string
}

// EnergyDataProvider is the read surface exporters consume.
type EnergyDataProvider interface {
	// Snapshot returns the current energy accounting data.
	Snapshot() (*Snapshot, error)

	// DataChannel returns a channel that signals when new data is
	// available.
	DataChannel() <-chan struct{}

	// Calibration returns the measurement constants.
	Calibration() rapl.Calibration

	// ReaderName returns the name of the active counter source.
	ReaderName() string
}

// Service is the interface the monitoring service implements.
type Service interface {
	service.Service
	EnergyDataProvider
}

// EnergyMonitor periodically snapshots the scheduler state and serves
// it to exporters, recomputing on demand when the cached snapshot grew
// too stale.
type EnergyMonitor struct {
	logger    *slog.Logger
	scheduler Snapshotter
	meter     Calibrator

	clock        clock.WithTicker
	interval     time.Duration
	maxStaleness time.Duration

	// signals when a snapshot has been updated
	dataCh chan struct{}

	computeGroup singleflight.Group
	snapshot     atomic.Pointer[Snapshot]

	// For managing the collection loop
	collectionCtx    context.Context
	collectionCancel context.CancelFunc
}

var _ Service = (*EnergyMonitor)(nil)

// NewEnergyMonitor creates a monitor over scheduler, taking the
// accounting constants from meter.
func NewEnergyMonitor(scheduler Snapshotter, meter Calibrator, applyOpts ...OptionFn) *EnergyMonitor {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &EnergyMonitor{
		logger:           opts.logger.With("service", "monitor"),
		scheduler:        scheduler,
		meter:            meter,
		clock:            opts.clock,
		interval:         opts.interval,
		maxStaleness:     opts.maxStaleness,
		dataCh:           make(chan struct{}, 1),
		collectionCtx:    ctx,
		collectionCancel: cancel,
	}
}

func (em *EnergyMonitor) Name() string {
	return "monitor"
}

func (em *EnergyMonitor) Init() error {
	// signal now so that exporters can construct descriptors
	em.signalNewData()
	return nil
}

func (em *EnergyMonitor) Run(ctx context.Context) error {
	em.logger.Info("Monitor is running...")
	em.collectionLoop()
	<-ctx.Done()
	em.collectionCancel()
	em.logger.Info("Monitor has terminated.")
	return nil
}

func (em *EnergyMonitor) Shutdown() error {
	em.collectionCancel()
	return nil
}

func (em *EnergyMonitor) DataChannel() <-chan struct{} {
	return em.dataCh
}

func (em *EnergyMonitor) Calibration() rapl.Calibration {
	return em.meter.Calibration()
}

func (em *EnergyMonitor) ReaderName() string {
	return em.meter.ReaderName()
}

// Snapshot returns the current energy accounting data, refreshing it
// first if the cached snapshot is older than the staleness bound.
func (em *EnergyMonitor) Snapshot() (*Snapshot, error) {
	em.ensureFreshData()

	snapshot := em.snapshot.Load()
	if snapshot == nil {
		return nil, fmt.Errorf("no snapshot available")
	}
	return snapshot.Clone(), nil
}

func (em *EnergyMonitor) signalNewData() {
	select {
	case em.dataCh <- struct{}{}:
		em.logger.Debug("Data channel updated")
	default:
		em.logger.Debug("Data channel is full")
	}
}

// collectionLoop handles periodic snapshot collection.
func (em *EnergyMonitor) collectionLoop() {
	em.synchronizedRefresh()

	if em.interval > 0 {
		em.scheduleNextCollection()
	}
}

// scheduleNextCollection schedules the next snapshot collection.
func (em *EnergyMonitor) scheduleNextCollection() {
	timer := em.clock.After(em.interval)
	go func() {
		select {
		case <-timer:
			em.synchronizedRefresh()
			em.scheduleNextCollection()

		case <-em.collectionCtx.Done():
			em.logger.Info("Collection loop terminated")
		}
	}()
}

// ensureFreshData makes sure the cached snapshot is recent enough
// (< maxStaleness).
func (em *EnergyMonitor) ensureFreshData() {
	if em.isFresh() {
		return
	}
	em.synchronizedRefresh()
}

// synchronizedRefresh recomputes the snapshot while ensuring that only
// one goroutine does the computation at a time. Goroutines that waited
// for a concurrent refresh find the result fresh on the second check
// and skip their own.
func (em *EnergyMonitor) synchronizedRefresh() {
	_, _, _ = em.computeGroup.Do("refresh", func() (any, error) {
		if em.isFresh() {
			return nil, nil
		}

		em.refreshSnapshot()
		return nil, nil
	})
}

func (em *EnergyMonitor) isFresh() bool {
	snapshot := em.snapshot.Load()
	if snapshot == nil || snapshot.Timestamp.IsZero() {
		return false
	}

	age := em.clock.Now().Sub(snapshot.Timestamp)
	return age <= em.maxStaleness
}

// refreshSnapshot replaces the cached snapshot with a fresh one.
func (em *EnergyMonitor) refreshSnapshot() {
	snapshot := &Snapshot{
		Timestamp: em.clock.Now(),
		Scheduler: em.scheduler.Snapshot(),
	}

	em.snapshot.Store(snapshot)
	em.signalNewData()

	em.logger.Debug("Refreshed snapshot",
		"tasks", snapshot.Scheduler.NrTasks,
		"threads", snapshot.Scheduler.NrThreads,
		"running", snapshot.Scheduler.Running)
}
