// SPDX-FileCopyrightText: 2025 The eteam Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"time"

	"github.com/l3nkz/eteam/internal/sched"
)

// Snapshot is a point in time copy of the scheduler and accounting
// state handed to exporters.
type Snapshot struct {
	// Timestamp is when the snapshot was taken.
	Timestamp time.Time

	// Scheduler is the scheduler state the snapshot was built from.
	Scheduler *sched.Snapshot
}

// Clone returns a copy that stays valid while the monitor keeps
// refreshing.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}

	return &Snapshot{
		Timestamp: s.Timestamp,
		Scheduler: s.Scheduler.Clone(),
	}
}
