// SPDX-FileCopyrightText: 2025 The eteam Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Policy is a Linux scheduling policy number.
type Policy uint32

const (
	// PolicyNormal is the default time sharing policy threads return
	// to when energy scheduling stops.
	PolicyNormal = Policy(unix.SCHED_NORMAL)

	// DefaultEnergyPolicy is the policy number the energy scheduling
	// class registers under.
	DefaultEnergyPolicy = Policy(7)
)

// Switcher moves a single thread between scheduling policies.
type Switcher interface {
	// Switch moves thread tid of process tgid to policy.
	Switch(tgid, tid int, policy Policy) error
}

// SetschedSwitcher switches threads with the sched_setattr system
// call. It needs a kernel that carries the energy scheduling class
// under the configured policy number.
type SetschedSwitcher struct{}

var _ Switcher = (*SetschedSwitcher)(nil)

// NewSetschedSwitcher creates a switcher backed by sched_setattr.
func NewSetschedSwitcher() *SetschedSwitcher {
	return &SetschedSwitcher{}
}

func (s *SetschedSwitcher) Switch(_, tid int, policy Policy) error {
	attr := &unix.SchedAttr{Policy: uint32(policy)}
	if err := unix.SchedSetAttr(tid, attr, 0); err != nil {
		return fmt.Errorf("failed to switch thread %d to policy %d: %w", tid, policy, err)
	}
	return nil
}

// Registry is the managed process registry the mirror switcher
// toggles.
type Registry interface {
	Register(pid int) error
	Unregister(pid int)
}

// MirrorSwitcher switches processes by toggling their membership in
// the procfs mirror feeding the in-process scheduler. Registration is
// idempotent, so the per-thread calls of the control surface collapse
// into one membership change.
type MirrorSwitcher struct {
	registry Registry
}

var _ Switcher = (*MirrorSwitcher)(nil)

// NewMirrorSwitcher creates a switcher backed by registry.
func NewMirrorSwitcher(registry Registry) *MirrorSwitcher {
	return &MirrorSwitcher{registry: registry}
}

func (s *MirrorSwitcher) Switch(tgid, _ int, policy Policy) error {
	if policy == PolicyNormal {
		s.registry.Unregister(tgid)
		return nil
	}
	return s.registry.Register(tgid)
}
