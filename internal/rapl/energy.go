// SPDX-FileCopyrightText: 2025 The eteam Authors
// SPDX-License-Identifier: Apache-2.0

package rapl

import "fmt"

const (
	microJoule Energy = 1
	milliJoule        = 1000 * microJoule
	Joule             = 1000 * milliJoule
)

// Energy is an accumulated amount of energy in microjoules.
type Energy uint64

func (e Energy) MicroJoules() uint64 {
	return uint64(e)
}

func (e Energy) MilliJoules() float64 {
	return float64(e) / float64(milliJoule)
}

func (e Energy) Joules() float64 {
	return float64(e) / float64(Joule)
}

func (e Energy) String() string {
	return fmt.Sprintf("%.6fJ", e.Joules())
}
