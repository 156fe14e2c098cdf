// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

//go:build !amd64 && !386

package sampler

import "time"

// readTSC falls back to the wall clock on architectures without a
// Go-assembly RDTSC equivalent wired up (notably ppc64/ppc64le, where
// the original implementation reads the time-base register directly).
// The frequency estimator only ever uses differences of two readTSC
// calls, so a wall-clock nanosecond count is numerically interchangeable
// with a counter tied to a fixed clock rate; it just isn't the real TSC.
func readTSC() uint64 {
	return uint64(time.Now().UnixNano())
}
