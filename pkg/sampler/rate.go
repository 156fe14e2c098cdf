// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package sampler

// MemoryContext carries the host facts needed to turn raw page/byte
// counts into utilization ratios: physical page count and page size,
// both bootstrapped once at startup from the hardware inventory rather
// than re-read every tick.
type MemoryContext struct {
	PhysPages uint64
	PageSize  uint64
}

// rate computes (curr-prev)/(cpuCurr-cpuPrev), the formula every
// per-process rate in this package is derived from. A zero cpuDelta
// yields 0 rather than a division by zero.
func rate(curr, prev, cpuDelta uint64) float64 {
	if cpuDelta == 0 {
		return 0
	}
	return float64(curr-prev) / float64(cpuDelta)
}

// DeriveRates fills current.External for every process in current from
// the cheap stat-derived fields only (page faults, CPU utilization,
// memory utilization), using previous (indexed by PID) to compute
// deltas. A PID absent from previous is new this tick: its cumulative
// counters are used directly as the numerator, matching the original
// implementation's handling of first-observation processes. cpuDelta is
// current.CPUTotalTime minus previous.CPUTotalTime.
//
// Context-switch and I/O rates are deliberately NOT computed here: those
// come from /proc/<pid>/status and /proc/<pid>/io, which are only read
// for the post-top-K filtered list (see ApplyDetailRates), so that the
// expensive per-process reads scale with K rather than with every
// process on the host.
func DeriveRates(current, previous *ProcessList, mem MemoryContext, cpuDelta uint64) {
	prevIndex := previous.IndexMap()

	current.External = current.External[:0]
	for i := range current.Intermediate {
		pi := &current.Intermediate[i]

		var faultPrev, cpuPrev uint64
		if prevIdx, ok := prevIndex[pi.PID]; ok {
			faultPrev = previous.Intermediate[prevIdx].FaultTotal
			cpuPrev = previous.Intermediate[prevIdx].CPUTime
		}

		ext := ProcessExternal{
			PID:            pi.PID,
			FaultRate:      rate(pi.FaultTotal, faultPrev, cpuDelta),
			CPUUtilization: rate(pi.CPUTime, cpuPrev, cpuDelta),
		}

		if mem.PhysPages > 0 {
			ext.ResidentMemUtilization = float64(pi.RSS) / float64(mem.PhysPages)
			if mem.PageSize > 0 {
				ext.VirtualMemUtilization = float64(pi.VSize) / (float64(mem.PhysPages) * float64(mem.PageSize))
			}
		}

		current.External = append(current.External, ext)
	}
}
