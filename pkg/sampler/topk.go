// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package sampler

// SelectTopK picks the k processes with the highest CPU utilization out
// of current (whose External rates must already be populated) and
// copies them into filtered. It runs k passes of a linear max-scan
// (O(N*K), matching the original selection algorithm rather than a
// full sort) so that for small k relative to N it avoids the overhead
// of sorting the whole list. Ties resolve in input order: a scan
// replaces its current best only on a strictly greater utilization, so
// the first-seen of two equal utilizations wins. If current has fewer than k processes, every
// process is selected.
func SelectTopK(current *ProcessList, k int, filtered *ProcessList) {
	filtered.Reset()

	n := len(current.External)
	if k > n {
		k = n
	}
	chosen := make([]bool, n)

	for pass := 0; pass < k; pass++ {
		best := -1
		for i := 0; i < n; i++ {
			if chosen[i] {
				continue
			}
			if best == -1 || current.External[i].CPUUtilization > current.External[best].CPUUtilization {
				best = i
			}
		}
		if best == -1 {
			break
		}
		chosen[best] = true

		pid := current.External[best].PID
		idx := current.IndexOf(pid)
		if idx >= 0 {
			filtered.Intermediate = append(filtered.Intermediate, current.Intermediate[idx])
		}
		filtered.External = append(filtered.External, current.External[best])
	}

	filtered.Size = len(filtered.External)
}
