// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package sampler

import "time"

// freqSentinel marks a core whose estimate exceeded the plausibility
// clamp; FinalizeFrequencies replaces every sentinel with the mean of
// the non-sentinel cores (or 0 if every core was clamped).
const freqSentinel = 0

// maxPlausibleMHz is the clamp threshold: an estimate above this is
// almost certainly a measurement artifact (e.g. a reference-count read
// racing a core transitioning C-states) rather than a real frequency.
const maxPlausibleMHz = 4000

// FrequencySampler estimates per-core effective frequency from the
// MSR CPU_CLK_UNHALTED_CORE/REF counters and the TSC, bracketing the
// same measurement window as the PMU sampler.
type FrequencySampler struct {
	msr *msrReader
}

// NewFrequencySampler opens the per-core MSR files needed to estimate
// frequency. Opening failures (e.g. missing CAP_SYS_RAWIO) are fatal.
func NewFrequencySampler(devPath string, numCores int) (*FrequencySampler, error) {
	msr, err := openMSRReader(devPath, numCores)
	if err != nil {
		return nil, err
	}
	return &FrequencySampler{msr: msr}, nil
}

func (f *FrequencySampler) Close() error {
	return f.msr.Close()
}

// SamplePre captures the window's starting TSC, wall-clock, and
// per-core unhalted counters into w.
func (f *FrequencySampler) SamplePre(w *HardwareWindow) error {
	w.FreqTSCPre = readTSC()
	w.FreqWallPreUs = time.Now().UnixMicro()
	return f.msr.ReadUnhaltedCounters(w.FreqCorePre, w.FreqRefPre)
}

// SamplePost captures the window's ending readings into w.
func (f *FrequencySampler) SamplePost(w *HardwareWindow) error {
	w.FreqTSCPost = readTSC()
	w.FreqWallPostUs = time.Now().UnixMicro()
	return f.msr.ReadUnhaltedCounters(w.FreqCorePost, w.FreqRefPost)
}

// unhaltedDelta computes post-pre with wraparound handling: a 64-bit
// MSR counter that has wrapped reports post < pre, in which case the
// true delta is (MaxUint64-pre)+post+1.
func unhaltedDelta(pre, post uint64) uint64 {
	if post < pre {
		return (^uint64(0) - pre) + post + 1
	}
	return post - pre
}

// FinalizeFrequencies computes w.FrequencyInfo from the pre/post samples
// already captured via SamplePre/SamplePost, clamping implausible
// per-core estimates to a sentinel and back-filling sentinels with the
// mean of the plausible cores.
func FinalizeFrequencies(w *HardwareWindow) {
	tscDelta := unhaltedDelta(w.FreqTSCPre, w.FreqTSCPost)
	wallDeltaUs := w.FreqWallPostUs - w.FreqWallPreUs
	if wallDeltaUs <= 0 {
		for i := range w.FrequencyInfo {
			w.FrequencyInfo[i] = freqSentinel
		}
		return
	}

	var sum uint32
	var plausible int
	clamped := make([]bool, w.NumCores)

	for i := 0; i < w.NumCores; i++ {
		coreDelta := unhaltedDelta(w.FreqCorePre[i], w.FreqCorePost[i])
		refDelta := unhaltedDelta(w.FreqRefPre[i], w.FreqRefPost[i])
		if refDelta == 0 {
			w.FrequencyInfo[i] = freqSentinel
			clamped[i] = true
			continue
		}

		// MHz = (tsc delta / wall-clock delta in microseconds) * (core delta / ref delta)
		mhz := (float64(tscDelta) / float64(wallDeltaUs)) * (float64(coreDelta) / float64(refDelta))
		if mhz > maxPlausibleMHz {
			w.FrequencyInfo[i] = freqSentinel
			clamped[i] = true
			continue
		}

		v := uint32(mhz)
		w.FrequencyInfo[i] = v
		sum += v
		plausible++
	}

	if plausible == 0 {
		return // every core clamped; leave sentinels (0) in place
	}
	mean := sum / uint32(plausible)
	for i, wasClamped := range clamped {
		if wasClamped {
			w.FrequencyInfo[i] = mean
		}
	}
}
