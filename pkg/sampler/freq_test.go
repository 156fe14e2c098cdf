// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package sampler_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/antimetal/pulse/pkg/sampler"
)

// S3: ref0 = UINT64_MAX-10, ref1 = 5 => delta=16, the wraparound branch
// is taken, and the resulting frequency estimate is finite (not an
// overflowed garbage value).
func TestFinalizeFrequencies_RefCounterWraparound(t *testing.T) {
	w := sampler.NewHardwareWindow(1, 0)
	w.FreqTSCPre = 0
	w.FreqTSCPost = 16000
	w.FreqWallPreUs = 0
	w.FreqWallPostUs = 1000

	w.FreqRefPre[0] = math.MaxUint64 - 10
	w.FreqRefPost[0] = 5 // wraps: true delta is 16
	w.FreqCorePre[0] = 0
	w.FreqCorePost[0] = 16

	sampler.FinalizeFrequencies(w)

	assert.Equal(t, uint32(16), w.FrequencyInfo[0])
}

func TestFinalizeFrequencies_ClampAndMeanFill(t *testing.T) {
	w := sampler.NewHardwareWindow(2, 0)
	w.FreqTSCPre = 0
	w.FreqTSCPost = 2_000_000 // 2000 TSC ticks per microsecond over the window
	w.FreqWallPreUs = 0
	w.FreqWallPostUs = 1000

	// Core 0: implausibly high core/ref ratio (1000) -> 2,000,000 MHz,
	// clamped to sentinel, then back-filled with the mean of the
	// remaining plausible cores.
	w.FreqRefPre[0], w.FreqRefPost[0] = 0, 1
	w.FreqCorePre[0], w.FreqCorePost[0] = 0, 1000

	// Core 1: plausible estimate (ratio 1 -> 2000 MHz).
	w.FreqRefPre[1], w.FreqRefPost[1] = 0, 1000
	w.FreqCorePre[1], w.FreqCorePost[1] = 0, 1000

	sampler.FinalizeFrequencies(w)

	assert.Equal(t, w.FrequencyInfo[1], w.FrequencyInfo[0], "clamped core should be back-filled with the mean of plausible cores")
	assert.NotZero(t, w.FrequencyInfo[1])
}

func TestFinalizeFrequencies_AllClampedYieldsZero(t *testing.T) {
	w := sampler.NewHardwareWindow(1, 0)
	w.FreqTSCPre = 0
	w.FreqTSCPost = 1_000_000_000
	w.FreqWallPreUs = 0
	w.FreqWallPostUs = 1000
	w.FreqRefPre[0], w.FreqRefPost[0] = 0, 1
	w.FreqCorePre[0], w.FreqCorePost[0] = 0, 1

	sampler.FinalizeFrequencies(w)

	assert.Equal(t, uint32(0), w.FrequencyInfo[0])
}
