// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package sampler_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antimetal/pulse/pkg/sampler"
)

// S6: num_of_cores=2, num_of_processes=1, num_of_events=3. The record
// written per tick is irq_info (2*int64) + network_info (8*uint64) +
// frequency_info (2*uint32) + one process_external record
// (int32 + uint64 + 8*float64) + one pmu row (3*uint64).
func TestWriteTick_ProducesExactByteLength(t *testing.T) {
	const numCores = 2
	const numEvents = 3

	w := sampler.NewHardwareWindow(numCores, numEvents)
	w.PMUInfo = [][]uint64{make([]uint64, numEvents)}

	filtered := sampler.NewProcessList()
	filtered.External = append(filtered.External, sampler.ProcessExternal{PID: 1})

	outPath := filepath.Join(t.TempDir(), "out.bin")
	rw, err := sampler.NewRecordWriter(outPath)
	require.NoError(t, err)

	require.NoError(t, rw.WriteTick(w, filtered))
	require.NoError(t, rw.Close())

	info, err := os.Stat(outPath)
	require.NoError(t, err)

	irqInfoBytes := numCores * 8
	networkInfoBytes := 8 * 8
	frequencyInfoBytes := numCores * 4
	processExternalBytes := 4 + 8 + 8*8 // pid + affinity mask + 8 float64 rates
	pmuRowBytes := numEvents * 8

	want := irqInfoBytes + networkInfoBytes + frequencyInfoBytes + processExternalBytes + pmuRowBytes
	assert.EqualValues(t, want, info.Size())
}

func TestWriteTick_AppendsAcrossMultipleTicks(t *testing.T) {
	w := sampler.NewHardwareWindow(1, 0)
	w.PMUInfo = [][]uint64{{}}
	filtered := sampler.NewProcessList()
	filtered.External = append(filtered.External, sampler.ProcessExternal{PID: 1})

	outPath := filepath.Join(t.TempDir(), "out.bin")
	rw, err := sampler.NewRecordWriter(outPath)
	require.NoError(t, err)

	require.NoError(t, rw.WriteTick(w, filtered))
	require.NoError(t, rw.WriteTick(w, filtered))
	require.NoError(t, rw.Close())

	info, err := os.Stat(outPath)
	require.NoError(t, err)

	oneRecord := 1*8 + 8*8 + 1*4 + (4 + 8 + 8*8) + 0
	assert.EqualValues(t, oneRecord*2, info.Size())
}
