// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package sampler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/antimetal/pulse/pkg/sampler"
)

// S1: ttime 100->300, cpu_total_time 1000->2000 => cpu_utilization = 0.20.
func TestDeriveRates_CPUUtilization(t *testing.T) {
	previous := sampler.NewProcessList()
	previous.Intermediate = append(previous.Intermediate, sampler.ProcessIntermediate{
		PID:     42,
		CPUTime: 100,
	})
	previous.CPUTotalTime = 1000

	current := sampler.NewProcessList()
	current.Intermediate = append(current.Intermediate, sampler.ProcessIntermediate{
		PID:     42,
		CPUTime: 300,
	})
	current.CPUTotalTime = 2000

	sampler.DeriveRates(current, previous, sampler.MemoryContext{}, current.CPUTotalTime-previous.CPUTotalTime)

	require := assert.New(t)
	require.Len(current.External, 1)
	require.InDelta(0.20, current.External[0].CPUUtilization, 1e-9)
}

func TestDeriveRates_UnseenPIDUsesCumulativeAsNumerator(t *testing.T) {
	previous := sampler.NewProcessList()
	previous.CPUTotalTime = 1000

	current := sampler.NewProcessList()
	current.Intermediate = append(current.Intermediate, sampler.ProcessIntermediate{
		PID:        7,
		CPUTime:    50,
		FaultTotal: 10,
	})
	current.CPUTotalTime = 1500

	sampler.DeriveRates(current, previous, sampler.MemoryContext{}, current.CPUTotalTime-previous.CPUTotalTime)

	a := assert.New(t)
	a.Len(current.External, 1)
	a.InDelta(50.0/500.0, current.External[0].CPUUtilization, 1e-9)
	a.InDelta(10.0/500.0, current.External[0].FaultRate, 1e-9)
}

func TestDeriveRates_ZeroCPUDeltaYieldsZeroRate(t *testing.T) {
	previous := sampler.NewProcessList()
	current := sampler.NewProcessList()
	current.Intermediate = append(current.Intermediate, sampler.ProcessIntermediate{PID: 1, CPUTime: 10})

	sampler.DeriveRates(current, previous, sampler.MemoryContext{}, 0)

	assert.Equal(t, 0.0, current.External[0].CPUUtilization)
}

func TestDeriveRates_MemoryUtilization(t *testing.T) {
	previous := sampler.NewProcessList()
	current := sampler.NewProcessList()
	current.Intermediate = append(current.Intermediate, sampler.ProcessIntermediate{
		PID:   1,
		VSize: 4096 * 100,
		RSS:   50,
	})

	mem := sampler.MemoryContext{PhysPages: 1000, PageSize: 4096}
	sampler.DeriveRates(current, previous, mem, 0)

	a := assert.New(t)
	a.InDelta(50.0/1000.0, current.External[0].ResidentMemUtilization, 1e-9)
	a.InDelta(float64(4096*100)/float64(1000*4096), current.External[0].VirtualMemUtilization, 1e-9)
}
