// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package sampler implements the per-tick whole-node telemetry engine:
// process snapshotting, rate derivation, top-K selection, PMU attach,
// MSR/TSC frequency estimation, IRQ/network deltas, the application RPC
// client, and the fixed-shape binary record writer.
package sampler

const (
	// MaxProcesses bounds the process list; more than this many PIDs
	// observed in one tick is a fatal capacity error.
	MaxProcesses = 512
	// MaxThreads bounds the child-thread-id buffer per process; a
	// selected process with more threads than this fails the tick.
	MaxThreads = 64
	// MaxApplications bounds the application RPC target list.
	MaxApplications = 8
	// MaxEvents bounds the configured PMU event list, including the two
	// fixed NUMA events always appended.
	MaxEvents = 32
)

// The two NUMA-access PMU events appended to every configured event list.
const (
	EventOffcoreResponseLocal  = "OFFCORE_RESPONSE_1:DMND_DATA_RD:LLC_MISS_LOCAL:SNP_MISS:SNP_NO_FWD"
	EventOffcoreResponseRemote = "OFFCORE_RESPONSE_0:DMND_DATA_RD:LLC_MISS_REMOTE:SNP_MISS:SNP_NO_FWD"
)

// ProcessIntermediate is the cumulative, per-PID state used only to
// derive rates against the next tick. It is never written to the output
// record directly.
type ProcessIntermediate struct {
	PID int32

	MinorFaults      uint64
	ChildMinorFaults uint64
	MajorFaults      uint64
	ChildMajorFaults uint64
	FaultTotal       uint64

	UTime      uint64
	STime      uint64
	ChildUTime uint64
	ChildSTime uint64
	CPUTime    uint64 // sum of the four jiffy fields above

	VoluntaryCtxt    uint64
	NonvoluntaryCtxt uint64

	ReadBytes  uint64
	WriteBytes uint64

	VSize uint64 // virtual memory size, bytes
	RSS   uint64 // resident set size, pages

	ChildThreadIDs []int32 // capacity MaxThreads
}

// ProcessExternal is the derived, per-PID record exposed to the writer.
type ProcessExternal struct {
	PID int32

	// AffinityMask has bit n set iff a child thread was last observed
	// running on logical CPU n.
	AffinityMask uint64

	FaultRate              float64
	CPUUtilization         float64
	VoluntaryCtxtRate      float64
	NonvoluntaryCtxtRate   float64
	ReadRate               float64
	WriteRate              float64
	VirtualMemUtilization  float64
	ResidentMemUtilization float64
}

// ProcessList is a fixed-capacity, preallocated collection of process
// records rotated by the engine across ticks (current/previous/filtered).
type ProcessList struct {
	Intermediate []ProcessIntermediate
	External     []ProcessExternal
	CPUTotalTime uint64 // sum of the 7 /proc/stat jiffy fields this tick
	Size         int
}

// NewProcessList preallocates a list at MaxProcesses capacity.
func NewProcessList() *ProcessList {
	return &ProcessList{
		Intermediate: make([]ProcessIntermediate, 0, MaxProcesses),
		External:     make([]ProcessExternal, 0, MaxProcesses),
	}
}

func (l *ProcessList) Reset() {
	l.Intermediate = l.Intermediate[:0]
	l.External = l.External[:0]
	l.CPUTotalTime = 0
	l.Size = 0
}

// IndexOf returns the position of pid in the list's Intermediate slice,
// or -1 if absent. Callers deriving rates across ticks must use this (or
// an equivalent map) rather than assume any ordering between ticks:
// /proc readdir order is not guaranteed stable.
func (l *ProcessList) IndexOf(pid int32) int {
	for i := range l.Intermediate {
		if l.Intermediate[i].PID == pid {
			return i
		}
	}
	return -1
}

// IndexMap returns a PID->index lookup over Intermediate, built fresh
// each call since process identity is not assumed to be positionally
// stable across ticks.
func (l *ProcessList) IndexMap() map[int32]int {
	m := make(map[int32]int, len(l.Intermediate))
	for i := range l.Intermediate {
		m[l.Intermediate[i].PID] = i
	}
	return m
}

// HardwareWindow accumulates the pre/post-window readings for one tick's
// IRQ, frequency, and network samples. It replaces the original
// implementation's file-static double buffers with a value object owned
// by the orchestrator.
type HardwareWindow struct {
	NumCores  int
	NumEvents int

	IRQPre  []int64
	IRQPost []int64
	IRQInfo []int64 // post - pre, per core

	NetworkPre  [8]uint64
	NetworkPost [8]uint64
	NetworkInfo [8]uint64

	FreqTSCPre     uint64
	FreqTSCPost    uint64
	FreqRefPre     []uint64
	FreqRefPost    []uint64
	FreqCorePre    []uint64
	FreqCorePost   []uint64
	FreqWallPreUs  int64
	FreqWallPostUs int64
	FrequencyInfo  []uint32 // MHz per core

	// PMUInfo[pidIndex][eventIndex] = scaled counter value summed over
	// every thread of the selected PID at pidIndex in the filtered list.
	PMUInfo [][]uint64
}

// NewHardwareWindow preallocates per-core/per-event slices.
func NewHardwareWindow(numCores, numEvents int) *HardwareWindow {
	return &HardwareWindow{
		NumCores:      numCores,
		NumEvents:     numEvents,
		IRQPre:        make([]int64, numCores),
		IRQPost:       make([]int64, numCores),
		IRQInfo:       make([]int64, numCores),
		FreqRefPre:    make([]uint64, numCores),
		FreqRefPost:   make([]uint64, numCores),
		FreqCorePre:   make([]uint64, numCores),
		FreqCorePost:  make([]uint64, numCores),
		FrequencyInfo: make([]uint32, numCores),
	}
}

// Application is one configured RPC target.
type Application struct {
	Label     string
	Hostname  string
	Port      int
	Connected bool
}

// ApplicationList is the fixed-capacity (<=MaxApplications) set of
// configured application RPC targets.
type ApplicationList struct {
	Apps []Application
}
