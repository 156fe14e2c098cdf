// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package sampler

import (
	"fmt"
	"os"
	"time"

	"github.com/go-logr/logr"
)

// EngineOptions configures a new Engine.
type EngineOptions struct {
	ProcPath         string
	SysPath          string
	DevPath          string
	Config           *Config
	NumCores         int
	Memory           MemoryContext
	SampleIntervalUs int64
	OutputPath       string
	Metrics          *Metrics
	Logger           logr.Logger
}

// Engine runs the single-threaded, sequential per-tick sampling loop
// described by the orchestrator: snapshot, rate-derive, top-K select,
// detail-read the selection, attach PMU counters across a measurement
// window, sample IRQ/frequency/network around that same window, poll
// applications, and append one binary record before swapping
// current/previous for the next tick.
type Engine struct {
	procPath string
	sysPath  string
	devPath  string
	selfPID  int32

	config   *Config
	numCores int
	mem      MemoryContext

	sampleInterval time.Duration

	current  *ProcessList
	previous *ProcessList
	filtered *ProcessList

	detailHistory map[int32]ProcessDetail

	freqSampler *FrequencySampler
	appClients  []*AppClient
	writer      *RecordWriter
	metrics     *Metrics
	logger      logr.Logger
}

// NewEngine constructs an Engine and opens its output file and MSR
// handles. Callers must call Close when done, including on a failed
// tick, so MSR files and application sockets are released.
func NewEngine(opts EngineOptions) (*Engine, error) {
	writer, err := NewRecordWriter(opts.OutputPath)
	if err != nil {
		return nil, err
	}

	freqSampler, err := NewFrequencySampler(opts.DevPath, opts.NumCores)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("initialize frequency sampler: %w", err)
	}

	appClients := make([]*AppClient, 0, len(opts.Config.Applications))
	for _, app := range opts.Config.Applications {
		appClients = append(appClients, NewAppClient(app, opts.Logger))
	}

	return &Engine{
		procPath:       opts.ProcPath,
		sysPath:        opts.SysPath,
		devPath:        opts.DevPath,
		selfPID:        int32(os.Getpid()),
		config:         opts.Config,
		numCores:       opts.NumCores,
		mem:            opts.Memory,
		sampleInterval: time.Duration(opts.SampleIntervalUs) * time.Microsecond,
		current:        NewProcessList(),
		previous:       NewProcessList(),
		filtered:       NewProcessList(),
		detailHistory:  make(map[int32]ProcessDetail),
		freqSampler:    freqSampler,
		appClients:     appClients,
		writer:         writer,
		metrics:        opts.Metrics,
		logger:         opts.Logger,
	}, nil
}

// Close releases the MSR handles, application sockets, and output file.
// Safe to call once, typically from a deferred call or a SIGINT-driven
// shutdown path.
func (e *Engine) Close() error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	record(e.freqSampler.Close())
	for _, c := range e.appClients {
		record(c.Close())
	}
	record(e.writer.Close())
	return firstErr
}

// Tick runs exactly one sampling cycle end to end.
func (e *Engine) Tick() error {
	start := time.Now()
	if e.metrics != nil {
		defer func() {
			e.metrics.TickDuration.Observe(time.Since(start).Seconds())
			e.metrics.TicksTotal.Inc()
		}()
	}

	// 1. Snapshot current processes, excluding our own PID.
	if err := ReadProcesses(e.procPath, e.selfPID, e.current); err != nil {
		return fmt.Errorf("snapshot processes: %w", err)
	}
	cpuTotal, err := ReadAggregateCPUTime(e.procPath)
	if err != nil {
		return fmt.Errorf("read aggregate cpu time: %w", err)
	}
	e.current.CPUTotalTime = cpuTotal

	// 2. Derive cheap (stat-only) rates against the previous tick.
	var cpuDelta uint64
	if e.current.CPUTotalTime > e.previous.CPUTotalTime {
		cpuDelta = e.current.CPUTotalTime - e.previous.CPUTotalTime
	}
	DeriveRates(e.current, e.previous, e.mem, cpuDelta)

	// 3. Top-K select into filtered.
	SelectTopK(e.current, e.config.NumOfProcesses, e.filtered)
	if e.metrics != nil {
		e.metrics.ProcessesObserved.Set(float64(e.current.Size))
		e.metrics.FilteredProcessCount.Set(float64(e.filtered.Size))
	}

	// 4. Detailed stats (status/io/task walk) for the filtered set only.
	seenThisTick := make(map[int32]bool, len(e.filtered.Intermediate))
	for i := range e.filtered.Intermediate {
		pi := &e.filtered.Intermediate[i]
		seenThisTick[pi.PID] = true

		mask, tids, err := ReadThreadAffinity(e.procPath, pi.PID)
		if err != nil {
			return fmt.Errorf("pid %d: %w", pi.PID, err)
		}
		pi.ChildThreadIDs = tids
		e.filtered.External[i].AffinityMask = mask

		detail, ok, err := ReadProcessDetail(e.procPath, pi.PID)
		if err != nil {
			return fmt.Errorf("pid %d: %w", pi.PID, err)
		}
		if !ok {
			if e.metrics != nil {
				e.metrics.ProcReadSkipsTotal.Inc()
			}
			continue
		}
		prevDetail := e.detailHistory[pi.PID]
		ApplyDetailRates(&e.filtered.External[i], detail, prevDetail, cpuDelta)
		e.detailHistory[pi.PID] = detail
	}
	// Forget detail history for PIDs no longer selected so a PID that
	// leaves and later re-enters the filtered list is treated as a
	// fresh observation rather than diffing against stale counters.
	for pid := range e.detailHistory {
		if !seenThisTick[pid] {
			delete(e.detailHistory, pid)
		}
	}

	numEvents := len(e.config.Events)
	window := NewHardwareWindow(e.numCores, numEvents)
	window.PMUInfo = make([][]uint64, len(e.filtered.Intermediate))
	for i := range window.PMUInfo {
		window.PMUInfo[i] = make([]uint64, numEvents)
	}

	// 5. Open PMU descriptors for the filtered threads.
	pmu, err := NewPMUSampler(e.filtered, e.config.Events)
	if err != nil {
		return fmt.Errorf("open pmu counters: %w", err)
	}
	if e.metrics != nil && pmu.SkippedOpens() > 0 {
		e.metrics.PMUAttachFailures.Add(float64(pmu.SkippedOpens()))
	}

	// 6. Pre-window IRQ/frequency/network reads.
	if err := ReadIRQSnapshot(e.procPath, e.numCores, window.IRQPre); err != nil {
		pmu.Close()
		return fmt.Errorf("read pre-window irq snapshot: %w", err)
	}
	if err := ReadNetworkSnapshot(e.procPath, &window.NetworkPre); err != nil {
		pmu.Close()
		return fmt.Errorf("read pre-window network snapshot: %w", err)
	}
	if err := e.freqSampler.SamplePre(window); err != nil {
		pmu.Close()
		return fmt.Errorf("read pre-window frequency snapshot: %w", err)
	}

	// 7. Enable PMU counters and sleep the measurement window.
	if err := pmu.Enable(); err != nil {
		pmu.Close()
		return fmt.Errorf("enable pmu counters: %w", err)
	}
	time.Sleep(e.sampleInterval)

	// 8. Post-window IRQ/frequency/network reads.
	if err := ReadIRQSnapshot(e.procPath, e.numCores, window.IRQPost); err != nil {
		pmu.Disable()
		pmu.Close()
		return fmt.Errorf("read post-window irq snapshot: %w", err)
	}
	if err := ReadNetworkSnapshot(e.procPath, &window.NetworkPost); err != nil {
		pmu.Disable()
		pmu.Close()
		return fmt.Errorf("read post-window network snapshot: %w", err)
	}
	if err := e.freqSampler.SamplePost(window); err != nil {
		pmu.Disable()
		pmu.Close()
		return fmt.Errorf("read post-window frequency snapshot: %w", err)
	}

	// 9. Read PMU counters, disable, and close.
	pmu.Read(window)
	disableErr := pmu.Disable()
	closeErr := pmu.Close()
	if disableErr != nil {
		return disableErr
	}
	if closeErr != nil {
		return closeErr
	}

	for i := range window.IRQInfo {
		window.IRQInfo[i] = window.IRQPost[i] - window.IRQPre[i]
	}
	for i := range window.NetworkInfo {
		window.NetworkInfo[i] = window.NetworkPost[i] - window.NetworkPre[i]
	}
	FinalizeFrequencies(window)

	// 10. Poll applications.
	for _, c := range e.appClients {
		_, err := c.Tick()
		if e.metrics != nil {
			outcome := "success"
			if err != nil {
				outcome = "error"
			}
			e.metrics.AppRequestsTotal.WithLabelValues(c.Label(), outcome).Inc()
		}
		if err != nil {
			return fmt.Errorf("application rpc: %w", err)
		}
	}

	// 11. Serialize the record.
	if err := e.writer.WriteTick(window, e.filtered); err != nil {
		return fmt.Errorf("write record: %w", err)
	}

	// 12. Swap current/previous for the next tick.
	e.current, e.previous = e.previous, e.current

	return nil
}
