// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package sampler

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

// pmuState tracks a PMUSampler through its required teardown sequence:
// a failure partway through Open still needs every already-opened
// descriptor disabled and closed, not just abandoned.
type pmuState int

const (
	pmuClosed pmuState = iota
	pmuOpened
	pmuEnabled
	pmuRead
	pmuDisabled
)

// pmuDescriptor is one perf_event_open handle: one (pid, tid, event)
// triple.
type pmuDescriptor struct {
	fd         int
	pidIndex   int
	eventIndex int
}

// PMUSampler manages the perf_event_open descriptors for one tick's
// filtered process list. Its lifecycle is
// CLOSED -> OPENED -> ENABLED -> READ -> DISABLED -> CLOSED; a failure
// at any point after OPENED must still attempt DISABLED and CLOSED on
// every descriptor already opened, so counters are never leaked.
type PMUSampler struct {
	state        pmuState
	descs        []pmuDescriptor
	skippedOpens int
}

// NewPMUSampler opens one perf_event_open descriptor per
// (selected PID's thread, event) pair in filtered. The descriptor
// targets the thread (pid=tid), every CPU (cpu=-1), with no group
// leader (group_fd=-1), PERF_FORMAT_TOTAL_TIME_ENABLED|RUNNING so scaled
// values can be derived from multiplexed counters, inherited across
// children, and created disabled so every descriptor starts in lockstep
// once prctl(PR_TASK_PERF_EVENTS_ENABLE) fires.
//
// A vanished thread, an EACCES from perf_event_open, or an unrecognized
// event name is treated as a transient per-entity condition: that
// descriptor is simply skipped, it contributes 0 when read, and the
// tick continues rather than aborting the whole window.
func NewPMUSampler(filtered *ProcessList, events []string) (*PMUSampler, error) {
	s := &PMUSampler{}

	attrs := make([]eventAttr, len(events))
	attrOK := make([]bool, len(events))
	for eventIdx, name := range events {
		attr, err := resolveEvent(name)
		if err != nil {
			s.skippedOpens += totalThreads(filtered)
			continue
		}
		attrs[eventIdx] = attr
		attrOK[eventIdx] = true
	}

	for pidIdx := range filtered.Intermediate {
		pi := &filtered.Intermediate[pidIdx]
		for eventIdx := range events {
			if !attrOK[eventIdx] {
				continue
			}
			attr := attrs[eventIdx]

			for _, tid := range pi.ChildThreadIDs {
				perfAttr := unix.PerfEventAttr{
					Type:        attr.Type,
					Size:        uint32(unsafeSizeofPerfEventAttr),
					Config:      attr.Config,
					Read_format: unix.PERF_FORMAT_TOTAL_TIME_ENABLED | unix.PERF_FORMAT_TOTAL_TIME_RUNNING,
					Bits:        unix.PerfBitDisabled | unix.PerfBitInherit,
				}

				fd, err := unix.PerfEventOpen(&perfAttr, int(tid), -1, -1, 0)
				if err != nil {
					// Thread may have exited, or we lack permission for
					// this specific event; skip rather than fail the tick.
					s.skippedOpens++
					continue
				}
				s.descs = append(s.descs, pmuDescriptor{fd: fd, pidIndex: pidIdx, eventIndex: eventIdx})
			}
		}
	}

	s.state = pmuOpened
	return s, nil
}

// totalThreads counts every thread across every selected process, used
// to charge an unrecognized event name's skip count against each
// descriptor it would otherwise have opened.
func totalThreads(filtered *ProcessList) int {
	n := 0
	for i := range filtered.Intermediate {
		n += len(filtered.Intermediate[i].ChildThreadIDs)
	}
	return n
}

// SkippedOpens reports how many (thread, event) descriptors failed to
// open during NewPMUSampler, e.g. because a thread exited between
// selection and attach, or this process lacks permission for a
// specific event.
func (s *PMUSampler) SkippedOpens() int {
	return s.skippedOpens
}

// unsafeSizeofPerfEventAttr is PerfEventAttr's wire size, which the
// kernel uses to detect struct version skew.
const unsafeSizeofPerfEventAttr = 136

// Enable issues the global PR_TASK_PERF_EVENTS_ENABLE prctl, starting
// every opened descriptor counting simultaneously.
func (s *PMUSampler) Enable() error {
	if err := unix.Prctl(unix.PR_TASK_PERF_EVENTS_ENABLE, 0, 0, 0, 0); err != nil {
		return fmt.Errorf("prctl PR_TASK_PERF_EVENTS_ENABLE: %w", err)
	}
	s.state = pmuEnabled
	return nil
}

// Disable issues the global PR_TASK_PERF_EVENTS_DISABLE prctl, stopping
// every counter. Disable is safe to call from a partially-opened state:
// the prctl affects whatever descriptors exist regardless of how many
// there are.
func (s *PMUSampler) Disable() error {
	err := unix.Prctl(unix.PR_TASK_PERF_EVENTS_DISABLE, 0, 0, 0, 0)
	s.state = pmuDisabled
	if err != nil {
		return fmt.Errorf("prctl PR_TASK_PERF_EVENTS_DISABLE: %w", err)
	}
	return nil
}

// Read accumulates each descriptor's scaled value
// (raw*enabled/running) into w.PMUInfo[pidIndex][eventIndex], summing
// across every thread of a PID. A descriptor that fails to read (closed
// out from under us, or a short read) contributes 0 rather than
// aborting the tick.
func (s *PMUSampler) Read(w *HardwareWindow) {
	var buf [24]byte // raw, time_enabled, time_running: 3 uint64
	for _, d := range s.descs {
		n, err := unix.Read(d.fd, buf[:])
		if err != nil || n < len(buf) {
			continue
		}
		raw := binary.LittleEndian.Uint64(buf[0:8])
		enabled := binary.LittleEndian.Uint64(buf[8:16])
		running := binary.LittleEndian.Uint64(buf[16:24])

		var scaled uint64
		if running != 0 {
			scaled = raw * enabled / running
		}
		w.PMUInfo[d.pidIndex][d.eventIndex] += scaled
	}
	s.state = pmuRead
}

// Close releases every opened descriptor. It is always safe to call,
// including after a partial Open failure: descriptors that were never
// opened simply aren't in s.descs.
func (s *PMUSampler) Close() error {
	return s.teardown()
}

func (s *PMUSampler) teardown() error {
	var firstErr error
	for _, d := range s.descs {
		if err := unix.Close(d.fd); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.descs = nil
	s.state = pmuClosed
	return firstErr
}
