// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package sampler

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
)

// RecordWriter appends one fixed-shape binary record per tick to an
// output file. The record has no embedded length or count fields: the
// number of cores, processes, and events is fixed for the lifetime of a
// run and is carried out-of-band by the config the run was started
// with, matching the original implementation's sidecar-described
// framing.
type RecordWriter struct {
	f *os.File
	w *bufio.Writer
}

// NewRecordWriter opens path for append, creating it if necessary.
func NewRecordWriter(path string) (*RecordWriter, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output %s: %w", path, err)
	}
	return &RecordWriter{f: f, w: bufio.NewWriter(f)}, nil
}

// WriteTick appends one tick's record in the order: irq_info,
// network_info, frequency_info, proc_external (one entry per filtered
// process), then pmu_info (one []uint64 of length numEvents per filtered
// process, same order as proc_external).
func (rw *RecordWriter) WriteTick(w *HardwareWindow, filtered *ProcessList) error {
	if err := writeInt64Slice(rw.w, w.IRQInfo); err != nil {
		return fmt.Errorf("write irq_info: %w", err)
	}
	if err := writeUint64Array(rw.w, w.NetworkInfo[:]); err != nil {
		return fmt.Errorf("write network_info: %w", err)
	}
	if err := writeUint32Slice(rw.w, w.FrequencyInfo); err != nil {
		return fmt.Errorf("write frequency_info: %w", err)
	}
	for i := range filtered.External {
		if err := writeProcessExternal(rw.w, &filtered.External[i]); err != nil {
			return fmt.Errorf("write proc_external[%d]: %w", i, err)
		}
	}
	for i := range w.PMUInfo {
		if err := writeUint64Array(rw.w, w.PMUInfo[i]); err != nil {
			return fmt.Errorf("write pmu_info[%d]: %w", i, err)
		}
	}

	if err := rw.w.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (rw *RecordWriter) Close() error {
	if err := rw.w.Flush(); err != nil {
		rw.f.Close()
		return err
	}
	return rw.f.Close()
}

func writeInt64Slice(w *bufio.Writer, vals []int64) error {
	return binary.Write(w, binary.LittleEndian, vals)
}

func writeUint64Array(w *bufio.Writer, vals []uint64) error {
	return binary.Write(w, binary.LittleEndian, vals)
}

func writeUint32Slice(w *bufio.Writer, vals []uint32) error {
	return binary.Write(w, binary.LittleEndian, vals)
}

// writeProcessExternal writes one process_external record: pid,
// affinity mask, then the eight derived rate/utilization fields, all
// fixed-width.
func writeProcessExternal(w *bufio.Writer, p *ProcessExternal) error {
	fields := []any{
		p.PID,
		p.AffinityMask,
		p.FaultRate,
		p.CPUUtilization,
		p.VoluntaryCtxtRate,
		p.NonvoluntaryCtxtRate,
		p.ReadRate,
		p.WriteRate,
		p.VirtualMemUtilization,
		p.ResidentMemUtilization,
	}
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	return nil
}
