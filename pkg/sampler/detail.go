// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package sampler

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ProcessDetail holds the per-PID figures that are expensive enough to
// read (status, io) that the engine only collects them for the
// already-selected filtered/top-K list, not every process in /proc.
type ProcessDetail struct {
	VoluntaryCtxt    uint64
	NonvoluntaryCtxt uint64
	ReadBytes        uint64
	WriteBytes       uint64
}

// nonEmptyLines returns data's lines with trailing/leading whitespace
// trimmed and blank lines dropped, preserving order.
func nonEmptyLines(data []byte) []string {
	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// parseKeyValueUint extracts the integer value from a "key:\tvalue"
// status-file style line.
func parseKeyValueUint(line string) (uint64, error) {
	parts := strings.Fields(line)
	if len(parts) < 2 {
		return 0, fmt.Errorf("malformed line %q", line)
	}
	return strconv.ParseUint(parts[len(parts)-1], 10, 64)
}

// ReadProcessDetail reads /proc/<pid>/status and /proc/<pid>/io for a
// selected PID. Context-switch counts come from status's final two
// lines (voluntary_ctxt_switches, nonvoluntary_ctxt_switches); I/O byte
// counts come from io's final three lines (read_bytes, write_bytes,
// cancelled_write_bytes — the third is discarded). A vanished process
// between selection and this read is reported via the returned bool so
// the caller can drop it without treating it as an error.
func ReadProcessDetail(procPath string, pid int32) (ProcessDetail, bool, error) {
	pidDir := filepath.Join(procPath, strconv.Itoa(int(pid)))

	statusData, err := os.ReadFile(filepath.Join(pidDir, "status"))
	if err != nil {
		if os.IsNotExist(err) {
			return ProcessDetail{}, false, nil
		}
		return ProcessDetail{}, false, fmt.Errorf("read status for pid %d: %w", pid, err)
	}
	ioData, err := os.ReadFile(filepath.Join(pidDir, "io"))
	if err != nil {
		if os.IsNotExist(err) {
			return ProcessDetail{}, false, nil
		}
		// /proc/<pid>/io can be unreadable (EACCES) for processes not
		// owned by us even though status succeeded; treat as vanished
		// rather than fatal, matching the transient-per-entity policy.
		return ProcessDetail{}, false, nil
	}

	statusLines := nonEmptyLines(statusData)
	if len(statusLines) < 2 {
		return ProcessDetail{}, false, fmt.Errorf("pid %d: status file too short", pid)
	}
	voluntary, err := parseKeyValueUint(statusLines[len(statusLines)-2])
	if err != nil {
		return ProcessDetail{}, false, fmt.Errorf("pid %d: parse voluntary_ctxt_switches: %w", pid, err)
	}
	nonvoluntary, err := parseKeyValueUint(statusLines[len(statusLines)-1])
	if err != nil {
		return ProcessDetail{}, false, fmt.Errorf("pid %d: parse nonvoluntary_ctxt_switches: %w", pid, err)
	}

	ioLines := nonEmptyLines(ioData)
	if len(ioLines) < 3 {
		return ProcessDetail{}, false, fmt.Errorf("pid %d: io file too short", pid)
	}
	readBytes, err := parseKeyValueUint(ioLines[len(ioLines)-3])
	if err != nil {
		return ProcessDetail{}, false, fmt.Errorf("pid %d: parse read_bytes: %w", pid, err)
	}
	writeBytes, err := parseKeyValueUint(ioLines[len(ioLines)-2])
	if err != nil {
		return ProcessDetail{}, false, fmt.Errorf("pid %d: parse write_bytes: %w", pid, err)
	}
	// ioLines[len-1] is cancelled_write_bytes, intentionally discarded.

	return ProcessDetail{
		VoluntaryCtxt:    voluntary,
		NonvoluntaryCtxt: nonvoluntary,
		ReadBytes:        readBytes,
		WriteBytes:       writeBytes,
	}, true, nil
}

// ApplyDetailRates fills ext's context-switch and I/O rate fields from
// curr against prev (the same PID's detail as of the previous tick, or
// the zero value if this is the first tick this PID was selected into
// the filtered list).
func ApplyDetailRates(ext *ProcessExternal, curr, prev ProcessDetail, cpuDelta uint64) {
	ext.VoluntaryCtxtRate = rate(curr.VoluntaryCtxt, prev.VoluntaryCtxt, cpuDelta)
	ext.NonvoluntaryCtxtRate = rate(curr.NonvoluntaryCtxt, prev.NonvoluntaryCtxt, cpuDelta)
	ext.ReadRate = rate(curr.ReadBytes, prev.ReadBytes, cpuDelta)
	ext.WriteRate = rate(curr.WriteBytes, prev.WriteBytes, cpuDelta)
}
