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

// statFields holds the subset of /proc/<pid>/stat (and
// /proc/<pid>/task/<tid>/stat) fields the engine needs. Field numbers
// are 1-indexed per proc(5): comm is parenthesized and may itself
// contain spaces or parens, so it must be located by the last ')'
// rather than split on whitespace.
type statFields struct {
	State     byte
	MinFlt    uint64
	CMinFlt   uint64
	MajFlt    uint64
	CMajFlt   uint64
	UTime     uint64
	STime     uint64
	CUTime    uint64
	CSTime    uint64
	VSize     uint64
	RSS       uint64
	Processor int32 // field 39, last observed logical CPU; task stat only
}

// parseStat parses the numeric fields of a /proc/<pid>/stat or
// /proc/<pid>/task/<tid>/stat line. Fields before comm's closing paren
// are ignored; everything after is whitespace-delimited.
func parseStat(data []byte) (statFields, error) {
	line := string(data)
	close := strings.LastIndexByte(line, ')')
	if close < 0 {
		return statFields{}, fmt.Errorf("malformed stat line: no comm delimiter")
	}
	rest := strings.Fields(line[close+1:])
	// rest[0] is state (field 3); rest[i] is field 3+i.
	if len(rest) < 1 {
		return statFields{}, fmt.Errorf("malformed stat line: missing state")
	}

	var sf statFields
	sf.State = rest[0][0]

	get := func(field int) (uint64, bool) {
		idx := field - 3 // rest[0] is field 3
		if idx < 0 || idx >= len(rest) {
			return 0, false
		}
		v, err := strconv.ParseUint(rest[idx], 10, 64)
		return v, err == nil
	}

	sf.MinFlt, _ = get(10)
	sf.CMinFlt, _ = get(11)
	sf.MajFlt, _ = get(12)
	sf.CMajFlt, _ = get(13)
	sf.UTime, _ = get(14)
	sf.STime, _ = get(15)
	sf.CUTime, _ = get(16)
	sf.CSTime, _ = get(17)
	sf.VSize, _ = get(23)
	sf.RSS, _ = get(24)

	if v, ok := get(39); ok {
		sf.Processor = int32(v)
	} else {
		sf.Processor = -1
	}

	return sf, nil
}

// isNumericName reports whether name is made entirely of decimal digits,
// i.e. is a PID (or TID) directory entry.
func isNumericName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ReadProcesses enumerates /proc/<pid>, parses each process's stat line,
// and appends the live (non-zombie) ones to list. Processes whose files
// vanish between the directory read and the stat read are skipped
// silently: this is expected churn, not an error. Exceeding MaxProcesses
// PIDs observed is a fatal capacity condition.
func ReadProcesses(procPath string, selfPID int32, list *ProcessList) error {
	list.Reset()

	entries, err := os.ReadDir(procPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", procPath, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if !isNumericName(name) {
			continue
		}
		pid64, err := strconv.ParseInt(name, 10, 32)
		if err != nil {
			continue
		}
		pid := int32(pid64)
		if pid == selfPID {
			continue
		}

		statPath := filepath.Join(procPath, name, "stat")
		data, err := os.ReadFile(statPath)
		if err != nil {
			if os.IsNotExist(err) {
				continue // vanished between readdir and read; not an error
			}
			continue
		}

		sf, err := parseStat(data)
		if err != nil {
			continue
		}
		if sf.State == 'Z' {
			continue // zombie: no useful accounting left
		}

		if len(list.Intermediate) >= MaxProcesses {
			return fmt.Errorf("process count exceeds maximum %d", MaxProcesses)
		}

		pi := ProcessIntermediate{
			PID:              pid,
			MinorFaults:      sf.MinFlt,
			ChildMinorFaults: sf.CMinFlt,
			MajorFaults:      sf.MajFlt,
			ChildMajorFaults: sf.CMajFlt,
			FaultTotal:       sf.MinFlt + sf.CMinFlt + sf.MajFlt + sf.CMajFlt,
			UTime:            sf.UTime,
			STime:            sf.STime,
			ChildUTime:       sf.CUTime,
			ChildSTime:       sf.CSTime,
			CPUTime:          sf.UTime + sf.STime + sf.CUTime + sf.CSTime,
			VSize:            sf.VSize,
			RSS:              sf.RSS,
		}
		list.Intermediate = append(list.Intermediate, pi)
	}

	list.Size = len(list.Intermediate)
	return nil
}

// ReadAggregateCPUTime parses the "cpu" summary line of /proc/stat and
// returns the sum of its first 7 fields (user, nice, system, idle,
// iowait, irq, softirq): the denominator every per-process rate is
// derived against.
func ReadAggregateCPUTime(procPath string) (uint64, error) {
	data, err := os.ReadFile(filepath.Join(procPath, "stat"))
	if err != nil {
		return 0, fmt.Errorf("read /proc/stat: %w", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 8 || fields[0] != "cpu" {
			continue
		}
		var total uint64
		for _, f := range fields[1:8] {
			v, err := strconv.ParseUint(f, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("parse /proc/stat cpu line: %w", err)
			}
			total += v
		}
		return total, nil
	}
	return 0, fmt.Errorf("no aggregate cpu line found in /proc/stat")
}

// ReadThreadAffinity walks /proc/<pid>/task/<tid>/stat for every thread
// of pid, recording each thread's last-observed logical CPU into an
// affinity bitmask and the process's thread-id list. A process with more
// than MaxThreads threads is a fatal capacity condition.
func ReadThreadAffinity(procPath string, pid int32) (mask uint64, tids []int32, err error) {
	taskDir := filepath.Join(procPath, strconv.Itoa(int(pid)), "task")
	entries, err := os.ReadDir(taskDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil, nil // process exited between snapshot and detail pass
		}
		return 0, nil, fmt.Errorf("read %s: %w", taskDir, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if !isNumericName(name) {
			continue
		}
		tid64, _ := strconv.ParseInt(name, 10, 32)
		tid := int32(tid64)

		if len(tids) >= MaxThreads {
			return 0, nil, fmt.Errorf("pid %d: thread count exceeds maximum %d", pid, MaxThreads)
		}

		statPath := filepath.Join(taskDir, name, "stat")
		data, err := os.ReadFile(statPath)
		if err != nil {
			continue // thread exited mid-walk
		}
		sf, err := parseStat(data)
		if err != nil {
			continue
		}
		tids = append(tids, tid)
		if sf.Processor >= 0 && sf.Processor < 64 {
			mask |= 1 << uint(sf.Processor)
		}
	}

	return mask, tids, nil
}
