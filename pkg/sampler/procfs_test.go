// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package sampler_test

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antimetal/pulse/pkg/sampler"
)

// statLine builds a /proc/<pid>/stat line with the given state and
// minflt/majflt/utime/stime/vsize/rss values, leaving the other
// standard fields as plausible placeholders.
//
// Field order from field 3 (state) through field 24 (rss):
// state ppid pgrp session tty_nr tpgid flags minflt cminflt majflt
// cmajflt utime stime cutime cstime priority nice num_threads
// itrealvalue starttime vsize rss
func statLine(pid int, comm, state string, minflt, majflt, utime, stime, vsize, rss uint64) string {
	return fmt.Sprintf(
		"%d (%s) %s 1 1 1 0 -1 0 %d 0 %d 0 %d %d 0 0 20 0 1 0 1000 %d %d",
		pid, comm, state, minflt, majflt, utime, stime, vsize, rss,
	)
}

func TestReadProcesses_SkipsZombiesAndVanishedEntries(t *testing.T) {
	procDir := t.TempDir()

	writeStat(t, procDir, 1, statLine(1, "init", "S", 5, 1, 100, 50, 204800, 50))
	writeStat(t, procDir, 2, statLine(2, "zombie", "Z", 0, 0, 0, 0, 0, 0))

	// S4: pid 4242 appears in the directory listing, but its stat file
	// has vanished by the time we try to read it.
	require.NoError(t, os.MkdirAll(filepath.Join(procDir, "4242"), 0o755))

	list := sampler.NewProcessList()
	err := sampler.ReadProcesses(procDir, -1, list)

	require.NoError(t, err)
	assert.Equal(t, 1, list.Size, "only the live, readable pid should be counted")
	assert.Equal(t, int32(1), list.Intermediate[0].PID)
}

func TestReadProcesses_ExcludesSelfPID(t *testing.T) {
	procDir := t.TempDir()
	writeStat(t, procDir, 1, statLine(1, "init", "S", 0, 0, 0, 0, 0, 0))
	writeStat(t, procDir, 99, statLine(99, "self", "S", 0, 0, 0, 0, 0, 0))

	list := sampler.NewProcessList()
	require.NoError(t, sampler.ReadProcesses(procDir, 99, list))

	assert.Equal(t, 1, list.Size)
	assert.Equal(t, int32(1), list.Intermediate[0].PID)
}

// Regression test for the field-index calculation in parseStat: verifies
// every numeric field the sampler cares about is read from its true
// position, not off by one.
func TestReadProcesses_ParsesStatFieldsAtExactOffsets(t *testing.T) {
	procDir := t.TempDir()
	writeStat(t, procDir, 7, statLine(7, "worker", "R", 11, 22, 33, 44, 409600, 77))

	list := sampler.NewProcessList()
	require.NoError(t, sampler.ReadProcesses(procDir, -1, list))
	require.Equal(t, 1, list.Size)

	pi := list.Intermediate[0]
	a := assert.New(t)
	a.Equal(uint64(11), pi.MinorFaults)
	a.Equal(uint64(22), pi.MajorFaults)
	a.Equal(uint64(33), pi.UTime)
	a.Equal(uint64(44), pi.STime)
	a.Equal(uint64(409600), pi.VSize)
	a.Equal(uint64(77), pi.RSS)
	a.Equal(uint64(33+44), pi.CPUTime, "cpu time is utime+stime plus child times, which are zero here")
}

func writeStat(t *testing.T, procDir string, pid int, content string) {
	t.Helper()
	dir := filepath.Join(procDir, strconv.Itoa(pid))
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stat"), []byte(content+"\n"), 0o644))
}
