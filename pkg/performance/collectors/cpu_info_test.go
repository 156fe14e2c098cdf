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

// This collector's output is only consumed for one field: LogicalCores,
// which cmd/pulse uses to size the sampling engine's per-core arrays.
// Coverage here stays focused on that field (plus
// the adjacent PhysicalCores, parsed from the same pass) rather than
// the full /proc/cpuinfo vendor-format matrix; the parsing logic itself
// is unchanged from the teacher.
const testCPUInfo = `processor	: 0
vendor_id	: GenuineIntel
cpu family	: 6
model		: 158
model name	: Intel(R) Core(TM) i7-8700K CPU @ 3.70GHz
stepping	: 10
microcode	: 0xde
cpu MHz		: 3700.000
cache size	: 12288 KB
physical id	: 0
siblings	: 2
core id		: 0
cpu cores	: 1
apicid		: 0
initial apicid	: 0
fpu		: yes
fpu_exception	: yes
cpuid level	: 22
wp		: yes
flags		: fpu vme de pse tsc msr pae mce cx8 apic sep mtrr pge mca cmov pat pse36 clflush mmx fxsr sse sse2 ht
bogomips	: 7399.70

processor	: 1
vendor_id	: GenuineIntel
cpu family	: 6
model		: 158
model name	: Intel(R) Core(TM) i7-8700K CPU @ 3.70GHz
stepping	: 10
microcode	: 0xde
cpu MHz		: 3700.000
cache size	: 12288 KB
physical id	: 0
siblings	: 2
core id		: 1
cpu cores	: 1
apicid		: 2
initial apicid	: 2
fpu		: yes
fpu_exception	: yes
cpuid level	: 22
wp		: yes
flags		: fpu vme de pse tsc msr pae mce cx8 apic sep mtrr pge mca cmov pat pse36 clflush mmx fxsr sse sse2 ht
bogomips	: 7399.70
`

func TestCPUInfoCollector_Collect(t *testing.T) {
	tmpDir := t.TempDir()
	procPath := filepath.Join(tmpDir, "proc")
	sysPath := filepath.Join(tmpDir, "sys")
	require.NoError(t, os.MkdirAll(procPath, 0755))
	require.NoError(t, os.MkdirAll(sysPath, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(procPath, "cpuinfo"), []byte(testCPUInfo), 0644))

	config := performance.CollectionConfig{HostProcPath: procPath, HostSysPath: sysPath}
	collector := collectors.NewCPUInfoCollector(logr.Discard(), config)

	result, err := collector.Collect(context.Background())
	require.NoError(t, err)

	info, ok := result.(*performance.CPUInfo)
	require.True(t, ok, "expected *performance.CPUInfo, got %T", result)
	assert.Equal(t, int32(2), info.LogicalCores)
	assert.Equal(t, int32(2), info.PhysicalCores)
}

func TestCPUInfoCollector_MissingCPUInfoIsError(t *testing.T) {
	tmpDir := t.TempDir()
	procPath := filepath.Join(tmpDir, "proc")
	sysPath := filepath.Join(tmpDir, "sys")
	require.NoError(t, os.MkdirAll(procPath, 0755))
	require.NoError(t, os.MkdirAll(sysPath, 0755))

	config := performance.CollectionConfig{HostProcPath: procPath, HostSysPath: sysPath}
	collector := collectors.NewCPUInfoCollector(logr.Discard(), config)

	_, err := collector.Collect(context.Background())
	assert.Error(t, err)
}
