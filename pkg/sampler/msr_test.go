// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package sampler

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A regular file supports pread at arbitrary offsets the same as the
// real /dev/cpu/<n>/msr character device does, so it stands in for the
// hardware here; the actual MSR device requires CAP_SYS_RAWIO and real
// hardware, which this test environment does not have. Unlike the
// device, where each offset names its own 64-bit register, the file is
// flat: the ref value written at 0x30B overwrites bytes 1-7 of the core
// value written at 0x30A, so a core read returns the core value's low
// byte followed by the ref value's low seven bytes.
func writeFakeMSRFile(t *testing.T, path string, core, ref uint64) {
	t.Helper()
	buf := make([]byte, msrRefUnhaltedOffset+8)
	binary.LittleEndian.PutUint64(buf[msrCoreUnhaltedOffset:], core)
	binary.LittleEndian.PutUint64(buf[msrRefUnhaltedOffset:], ref)
	require.NoError(t, os.WriteFile(path, buf, 0o644))
}

func TestMSRReader_ReadUnhaltedCounters(t *testing.T) {
	devDir := t.TempDir()
	for i := 0; i < 2; i++ {
		cpuDir := filepath.Join(devDir, "cpu", strconv.Itoa(i))
		require.NoError(t, os.MkdirAll(cpuDir, 0o755))
		writeFakeMSRFile(t, filepath.Join(cpuDir, "msr"), uint64(1000+i), uint64(500+i))
	}

	r, err := openMSRReader(devDir, 2)
	require.NoError(t, err)
	defer r.Close()

	coreCounts := make([]uint64, 2)
	refCounts := make([]uint64, 2)
	require.NoError(t, r.ReadUnhaltedCounters(coreCounts, refCounts))

	a := assert.New(t)
	// Core reads see the overlap described at writeFakeMSRFile.
	a.Equal(uint64(1000&0xff)|uint64(500)<<8, coreCounts[0])
	a.Equal(uint64(1001&0xff)|uint64(501)<<8, coreCounts[1])
	a.Equal(uint64(500), refCounts[0])
	a.Equal(uint64(501), refCounts[1])
}

func TestOpenMSRReader_MissingDeviceIsFatal(t *testing.T) {
	devDir := t.TempDir()
	_, err := openMSRReader(devDir, 1)
	assert.Error(t, err)
}
