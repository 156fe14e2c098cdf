// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package sampler

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// MSR register offsets read per core to estimate effective frequency.
const (
	msrCoreUnhaltedOffset = 0x030A // CPU_CLK_UNHALTED_CORE
	msrRefUnhaltedOffset  = 0x030B // CPU_CLK_UNHALTED_REF
)

// msrReader holds one open file per core under /dev/cpu/<n>/msr, since
// the frequency sampler needs a pre- and post-window read per core every
// tick. Opening the MSR device requires CAP_SYS_RAWIO; a failure here is
// a fatal Privilege error, not a per-entity skip.
type msrReader struct {
	files []*os.File
}

// openMSRReader opens /dev/cpu/<n>/msr for every core in [0, numCores).
func openMSRReader(devPath string, numCores int) (*msrReader, error) {
	r := &msrReader{files: make([]*os.File, numCores)}
	for i := 0; i < numCores; i++ {
		path := filepath.Join(devPath, "cpu", fmt.Sprintf("%d", i), "msr")
		f, err := os.OpenFile(path, os.O_RDONLY, 0)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		r.files[i] = f
	}
	return r, nil
}

// read64 pread's an 8-byte little-endian MSR value at offset from
// core's file.
func (r *msrReader) read64(core int, offset int64) (uint64, error) {
	var buf [8]byte
	n, err := unix.Pread(int(r.files[core].Fd()), buf[:], offset)
	if err != nil {
		return 0, fmt.Errorf("pread msr core %d offset %#x: %w", core, offset, err)
	}
	if n != 8 {
		return 0, fmt.Errorf("pread msr core %d offset %#x: short read (%d bytes)", core, offset, n)
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// ReadUnhaltedCounters reads CPU_CLK_UNHALTED_CORE and
// CPU_CLK_UNHALTED_REF for every core into coreCounts/refCounts.
func (r *msrReader) ReadUnhaltedCounters(coreCounts, refCounts []uint64) error {
	for i := range r.files {
		c, err := r.read64(i, msrCoreUnhaltedOffset)
		if err != nil {
			return err
		}
		ref, err := r.read64(i, msrRefUnhaltedOffset)
		if err != nil {
			return err
		}
		coreCounts[i] = c
		refCounts[i] = ref
	}
	return nil
}

func (r *msrReader) Close() error {
	var firstErr error
	for _, f := range r.files {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
