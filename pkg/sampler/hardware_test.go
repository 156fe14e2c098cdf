// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package sampler_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antimetal/pulse/pkg/sampler"
)

// S5: a 4-core system with one eth0 IRQ line contributes its per-core
// counts verbatim against a zero pre-window snapshot; a line ending in a
// non-eth device name (enp3s0) contributes nothing.
func TestReadIRQSnapshot_SumsOnlyEthLines(t *testing.T) {
	procDir := t.TempDir()
	interrupts := " " +
		"           CPU0       CPU1       CPU2       CPU3\n" +
		" 24:        100        200        300        400   PCI-MSI-edge      eth0\n" +
		" 25:         10         20         30         40   PCI-MSI-edge      enp3s0\n"
	require.NoError(t, os.WriteFile(filepath.Join(procDir, "interrupts"), []byte(interrupts), 0o644))

	acc := make([]int64, 4)
	require.NoError(t, sampler.ReadIRQSnapshot(procDir, 4, acc))

	assert.Equal(t, []int64{100, 200, 300, 400}, acc)
}

func TestReadIRQSnapshot_AccumulatesAcrossMultipleEthLines(t *testing.T) {
	procDir := t.TempDir()
	interrupts := " " +
		"           CPU0       CPU1\n" +
		" 24:        100        200   PCI-MSI-edge      eth0\n" +
		" 30:         50         60   PCI-MSI-edge      eth1\n"
	require.NoError(t, os.WriteFile(filepath.Join(procDir, "interrupts"), []byte(interrupts), 0o644))

	acc := make([]int64, 2)
	require.NoError(t, sampler.ReadIRQSnapshot(procDir, 2, acc))

	assert.Equal(t, []int64{150, 260}, acc)
}

func TestReadNetworkSnapshot_SumsOnlyEthInterfaces(t *testing.T) {
	procDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(procDir, "net"), 0o755))
	dev := "Inter-|   Receive                                                |  Transmit\n" +
		" face |bytes    packets errs drop fifo frame compressed multicast|bytes    packets errs drop fifo colls carrier compressed\n" +
		"  eth0: 1000      10    0    0    0     0          0         0     2000       20    0    0    0     0       0          0\n" +
		"    lo:  500       5    0    0    0     0          0         0      500        5    0    0    0     0       0          0\n"
	require.NoError(t, os.WriteFile(filepath.Join(procDir, "net", "dev"), []byte(dev), 0o644))

	var acc [8]uint64
	require.NoError(t, sampler.ReadNetworkSnapshot(procDir, &acc))

	a := assert.New(t)
	a.Equal(uint64(1000), acc[sampler.NetRecvBytes])
	a.Equal(uint64(10), acc[sampler.NetRecvPackets])
	a.Equal(uint64(2000), acc[sampler.NetSendBytes])
	a.Equal(uint64(20), acc[sampler.NetSendPackets])
}
