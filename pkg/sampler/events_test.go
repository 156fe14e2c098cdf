// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package sampler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestResolveEvent_KnownNames(t *testing.T) {
	attr, err := resolveEvent("cycles")
	assert.NoError(t, err)
	assert.Equal(t, uint32(unix.PERF_TYPE_HARDWARE), attr.Type)
	assert.Equal(t, uint64(unix.PERF_COUNT_HW_CPU_CYCLES), attr.Config)
}

func TestResolveEvent_FixedNUMAEvents(t *testing.T) {
	local, err := resolveEvent(EventOffcoreResponseLocal)
	assert.NoError(t, err)
	assert.Equal(t, uint32(unix.PERF_TYPE_RAW), local.Type)

	remote, err := resolveEvent(EventOffcoreResponseRemote)
	assert.NoError(t, err)
	assert.Equal(t, uint32(unix.PERF_TYPE_RAW), remote.Type)
	assert.NotEqual(t, local.Config, remote.Config)
}

func TestResolveEvent_UnrecognizedNameIsError(t *testing.T) {
	_, err := resolveEvent("not-a-real-event")
	assert.Error(t, err)
}

func TestResolveEvent_RawHexString(t *testing.T) {
	attr, err := resolveEvent("raw:1004004477")
	assert.NoError(t, err)
	assert.Equal(t, uint32(unix.PERF_TYPE_RAW), attr.Type)
	assert.Equal(t, uint64(0x1004004477), attr.Config)
}

func TestResolveEvent_RawHexStringMalformedIsError(t *testing.T) {
	_, err := resolveEvent("raw:not-hex")
	assert.Error(t, err)
}
