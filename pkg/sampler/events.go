// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package sampler

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// eventAttr is the perf_event_open type/config pair a named event
// resolves to. Names are opaque strings from the config file (the
// libpfm convention of COLON-separated qualifiers); this table only
// needs to resolve the handful of events the config format actually
// uses, not the full libpfm event universe.
type eventAttr struct {
	Type   uint32
	Config uint64
}

// eventTable maps the config file's opaque event names to
// perf_event_open attributes. The two fixed NUMA events are always
// present (config.go appends them to every configured list); any other
// name recognized here mirrors a libpfm/Intel SDM offcore-response
// encoding.
var eventTable = map[string]eventAttr{
	EventOffcoreResponseLocal:  {Type: unix.PERF_TYPE_RAW, Config: 0x1004004477},
	EventOffcoreResponseRemote: {Type: unix.PERF_TYPE_RAW, Config: 0x1000804477},
	"cycles":                   {Type: unix.PERF_TYPE_HARDWARE, Config: unix.PERF_COUNT_HW_CPU_CYCLES},
	"instructions":             {Type: unix.PERF_TYPE_HARDWARE, Config: unix.PERF_COUNT_HW_INSTRUCTIONS},
	"cache-misses":             {Type: unix.PERF_TYPE_HARDWARE, Config: unix.PERF_COUNT_HW_CACHE_MISSES},
	"cache-references":         {Type: unix.PERF_TYPE_HARDWARE, Config: unix.PERF_COUNT_HW_CACHE_REFERENCES},
	"branch-misses":            {Type: unix.PERF_TYPE_HARDWARE, Config: unix.PERF_COUNT_HW_BRANCH_MISSES},
	"page-faults":              {Type: unix.PERF_TYPE_SOFTWARE, Config: unix.PERF_COUNT_SW_PAGE_FAULTS},
	"context-switches":         {Type: unix.PERF_TYPE_SOFTWARE, Config: unix.PERF_COUNT_SW_CONTEXT_SWITCHES},
}

// rawEventPrefix marks a name as a raw perf_event_attr-shaped hex string
// rather than a libpfm-style symbolic name: "raw:<hex config>". This lets
// the config supply an offcore-response-style encoding the opaque table
// doesn't carry a name for, without a full libpfm resolver.
const rawEventPrefix = "raw:"

// resolveEvent looks up an event name's perf_event_open attributes,
// first against the opaque symbolic table and then as a raw hex-encoded
// config. An unrecognized name is returned as an error; the caller
// treats that as a transient per-entity condition (this one event is
// skipped) rather than aborting the whole sampler, since one bad event
// name must not cost every other event its measurement window.
func resolveEvent(name string) (eventAttr, error) {
	if attr, ok := eventTable[name]; ok {
		return attr, nil
	}
	if hex, ok := strings.CutPrefix(name, rawEventPrefix); ok {
		config, err := strconv.ParseUint(hex, 16, 64)
		if err != nil {
			return eventAttr{}, fmt.Errorf("raw PMU event %q: %w", name, err)
		}
		return eventAttr{Type: unix.PERF_TYPE_RAW, Config: config}, nil
	}
	return eventAttr{}, fmt.Errorf("unrecognized PMU event name %q", name)
}
