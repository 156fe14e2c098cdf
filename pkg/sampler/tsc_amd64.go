// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

//go:build amd64

package sampler

// readTSC reads the processor's timestamp counter via RDTSC, implemented
// in tsc_amd64.s.
func readTSC() uint64
