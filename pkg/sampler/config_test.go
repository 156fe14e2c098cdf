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

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig_AppendsFixedNUMAEvents(t *testing.T) {
	path := writeConfig(t, `{
		"application": {"web": {"hostname": "localhost", "port": 9000}},
		"pmu": ["cycles", "instructions"],
		"num_of_processes": 10
	}`)

	cfg, err := sampler.LoadConfig(path)
	require.NoError(t, err)

	a := assert.New(t)
	a.Equal(10, cfg.NumOfProcesses)
	a.Len(cfg.Applications, 1)
	a.Equal("web", cfg.Applications[0].Label)
	a.Contains(cfg.Events, sampler.EventOffcoreResponseLocal)
	a.Contains(cfg.Events, sampler.EventOffcoreResponseRemote)
	a.Len(cfg.Events, 4)
}

func TestLoadConfig_RejectsNonPositiveNumOfProcesses(t *testing.T) {
	path := writeConfig(t, `{"num_of_processes": 0}`)
	_, err := sampler.LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfig_RejectsNumOfProcessesOverMax(t *testing.T) {
	path := writeConfig(t, `{"num_of_processes": 100000}`)
	_, err := sampler.LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfig_RejectsMissingHostname(t *testing.T) {
	path := writeConfig(t, `{
		"application": {"web": {"port": 9000}},
		"num_of_processes": 1
	}`)
	_, err := sampler.LoadConfig(path)
	assert.ErrorContains(t, err, "hostname")
}

func TestLoadConfig_RejectsInvalidPort(t *testing.T) {
	path := writeConfig(t, `{
		"application": {"web": {"hostname": "localhost", "port": 70000}},
		"num_of_processes": 1
	}`)
	_, err := sampler.LoadConfig(path)
	assert.ErrorContains(t, err, "port")
}

func TestLoadConfig_RejectsTooManyEvents(t *testing.T) {
	events := make([]string, sampler.MaxEvents)
	for i := range events {
		events[i] = `"cycles"`
	}
	path := writeConfig(t, `{"pmu": [`+joinQuoted(events)+`], "num_of_processes": 1}`)
	_, err := sampler.LoadConfig(path)
	assert.ErrorContains(t, err, "exceeds maximum")
}

func joinQuoted(vals []string) string {
	out := ""
	for i, v := range vals {
		if i > 0 {
			out += ","
		}
		out += v
	}
	return out
}
