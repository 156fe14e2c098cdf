// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package sampler

import (
	"encoding/json"
	"fmt"
	"os"
)

// applicationSpec is one entry of the config file's "application" object.
type applicationSpec struct {
	Hostname string `json:"hostname"`
	Port     int    `json:"port"`
}

// fileConfig mirrors the on-disk JSON shape described in the config file
// format: a label->target map of applications to poll, the list of PMU
// event names to attach (the two fixed NUMA events are appended by
// LoadConfig, not expected in the file), and the top-K process count.
type fileConfig struct {
	Application    map[string]applicationSpec `json:"application"`
	PMU            []string                   `json:"pmu"`
	NumOfProcesses int                        `json:"num_of_processes"`
}

// Config is the parsed, validated engine configuration.
type Config struct {
	Applications   []Application
	Events         []string // PMU events, including the two fixed NUMA events
	NumOfProcesses int
}

// LoadConfig reads and validates the JSON config at path. It always
// appends the two fixed NUMA events to the configured PMU event list, and
// enforces the MaxApplications/MaxEvents capacity bounds described in the
// config file format (a config exceeding either is a fatal parse error,
// not a truncation).
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if fc.NumOfProcesses <= 0 {
		return nil, fmt.Errorf("config %s: num_of_processes must be positive, got %d", path, fc.NumOfProcesses)
	}
	if fc.NumOfProcesses > MaxProcesses {
		return nil, fmt.Errorf("config %s: num_of_processes %d exceeds maximum %d", path, fc.NumOfProcesses, MaxProcesses)
	}

	if len(fc.Application) > MaxApplications {
		return nil, fmt.Errorf("config %s: %d applications exceeds maximum %d", path, len(fc.Application), MaxApplications)
	}

	apps := make([]Application, 0, len(fc.Application))
	for label, spec := range fc.Application {
		if spec.Hostname == "" {
			return nil, fmt.Errorf("config %s: application %q missing hostname", path, label)
		}
		if spec.Port <= 0 || spec.Port > 65535 {
			return nil, fmt.Errorf("config %s: application %q has invalid port %d", path, label, spec.Port)
		}
		apps = append(apps, Application{
			Label:    label,
			Hostname: spec.Hostname,
			Port:     spec.Port,
		})
	}

	// The two fixed NUMA events are always present, regardless of what
	// the config file specifies.
	events := make([]string, 0, len(fc.PMU)+2)
	events = append(events, fc.PMU...)
	events = append(events, EventOffcoreResponseLocal, EventOffcoreResponseRemote)

	if len(events) > MaxEvents {
		return nil, fmt.Errorf("config %s: %d PMU events (including the 2 fixed NUMA events) exceeds maximum %d", path, len(events), MaxEvents)
	}

	return &Config{
		Applications:   apps,
		Events:         events,
		NumOfProcesses: fc.NumOfProcesses,
	}, nil
}
