// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package performance

import (
	"context"
	"fmt"
	"os"

	"github.com/go-logr/logr"
)

// Manager coordinates the one-shot hardware inventory collectors that run
// once before the sampling engine's tick loop starts.
type Manager struct {
	config   CollectionConfig
	logger   logr.Logger
	registry *CollectorRegistry
	nodeName string
}

type ManagerOptions struct {
	Config   CollectionConfig
	Logger   logr.Logger
	NodeName string
}

func NewManager(opts ManagerOptions) (*Manager, error) {
	if opts.Logger.GetSink() == nil {
		return nil, fmt.Errorf("logger is required")
	}

	// Get node name from environment if not provided
	nodeName := opts.NodeName
	if nodeName == "" {
		nodeName = os.Getenv("NODE_NAME")
		if nodeName == "" {
			hostname, err := os.Hostname()
			if err != nil {
				return nil, fmt.Errorf("failed to get hostname: %w", err)
			}
			nodeName = hostname
		}
	}

	// Apply defaults to config
	config := opts.Config
	config.ApplyDefaults()

	// Override paths for containerized environments
	if os.Getenv("HOST_PROC") != "" {
		config.HostProcPath = os.Getenv("HOST_PROC")
	}
	if os.Getenv("HOST_SYS") != "" {
		config.HostSysPath = os.Getenv("HOST_SYS")
	}
	if os.Getenv("HOST_DEV") != "" {
		config.HostDevPath = os.Getenv("HOST_DEV")
	}

	m := &Manager{
		config:   config,
		logger:   opts.Logger.WithName("performance-manager"),
		registry: NewCollectorRegistry(opts.Logger),
		nodeName: nodeName,
	}

	return m, nil
}

func (m *Manager) RegisterContinuousCollector(collector ContinuousCollector) error {
	return m.registry.RegisterContinuous(collector)
}

// GetRegistry returns the collector registry for inspection
func (m *Manager) GetRegistry() *CollectorRegistry {
	return m.registry
}

// GetConfig returns the current configuration
func (m *Manager) GetConfig() CollectionConfig {
	return m.config
}

// GetNodeName returns the node name
func (m *Manager) GetNodeName() string {
	return m.nodeName
}

// Bootstrap runs every registered (and enabled) one-shot hardware
// collector exactly once and assembles their results into a
// HardwareInventory. A collector failing to run is logged and skipped;
// Bootstrap only fails if no inventory could be collected at all.
func (m *Manager) Bootstrap(ctx context.Context) (*HardwareInventory, error) {
	inv := NewHardwareInventory()
	collectors := m.registry.GetEnabledContinuous(m.config)
	if len(collectors) == 0 {
		return nil, fmt.Errorf("no hardware inventory collectors registered")
	}

	collected := 0
	for _, c := range collectors {
		ch, err := c.Start(ctx)
		if err != nil {
			m.logger.Error(err, "failed to start inventory collector", "type", c.Type())
			continue
		}
		data, ok := <-ch
		if !ok || data == nil {
			m.logger.Error(c.LastError(), "inventory collector produced no data", "type", c.Type())
			continue
		}
		collected++
		switch c.Type() {
		case MetricTypeCPUInfo:
			if v, ok := data.(*CPUInfo); ok {
				inv.UpdateCPUInfo(v)
			}
		case MetricTypeMemoryInfo:
			if v, ok := data.(*MemoryInfo); ok {
				inv.UpdateMemoryInfo(v)
			}
		case MetricTypeNetworkInfo:
			if v, ok := data.([]NetworkInfo); ok {
				inv.UpdateNetworkInfo(v)
			}
		}
	}

	if collected == 0 {
		return nil, fmt.Errorf("no hardware inventory could be collected")
	}
	return inv, nil
}
