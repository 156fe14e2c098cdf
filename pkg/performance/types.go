// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package performance

import (
	"time"
)

// MetricType represents the type of performance metric
type MetricType string

const (
	MetricTypeCPU MetricType = "cpu"
	// Hardware configuration collectors, collected once at startup
	MetricTypeCPUInfo     MetricType = "cpu_info"
	MetricTypeMemoryInfo  MetricType = "memory_info"
	MetricTypeNetworkInfo MetricType = "network_info"
)

// CollectorStatus represents the operational status of a collector
type CollectorStatus string

const (
	CollectorStatusActive   CollectorStatus = "active"
	CollectorStatusDegraded CollectorStatus = "degraded"
	CollectorStatusFailed   CollectorStatus = "failed"
	CollectorStatusDisabled CollectorStatus = "disabled"
)

// CollectionConfig represents configuration for the hardware inventory
// bootstrap collectors. The per-tick sampling engine has its own
// configuration (pkg/sampler.Config); this type only governs the
// one-shot startup collectors in this package.
type CollectionConfig struct {
	Interval          time.Duration
	EnabledCollectors map[MetricType]bool
	HostProcPath      string // Path to /proc (useful for containers)
	HostSysPath       string // Path to /sys (useful for containers)
	HostDevPath       string // Path to /dev (useful for containers)
}

// DefaultCollectionConfig returns a default configuration
func DefaultCollectionConfig() CollectionConfig {
	return CollectionConfig{
		Interval: time.Second,
		EnabledCollectors: map[MetricType]bool{
			MetricTypeCPU:         true,
			MetricTypeCPUInfo:     true,
			MetricTypeMemoryInfo:  true,
			MetricTypeNetworkInfo: true,
		},
		HostProcPath: "/proc",
		HostSysPath:  "/sys",
		HostDevPath:  "/dev",
	}
}

// ApplyDefaults fills in zero values with defaults
func (c *CollectionConfig) ApplyDefaults() {
	defaults := DefaultCollectionConfig()

	if c.Interval == 0 {
		c.Interval = defaults.Interval
	}
	if c.EnabledCollectors == nil {
		c.EnabledCollectors = defaults.EnabledCollectors
	}
	if c.HostProcPath == "" {
		c.HostProcPath = defaults.HostProcPath
	}
	if c.HostSysPath == "" {
		c.HostSysPath = defaults.HostSysPath
	}
	if c.HostDevPath == "" {
		c.HostDevPath = defaults.HostDevPath
	}
}

// CPUStats represents per-CPU statistics from /proc/stat
type CPUStats struct {
	// CPU index (-1 for aggregate "cpu" line, 0+ for "cpu0", "cpu1", etc.)
	CPUIndex int32
	// Time spent in different CPU states (in USER_HZ units from /proc/stat)
	User      uint64 // Time in user mode
	Nice      uint64 // Time in user mode with low priority (nice)
	System    uint64 // Time in system mode
	Idle      uint64 // Time spent idle
	IOWait    uint64 // Time waiting for I/O completion
	IRQ       uint64 // Time servicing interrupts
	SoftIRQ   uint64 // Time servicing softirqs
	Steal     uint64 // Time stolen by other operating systems in virtualized environment
	Guest     uint64 // Time spent running a virtual CPU for guest OS
	GuestNice uint64 // Time spent running a niced guest
	// Calculated fields
	Utilization float64 // Percentage 0-100
	// Delta values for rate calculation
	DeltaTotal uint64
}

// CPUInfo represents CPU hardware configuration
type CPUInfo struct {
	// CPU counts
	// PhysicalCores represents the number of physical CPU cores. If physical topology
	// information is unavailable (e.g., in virtualized environments), this field falls
	// back to counting logical cores instead. This behavior ensures compatibility but
	// may not always reflect the actual physical core count.
	PhysicalCores int32
	LogicalCores  int32
	// CPU identification
	ModelName string
	VendorID  string
	CPUFamily int32 // CPU family number (e.g., 6, 15, 23)
	Model     int32 // CPU model number (e.g., 85, 94, 69)
	Stepping  int32 // CPU stepping number (e.g., 1, 2, 7)
	Microcode string
	// CPU frequencies
	CPUMHz    float64 // Current frequency from /proc/cpuinfo
	CPUMinMHz float64 // Minimum frequency from /sys/devices/system/cpu/cpu0/cpufreq/
	CPUMaxMHz float64 // Maximum frequency from /sys/devices/system/cpu/cpu0/cpufreq/
	// Cache sizes (from /proc/cpuinfo)
	CacheSize      string
	CacheAlignment int32
	// CPU features
	Flags []string // CPU flags/features
	// NUMA information
	NUMANodes int32
	// Additional info
	BogoMIPS float64
	// Per-core info if needed
	Cores []CPUCore
}

// CPUCore represents per-core CPU information
type CPUCore struct {
	Processor  int32   // Processor number
	CoreID     int32   // Physical core ID
	PhysicalID int32   // Physical package ID
	Siblings   int32   // Number of siblings
	CPUMHz     float64 // Current frequency
}

// MemoryInfo represents memory hardware configuration
type MemoryInfo struct {
	// Total memory from /proc/meminfo
	TotalBytes uint64
	// NUMA configuration from /sys/devices/system/node/
	NUMANodes []NUMANode
}

// NUMANode represents a NUMA memory node
type NUMANode struct {
	NodeID     int32
	TotalBytes uint64
	CPUs       []int32 // CPU cores in this NUMA node
}

// NetworkInfo represents network interface hardware configuration
type NetworkInfo struct {
	// Interface identification
	Interface string // Interface name
	Driver    string // From /sys/class/net/[interface]/device/driver
	// Hardware properties
	MACAddress string // From /sys/class/net/[interface]/address
	Speed      uint64 // Mbps from /sys/class/net/[interface]/speed
	Duplex     string // From /sys/class/net/[interface]/duplex
	// Configuration
	MTU uint32 // From /sys/class/net/[interface]/mtu
	// Interface type
	Type string // ethernet, wireless, loopback, etc.
	// State
	OperState string // From /sys/class/net/[interface]/operstate
	Carrier   bool   // From /sys/class/net/[interface]/carrier
}
