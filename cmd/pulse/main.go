// Copyright 2025 Antimetal Inc.
//
// Licensed under the PolyForm Shield License 1.0.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at:
//
//     https://polyformproject.org/licenses/shield/1.0.0/
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command pulse is the whole-node telemetry sampler. It runs a
// single-threaded tick loop that snapshots /proc, derives per-process
// rates, attaches PMU counters to the busiest processes, samples
// frequency/IRQ/network deltas, polls cooperating applications, and
// appends one fixed-shape binary record per tick.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/antimetal/pulse/pkg/performance"
	"github.com/antimetal/pulse/pkg/performance/collectors"
	"github.com/antimetal/pulse/pkg/performance/procutils"
	"github.com/antimetal/pulse/pkg/sampler"
)

var (
	intervalMs     = flag.Int64("i", 0, "Sample interval in milliseconds (required)")
	configPath     = flag.String("c", "", "Path to JSON config file (required)")
	outputPath     = flag.String("o", "", "Path to output binary record file (required)")
	verbose        = flag.Bool("verbose", false, "Enable verbose logging")
	metricsAddress = flag.String("metrics-address", "", "If set, serve Prometheus metrics on this address")
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s -i <interval_ms> -c <config.json> -o <output.bin>\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *intervalMs <= 0 || *configPath == "" || *outputPath == "" {
		usage()
		os.Exit(1)
	}

	var zapLog *zap.Logger
	if *verbose {
		zapLog, _ = zap.NewDevelopment()
	} else {
		zapLog, _ = zap.NewProduction()
	}
	defer zapLog.Sync()
	logger := zapr.NewLogger(zapLog)

	if err := run(logger); err != nil {
		logger.Error(err, "fatal error")
		os.Exit(1)
	}
}

func run(logger logr.Logger) error {
	cfg, err := sampler.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	registry := prometheus.NewRegistry()
	var metrics *sampler.Metrics
	if *metricsAddress != "" {
		metrics = sampler.NewMetrics(registry)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: *metricsAddress, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error(err, "metrics server exited")
			}
		}()
	}

	inventory, err := bootstrapHardware(logger)
	if err != nil {
		return fmt.Errorf("bootstrap hardware inventory: %w", err)
	}

	// Fall back to the runtime's CPU count when no usable CPU inventory
	// was collected.
	numCores := runtime.NumCPU()
	if inventory.CPU != nil && inventory.CPU.LogicalCores > 0 {
		numCores = int(inventory.CPU.LogicalCores)
	}

	pageSize, err := procPageSize()
	if err != nil {
		return fmt.Errorf("determine page size: %w", err)
	}
	var physPages uint64
	if inventory.Memory != nil && pageSize > 0 {
		physPages = inventory.Memory.TotalBytes / uint64(pageSize)
	}

	engine, err := sampler.NewEngine(sampler.EngineOptions{
		ProcPath:         "/proc",
		SysPath:          "/sys",
		DevPath:          "/dev",
		Config:           cfg,
		NumCores:         numCores,
		Memory:           sampler.MemoryContext{PhysPages: physPages, PageSize: uint64(pageSize)},
		SampleIntervalUs: *intervalMs * 1000,
		OutputPath:       *outputPath,
		Metrics:          metrics,
		Logger:           logger,
	})
	if err != nil {
		return fmt.Errorf("initialize engine: %w", err)
	}
	defer engine.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("signal received, shutting down after current tick")
		cancel()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		tickStart := time.Now()
		if err := engine.Tick(); err != nil {
			return fmt.Errorf("tick: %w", err)
		}

		// The measurement window inside Tick already accounts for most
		// of the interval; this only covers the remainder so ticks
		// start at a roughly steady cadence.
		elapsed := time.Since(tickStart)
		interval := time.Duration(*intervalMs) * time.Millisecond
		if remaining := interval - elapsed; remaining > 0 {
			select {
			case <-time.After(remaining):
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// bootstrapHardware runs the one-shot hardware inventory collectors
// (CPU, memory, network) once before entering the tick loop. Nothing
// registers these collectors automatically, so they're wired into the
// manager's registry by hand.
func bootstrapHardware(logger logr.Logger) (*performance.HardwareInventory, error) {
	config := performance.DefaultCollectionConfig()
	mgr, err := performance.NewManager(performance.ManagerOptions{
		Config: config,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	cpuInfoCollector := collectors.NewCPUInfoCollector(logger, mgr.GetConfig())
	if err := mgr.RegisterContinuousCollector(
		performance.NewOnceContinuousCollector(cpuInfoCollector, mgr.GetConfig(), logger),
	); err != nil {
		return nil, err
	}

	memInfoCollector, err := collectors.NewMemoryInfoCollector(logger, mgr.GetConfig())
	if err != nil {
		return nil, err
	}
	if err := mgr.RegisterContinuousCollector(
		performance.NewOnceContinuousCollector(memInfoCollector, mgr.GetConfig(), logger),
	); err != nil {
		return nil, err
	}

	netInfoCollector, err := collectors.NewNetworkInfoCollector(logger, mgr.GetConfig())
	if err != nil {
		return nil, err
	}
	if err := mgr.RegisterContinuousCollector(
		performance.NewOnceContinuousCollector(netInfoCollector, mgr.GetConfig(), logger),
	); err != nil {
		return nil, err
	}

	return mgr.Bootstrap(context.Background())
}

func procPageSize() (int64, error) {
	pu := procutils.New("/proc")
	return pu.GetPageSize()
}
