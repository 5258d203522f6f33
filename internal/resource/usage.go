// Package resource periodically samples the agent's own CPU and memory
// usage and exposes them as Prometheus gauges, grounded on the teacher's
// use of shirou/gopsutil in cmd/metrics/main.go (host-level sampling) and
// CPUUsageInfo.cpp's periodic self-sampling in the original implementation.
package resource

import (
	"context"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shirou/gopsutil/process"
	"go.uber.org/zap"
)

var (
	cpuPercentGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "inspection_engine_process_cpu_percent",
		Help: "CPU usage percentage of the inspection engine process.",
	})
	rssBytesGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "inspection_engine_process_rss_bytes",
		Help: "Resident set size of the inspection engine process, in bytes.",
	})
)

// Reporter periodically samples process CPU/RSS until its context is
// cancelled.
type Reporter struct {
	proc   *process.Process
	logger *zap.SugaredLogger
}

// New constructs a Reporter bound to the current process.
func New(logger *zap.SugaredLogger) (*Reporter, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &Reporter{proc: p, logger: logger}, nil
}

// Run samples every interval until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sampleOnce()
		}
	}
}

func (r *Reporter) sampleOnce() {
	if pct, err := r.proc.CPUPercent(); err != nil {
		r.logger.Warnw("resource: failed to sample CPU percent", "error", err)
	} else {
		cpuPercentGauge.Set(pct)
	}

	if mem, err := r.proc.MemoryInfo(); err != nil {
		r.logger.Warnw("resource: failed to sample memory info", "error", err)
	} else {
		rssBytesGauge.Set(float64(mem.RSS))
	}
}
