package observability

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/process"
)

// MonitoringStats is what /health exposes besides the live counts.
type MonitoringStats struct {
	PingsDelivered uint64  `json:"pings_delivered"`
	PingsQueued    uint64  `json:"pings_queued"`
	PingsDropped   uint64  `json:"pings_dropped"`
	RSSBytes       uint64  `json:"rss_bytes"`
	CPUPercent     float64 `json:"cpu_percent"`
	AllocMemMb     uint64  `json:"alloc_mem_mb"`
	NumGC          uint32  `json:"num_gc"`
	Goroutines     int     `json:"goroutines"`
}

// MonitoringManager counts ping outcomes and samples the process resources.
type MonitoringManager struct {
	log      *slog.Logger
	interval time.Duration

	delivered atomic.Uint64
	queued    atomic.Uint64
	dropped   atomic.Uint64

	mu     sync.RWMutex
	system MonitoringStats
}

func NewMonitoringManager(log *slog.Logger, interval time.Duration) *MonitoringManager {
	return &MonitoringManager{log: log, interval: interval}
}

func (mm *MonitoringManager) PingDelivered() {
	mm.delivered.Add(1)
}

func (mm *MonitoringManager) PingQueued() {
	mm.queued.Add(1)
}

func (mm *MonitoringManager) PingsDropped(n int) {
	if n > 0 {
		mm.dropped.Add(uint64(n))
	}
}

// Run samples process stats on every tick until ctx is done.
func (mm *MonitoringManager) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}
	mm.updateStats(p)

	ticker := time.NewTicker(mm.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			mm.updateStats(p)
		}
	}
}

func (mm *MonitoringManager) updateStats(p *process.Process) {
	var stats MonitoringStats
	if memInfo, err := p.MemoryInfo(); err == nil {
		stats.RSSBytes = memInfo.RSS
	} else {
		mm.log.Debug("Failed to read process memory", "error", err)
	}
	if cpu, err := p.CPUPercent(); err == nil {
		stats.CPUPercent = cpu
	} else {
		mm.log.Debug("Failed to read process cpu", "error", err)
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	stats.AllocMemMb = m.Alloc / 1024 / 1024
	stats.NumGC = m.NumGC
	stats.Goroutines = runtime.NumGoroutine()

	mm.mu.Lock()
	mm.system = stats
	mm.mu.Unlock()
}

// GetLatest returns the counters and the last process sample.
func (mm *MonitoringManager) GetLatest() MonitoringStats {
	mm.mu.RLock()
	stats := mm.system
	mm.mu.RUnlock()

	stats.PingsDelivered = mm.delivered.Load()
	stats.PingsQueued = mm.queued.Load()
	stats.PingsDropped = mm.dropped.Load()
	return stats
}
