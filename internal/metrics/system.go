package metrics

import (
	"context"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
)

/* SystemMetrics represents current host metrics for the ops surface */
type SystemMetrics struct {
	Timestamp time.Time      `json:"timestamp"`
	CPU       CPUMetrics     `json:"cpu"`
	Memory    MemoryMetrics  `json:"memory"`
	Disk      DiskMetrics    `json:"disk"`
	Network   NetworkMetrics `json:"network"`
	Process   ProcessMetrics `json:"process"`
}

/* CPUMetrics contains CPU usage information */
type CPUMetrics struct {
	UsagePercent float64 `json:"usage_percent"`
	Count        int     `json:"count"`
}

/* MemoryMetrics contains memory usage information */
type MemoryMetrics struct {
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	Available   uint64  `json:"available"`
	UsedPercent float64 `json:"used_percent"`
}

/* DiskMetrics contains disk usage information */
type DiskMetrics struct {
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	Free        uint64  `json:"free"`
	UsedPercent float64 `json:"used_percent"`
}

/* NetworkMetrics contains network counters */
type NetworkMetrics struct {
	BytesSent   uint64 `json:"bytes_sent"`
	BytesRecv   uint64 `json:"bytes_recv"`
	PacketsSent uint64 `json:"packets_sent"`
	PacketsRecv uint64 `json:"packets_recv"`
}

/* ProcessMetrics contains orchestrator process information */
type ProcessMetrics struct {
	GoRoutines int    `json:"go_routines"`
	HeapAlloc  uint64 `json:"heap_alloc"`
	HeapSys    uint64 `json:"heap_sys"`
	HeapInuse  uint64 `json:"heap_inuse"`
}

/* CollectSystemMetrics gathers host and process metrics. Collection failures
for individual subsystems leave zero values rather than failing the whole
snapshot. */
func CollectSystemMetrics(ctx context.Context) (*SystemMetrics, error) {
	metrics := &SystemMetrics{Timestamp: time.Now().UTC()}

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		metrics.CPU.UsagePercent = percents[0]
	}
	if count, err := cpu.CountsWithContext(ctx, true); err == nil {
		metrics.CPU.Count = count
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		metrics.Memory = MemoryMetrics{
			Total:       vm.Total,
			Used:        vm.Used,
			Available:   vm.Available,
			UsedPercent: vm.UsedPercent,
		}
	}

	if usage, err := disk.UsageWithContext(ctx, "/"); err == nil {
		metrics.Disk = DiskMetrics{
			Total:       usage.Total,
			Used:        usage.Used,
			Free:        usage.Free,
			UsedPercent: usage.UsedPercent,
		}
	}

	if counters, err := net.IOCountersWithContext(ctx, false); err == nil && len(counters) > 0 {
		metrics.Network = NetworkMetrics{
			BytesSent:   counters[0].BytesSent,
			BytesRecv:   counters[0].BytesRecv,
			PacketsSent: counters[0].PacketsSent,
			PacketsRecv: counters[0].PacketsRecv,
		}
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	metrics.Process = ProcessMetrics{
		GoRoutines: runtime.NumGoroutine(),
		HeapAlloc:  memStats.HeapAlloc,
		HeapSys:    memStats.HeapSys,
		HeapInuse:  memStats.HeapInuse,
	}

	return metrics, nil
}
