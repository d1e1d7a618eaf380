package monitor

import (
	"context"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// PoolReporter exposes worker pool occupancy. Running must count busy
// workers only; *ingestion.Engine does. A bare *ants.Pool also counts idle
// workers that have not expired yet.
type PoolReporter interface {
	Cap() int
	Running() int
}

// SystemSampler reads host resource usage.
type SystemSampler interface {
	// Sample returns CPU and memory utilization in percent.
	Sample(ctx context.Context) (cpuPercent, memPercent float64, err error)
}

// HostSampler samples the local host through gopsutil.
type HostSampler struct{}

var _ SystemSampler = HostSampler{}

// Sample returns CPU usage since the previous call and current memory usage.
func (HostSampler) Sample(ctx context.Context) (float64, float64, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, 0, err
	}
	var cpuPercent float64
	if len(percents) > 0 {
		cpuPercent = percents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return cpuPercent, 0, err
	}
	return cpuPercent, vm.UsedPercent, nil
}

// poolUsage sums capacity and occupancy over reporters.
func poolUsage(reporters []PoolReporter) (size, running int, utilization float64) {
	for _, r := range reporters {
		if c := r.Cap(); c > 0 {
			size += c
		}
		running += r.Running()
	}
	if size > 0 {
		utilization = float64(running) / float64(size)
	}
	return size, running, utilization
}
