package telemetry

import (
	"context"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v4/process"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const PerfStatsSchedule = "@every 30s"

var (
	meter                 = otel.Meter("platewatch/lib/telemetry")
	rssGauge, _           = meter.Int64Gauge("process_rss_mb")
	heapGauge, _          = meter.Int64Gauge("go_heap_alloc_mb")
	goroutineGauge, _     = meter.Int64Gauge("goroutine_count")
	childrenRssGauge, _   = meter.Int64Gauge("child_processes_rss_mb")
	childrenCountGauge, _ = meter.Int64Gauge("child_process_count")
)

// PerfSample is a memory snapshot of this process and the processes it
// spawned, the browser runs as a child.
type PerfSample struct {
	RssMB         int64
	HeapAllocMB   int64
	Goroutines    int64
	ChildrenRssMB int64
	Children      int64
}

type PerfStats struct {
	self *process.Process
}

func NewPerfStats() (PerfStats, error) {
	self, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return PerfStats{}, err
	}
	return PerfStats{self: self}, nil
}

// Sample reads the current numbers, children that exit while being read are
// skipped.
func (p PerfStats) Sample(ctx context.Context) (PerfSample, error) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	sample := PerfSample{
		HeapAllocMB: int64(memStats.HeapAlloc / 1_000_000),
		Goroutines:  int64(runtime.NumGoroutine()),
	}

	mem, err := p.self.MemoryInfoWithContext(ctx)
	if err != nil {
		return PerfSample{}, err
	}
	sample.RssMB = int64(mem.RSS / 1_000_000)

	children, err := p.self.ChildrenWithContext(ctx)
	if err != nil {
		// gopsutil reports no children as an error
		return sample, nil
	}
	for _, child := range children {
		childMem, err := child.MemoryInfoWithContext(ctx)
		if err != nil {
			continue
		}
		sample.Children++
		sample.ChildrenRssMB += int64(childMem.RSS / 1_000_000)
	}
	return sample, nil
}

// Record samples and records the gauges.
func (p PerfStats) Record(ctx context.Context) (PerfSample, error) {
	sample, err := p.Sample(ctx)
	if err != nil {
		return PerfSample{}, err
	}
	attrs := metric.WithAttributes(attribute.Int("pid", os.Getpid()))
	rssGauge.Record(ctx, sample.RssMB, attrs)
	heapGauge.Record(ctx, sample.HeapAllocMB, attrs)
	goroutineGauge.Record(ctx, sample.Goroutines, attrs)
	childrenRssGauge.Record(ctx, sample.ChildrenRssMB, attrs)
	childrenCountGauge.Record(ctx, sample.Children, attrs)
	return sample, nil
}
