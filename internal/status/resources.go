package status

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"pushflow/logger"
)

type resourceSample struct {
	Timestamp   time.Time `json:"timestamp"`
	CPUPercent  float64   `json:"cpu_percent"`
	MemoryUsed  uint64    `json:"memory_used"`
	MemoryTotal uint64    `json:"memory_total"`
	MemoryPct   float64   `json:"memory_percent"`
	DiskUsed    uint64    `json:"disk_used"`
	DiskTotal   uint64    `json:"disk_total"`
	DiskPct     float64   `json:"disk_percent"`
}

var (
	cpuPercentFn = func(ctx context.Context, interval time.Duration) ([]float64, error) {
		return cpu.PercentWithContext(ctx, interval, false)
	}
	memoryStatsFn = mem.VirtualMemoryWithContext
	diskUsageFn   = disk.UsageWithContext
)

// sampler records host cpu, memory and disk usage every interval.
type sampler struct {
	samples  *ring[resourceSample]
	interval time.Duration
	diskPath string
	log      *logger.Entry

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newSampler(limit int, interval time.Duration, diskPath string) *sampler {
	if interval <= 0 {
		interval = time.Second
	}
	if diskPath == "" {
		diskPath = "/"
	}
	return &sampler{
		samples:  newRing[resourceSample](limit),
		interval: interval,
		diskPath: diskPath,
		log:      logger.GetLogger().WithComponent("resource_sampler"),
	}
}

func (s *sampler) start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

func (s *sampler) stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *sampler) run(ctx context.Context) {
	for ctx.Err() == nil {
		// cpu.Percent blocks for one interval
		sample, err := s.sample(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.log.WithError(err).Debug("failed to sample resources")
				select {
				case <-ctx.Done():
				case <-time.After(s.interval):
				}
			}
			continue
		}
		s.samples.add(sample)
	}
}

func (s *sampler) sample(ctx context.Context) (resourceSample, error) {
	cpuPct, err := cpuPercentFn(ctx, s.interval)
	if err != nil {
		return resourceSample{}, err
	}
	vm, err := memoryStatsFn(ctx)
	if err != nil {
		return resourceSample{}, err
	}
	du, err := diskUsageFn(ctx, s.diskPath)
	if err != nil {
		return resourceSample{}, err
	}

	out := resourceSample{
		Timestamp:   time.Now(),
		MemoryUsed:  vm.Used,
		MemoryTotal: vm.Total,
		MemoryPct:   vm.UsedPercent,
		DiskUsed:    du.Used,
		DiskTotal:   du.Total,
		DiskPct:     du.UsedPercent,
	}
	if len(cpuPct) > 0 {
		out.CPUPercent = cpuPct[0]
	}
	return out, nil
}
