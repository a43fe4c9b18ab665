// Package memory watches process memory and sheds buffered audio when the
// resident set grows past configured thresholds.
package memory

import (
	"context"
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

const mib = 1024 * 1024

// Sample is one memory reading.
type Sample struct {
	RSSBytes          uint64
	SystemUsedPercent float64
}

// RSSMB reports resident memory in MiB.
func (s Sample) RSSMB() float64 {
	return float64(s.RSSBytes) / mib
}

// Sampler reads current memory usage.
type Sampler interface {
	Sample(ctx context.Context) (Sample, error)
}

// SamplerFunc adapts a function to Sampler.
type SamplerFunc func(ctx context.Context) (Sample, error)

func (f SamplerFunc) Sample(ctx context.Context) (Sample, error) {
	return f(ctx)
}

// ProcessSampler samples this process's RSS and system memory via gopsutil.
type ProcessSampler struct {
	proc *process.Process
}

// NewProcessSampler binds a sampler to the current pid.
func NewProcessSampler(ctx context.Context) (*ProcessSampler, error) {
	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("open process stats: %w", err)
	}
	return &ProcessSampler{proc: proc}, nil
}

// Sample reads RSS and system used percent.
func (p *ProcessSampler) Sample(ctx context.Context) (Sample, error) {
	info, err := p.proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return Sample{}, fmt.Errorf("read process memory: %w", err)
	}
	sample := Sample{RSSBytes: info.RSS}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		sample.SystemUsedPercent = vm.UsedPercent
	}
	return sample, nil
}

// Health levels for one-shot diagnostics.
const (
	HealthOK       = "ok"
	HealthWarning  = "warning"
	HealthCritical = "critical"
)

const (
	healthWarnMB       = 1000
	healthCriticalMB   = 2000
	healthSystemPctMax = 90
)

// Assess grades a sample against fixed diagnostic thresholds.
func Assess(s Sample) (string, string) {
	rss := s.RSSMB()
	switch {
	case rss > healthCriticalMB:
		return HealthCritical, fmt.Sprintf("process memory %.0f MB exceeds %d MB", rss, healthCriticalMB)
	case s.SystemUsedPercent > healthSystemPctMax:
		return HealthCritical, fmt.Sprintf("system memory %.1f%% used", s.SystemUsedPercent)
	case rss > healthWarnMB:
		return HealthWarning, fmt.Sprintf("process memory %.0f MB exceeds %d MB", rss, healthWarnMB)
	default:
		return HealthOK, fmt.Sprintf("process memory %.0f MB, system %.1f%% used", rss, s.SystemUsedPercent)
	}
}
