package sampler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lspmon/lspmon/internal/procscan"
)

// MemoryProbe samples the resident set size of the target pid.
type MemoryProbe struct{}

func (MemoryProbe) Metric() string { return "memory" }

func (MemoryProbe) Sample(ctx context.Context, pid int) (Sample, error) {
	bytes, err := procscan.MemoryBytes(ctx, pid)
	if err != nil {
		return Sample{}, err
	}
	return Sample{MemoryBytes: bytes}, nil
}

// CPUProbe samples CPU usage. Raw percent is per logical core and can
// exceed 100; the normalized value divides by the core count.
type CPUProbe struct {
	cores int
}

// NewCPUProbe snapshots the logical core count once; it does not change
// while we run.
func NewCPUProbe(ctx context.Context) *CPUProbe {
	return &CPUProbe{cores: procscan.NumCores(ctx)}
}

func (p *CPUProbe) Metric() string { return "cpu" }

func (p *CPUProbe) Sample(ctx context.Context, pid int) (Sample, error) {
	raw, err := procscan.CPUPercent(ctx, pid)
	if err != nil {
		return Sample{}, err
	}
	return Sample{CPURaw: raw, CPUNormalized: Normalize(raw, p.cores)}, nil
}

// Normalize converts a raw per-core percentage to an approximate
// system-wide share.
func Normalize(raw float64, cores int) float64 {
	if cores < 1 {
		cores = 1
	}
	return raw / float64(cores)
}

// StatusProbe checks liveness and reports the server's version string.
// The version is probed once and reused: a binary does not change version
// while the same pid is alive. Sample is safe for concurrent use; a
// forced refresh can overlap the sampler's own tick.
type StatusProbe struct {
	binary       string
	probeTimeout time.Duration

	mu         sync.Mutex
	versionPID int
	version    string
}

// NewStatusProbe creates a liveness/version probe for the named binary.
func NewStatusProbe(binary string, probeTimeout time.Duration) *StatusProbe {
	return &StatusProbe{binary: binary, probeTimeout: probeTimeout}
}

func (p *StatusProbe) Metric() string { return "status" }

func (p *StatusProbe) Sample(ctx context.Context, pid int) (Sample, error) {
	if !procscan.Exists(ctx, pid) {
		return Sample{}, fmt.Errorf("sampler: pid %d no longer exists", pid)
	}

	return Sample{Alive: true, Version: p.versionFor(ctx, pid)}, nil
}

// versionFor returns the cached version, probing the binary the first
// time a pid is seen. The lock is held across the probe so overlapping
// callers do not spawn duplicate version processes.
func (p *StatusProbe) versionFor(ctx context.Context, pid int) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.versionPID != pid {
		version, err := procscan.ProbeVersion(ctx, p.binary, p.probeTimeout)
		if err != nil {
			log.Debug("version probe failed", "binary", p.binary, "error", err)
		} else {
			p.version = version
			p.versionPID = pid
		}
	}
	return p.version
}
