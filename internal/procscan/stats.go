package procscan

import (
	"context"
	"fmt"
	"math"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"
)

// MemoryBytes returns the resident set size of pid in bytes.
func MemoryBytes(ctx context.Context, pid int) (uint64, error) {
	proc, err := openProcess(ctx, pid)
	if err != nil {
		return 0, err
	}

	memInfo, err := proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("procscan: memory info for pid %d: %w", pid, err)
	}
	if memInfo == nil {
		return 0, fmt.Errorf("procscan: no memory info for pid %d", pid)
	}
	return memInfo.RSS, nil
}

// CPUPercent returns the raw CPU usage of pid. On multi-core systems the
// value can exceed 100; use NumCores to normalize for display.
func CPUPercent(ctx context.Context, pid int) (float64, error) {
	proc, err := openProcess(ctx, pid)
	if err != nil {
		return 0, err
	}

	pct, err := proc.CPUPercentWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("procscan: cpu percent for pid %d: %w", pid, err)
	}
	return pct, nil
}

// NumCores returns the logical core count, minimum 1.
func NumCores(ctx context.Context) int {
	n, err := cpu.CountsWithContext(ctx, true)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// Exists reports whether pid is still present in the process table.
func Exists(ctx context.Context, pid int) bool {
	if pid <= 0 || pid > math.MaxInt32 {
		return false
	}
	ok, err := process.PidExistsWithContext(ctx, int32(pid))
	return err == nil && ok
}

func openProcess(ctx context.Context, pid int) (*process.Process, error) {
	if pid <= 0 || pid > math.MaxInt32 {
		return nil, fmt.Errorf("procscan: pid %d out of range", pid)
	}
	proc, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return nil, fmt.Errorf("procscan: pid %d not found: %w", pid, err)
	}
	return proc, nil
}
