// Package presenter merges the latest sampler outputs into one
// severity-tagged status view. It holds no state of its own: every render
// is a pure function of the samples and configured thresholds.
package presenter

import (
	"fmt"
	"strings"

	"github.com/lspmon/lspmon/internal/config"
	"github.com/lspmon/lspmon/internal/sampler"
)

// Severity orders the display states from least to most urgent.
type Severity string

const (
	Inactive Severity = "inactive"
	Normal   Severity = "normal"
	Warning  Severity = "warning"
	Error    Severity = "error"
)

// View is the rendered status: a compact single-line label and a
// multi-line tooltip for detail on demand.
type View struct {
	Text     string   `json:"text"`
	Severity Severity `json:"severity"`
	Tooltip  string   `json:"tooltip"`
}

// Render merges the latest samples into a view. Nil samples mean the
// metric has no current observation; all nil yields the inactive state.
func Render(cfg *config.Config, memory, cpu, status *sampler.Sample) View {
	if memory == nil && cpu == nil && status == nil {
		return View{
			Text:     cfg.ProcessName + ": not detected",
			Severity: Inactive,
			Tooltip:  fmt.Sprintf("%s is not running or could not be found.", cfg.ProcessName),
		}
	}

	severity := Normal
	var parts []string
	var tooltip []string

	tooltip = append(tooltip, cfg.ProcessName+" status")
	if pid := currentPID(memory, cpu, status); pid != 0 {
		tooltip = append(tooltip, fmt.Sprintf("pid: %d", pid))
	}

	if memory != nil {
		mb := float64(memory.MemoryBytes) / (1024 * 1024)
		parts = append(parts, formatBytes(memory.MemoryBytes))
		tooltip = append(tooltip, fmt.Sprintf("memory: %s (warn %s, error %s)",
			formatBytes(memory.MemoryBytes),
			formatThresholdMB(cfg.Memory.WarningThreshold),
			formatThresholdMB(cfg.Memory.ErrorThreshold)))
		severity = worst(severity, grade(mb, cfg.Memory))
	}

	if cpu != nil {
		parts = append(parts, fmt.Sprintf("%.0f%%", cpu.CPUNormalized))
		tooltip = append(tooltip, fmt.Sprintf("cpu: %.1f%% normalized (%.1f%% raw)",
			cpu.CPUNormalized, cpu.CPURaw))
		severity = worst(severity, grade(cpu.CPUNormalized, cfg.CPU))
	}

	if status != nil {
		if status.Version != "" {
			tooltip = append(tooltip, "version: "+status.Version)
		}
		if !status.Alive {
			severity = worst(severity, Warning)
			tooltip = append(tooltip, "liveness: not responding")
		}
	}

	text := cfg.ProcessName
	if len(parts) > 0 {
		text += " " + strings.Join(parts, " ")
	}

	return View{
		Text:     text,
		Severity: severity,
		Tooltip:  strings.Join(tooltip, "\n"),
	}
}

// grade maps a metric value to a severity against its thresholds. A zero
// threshold disables that level.
func grade(value float64, m config.MetricConfig) Severity {
	if m.ErrorThreshold > 0 && value >= m.ErrorThreshold {
		return Error
	}
	if m.WarningThreshold > 0 && value >= m.WarningThreshold {
		return Warning
	}
	return Normal
}

func worst(a, b Severity) Severity {
	if rank(b) > rank(a) {
		return b
	}
	return a
}

func rank(s Severity) int {
	switch s {
	case Normal:
		return 1
	case Warning:
		return 2
	case Error:
		return 3
	default:
		return 0
	}
}

func currentPID(samples ...*sampler.Sample) int {
	for _, s := range samples {
		if s != nil && s.PID != 0 {
			return s.PID
		}
	}
	return 0
}

func formatBytes(b uint64) string {
	switch {
	case b >= 1024*1024*1024:
		return fmt.Sprintf("%.1fGB", float64(b)/(1024*1024*1024))
	case b >= 1024*1024:
		return fmt.Sprintf("%.0fMB", float64(b)/(1024*1024))
	default:
		return fmt.Sprintf("%dKB", b/1024)
	}
}

func formatThresholdMB(mb float64) string {
	if mb <= 0 {
		return "off"
	}
	return fmt.Sprintf("%.0fMB", mb)
}
