package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lspmon/lspmon/internal/detect"
	"github.com/lspmon/lspmon/internal/monitor"
	"github.com/lspmon/lspmon/internal/presenter"
	"github.com/lspmon/lspmon/internal/procscan"
	"github.com/lspmon/lspmon/internal/sampler"
)

var diagFormat string

// showStatus detects the target process and takes one sample of each
// metric without starting the monitoring loop.
func showStatus() {
	cfg := loadConfig()
	initLogging(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	enum := procscan.NewEnumerator(time.Duration(cfg.CommandTimeoutMs) * time.Millisecond)
	runner := detect.NewRunner(enum, os.Getpid(), hints)

	result := runner.Detect(ctx, cfg.ProcessName)
	if !result.Success {
		if jsonOut {
			json.NewEncoder(os.Stdout).Encode(map[string]any{
				"detected":    false,
				"processName": cfg.ProcessName,
				"failure":     enum.LastFailure(),
			})
		} else {
			fmt.Printf("%s: not detected\n", cfg.ProcessName)
		}
		os.Exit(1)
	}

	pid := result.Process.PID
	probeTimeout := time.Duration(cfg.CommandTimeoutMs) * time.Millisecond

	probes := []sampler.Probe{
		sampler.MemoryProbe{},
		sampler.NewCPUProbe(ctx),
		sampler.NewStatusProbe(cfg.ProcessName, probeTimeout),
	}
	samples := make(map[string]*sampler.Sample, len(probes))
	for _, p := range probes {
		s, err := p.Sample(ctx, pid)
		if err != nil {
			continue
		}
		samples[p.Metric()] = &s
	}

	if jsonOut {
		json.NewEncoder(os.Stdout).Encode(map[string]any{
			"detected":       true,
			"processName":    cfg.ProcessName,
			"pid":            pid,
			"method":         result.Method,
			"candidateCount": result.CandidateCount,
			"samples":        samples,
		})
		return
	}

	view := presenter.Render(cfg, samples["memory"], samples["cpu"], samples["status"])
	fmt.Printf("%s (pid %d, via %s)\n", cfg.ProcessName, pid, result.Method)
	fmt.Printf("  [%s] %s\n", view.Severity, view.Text)
	if view.Tooltip != "" {
		fmt.Printf("  %s\n", view.Tooltip)
	}
}

// forceRestart kills every process with the target name, waits for the
// restart, and confirms re-detection.
func forceRestart() {
	cfg := loadConfig()
	initLogging(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	enum := procscan.NewEnumerator(time.Duration(cfg.CommandTimeoutMs) * time.Millisecond)

	var restarter monitor.ServiceRestarter
	if cfg.Restart.RestartCommand != "" {
		restarter = execRestarter{command: cfg.Restart.RestartCommand}
	}

	coord := monitor.New(cfg, buildSamplerFactory(), enum, nil, restarter)
	defer coord.Dispose()

	fmt.Printf("Restarting %s...\n", cfg.ProcessName)
	if err := coord.Restart(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Restart failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%s restarted\n", cfg.ProcessName)
}

// showDiagnostics runs a full scan, bypassing any host hint, and prints
// the report in the requested format.
func showDiagnostics() {
	cfg := loadConfig()
	initLogging(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	enum := procscan.NewEnumerator(time.Duration(cfg.CommandTimeoutMs) * time.Millisecond)
	runner := detect.NewRunner(enum, os.Getpid(), hints)

	report := runner.Diagnose(ctx, cfg.ProcessName)

	switch diagFormat {
	case "yaml":
		out, err := yaml.Marshal(report)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode report: %v\n", err)
			os.Exit(1)
		}
		os.Stdout.Write(out)
	default:
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode report: %v\n", err)
			os.Exit(1)
		}
	}
}
