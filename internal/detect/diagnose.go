package detect

import (
	"context"
	"fmt"
	"time"
)

// Report is a structured troubleshooting snapshot of one detection pass,
// intended for support tooling rather than the live status display.
type Report struct {
	Timestamp          time.Time `json:"timestamp" yaml:"timestamp"`
	OurPID             int       `json:"ourPid" yaml:"ourPid"`
	ProcessName        string    `json:"processName" yaml:"processName"`
	ProcessCount       int       `json:"processCount" yaml:"processCount"`
	DirectChildren     []int     `json:"directChildren" yaml:"directChildren"`
	Grandchildren      []int     `json:"grandchildren" yaml:"grandchildren"`
	Orphans            []int     `json:"orphans" yaml:"orphans"`
	SelectedPID        int       `json:"selectedPid,omitempty" yaml:"selectedPid,omitempty"`
	Method             Method    `json:"method" yaml:"method"`
	DetectionTimeMs    int64     `json:"detectionTimeMs" yaml:"detectionTimeMs"`
	TotalMemoryKB      uint64    `json:"totalMemoryKb" yaml:"totalMemoryKb"`
	EnumerationFailure string    `json:"enumerationFailure,omitempty" yaml:"enumerationFailure,omitempty"`
	Recommendations    []string  `json:"recommendations" yaml:"recommendations"`
}

const leakSuspicionThreshold = 3

// highTotalMemoryKB flags combined candidate usage worth a restart
// suggestion (4 GiB).
const highTotalMemoryKB = 4 * 1024 * 1024

// Diagnose runs a full heuristic pass (the host hint is deliberately
// bypassed so the report reflects what the scan actually sees) and applies
// simple rules to produce textual recommendations.
func (r *Runner) Diagnose(ctx context.Context, name string) Report {
	start := time.Now()
	candidates := r.enum.ListByName(ctx, name)
	classification := Classify(r.ourPID, candidates)
	selected := Select(classification)

	report := Report{
		Timestamp:          time.Now().UTC(),
		OurPID:             r.ourPID,
		ProcessName:        name,
		ProcessCount:       len(candidates),
		DirectChildren:     pids(classification.DirectChildren),
		Grandchildren:      pids(classification.Grandchildren),
		Orphans:            pids(classification.Orphans),
		Method:             MethodHeuristicScan,
		DetectionTimeMs:    time.Since(start).Milliseconds(),
		EnumerationFailure: r.enum.LastFailure(),
	}

	for _, rec := range candidates {
		report.TotalMemoryKB += rec.ResidentMemoryKB
	}

	if selected != nil {
		report.SelectedPID = selected.PID
	} else {
		report.Method = MethodFailed
	}

	report.Recommendations = recommend(report)
	return report
}

func recommend(r Report) []string {
	var recs []string

	if r.ProcessCount == 0 {
		recs = append(recs, fmt.Sprintf("no %q processes found; verify it is installed and the editor has started it", r.ProcessName))
		if r.EnumerationFailure != "" {
			recs = append(recs, "process enumeration reported problems; check that system process-listing tools are available")
		}
		return recs
	}

	if len(r.DirectChildren) == 0 {
		recs = append(recs, "no direct children found; restarting the host may clear stale processes")
	}

	if len(r.DirectChildren) > leakSuspicionThreshold {
		recs = append(recs, fmt.Sprintf("%d direct children detected; possible process leak, consider restarting", len(r.DirectChildren)))
	}

	if r.TotalMemoryKB > highTotalMemoryKB {
		recs = append(recs, fmt.Sprintf("combined memory usage is %d MB; consider restarting the server", r.TotalMemoryKB/1024))
	}

	if len(recs) == 0 {
		recs = append(recs, "process tree looks healthy")
	}
	return recs
}

func pids(infos []ProcessInfo) []int {
	out := make([]int, 0, len(infos))
	for _, info := range infos {
		out = append(out, info.PID)
	}
	return out
}
