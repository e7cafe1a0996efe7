package detect

import (
	"context"
	"fmt"
	"time"

	"github.com/lspmon/lspmon/internal/procscan"
)

// Method identifies how a detection result was produced.
type Method string

const (
	MethodHostHint      Method = "host-hint"
	MethodHeuristicScan Method = "heuristic-scan"
	MethodFailed        Method = "failed"
)

// Result is the outcome of one detection attempt.
type Result struct {
	Success        bool          `json:"success"`
	Process        *ProcessInfo  `json:"process,omitempty"`
	Method         Method        `json:"method"`
	CandidateCount int           `json:"candidateCount"`
	DebugInfo      string        `json:"debugInfo,omitempty"`
	Duration       time.Duration `json:"-"`
}

// HostHintProvider is the optional capability a cooperating host exposes:
// a direct report of the worker's pid, strictly more reliable than
// heuristics.
type HostHintProvider interface {
	// MainProcessPID returns the authoritative pid, if the host knows it.
	MainProcessPID() (int, bool)
}

// Enumerator is the process-listing dependency; satisfied by
// procscan.Enumerator.
type Enumerator interface {
	ListByName(ctx context.Context, name string) []procscan.ProcessRecord
	LastFailure() string
}

// Runner orchestrates detection: host hint first, heuristic scan as the
// fallback of last resort. One attempt per call, no internal retries.
type Runner struct {
	enum   Enumerator
	ourPID int
	hint   HostHintProvider // may be nil
}

// NewRunner creates a detection runner. hint may be nil when the host
// offers no pid reporting.
func NewRunner(enum Enumerator, ourPID int, hint HostHintProvider) *Runner {
	return &Runner{enum: enum, ourPID: ourPID, hint: hint}
}

// Detect locates the main process named name. A host hint, when available,
// is trusted uncritically: ancestry and memory are unknown and left zero.
func (r *Runner) Detect(ctx context.Context, name string) Result {
	start := time.Now()

	if r.hint != nil {
		if pid, ok := r.hint.MainProcessPID(); ok && pid > 0 {
			log.Debug("host hint reported pid", "pid", pid)
			return Result{
				Success: true,
				Process: &ProcessInfo{
					ProcessRecord: procscan.ProcessRecord{PID: pid, Name: name},
					IsMainProcess: true,
				},
				Method:         MethodHostHint,
				CandidateCount: 1,
				DebugInfo:      fmt.Sprintf("host reported pid %d", pid),
				Duration:       time.Since(start),
			}
		}
	}

	candidates := r.enum.ListByName(ctx, name)
	classification := Classify(r.ourPID, candidates)
	selected := Select(classification)

	res := Result{
		Process:        selected,
		CandidateCount: len(candidates),
		Duration:       time.Since(start),
	}

	if selected == nil {
		res.Method = MethodFailed
		res.DebugInfo = fmt.Sprintf("no candidates for %q", name)
		if reason := r.enum.LastFailure(); reason != "" {
			res.DebugInfo += ": " + reason
		}
		log.Debug("detection failed", "name", name, "durationMs", res.Duration.Milliseconds())
		return res
	}

	res.Success = true
	res.Method = MethodHeuristicScan
	res.DebugInfo = fmt.Sprintf("selected pid %d (%s) from %d candidate(s)",
		selected.PID, selected.Relationship, len(candidates))
	log.Debug("detection succeeded",
		"pid", selected.PID,
		"relationship", string(selected.Relationship),
		"candidates", len(candidates),
		"durationMs", res.Duration.Milliseconds())
	return res
}
