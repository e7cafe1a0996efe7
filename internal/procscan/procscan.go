// Package procscan enumerates, probes, and terminates OS processes by
// executable name. The primary enumerator reads the process table through
// gopsutil; command-line fallbacks are tried in order when it yields no
// usable rows, so a broken tier degrades to the next instead of failing.
package procscan

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/lspmon/lspmon/internal/logging"
)

var log = logging.L("procscan")

// ProcessRecord is one row of an enumeration: a same-named candidate
// process with its parent and resident set size.
type ProcessRecord struct {
	PID              int    `json:"pid"`
	ParentPID        int    `json:"parentPid"`
	ResidentMemoryKB uint64 `json:"residentMemoryKb"`
	Name             string `json:"name"`
}

// tier is one enumeration strategy. Tiers are tried in order until one
// yields usable rows.
type tier struct {
	name string
	list func(ctx context.Context, name string) ([]ProcessRecord, error)
}

// Enumerator lists processes matching an executable name. ListByName never
// returns an error; failures leave an empty result and a diagnostic reason
// retrievable via LastFailure.
type Enumerator struct {
	timeout time.Duration

	mu          sync.Mutex
	lastFailure string
}

// NewEnumerator creates an enumerator whose command fallbacks are bounded
// by timeout per invocation.
func NewEnumerator(timeout time.Duration) *Enumerator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Enumerator{timeout: timeout}
}

// ListByName returns all processes whose executable name matches name.
// On total failure it returns an empty slice, never an error.
func (e *Enumerator) ListByName(ctx context.Context, name string) []ProcessRecord {
	var reasons []string

	tiers := append([]tier{{name: "gopsutil", list: e.listGopsutil}}, commandTiers(e.timeout)...)

	for _, t := range tiers {
		records, err := t.list(ctx, name)
		if err != nil {
			reasons = append(reasons, fmt.Sprintf("%s: %v", t.name, err))
			log.Debug("enumeration tier failed", "tier", t.name, "error", err)
			continue
		}
		if len(records) > 0 {
			e.setFailure("")
			return records
		}
		reasons = append(reasons, t.name+": no matching rows")
	}

	e.setFailure(strings.Join(reasons, "; "))
	return nil
}

// LastFailure reports why the most recent ListByName returned nothing.
// Empty when the last scan found candidates.
func (e *Enumerator) LastFailure() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastFailure
}

func (e *Enumerator) setFailure(reason string) {
	e.mu.Lock()
	e.lastFailure = reason
	e.mu.Unlock()
}

func (e *Enumerator) listGopsutil(ctx context.Context, name string) ([]ProcessRecord, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("process table: %w", err)
	}

	var records []ProcessRecord
	skipped := 0
	for _, p := range procs {
		procName, err := p.NameWithContext(ctx)
		if err != nil || !MatchName(procName, name) {
			continue
		}

		ppid, err := p.PpidWithContext(ctx)
		if err != nil {
			skipped++
			continue
		}

		memInfo, err := p.MemoryInfoWithContext(ctx)
		if err != nil || memInfo == nil {
			skipped++
			continue
		}

		records = append(records, ProcessRecord{
			PID:              int(p.Pid),
			ParentPID:        int(ppid),
			ResidentMemoryKB: memInfo.RSS / 1024,
			Name:             procName,
		})
	}

	if skipped > 0 {
		log.Debug("skipped candidates with unreadable fields", "skipped", skipped)
	}
	return records, nil
}

// MatchName compares executable names case-insensitively, tolerating a
// trailing .exe on either side.
func MatchName(got, want string) bool {
	return strings.EqualFold(stripExe(got), stripExe(want))
}

func stripExe(name string) string {
	if len(name) > 4 && strings.EqualFold(name[len(name)-4:], ".exe") {
		return name[:len(name)-4]
	}
	return name
}
