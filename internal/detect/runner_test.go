package detect

import (
	"context"
	"strings"
	"testing"

	"github.com/lspmon/lspmon/internal/procscan"
)

type fakeEnum struct {
	records []procscan.ProcessRecord
	failure string
	calls   int
}

func (f *fakeEnum) ListByName(ctx context.Context, name string) []procscan.ProcessRecord {
	f.calls++
	return f.records
}

func (f *fakeEnum) LastFailure() string { return f.failure }

type fixedHint struct {
	pid int
	ok  bool
}

func (h fixedHint) MainProcessPID() (int, bool) { return h.pid, h.ok }

func TestDetectHostHintShortCircuitsScan(t *testing.T) {
	enum := &fakeEnum{records: []procscan.ProcessRecord{rec(999, 1, 100)}}
	r := NewRunner(enum, 50, fixedHint{pid: 77, ok: true})

	res := r.Detect(context.Background(), "clangd")

	if !res.Success || res.Method != MethodHostHint {
		t.Fatalf("result = %+v, want success via host-hint", res)
	}
	if res.CandidateCount != 1 {
		t.Fatalf("CandidateCount = %d, want 1", res.CandidateCount)
	}
	if res.Process == nil || res.Process.PID != 77 {
		t.Fatalf("Process = %+v, want hinted pid 77", res.Process)
	}
	if enum.calls != 0 {
		t.Fatalf("enumeration ran %d times, want 0 when the hint answers", enum.calls)
	}
	// Ancestry and memory are unknown for hinted pids.
	if res.Process.ParentPID != 0 || res.Process.ResidentMemoryKB != 0 {
		t.Fatalf("hinted process carries fabricated ancestry/memory: %+v", res.Process)
	}
}

func TestDetectHintDeclinesFallsBackToScan(t *testing.T) {
	enum := &fakeEnum{records: []procscan.ProcessRecord{rec(100, 50, 200)}}
	r := NewRunner(enum, 50, fixedHint{ok: false})

	res := r.Detect(context.Background(), "clangd")

	if !res.Success || res.Method != MethodHeuristicScan {
		t.Fatalf("result = %+v, want success via heuristic-scan", res)
	}
	if res.Process.PID != 100 {
		t.Fatalf("Process.PID = %d, want 100", res.Process.PID)
	}
	if enum.calls != 1 {
		t.Fatalf("enumeration ran %d times, want 1", enum.calls)
	}
}

func TestDetectNilHintScans(t *testing.T) {
	enum := &fakeEnum{records: []procscan.ProcessRecord{rec(100, 50, 200), rec(101, 999, 500)}}
	r := NewRunner(enum, 50, nil)

	res := r.Detect(context.Background(), "clangd")

	if !res.Success || res.Process.PID != 100 {
		t.Fatalf("result = %+v, want direct child pid 100", res)
	}
	if res.CandidateCount != 2 {
		t.Fatalf("CandidateCount = %d, want 2", res.CandidateCount)
	}
}

func TestDetectNoCandidatesFails(t *testing.T) {
	enum := &fakeEnum{failure: "ps: command not found"}
	r := NewRunner(enum, 50, nil)

	res := r.Detect(context.Background(), "clangd")

	if res.Success || res.Method != MethodFailed {
		t.Fatalf("result = %+v, want failure", res)
	}
	if res.Process != nil {
		t.Fatalf("Process = %+v, want nil", res.Process)
	}
	if res.DebugInfo == "" {
		t.Fatal("DebugInfo should carry the enumeration failure reason")
	}
}

func TestDiagnoseBypassesHint(t *testing.T) {
	enum := &fakeEnum{records: []procscan.ProcessRecord{rec(100, 50, 200)}}
	r := NewRunner(enum, 50, fixedHint{pid: 77, ok: true})

	report := r.Diagnose(context.Background(), "clangd")

	if enum.calls != 1 {
		t.Fatalf("enumeration ran %d times, want 1 (diagnose always scans)", enum.calls)
	}
	if report.SelectedPID != 100 {
		t.Fatalf("SelectedPID = %d, want 100 from the scan, not the hint", report.SelectedPID)
	}
}

func TestDiagnoseRecommendations(t *testing.T) {
	t.Run("no processes", func(t *testing.T) {
		r := NewRunner(&fakeEnum{}, 50, nil)
		report := r.Diagnose(context.Background(), "clangd")
		if report.Method != MethodFailed || len(report.Recommendations) == 0 {
			t.Fatalf("report = %+v, want failure with recommendations", report)
		}
	})

	t.Run("orphans only", func(t *testing.T) {
		enum := &fakeEnum{records: []procscan.ProcessRecord{rec(200, 999, 100)}}
		r := NewRunner(enum, 50, nil)
		report := r.Diagnose(context.Background(), "clangd")
		if !containsSubstring(report.Recommendations, "no direct children") {
			t.Fatalf("Recommendations = %v, want stale-process hint", report.Recommendations)
		}
	})

	t.Run("process leak", func(t *testing.T) {
		enum := &fakeEnum{records: []procscan.ProcessRecord{
			rec(1, 50, 10), rec(2, 50, 10), rec(3, 50, 10), rec(4, 50, 10), rec(5, 50, 10),
		}}
		r := NewRunner(enum, 50, nil)
		report := r.Diagnose(context.Background(), "clangd")
		if !containsSubstring(report.Recommendations, "leak") {
			t.Fatalf("Recommendations = %v, want leak warning", report.Recommendations)
		}
	})

	t.Run("healthy", func(t *testing.T) {
		enum := &fakeEnum{records: []procscan.ProcessRecord{rec(100, 50, 200)}}
		r := NewRunner(enum, 50, nil)
		report := r.Diagnose(context.Background(), "clangd")
		if !containsSubstring(report.Recommendations, "healthy") {
			t.Fatalf("Recommendations = %v, want healthy note", report.Recommendations)
		}
	})
}

func TestDiagnoseTotalsMemory(t *testing.T) {
	enum := &fakeEnum{records: []procscan.ProcessRecord{rec(1, 50, 1000), rec(2, 999, 2000)}}
	r := NewRunner(enum, 50, nil)

	report := r.Diagnose(context.Background(), "clangd")

	if report.TotalMemoryKB != 3000 {
		t.Fatalf("TotalMemoryKB = %d, want 3000", report.TotalMemoryKB)
	}
	if report.ProcessCount != 2 {
		t.Fatalf("ProcessCount = %d, want 2", report.ProcessCount)
	}
}

func containsSubstring(list []string, sub string) bool {
	for _, s := range list {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
