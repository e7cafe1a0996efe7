package control

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lspmon/lspmon/internal/detect"
	"github.com/lspmon/lspmon/internal/monitor"
	"github.com/lspmon/lspmon/internal/presenter"
)

type fakeMonitor struct {
	mu         sync.Mutex
	refreshes  int
	restarts   int
	restartErr error
}

func (m *fakeMonitor) Snapshot() monitor.Snapshot {
	return monitor.Snapshot{
		Timestamp:   time.Now().UTC(),
		ProcessName: "clangd",
		Monitoring:  true,
	}
}

func (m *fakeMonitor) RefreshAll(ctx context.Context) {
	m.mu.Lock()
	m.refreshes++
	m.mu.Unlock()
}

func (m *fakeMonitor) Restart(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restarts++
	return m.restartErr
}

type fakeDiagnoser struct{}

func (fakeDiagnoser) Diagnose(ctx context.Context, name string) detect.Report {
	return detect.Report{
		ProcessName:     name,
		ProcessCount:    1,
		SelectedPID:     42,
		Method:          detect.MethodHeuristicScan,
		Recommendations: []string{"process tree looks healthy"},
	}
}

func newTestServer(mon *fakeMonitor) (*Server, *HintStore) {
	hints := NewHintStore()
	return NewServer(mon, fakeDiagnoser{}, hints), hints
}

func TestHintStoreLifecycle(t *testing.T) {
	h := NewHintStore()

	if _, ok := h.MainProcessPID(); ok {
		t.Fatal("empty store should report no pid")
	}

	h.Set(77)
	if pid, ok := h.MainProcessPID(); !ok || pid != 77 {
		t.Fatalf("MainProcessPID = (%d, %v), want 77", pid, ok)
	}

	h.Set(-1)
	if _, ok := h.MainProcessPID(); ok {
		t.Fatal("non-positive Set should clear the hint")
	}

	h.Set(88)
	h.Clear()
	if _, ok := h.MainProcessPID(); ok {
		t.Fatal("Clear should remove the hint")
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv, _ := newTestServer(&fakeMonitor{})

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var snap monitor.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if snap.ProcessName != "clangd" || !snap.Monitoring {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestRefreshEndpointRequiresPost(t *testing.T) {
	mon := &fakeMonitor{}
	srv, _ := newTestServer(mon)
	routes := srv.Routes()

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/refresh", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET /v1/refresh = %d, want 405", rec.Code)
	}

	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/refresh", nil))
	if rec.Code != http.StatusOK || mon.refreshes != 1 {
		t.Fatalf("POST /v1/refresh = %d with %d refreshes, want 200 and 1", rec.Code, mon.refreshes)
	}
}

func TestRestartEndpointSuccess(t *testing.T) {
	mon := &fakeMonitor{}
	srv, _ := newTestServer(mon)

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/restart", nil))

	if rec.Code != http.StatusOK || mon.restarts != 1 {
		t.Fatalf("POST /v1/restart = %d with %d restarts", rec.Code, mon.restarts)
	}
}

func TestRestartEndpointSurfacesFailure(t *testing.T) {
	mon := &fakeMonitor{restartErr: errors.New("kill failed")}
	srv, _ := newTestServer(mon)

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/restart", nil))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("failed restart = %d, want 502", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "kill failed") {
		t.Fatalf("body = %q, want error message", rec.Body.String())
	}
}

func TestDiagEndpointJSONAndYAML(t *testing.T) {
	srv, _ := newTestServer(&fakeMonitor{})
	routes := srv.Routes()

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/diag", nil))
	var report detect.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("invalid JSON report: %v", err)
	}
	if report.SelectedPID != 42 {
		t.Fatalf("report = %+v", report)
	}

	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/diag?format=yaml", nil))
	if !strings.Contains(rec.Body.String(), "selectedPid: 42") {
		t.Fatalf("yaml body = %q, want selectedPid line", rec.Body.String())
	}
}

func TestHintEndpoint(t *testing.T) {
	srv, hints := newTestServer(&fakeMonitor{})
	routes := srv.Routes()

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/hint", strings.NewReader(`{"pid": 77}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /v1/hint = %d, want 200", rec.Code)
	}
	if pid, ok := hints.MainProcessPID(); !ok || pid != 77 {
		t.Fatalf("hint store = (%d, %v), want 77", pid, ok)
	}

	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/hint", strings.NewReader(`{"pid": 0}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("POST /v1/hint with pid 0 = %d, want 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/hint", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE /v1/hint = %d, want 204", rec.Code)
	}
	if _, ok := hints.MainProcessPID(); ok {
		t.Fatal("hint should be cleared after DELETE")
	}
}

func TestPublishWithoutSubscribersIsSafe(t *testing.T) {
	srv, _ := newTestServer(&fakeMonitor{})
	srv.Publish(presenter.View{Text: "clangd 1.0GB", Severity: presenter.Normal})
	srv.Close()
	srv.Close()
	srv.Publish(presenter.View{Text: "after close"})
}
