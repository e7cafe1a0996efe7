package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lspmon/lspmon/internal/config"
	"github.com/lspmon/lspmon/internal/detect"
	"github.com/lspmon/lspmon/internal/presenter"
	"github.com/lspmon/lspmon/internal/procscan"
	"github.com/lspmon/lspmon/internal/sampler"
)

type fakeEnum struct {
	mu      sync.Mutex
	records []procscan.ProcessRecord
}

func (f *fakeEnum) ListByName(ctx context.Context, name string) []procscan.ProcessRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records
}

func (f *fakeEnum) LastFailure() string { return "" }

func (f *fakeEnum) set(records []procscan.ProcessRecord) {
	f.mu.Lock()
	f.records = records
	f.mu.Unlock()
}

func (f *fakeEnum) alive(pid int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.records {
		if rec.PID == pid {
			return true
		}
	}
	return false
}

type fakeSink struct {
	mu    sync.Mutex
	views []presenter.View
}

func (s *fakeSink) Publish(v presenter.View) {
	s.mu.Lock()
	s.views = append(s.views, v)
	s.mu.Unlock()
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.views)
}

type fakeRestarter struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (r *fakeRestarter) RestartService(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.err
}

type memProbe struct{}

func (memProbe) Metric() string { return "memory" }
func (memProbe) Sample(ctx context.Context, pid int) (sampler.Sample, error) {
	return sampler.Sample{MemoryBytes: 64 * 1024 * 1024}, nil
}

type enumDetector struct {
	enum *fakeEnum
}

func (d enumDetector) Detect(ctx context.Context, name string) detect.Result {
	selected := detect.Select(detect.Classify(1, d.enum.ListByName(ctx, name)))
	if selected == nil {
		return detect.Result{Method: detect.MethodFailed}
	}
	return detect.Result{Success: true, Method: detect.MethodHeuristicScan, Process: selected, CandidateCount: 1}
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.PresentationIntervalMs = 20
	cfg.Restart.PollIntervalMs = 5
	cfg.Restart.KillMaxWaitMs = 200
	cfg.Restart.StartMaxWaitMs = 200
	cfg.Restart.ProgressUpdates = 1
	return cfg
}

func testFactory(enum *fakeEnum) SamplerFactory {
	return func(cfg *config.Config) []*sampler.Sampler {
		return []*sampler.Sampler{
			sampler.New(memProbe{}, enumDetector{enum: enum}, cfg.ProcessName, 10*time.Millisecond),
		}
	}
}

func running() []procscan.ProcessRecord {
	return []procscan.ProcessRecord{{PID: 77, ParentPID: 1, ResidentMemoryKB: 1024, Name: "clangd"}}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestCoordinatorPublishesMergedView(t *testing.T) {
	enum := &fakeEnum{records: running()}
	sink := &fakeSink{}
	c := New(testConfig(), testFactory(enum), enum, sink, nil)
	defer c.Dispose()

	c.StartMonitoring()

	waitFor(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		for _, v := range sink.views {
			if v.Severity == presenter.Normal {
				return true
			}
		}
		return false
	}, "sink never received a normal-severity view")
}

func TestStartMonitoringIdempotent(t *testing.T) {
	enum := &fakeEnum{records: running()}
	c := New(testConfig(), testFactory(enum), enum, &fakeSink{}, nil)
	defer c.Dispose()

	c.StartMonitoring()
	c.StartMonitoring()

	snap := c.Snapshot()
	if !snap.Monitoring {
		t.Fatal("coordinator should report monitoring")
	}
}

func TestStopThenDisposeSafeAndSilent(t *testing.T) {
	enum := &fakeEnum{records: running()}
	sink := &fakeSink{}
	c := New(testConfig(), testFactory(enum), enum, sink, nil)

	c.StartMonitoring()
	waitFor(t, func() bool { return sink.count() > 0 }, "no views published")

	c.StopMonitoring()
	c.StopMonitoring()
	c.Dispose()
	c.Dispose()

	countAtDispose := sink.count()
	time.Sleep(100 * time.Millisecond)
	if sink.count() != countAtDispose {
		t.Fatalf("sink received %d views after dispose", sink.count()-countAtDispose)
	}

	// A disposed coordinator refuses further work without panicking.
	c.StartMonitoring()
	if c.Snapshot().Monitoring {
		t.Fatal("disposed coordinator should not start monitoring")
	}
	if err := c.Restart(context.Background()); err == nil {
		t.Fatal("Restart on disposed coordinator should error")
	}
}

func TestSnapshotCarriesSamplesAndConfig(t *testing.T) {
	enum := &fakeEnum{records: running()}
	c := New(testConfig(), testFactory(enum), enum, &fakeSink{}, nil)
	defer c.Dispose()

	c.StartMonitoring()
	waitFor(t, func() bool { return c.Snapshot().Samples["memory"] != nil }, "memory sample never appeared")

	snap := c.Snapshot()
	if snap.Samples["memory"].PID != 77 {
		t.Fatalf("sample pid = %d, want 77", snap.Samples["memory"].PID)
	}
	if snap.Config == nil || snap.ProcessName != "clangd" {
		t.Fatalf("snapshot config incomplete: %+v", snap)
	}
	if snap.Health == nil {
		t.Fatal("snapshot should include component health")
	}
}

func TestRestartWorkflow(t *testing.T) {
	enum := &fakeEnum{records: running()}
	restarter := &fakeRestarter{}
	c := New(testConfig(), testFactory(enum), enum, &fakeSink{}, restarter)
	defer c.Dispose()

	c.aliveFn = enum.alive

	var killMu sync.Mutex
	killed := 0
	c.killFn = func(ctx context.Context, name string, timeout time.Duration) error {
		killMu.Lock()
		killed++
		killMu.Unlock()
		enum.set(nil) // kill takes effect
		go func() {
			// The restarted service appears shortly after.
			time.Sleep(30 * time.Millisecond)
			enum.set(running())
		}()
		return nil
	}

	c.StartMonitoring()
	waitFor(t, func() bool { return c.Snapshot().Samples["memory"] != nil }, "no sample before restart")

	if err := c.Restart(context.Background()); err != nil {
		t.Fatalf("Restart returned error: %v", err)
	}

	killMu.Lock()
	if killed != 1 {
		t.Fatalf("kill ran %d times, want 1", killed)
	}
	killMu.Unlock()

	restarter.mu.Lock()
	if restarter.calls != 1 {
		t.Fatalf("restarter called %d times, want 1", restarter.calls)
	}
	restarter.mu.Unlock()

	// Samplers were reset and re-detect the new pid.
	waitFor(t, func() bool {
		s := c.Snapshot().Samples["memory"]
		return s != nil && s.PID == 77
	}, "sampler never re-detected after restart")
}

func TestRestartChecksVictimPidsNotEnumeration(t *testing.T) {
	enum := &fakeEnum{records: running()}
	c := New(testConfig(), testFactory(enum), enum, &fakeSink{}, &fakeRestarter{})
	defer c.Dispose()

	// Enumeration goes empty the instant the kill runs, but the victim
	// pid lingers a while. The kill wait must track the pid directly.
	var aliveMu sync.Mutex
	asked := make(map[int]int)
	lingerUntil := time.Now().Add(30 * time.Millisecond)
	c.aliveFn = func(pid int) bool {
		aliveMu.Lock()
		asked[pid]++
		aliveMu.Unlock()
		return pid == 77 && time.Now().Before(lingerUntil)
	}
	c.killFn = func(ctx context.Context, name string, timeout time.Duration) error {
		enum.set(nil)
		go func() {
			time.Sleep(40 * time.Millisecond)
			enum.set(running())
		}()
		return nil
	}

	if err := c.Restart(context.Background()); err != nil {
		t.Fatalf("Restart returned error: %v", err)
	}

	aliveMu.Lock()
	defer aliveMu.Unlock()
	if asked[77] < 2 {
		t.Fatalf("pid 77 aliveness checked %d times, want at least 2 (poll until dead)", asked[77])
	}
}

func TestRestartKillFailureSurfacedAndRecoverable(t *testing.T) {
	enum := &fakeEnum{records: running()}
	c := New(testConfig(), testFactory(enum), enum, &fakeSink{}, &fakeRestarter{})
	defer c.Dispose()

	c.killFn = func(ctx context.Context, name string, timeout time.Duration) error {
		return errors.New("taskkill unavailable")
	}

	c.StartMonitoring()

	if err := c.Restart(context.Background()); err == nil {
		t.Fatal("Restart should surface the kill failure")
	}

	// Coordinator remains usable afterwards.
	waitFor(t, func() bool { return c.Snapshot().Samples["memory"] != nil }, "coordinator unusable after failed restart")
}

func TestRestartServiceFailureSurfaced(t *testing.T) {
	enum := &fakeEnum{}
	restarter := &fakeRestarter{err: errors.New("host refused")}
	c := New(testConfig(), testFactory(enum), enum, &fakeSink{}, restarter)
	defer c.Dispose()

	c.killFn = func(ctx context.Context, name string, timeout time.Duration) error { return nil }
	c.StartMonitoring()

	if err := c.Restart(context.Background()); err == nil {
		t.Fatal("Restart should surface the service restart failure")
	}
}

func TestRefreshAllPublishes(t *testing.T) {
	enum := &fakeEnum{records: running()}
	sink := &fakeSink{}
	c := New(testConfig(), testFactory(enum), enum, sink, nil)
	defer c.Dispose()

	c.StartMonitoring()
	before := sink.count()
	c.RefreshAll(context.Background())

	if sink.count() <= before {
		t.Fatal("RefreshAll should publish an updated view")
	}
}

func TestApplyConfigRebuildsSamplersAndKeepsMonitoring(t *testing.T) {
	enum := &fakeEnum{records: running()}
	c := New(testConfig(), testFactory(enum), enum, &fakeSink{}, nil)
	defer c.Dispose()

	c.StartMonitoring()
	waitFor(t, func() bool { return c.Snapshot().Samples["memory"] != nil }, "no sample before config update")

	next := testConfig()
	next.ProcessName = "rust-analyzer"
	c.ApplyConfig(next)

	snap := c.Snapshot()
	if !snap.Monitoring {
		t.Fatal("monitoring state lost across config update")
	}
	if snap.ProcessName != "rust-analyzer" {
		t.Fatalf("ProcessName = %q, want rust-analyzer", snap.ProcessName)
	}
}
