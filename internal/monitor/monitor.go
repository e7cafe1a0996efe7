// Package monitor owns the sampler set, the shared presentation loop, and
// the kill, restart, and re-detect recovery workflow.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/lspmon/lspmon/internal/config"
	"github.com/lspmon/lspmon/internal/detect"
	"github.com/lspmon/lspmon/internal/health"
	"github.com/lspmon/lspmon/internal/logging"
	"github.com/lspmon/lspmon/internal/presenter"
	"github.com/lspmon/lspmon/internal/procscan"
	"github.com/lspmon/lspmon/internal/sampler"
	"github.com/lspmon/lspmon/internal/workerpool"
)

var log = logging.L("monitor")

// Sink receives the merged status view on every presentation tick.
type Sink interface {
	Publish(view presenter.View)
}

// ServiceRestarter asks the host to bring the monitored service back up
// after its processes have been killed. Implementations are external: the
// embedding editor respawns its own language server.
type ServiceRestarter interface {
	RestartService(ctx context.Context) error
}

// SamplerFactory builds the sampler set for a config. The coordinator
// rebuilds through it when config is hot-updated, so new intervals apply.
type SamplerFactory func(cfg *config.Config) []*sampler.Sampler

// Coordinator manages sampler lifecycles and merges their output into one
// presentation stream. Construct one per monitoring session; there is no
// package-level instance.
type Coordinator struct {
	factory   SamplerFactory
	enum      detect.Enumerator
	restarter ServiceRestarter // may be nil
	sink      Sink             // may be nil
	registry  *health.Registry

	// killFn and aliveFn are swappable for tests; they default to
	// procscan.KillByName and procscan.PidAlive.
	killFn  func(ctx context.Context, name string, timeout time.Duration) error
	aliveFn func(pid int) bool

	mu         sync.Mutex
	cfg        *config.Config
	samplers   map[string]*sampler.Sampler
	monitoring bool
	disposed   bool
	cancel     context.CancelFunc
}

// New creates a coordinator. sink and restarter may be nil; enum is
// required for the restart workflow's readiness polling.
func New(cfg *config.Config, factory SamplerFactory, enum detect.Enumerator, sink Sink, restarter ServiceRestarter) *Coordinator {
	c := &Coordinator{
		factory:   factory,
		enum:      enum,
		restarter: restarter,
		sink:      sink,
		registry:  health.NewRegistry(),
		killFn:    defaultKill,
		aliveFn:   procscan.PidAlive,
		cfg:       cfg,
		samplers:  make(map[string]*sampler.Sampler),
	}
	c.buildSamplers()
	return c
}

func (c *Coordinator) buildSamplers() {
	c.samplers = make(map[string]*sampler.Sampler)
	for _, s := range c.factory(c.cfg) {
		c.samplers[s.Metric()] = s
	}
}

// StartMonitoring starts every owned sampler and the presentation loop.
// One sampler failing to start never aborts the others.
func (c *Coordinator) StartMonitoring() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed || c.monitoring {
		return
	}
	c.monitoring = true

	for metric, s := range c.samplers {
		c.startIsolated(metric, s)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	interval := time.Duration(c.cfg.PresentationIntervalMs) * time.Millisecond
	go c.presentLoop(ctx, interval)

	log.Info("monitoring started", "samplers", len(c.samplers), "process", c.cfg.ProcessName)
}

// startIsolated contains a panicking sampler start so its siblings still
// come up.
func (c *Coordinator) startIsolated(metric string, s *sampler.Sampler) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("sampler failed to start", "metric", metric, "error", r)
			c.registry.Update("sampler:"+metric, health.Unhealthy, "start failed")
		}
	}()
	s.Start()
	c.registry.Update("sampler:"+metric, health.Healthy, "")
}

func (c *Coordinator) presentLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.publish()
		}
	}
}

// publish reads the latest cached sample from every sampler and pushes the
// merged view to the sink. It never blocks on a sampler's own cadence.
func (c *Coordinator) publish() {
	c.mu.Lock()
	cfg := c.cfg
	memory := c.lastLocked("memory")
	cpu := c.lastLocked("cpu")
	status := c.lastLocked("status")
	for metric, s := range c.samplers {
		c.registry.RecordFailures("sampler:"+metric, s.ConsecutiveFailures())
	}
	sink := c.sink
	c.mu.Unlock()

	if sink == nil {
		return
	}
	sink.Publish(presenter.Render(cfg, memory, cpu, status))
}

func (c *Coordinator) lastLocked(metric string) *sampler.Sample {
	s, ok := c.samplers[metric]
	if !ok {
		return nil
	}
	last, ok := s.Last()
	if !ok {
		return nil
	}
	return &last
}

// RefreshAll forces an immediate re-poll of every sampler, fanned out
// through a bounded pool so one hung probe cannot serialize the rest.
func (c *Coordinator) RefreshAll(ctx context.Context) {
	c.mu.Lock()
	samplers := make([]*sampler.Sampler, 0, len(c.samplers))
	for _, s := range c.samplers {
		samplers = append(samplers, s)
	}
	c.mu.Unlock()

	pool := workerpool.New(len(samplers), len(samplers))
	for _, s := range samplers {
		s := s
		pool.Submit(func() { s.Poll(ctx) })
	}
	pool.Drain(ctx)

	c.publish()
}

// ApplyConfig installs a hot-updated config: samplers are rebuilt so new
// intervals and thresholds take effect; monitoring state is preserved.
func (c *Coordinator) ApplyConfig(cfg *config.Config) {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	wasMonitoring := c.monitoring
	c.stopLocked()
	c.cfg = cfg
	c.buildSamplers()
	c.mu.Unlock()

	if wasMonitoring {
		c.StartMonitoring()
	}
	log.Info("config applied", "process", cfg.ProcessName)
}

// Snapshot is the detailed status returned to user-triggered queries.
type Snapshot struct {
	Timestamp   time.Time                  `json:"timestamp"`
	ProcessName string                     `json:"processName"`
	Monitoring  bool                       `json:"monitoring"`
	Samples     map[string]*sampler.Sample `json:"samples"`
	View        presenter.View             `json:"view"`
	Health      map[string]any             `json:"health"`
	Config      *config.Config             `json:"config"`
}

// Snapshot returns the latest samples, merged view, component health, and
// effective config.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	samples := make(map[string]*sampler.Sample, len(c.samplers))
	for metric := range c.samplers {
		samples[metric] = c.lastLocked(metric)
	}

	return Snapshot{
		Timestamp:   time.Now().UTC(),
		ProcessName: c.cfg.ProcessName,
		Monitoring:  c.monitoring,
		Samples:     samples,
		View:        presenter.Render(c.cfg, samples["memory"], samples["cpu"], samples["status"]),
		Health:      c.registry.Summary(),
		Config:      c.cfg,
	}
}

// StopMonitoring stops every sampler and the presentation loop. Safe to
// call multiple times.
func (c *Coordinator) StopMonitoring() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Coordinator) stopLocked() {
	if !c.monitoring {
		return
	}
	c.monitoring = false
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	for _, s := range c.samplers {
		s.Stop()
	}
	log.Info("monitoring stopped")
}

// Dispose stops monitoring and releases the coordinator permanently.
// Safe to call multiple times; a disposed coordinator produces no further
// samples or callbacks.
func (c *Coordinator) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.disposed = true
	c.samplers = make(map[string]*sampler.Sampler)
	c.sink = nil
}
