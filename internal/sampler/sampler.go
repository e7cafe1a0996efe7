// Package sampler polls a single resource metric of the detected main
// process on an interval. Each sampler owns its cached pid and last sample
// exclusively; other components only read atomically-replaced snapshots.
package sampler

import (
	"context"
	"sync"
	"time"

	"github.com/lspmon/lspmon/internal/detect"
	"github.com/lspmon/lspmon/internal/logging"
)

var log = logging.L("sampler")

// Sample is one observation of the monitored process, replaced wholesale
// each tick. Only the fields of the owning metric are populated.
type Sample struct {
	Metric    string    `json:"metric"`
	PID       int       `json:"pid"`
	Timestamp time.Time `json:"timestamp"`

	MemoryBytes uint64 `json:"memoryBytes,omitempty"`

	// CPURaw can exceed 100 on multi-core systems; CPUNormalized divides
	// by the logical core count for display.
	CPURaw        float64 `json:"cpuRaw,omitempty"`
	CPUNormalized float64 `json:"cpuNormalized,omitempty"`

	Alive   bool   `json:"alive,omitempty"`
	Version string `json:"version,omitempty"`
}

// Probe measures one metric of a known pid.
type Probe interface {
	Metric() string
	Sample(ctx context.Context, pid int) (Sample, error)
}

// Detector locates the main process; satisfied by detect.Runner.
type Detector interface {
	Detect(ctx context.Context, name string) detect.Result
}

const defaultPollTimeout = 10 * time.Second

// Sampler drives one Probe on an interval. It starts stopped, detects a
// target pid on the first tick, then alternates between polling and a
// degraded no-pid state until stopped. A failed sample forgets the cached
// pid; the next tick re-detects from scratch rather than backing off.
type Sampler struct {
	probe       Probe
	detector    Detector
	processName string
	interval    time.Duration
	pollTimeout time.Duration

	mu        sync.Mutex
	running   bool
	gen       int // bumped on Stop and Reset so in-flight ticks discard their results
	epoch     int // bumped on Stop only; tells an old loop goroutine to exit
	cancel    context.CancelFunc
	cachedPID int
	last      *Sample
	failures  int
}

// New creates a stopped sampler polling probe every interval.
func New(probe Probe, detector Detector, processName string, interval time.Duration) *Sampler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Sampler{
		probe:       probe,
		detector:    detector,
		processName: processName,
		interval:    interval,
		pollTimeout: defaultPollTimeout,
	}
}

// Metric returns the name of the metric this sampler measures.
func (s *Sampler) Metric() string { return s.probe.Metric() }

// Start begins polling. Idempotent: a running sampler is left untouched.
// The first detection happens immediately; if it fails the sampler still
// starts its timer and keeps retrying (the target may appear later).
func (s *Sampler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	epoch := s.epoch
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	log.Info("sampler starting", "metric", s.Metric(), "interval", s.interval)

	go s.loop(ctx, epoch)
}

func (s *Sampler) loop(ctx context.Context, epoch int) {
	s.Poll(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			stale := !s.running || s.epoch != epoch
			s.mu.Unlock()
			if stale {
				return
			}
			s.Poll(ctx)
		}
	}
}

// Poll runs one sampling tick: re-detect if no pid is cached, then probe.
// Safe to call from outside the loop for a forced refresh.
func (s *Sampler) Poll(ctx context.Context) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	gen := s.gen
	pid := s.cachedPID
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.pollTimeout)
	defer cancel()

	if pid == 0 {
		res := s.detector.Detect(ctx, s.processName)
		if !res.Success {
			s.apply(gen, 0, nil, false)
			return
		}
		pid = res.Process.PID
	}

	sample, err := s.probe.Sample(ctx, pid)
	if err != nil {
		// The process likely died; forget the pid so the next tick
		// re-detects from scratch.
		log.Debug("sample failed, clearing cached pid",
			"metric", s.Metric(), "pid", pid, "error", err)
		s.apply(gen, 0, nil, true)
		return
	}

	sample.Metric = s.Metric()
	sample.PID = pid
	sample.Timestamp = time.Now()
	s.apply(gen, pid, &sample, false)
}

// apply installs a tick's outcome unless the sampler stopped or restarted
// while the probe was in flight.
func (s *Sampler) apply(gen, pid int, sample *Sample, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.gen != gen {
		return
	}
	s.cachedPID = pid
	s.last = sample
	if failed {
		s.failures++
	} else if sample != nil {
		s.failures = 0
	}
}

// Stop cancels the timer and clears all state. Idempotent.
func (s *Sampler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.gen++
	s.epoch++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.cachedPID = 0
	s.last = nil
	s.failures = 0
	log.Info("sampler stopped", "metric", s.Metric())
}

// Reset clears the cached pid and sample without stopping the timer,
// forcing re-detection on the next tick. Used after an external restart of
// the monitored service. The generation bump makes a tick already in
// flight discard its result instead of re-caching the old pid.
func (s *Sampler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.cachedPID = 0
	s.last = nil
	s.failures = 0
}

// Last returns the most recent sample, if any.
func (s *Sampler) Last() (Sample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Sample{}, false
	}
	return *s.last, true
}

// CachedPID returns the currently tracked pid, if any.
func (s *Sampler) CachedPID() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cachedPID, s.cachedPID != 0
}

// Running reports whether the polling timer is active.
func (s *Sampler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// ConsecutiveFailures returns the number of failed samples since the last
// success.
func (s *Sampler) ConsecutiveFailures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}
