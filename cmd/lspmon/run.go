package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/lspmon/lspmon/internal/config"
	"github.com/lspmon/lspmon/internal/control"
	"github.com/lspmon/lspmon/internal/detect"
	"github.com/lspmon/lspmon/internal/executil"
	"github.com/lspmon/lspmon/internal/logging"
	"github.com/lspmon/lspmon/internal/monitor"
	"github.com/lspmon/lspmon/internal/presenter"
	"github.com/lspmon/lspmon/internal/procscan"
	"github.com/lspmon/lspmon/internal/sampler"
)

// loadConfig loads, validates, and applies flag overrides.
func loadConfig() *config.Config {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if procName != "" {
		cfg.ProcessName = procName
	}
	cfg.Validate()
	return cfg
}

func initLogging(cfg *config.Config) func() {
	level := cfg.LogLevel
	if cfg.Debug {
		level = "debug"
	}

	var out io.Writer
	closer := func() {}
	if cfg.LogFile != "" {
		rw, err := logging.NewRotatingWriter(cfg.LogFile, 10, 2)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		} else {
			out = rw
			closer = func() { rw.Close() }
			if cfg.Debug {
				out = logging.TeeWriter(rw, os.Stderr)
			}
		}
	}

	logging.Init(cfg.LogFormat, level, out)
	return closer
}

// stdoutSink prints each status frame as one line, for running lspmon
// interactively or under a supervisor that tails output.
type stdoutSink struct{}

func (stdoutSink) Publish(view presenter.View) {
	fmt.Printf("[%s] %s\n", view.Severity, view.Text)
}

// sinkHub forwards frames to every attached sink. Sinks may be attached
// after the coordinator is built, which breaks the construction cycle
// between the coordinator and the control server.
type sinkHub struct {
	mu    sync.Mutex
	sinks []monitor.Sink
}

func (h *sinkHub) Add(s monitor.Sink) {
	h.mu.Lock()
	h.sinks = append(h.sinks, s)
	h.mu.Unlock()
}

func (h *sinkHub) Publish(view presenter.View) {
	h.mu.Lock()
	sinks := make([]monitor.Sink, len(h.sinks))
	copy(sinks, h.sinks)
	h.mu.Unlock()
	for _, s := range sinks {
		s.Publish(view)
	}
}

// execRestarter restarts the service by running a configured command.
// Used when no embedding editor is present to respawn the server itself.
type execRestarter struct {
	command string
}

func (r execRestarter) RestartService(ctx context.Context) error {
	parts := strings.Fields(r.command)
	if len(parts) == 0 {
		return fmt.Errorf("empty restart command")
	}
	res, err := executil.Run(ctx, 0, parts[0], parts[1:]...)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("restart command exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}

func buildSamplerFactory() monitor.SamplerFactory {
	return func(cfg *config.Config) []*sampler.Sampler {
		enum := procscan.NewEnumerator(time.Duration(cfg.CommandTimeoutMs) * time.Millisecond)
		runner := detect.NewRunner(enum, os.Getpid(), hints)
		probeTimeout := time.Duration(cfg.CommandTimeoutMs) * time.Millisecond

		return []*sampler.Sampler{
			sampler.New(sampler.MemoryProbe{}, runner, cfg.ProcessName,
				time.Duration(cfg.Memory.UpdateIntervalMs)*time.Millisecond),
			sampler.New(sampler.NewCPUProbe(context.Background()), runner, cfg.ProcessName,
				time.Duration(cfg.CPU.UpdateIntervalMs)*time.Millisecond),
			sampler.New(sampler.NewStatusProbe(cfg.ProcessName, probeTimeout), runner, cfg.ProcessName,
				time.Duration(cfg.Status.UpdateIntervalMs)*time.Millisecond),
		}
	}
}

// hints is shared between the detection runners and the control server so
// a pid registered by the editor takes effect on the next tick.
var hints = control.NewHintStore()

func runMonitor() {
	cfg := loadConfig()
	closeLogs := initLogging(cfg)
	defer closeLogs()

	log := logging.L("main")

	enum := procscan.NewEnumerator(time.Duration(cfg.CommandTimeoutMs) * time.Millisecond)
	runner := detect.NewRunner(enum, os.Getpid(), hints)

	var restarter monitor.ServiceRestarter
	if cfg.Restart.RestartCommand != "" {
		restarter = execRestarter{command: cfg.Restart.RestartCommand}
	}

	hub := &sinkHub{}
	hub.Add(stdoutSink{})

	coord := monitor.New(cfg, buildSamplerFactory(), enum, hub, restarter)

	var ctrl *control.Server
	if cfg.Control.Enabled {
		ctrl = control.NewServer(coord, runner, hints)
		hub.Add(ctrl)
		go func() {
			if err := ctrl.Serve(cfg.Control.Socket); err != nil {
				log.Error("control endpoint failed", "error", err)
			}
		}()
	}

	config.Watch(func(updated *config.Config) {
		log.Info("config file changed, applying")
		coord.ApplyConfig(updated)
	}, func(err error) {
		log.Warn("config reload failed, keeping previous", "error", err)
	})

	coord.StartMonitoring()
	log.Info("lspmon started", "version", version, "process", cfg.ProcessName)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")
	if ctrl != nil {
		ctrl.Close()
	}
	coord.Dispose()
}
