package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/lspmon/lspmon/internal/procscan"
)

func defaultKill(ctx context.Context, name string, timeout time.Duration) error {
	return procscan.KillByName(ctx, name, timeout)
}

// Restart drives the recovery workflow: kill every process matching the
// target name, wait (by polling, not a fixed sleep) for them to disappear,
// ask the host to restart the service, wait for it to reappear, then reset
// every sampler so the new pid is detected instead of stale data reported.
// The coordinator stays usable whatever the outcome.
func (c *Coordinator) Restart(ctx context.Context) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return fmt.Errorf("monitor: coordinator is disposed")
	}
	cfg := c.cfg
	c.mu.Unlock()

	name := cfg.ProcessName
	cmdTimeout := time.Duration(cfg.CommandTimeoutMs) * time.Millisecond
	poll := time.Duration(cfg.Restart.PollIntervalMs) * time.Millisecond

	log.Info("restart requested", "process", name)

	// Record the victims up front: waiting for the kill means checking
	// these exact pids, not re-enumerating the whole process table.
	var victims []int
	for _, rec := range c.enum.ListByName(ctx, name) {
		victims = append(victims, rec.PID)
	}

	if err := c.killFn(ctx, name, cmdTimeout); err != nil {
		log.Error("restart: kill failed", "process", name, "error", err)
		return fmt.Errorf("monitor: kill %s: %w", name, err)
	}

	// Settle until the victims are actually gone; the max wait is only a
	// safety net for unkillable processes.
	killWait := time.Duration(cfg.Restart.KillMaxWaitMs) * time.Millisecond
	if !c.pollUntil(ctx, killWait, poll, func() bool {
		for _, pid := range victims {
			if c.aliveFn(pid) {
				return false
			}
		}
		return true
	}) {
		log.Warn("restart: processes still present after kill wait", "process", name)
	}

	if c.restarter != nil {
		if err := c.restarter.RestartService(ctx); err != nil {
			log.Error("restart: service restart failed", "process", name, "error", err)
			return fmt.Errorf("monitor: restart service: %w", err)
		}

		startWait := time.Duration(cfg.Restart.StartMaxWaitMs) * time.Millisecond
		if !c.pollUntil(ctx, startWait, poll, func() bool {
			return len(c.enum.ListByName(ctx, name)) > 0
		}) {
			log.Warn("restart: service not visible after start wait", "process", name)
		}
	}

	c.mu.Lock()
	for _, s := range c.samplers {
		s.Reset()
	}
	c.mu.Unlock()

	// Surface progress: publish now, then a few more times so the user
	// sees the state converge instead of a stale frame.
	c.publish()
	for i := 0; i < cfg.Restart.ProgressUpdates; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(poll * 4):
		}
		c.RefreshAll(ctx)
	}

	log.Info("restart completed", "process", name)
	return nil
}

// pollUntil re-checks cond every interval until it holds or maxWait
// elapses. Returns whether cond was observed true.
func (c *Coordinator) pollUntil(ctx context.Context, maxWait, interval time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(maxWait)
	for {
		if cond() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(interval):
		}
	}
}
