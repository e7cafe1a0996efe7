package config

import (
	"fmt"
	"log/slog"
	"strings"
)

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// Validate checks the config for invalid values and returns all errors found.
// Dangerous zero-values that would break tickers are clamped to safe
// defaults. Other validation errors are logged as warnings but do not
// prevent startup.
func (c *Config) Validate() []error {
	var errs []error

	if strings.TrimSpace(c.ProcessName) == "" {
		errs = append(errs, fmt.Errorf("process_name is empty, using %q", Default().ProcessName))
		c.ProcessName = Default().ProcessName
	}

	errs = append(errs, clampMetric("memory", &c.Memory)...)
	errs = append(errs, clampMetric("cpu", &c.CPU)...)
	errs = append(errs, clampMetric("status", &c.Status)...)

	if c.PresentationIntervalMs < 250 {
		errs = append(errs, fmt.Errorf("presentation_interval_ms %d is below minimum 250, clamping", c.PresentationIntervalMs))
		c.PresentationIntervalMs = 250
	}

	if c.CommandTimeoutMs < 1000 {
		errs = append(errs, fmt.Errorf("command_timeout_ms %d is below minimum 1000, clamping", c.CommandTimeoutMs))
		c.CommandTimeoutMs = 1000
	} else if c.CommandTimeoutMs > 60000 {
		errs = append(errs, fmt.Errorf("command_timeout_ms %d exceeds maximum 60000, clamping", c.CommandTimeoutMs))
		c.CommandTimeoutMs = 60000
	}

	if c.Restart.PollIntervalMs < 50 {
		errs = append(errs, fmt.Errorf("restart.poll_interval_ms %d is below minimum 50, clamping", c.Restart.PollIntervalMs))
		c.Restart.PollIntervalMs = 50
	}
	if c.Restart.KillMaxWaitMs < c.Restart.PollIntervalMs {
		errs = append(errs, fmt.Errorf("restart.kill_max_wait_ms %d is below poll interval, clamping", c.Restart.KillMaxWaitMs))
		c.Restart.KillMaxWaitMs = c.Restart.PollIntervalMs
	}
	if c.Restart.StartMaxWaitMs < c.Restart.PollIntervalMs {
		errs = append(errs, fmt.Errorf("restart.start_max_wait_ms %d is below poll interval, clamping", c.Restart.StartMaxWaitMs))
		c.Restart.StartMaxWaitMs = c.Restart.PollIntervalMs
	}
	if c.Restart.ProgressUpdates < 0 {
		c.Restart.ProgressUpdates = 0
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error)", c.LogLevel))
	}

	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format %q is not valid (use text or json)", c.LogFormat))
	}

	for _, err := range errs {
		slog.Warn("config validation", "error", err)
	}

	return errs
}

func clampMetric(name string, m *MetricConfig) []error {
	var errs []error

	if m.UpdateIntervalMs < 500 {
		errs = append(errs, fmt.Errorf("%s.update_interval_ms %d is below minimum 500, clamping", name, m.UpdateIntervalMs))
		m.UpdateIntervalMs = 500
	} else if m.UpdateIntervalMs > 3600000 {
		errs = append(errs, fmt.Errorf("%s.update_interval_ms %d exceeds maximum 3600000, clamping", name, m.UpdateIntervalMs))
		m.UpdateIntervalMs = 3600000
	}

	if m.WarningThreshold < 0 {
		errs = append(errs, fmt.Errorf("%s.warning_threshold is negative, disabling", name))
		m.WarningThreshold = 0
	}
	if m.ErrorThreshold < 0 {
		errs = append(errs, fmt.Errorf("%s.error_threshold is negative, disabling", name))
		m.ErrorThreshold = 0
	}

	// Warning above error would make the lower severity unreachable.
	if m.WarningThreshold > 0 && m.ErrorThreshold > 0 && m.WarningThreshold > m.ErrorThreshold {
		errs = append(errs, fmt.Errorf("%s.warning_threshold %v exceeds error_threshold %v, swapping", name, m.WarningThreshold, m.ErrorThreshold))
		m.WarningThreshold, m.ErrorThreshold = m.ErrorThreshold, m.WarningThreshold
	}

	return errs
}
