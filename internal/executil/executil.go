package executil

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/lspmon/lspmon/internal/logging"
)

var log = logging.L("executil")

const (
	// DefaultTimeout bounds every OS tool invocation so a hung system
	// utility cannot stall the monitoring loops.
	DefaultTimeout = 10 * time.Second

	// MaxOutputSize is the maximum size of stdout/stderr to capture.
	MaxOutputSize = 1024 * 1024 // 1MB
)

// Result holds the captured output of a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
	Duration time.Duration
}

// Run executes a command with a bounded timeout and captures its output.
// timeout <= 0 uses DefaultTimeout. A non-zero exit code is not an error;
// callers inspect Result.ExitCode. The returned error covers start
// failures and timeouts only.
func Run(ctx context.Context, timeout time.Duration, name string, args ...string) (Result, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitedWriter{buf: &stdout, limit: MaxOutputSize}
	cmd.Stderr = &limitedWriter{buf: &stderr, limit: MaxOutputSize}

	start := time.Now()
	err := cmd.Run()

	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			res.TimedOut = true
			res.ExitCode = -1
			log.Warn("command timed out", "command", name, "timeout", timeout)
			return res, fmt.Errorf("executil: %s timed out after %s", name, timeout)
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			res.ExitCode = exitErr.ExitCode()
			log.Debug("command exited nonzero", "command", name, "exitCode", res.ExitCode)
			return res, nil
		}
		res.ExitCode = -1
		return res, fmt.Errorf("executil: run %s: %w", name, err)
	}

	return res, nil
}

// limitedWriter caps captured output; excess bytes are discarded, not errored,
// so the command itself never sees a write failure.
type limitedWriter struct {
	buf   *bytes.Buffer
	limit int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	remaining := w.limit - w.buf.Len()
	if remaining <= 0 {
		return len(p), nil
	}
	if len(p) > remaining {
		w.buf.Write(p[:remaining])
		return len(p), nil
	}
	return w.buf.Write(p)
}
