//go:build !windows

package procscan

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lspmon/lspmon/internal/executil"
)

// KillByName force-terminates every process whose executable name exactly
// matches name. "No processes matched" is success: the goal state (nothing
// running under that name) already holds.
func KillByName(ctx context.Context, name string, timeout time.Duration) error {
	res, err := executil.Run(ctx, timeout, "pkill", "-9", "-x", stripExe(name))
	if err != nil {
		return fmt.Errorf("procscan: pkill %s: %w", name, err)
	}

	// pkill exits 1 when no processes matched, >1 on real errors.
	if res.ExitCode > 1 {
		return fmt.Errorf("procscan: pkill %s exited %d: %s", name, res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	log.Info("terminated processes by name", "name", name, "matched", res.ExitCode == 0)
	return nil
}
