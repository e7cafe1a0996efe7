//go:build windows

package procscan

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lspmon/lspmon/internal/executil"
)

// KillByName force-terminates every process whose image name matches name.
// "No processes matched" is success: the goal state (nothing running under
// that name) already holds.
func KillByName(ctx context.Context, name string, timeout time.Duration) error {
	res, err := executil.Run(ctx, timeout, "taskkill", "/F", "/IM", ensureExe(name))
	if err != nil {
		return fmt.Errorf("procscan: taskkill %s: %w", name, err)
	}

	// taskkill exits 128 when no matching image was found.
	if res.ExitCode != 0 && res.ExitCode != 128 {
		return fmt.Errorf("procscan: taskkill %s exited %d: %s", name, res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	log.Info("terminated processes by name", "name", name, "matched", res.ExitCode == 0)
	return nil
}
