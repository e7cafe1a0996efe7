//go:build !windows

package procscan

import (
	"context"
	"time"

	"github.com/lspmon/lspmon/internal/executil"
)

// commandTiers returns the POSIX enumeration fallback: a ps listing with
// bare columns (no header), filtered by command basename during parsing.
func commandTiers(timeout time.Duration) []tier {
	return []tier{
		{
			name: "ps",
			list: func(ctx context.Context, name string) ([]ProcessRecord, error) {
				res, err := executil.Run(ctx, timeout, "ps", "-axo", "pid=,ppid=,rss=,comm=")
				if err != nil {
					return nil, err
				}
				return parsePSOutput(res.Stdout, name), nil
			},
		},
	}
}
