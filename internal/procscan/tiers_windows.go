//go:build windows

package procscan

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lspmon/lspmon/internal/executil"
)

// commandTiers returns the Windows enumeration fallbacks: wmic CSV output,
// then a PowerShell CIM query for hosts where wmic has been removed.
func commandTiers(timeout time.Duration) []tier {
	return []tier{
		{
			name: "wmic",
			list: func(ctx context.Context, name string) ([]ProcessRecord, error) {
				image := ensureExe(name)
				res, err := executil.Run(ctx, timeout, "wmic",
					"process", "where", fmt.Sprintf("(name='%s')", image),
					"get", "Name,ParentProcessId,ProcessId,WorkingSetSize",
					"/format:csv")
				if err != nil {
					return nil, err
				}
				return parseProcessCSV(res.Stdout, name), nil
			},
		},
		{
			name: "powershell",
			list: func(ctx context.Context, name string) ([]ProcessRecord, error) {
				image := ensureExe(name)
				query := fmt.Sprintf(
					"Get-CimInstance -ClassName Win32_Process -Filter \"Name='%s'\" | "+
						"Select-Object ProcessId,ParentProcessId,WorkingSetSize,Name | "+
						"ConvertTo-Csv -NoTypeInformation", image)
				res, err := executil.Run(ctx, timeout, "powershell",
					"-NoProfile", "-NonInteractive", "-Command", query)
				if err != nil {
					return nil, err
				}
				return parseProcessCSV(res.Stdout, name), nil
			},
		},
	}
}

func ensureExe(name string) string {
	name = strings.ReplaceAll(name, "'", "")
	if !strings.HasSuffix(strings.ToLower(name), ".exe") {
		name += ".exe"
	}
	return name
}
