package procscan

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/lspmon/lspmon/internal/executil"
)

var versionPattern = regexp.MustCompile(`\d+\.\d+(\.\d+)*`)

// ProbeVersion invokes `<binary> --version` and extracts a dotted version
// string. When no version pattern matches, the first output line mentioning
// the binary name is returned instead, so a nonstandard banner still yields
// something presentable.
func ProbeVersion(ctx context.Context, binary string, timeout time.Duration) (string, error) {
	res, err := executil.Run(ctx, timeout, binary, "--version")
	if err != nil {
		return "", fmt.Errorf("procscan: version probe: %w", err)
	}

	out := res.Stdout
	if strings.TrimSpace(out) == "" {
		out = res.Stderr
	}

	if v := ExtractVersion(out, stripExe(binary)); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("procscan: no version string in %s output", binary)
}

// ExtractVersion finds a dotted version in output, falling back to the
// first line that mentions name.
func ExtractVersion(output, name string) string {
	if m := versionPattern.FindString(output); m != "" {
		return m
	}

	lowered := strings.ToLower(name)
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && strings.Contains(strings.ToLower(line), lowered) {
			return line
		}
	}
	return ""
}
