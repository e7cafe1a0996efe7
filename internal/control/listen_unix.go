//go:build !windows

package control

import (
	"errors"
	"fmt"
	"net"
	"os"
)

// listen binds the control endpoint to a unix socket, clearing a stale
// socket file left by a previous run. The socket is owner-only.
func listen(path string) (net.Listener, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("control: remove stale socket %s: %w", path, err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("control: listen %s: %w", path, err)
	}

	if err := os.Chmod(path, 0600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("control: chmod socket %s: %w", path, err)
	}
	return ln, nil
}
