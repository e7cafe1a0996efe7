//go:build windows

package control

import (
	"fmt"
	"net"

	"github.com/Microsoft/go-winio"
)

// SDDL: SYSTEM gets full control, Interactive Users get read/write.
// IU restricts access to users logged in interactively, so service
// accounts and network logons cannot reach the pipe.
const pipeSecurity = "D:P(A;;GA;;;SY)(A;;GRGW;;;IU)"

// listen binds the control endpoint to a named pipe.
func listen(path string) (net.Listener, error) {
	cfg := &winio.PipeConfig{
		SecurityDescriptor: pipeSecurity,
		InputBufferSize:    64 * 1024,
		OutputBufferSize:   64 * 1024,
	}

	ln, err := winio.ListenPipe(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("control: listen pipe %s: %w", path, err)
	}
	return ln, nil
}
