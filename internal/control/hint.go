package control

import "sync"

// HintStore is the host-hint hook: the embedding editor registers the pid
// of the worker it spawned, and detection consults it before falling back
// to heuristics. Implements detect.HostHintProvider.
type HintStore struct {
	mu  sync.Mutex
	pid int
}

// NewHintStore returns an empty store; MainProcessPID reports nothing
// until the host registers a pid.
func NewHintStore() *HintStore {
	return &HintStore{}
}

// Set registers the authoritative pid. Non-positive values clear instead.
func (h *HintStore) Set(pid int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if pid <= 0 {
		h.pid = 0
		return
	}
	h.pid = pid
}

// Clear removes the registered hint.
func (h *HintStore) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pid = 0
}

// MainProcessPID returns the registered pid, if any.
func (h *HintStore) MainProcessPID() (int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pid, h.pid != 0
}
