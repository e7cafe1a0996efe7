package health

import (
	"fmt"
	"sync"
	"time"

	"github.com/lspmon/lspmon/internal/logging"
)

var log = logging.L("health")

// Status represents the health status of a monitoring component.
type Status string

const (
	Healthy   Status = "healthy"
	Degraded  Status = "degraded"
	Unhealthy Status = "unhealthy"
)

// Check stores the latest health result for a named component.
type Check struct {
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Registry tracks health checks for the coordinator's components
// (one per sampler, plus the control surface).
type Registry struct {
	mu     sync.RWMutex
	checks map[string]Check
}

// NewRegistry creates an empty health registry.
func NewRegistry() *Registry {
	return &Registry{
		checks: make(map[string]Check),
	}
}

// Update records the health status for a named component.
func (r *Registry) Update(name string, status Status, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.checks[name] = Check{
		Name:      name,
		Status:    status,
		Message:   message,
		UpdatedAt: time.Now(),
	}

	if status != Healthy {
		log.Warn("component health degraded", "component", name, "status", string(status), "message", message)
	}
}

// RecordFailures derives a component's health from its consecutive sample
// failure count: a single failure is transient, repeated failures degrade,
// sustained failure is unhealthy.
func (r *Registry) RecordFailures(name string, consecutive int) {
	switch {
	case consecutive == 0:
		r.Update(name, Healthy, "")
	case consecutive < 5:
		r.Update(name, Degraded, fmt.Sprintf("%d consecutive sample failures", consecutive))
	default:
		r.Update(name, Unhealthy, fmt.Sprintf("%d consecutive sample failures", consecutive))
	}
}

// Get returns the health check for a named component.
func (r *Registry) Get(name string) (Check, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.checks[name]
	return c, ok
}

// Overall returns the worst status across all registered checks.
// An empty registry is Healthy.
func (r *Registry) Overall() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	worst := Healthy
	for _, c := range r.checks {
		if rank(c.Status) > rank(worst) {
			worst = c.Status
		}
	}
	return worst
}

// All returns a snapshot of all current health checks.
func (r *Registry) All() []Check {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Check, 0, len(r.checks))
	for _, c := range r.checks {
		result = append(result, c)
	}
	return result
}

// Summary returns a JSON-friendly map for the status endpoint.
func (r *Registry) Summary() map[string]any {
	overall := r.Overall()
	checks := r.All()

	components := make(map[string]string, len(checks))
	for _, c := range checks {
		components[c.Name] = string(c.Status)
	}

	return map[string]any{
		"status":     string(overall),
		"components": components,
	}
}

func rank(s Status) int {
	switch s {
	case Degraded:
		return 1
	case Unhealthy:
		return 2
	default:
		return 0
	}
}
