// Package health runs named component checks for the daemon's /health
// endpoint. A failing critical component makes the daemon unhealthy; a
// failing non-critical one only degrades it.
package health

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"useaid/internal/store"
)

// Status is the aggregated or per-component health state.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is one component's outcome.
type CheckResult struct {
	Status      Status    `json:"status"`
	Error       string    `json:"error,omitempty"`
	LastChecked time.Time `json:"last_checked"`
}

// Check probes one component.
type Check func(ctx context.Context) error

// Component is a registered check.
type Component struct {
	Name     string
	Critical bool
	Check    Check
	Timeout  time.Duration
}

// Checker manages the registered components.
type Checker struct {
	mu         sync.RWMutex
	components []*Component
	results    map[string]CheckResult
}

// NewChecker creates an empty checker.
func NewChecker() *Checker {
	return &Checker{results: make(map[string]CheckResult)}
}

// Register adds a component. A zero timeout defaults to 5s.
func (c *Checker) Register(component *Component) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if component.Timeout == 0 {
		component.Timeout = 5 * time.Second
	}
	c.components = append(c.components, component)
}

// RegisterFunc adds a component from a bare function.
func (c *Checker) RegisterFunc(name string, critical bool, check Check) {
	c.Register(&Component{Name: name, Critical: critical, Check: check})
}

// Run executes every check and returns the per-component results.
func (c *Checker) Run(ctx context.Context) map[string]CheckResult {
	c.mu.RLock()
	components := append([]*Component(nil), c.components...)
	c.mu.RUnlock()

	results := make(map[string]CheckResult, len(components))
	for _, comp := range components {
		checkCtx, cancel := context.WithTimeout(ctx, comp.Timeout)
		res := CheckResult{Status: StatusHealthy, LastChecked: time.Now()}
		if err := runSafely(checkCtx, comp.Check); err != nil {
			res.Status = StatusUnhealthy
			res.Error = err.Error()
		}
		cancel()
		results[comp.Name] = res
	}

	c.mu.Lock()
	for name, res := range results {
		c.results[name] = res
	}
	c.mu.Unlock()
	return results
}

// runSafely converts a panicking check into an error.
func runSafely(ctx context.Context, check Check) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("check panicked: %v", r)
		}
	}()
	return check(ctx)
}

// OverallStatus aggregates the most recent results.
func (c *Checker) OverallStatus() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := StatusHealthy
	for _, comp := range c.components {
		res, ok := c.results[comp.Name]
		if !ok || res.Status == StatusHealthy {
			continue
		}
		if comp.Critical {
			return StatusUnhealthy
		}
		status = StatusDegraded
	}
	return status
}

// Results returns a copy of the most recent per-component results.
func (c *Checker) Results() map[string]CheckResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]CheckResult, len(c.results))
	for k, v := range c.results {
		out[k] = v
	}
	return out
}

// Domain checks.

// DataDirCheck verifies the data directory exists and is writable.
func DataDirCheck(paths store.Paths) Check {
	return func(ctx context.Context) error {
		probe := paths.Base + string(os.PathSeparator) + ".health"
		if err := os.WriteFile(probe, []byte("ok"), store.PermDataFile); err != nil {
			return fmt.Errorf("data dir not writable: %w", err)
		}
		os.Remove(probe)
		return nil
	}
}

// KeystoreCheck verifies the keystore file, when present, is well formed
// JSON. A daemon running unsigned (no keystore) is healthy.
func KeystoreCheck(paths store.Paths) Check {
	return func(ctx context.Context) error {
		if _, err := os.Stat(paths.KeystoreFile()); os.IsNotExist(err) {
			return nil
		}
		var doc map[string]any
		if !store.ReadJSON(paths.KeystoreFile(), &doc) {
			return fmt.Errorf("keystore file unreadable")
		}
		return nil
	}
}

// SealListCheck verifies the sessions list parses.
func SealListCheck(paths store.Paths) Check {
	return func(ctx context.Context) error {
		if _, err := os.Stat(paths.SessionsFile()); os.IsNotExist(err) {
			return nil
		}
		var seals []store.Seal
		if !store.ReadJSON(paths.SessionsFile(), &seals) {
			return fmt.Errorf("sessions list unreadable")
		}
		return nil
	}
}
