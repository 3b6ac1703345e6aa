// Package health provides periodic health checks for the taskd daemon.
package health

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/tutu-network/taskd/internal/infra/metrics"
)

// Check defines a single named health check.
type Check struct {
	Name    string
	CheckFn func(ctx context.Context) error
}

// Status represents the result of a health check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Verifier is satisfied by *registry.Registry.
type Verifier interface {
	Verify() error
}

// Pinger is satisfied by *sqlite.Journal.
type Pinger interface {
	Ping() error
}

// Checker runs periodic health checks.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
}

// NewChecker creates a health checker for the registry and, when journal
// is non-nil, the SQLite event journal.
func NewChecker(reg Verifier, journal Pinger) *Checker {
	c := &Checker{
		interval: 60 * time.Second,
		checks: []Check{
			{
				Name: "registry",
				CheckFn: func(ctx context.Context) error {
					return reg.Verify()
				},
			},
		},
	}
	if journal != nil {
		c.checks = append(c.checks, Check{
			Name: "journal",
			CheckFn: func(ctx context.Context) error {
				if err := journal.Ping(); err != nil {
					return fmt.Errorf("ping journal: %w", err)
				}
				return nil
			},
		})
	}
	return c
}

// SetInterval overrides the 60s check interval.
func (c *Checker) SetInterval(d time.Duration) { c.interval = d }

// Run starts the health check loop. Call in a goroutine.
func (c *Checker) Run(ctx context.Context) {
	// Run immediately on start
	c.RunAll(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunAll(ctx)
		}
	}
}

// RunAll executes every check once and stores the results.
func (c *Checker) RunAll(ctx context.Context) {
	statuses := make([]Status, len(c.checks))
	for i, check := range c.checks {
		s := Status{
			Name:      check.Name,
			CheckedAt: time.Now(),
		}
		if err := check.CheckFn(ctx); err != nil {
			s.Error = err.Error()
			log.Printf("[health] %s unhealthy: %v", check.Name, err)
			metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(0)
		} else {
			s.Healthy = true
			metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(1)
		}
		statuses[i] = s
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

// Statuses returns the latest health check results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy returns true if all checks pass.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}
