// Package health tracks component health for the node's /healthz endpoint.
package health

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// Status of a component or of the whole node.
type Status string

const (
	Healthy   Status = "healthy"
	Degraded  Status = "degraded"
	Unhealthy Status = "unhealthy"
)

// ErrDegraded marks a component as working but impaired.
var ErrDegraded = errors.New("degraded")

func isDegraded(err error) bool { return errors.Is(err, ErrDegraded) }

// CheckFunc probes one component. Returning ErrDegraded (or an error
// wrapping it) marks the component degraded instead of unhealthy.
type CheckFunc func(ctx context.Context) error

// Component is the last known state of one check.
type Component struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	Message   string        `json:"message"`
	LastCheck time.Time     `json:"last_check"`
	Latency   time.Duration `json:"latency,omitempty"`
}

// Report is the node-wide view.
type Report struct {
	Status     Status            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components []Component       `json:"components"`
	Uptime     time.Duration     `json:"uptime"`
	Version    string            `json:"version"`
	Info       map[string]string `json:"info,omitempty"`
}

// Checker runs registered checks.
type Checker struct {
	mu         sync.Mutex
	components map[string]*Component
	checks     map[string]CheckFunc
	info       map[string]func() string
	start      time.Time
	version    string
}

// NewChecker creates a checker reporting version.
func NewChecker(version string) *Checker {
	return &Checker{
		components: make(map[string]*Component),
		checks:     make(map[string]CheckFunc),
		info:       make(map[string]func() string),
		start:      time.Now(),
		version:    version,
	}
}

// Register adds or replaces a component check.
func (c *Checker) Register(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.components[name] = &Component{Name: name, Status: Healthy, Message: "registered", LastCheck: time.Now()}
	c.checks[name] = check
}

// Info adds a value reported with every Report, such as the current root.
func (c *Checker) Info(key string, value func() string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.info[key] = value
}

// Check runs every check and returns the aggregated report. Checks and info
// callbacks run without the checker's lock held.
func (c *Checker) Check(ctx context.Context) Report {
	c.mu.Lock()
	names := make([]string, 0, len(c.checks))
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, check := range c.checks {
		names = append(names, name)
		checks[name] = check
	}
	infos := make(map[string]func() string, len(c.info))
	for k, f := range c.info {
		infos[k] = f
	}
	c.mu.Unlock()
	sort.Strings(names)

	overall := Healthy
	comps := make([]Component, 0, len(names))
	for _, name := range names {
		comp := Component{Name: name}
		start := time.Now()
		err := checks[name](ctx)
		comp.Latency = time.Since(start)
		comp.LastCheck = time.Now()
		switch {
		case err == nil:
			comp.Status, comp.Message = Healthy, "OK"
		case isDegraded(err):
			comp.Status, comp.Message = Degraded, err.Error()
		default:
			comp.Status, comp.Message = Unhealthy, err.Error()
		}

		if comp.Status == Unhealthy {
			overall = Unhealthy
		} else if comp.Status == Degraded && overall == Healthy {
			overall = Degraded
		}
		comps = append(comps, comp)
	}

	var info map[string]string
	if len(infos) > 0 {
		info = make(map[string]string, len(infos))
		for k, f := range infos {
			info[k] = f()
		}
	}

	c.mu.Lock()
	for i := range comps {
		if _, ok := c.components[comps[i].Name]; ok {
			cp := comps[i]
			c.components[cp.Name] = &cp
		}
	}
	c.mu.Unlock()

	return Report{
		Status:     overall,
		Timestamp:  time.Now(),
		Components: comps,
		Uptime:     time.Since(c.start),
		Version:    c.version,
		Info:       info,
	}
}
