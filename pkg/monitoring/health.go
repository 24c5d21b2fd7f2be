// Package monitoring provides the health-check aggregator and HTTP handler
// shared by every service binary.
package monitoring

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// CheckResult is the outcome of a single named health check.
type CheckResult struct {
	Status  string        `json:"status"`
	Message string        `json:"message,omitempty"`
	Latency time.Duration `json:"latency_ns"`
}

// HealthStatus is the aggregate payload served at GET /health.
type HealthStatus struct {
	Status    string                 `json:"status"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

// HealthCheck evaluates one dependency and returns its CheckResult.
type HealthCheck func() CheckResult

// HealthChecker aggregates named HealthChecks into a single HealthStatus.
type HealthChecker struct {
	service string
	version string
	checks  map[string]HealthCheck
}

func NewHealthChecker(service, version string) *HealthChecker {
	return &HealthChecker{
		service: service,
		version: version,
		checks:  make(map[string]HealthCheck),
	}
}

func (h *HealthChecker) AddCheck(name string, check HealthCheck) {
	h.checks[name] = check
}

func (h *HealthChecker) CheckHealth() HealthStatus {
	results := make(map[string]CheckResult, len(h.checks))
	overall := StatusHealthy

	for name, check := range h.checks {
		result := check()
		results[name] = result

		switch result.Status {
		case StatusUnhealthy:
			overall = StatusUnhealthy
		case StatusDegraded:
			if overall != StatusUnhealthy {
				overall = StatusDegraded
			}
		}
	}

	return HealthStatus{
		Status:    overall,
		Service:   h.service,
		Version:   h.version,
		Timestamp: time.Now(),
		Checks:    results,
	}
}

// Handler returns a gin handler writing 200 for healthy/degraded and 503 for
// unhealthy, matching how load balancers distinguish "up" from "down".
func (h *HealthChecker) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		status := h.CheckHealth()
		code := http.StatusOK
		if status.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	}
}

// DatabaseHealthCheck pings the given *sql.DB with a bounded timeout.
func DatabaseHealthCheck(db *sql.DB) HealthCheck {
	return func() CheckResult {
		start := time.Now()
		if db == nil {
			return CheckResult{Status: StatusUnhealthy, Message: "database not configured", Latency: time.Since(start)}
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return CheckResult{Status: StatusUnhealthy, Message: err.Error(), Latency: time.Since(start)}
		}
		return CheckResult{Status: StatusHealthy, Latency: time.Since(start)}
	}
}

// BrokerHealthCheck reports the health of a broker connection via the
// supplied predicate (typically Conn.IsConnected).
func BrokerHealthCheck(isConnected func() bool) HealthCheck {
	return func() CheckResult {
		start := time.Now()
		if !isConnected() {
			return CheckResult{Status: StatusUnhealthy, Message: "broker connection not established", Latency: time.Since(start)}
		}
		return CheckResult{Status: StatusHealthy, Latency: time.Since(start)}
	}
}

// HTTPServiceHealthCheck reports degraded (not unhealthy) when a downstream
// HTTP dependency is unreachable, since these are not required for the
// service's own liveness.
func HTTPServiceHealthCheck(client *http.Client, url string) HealthCheck {
	return func() CheckResult {
		start := time.Now()
		resp, err := client.Get(url)
		if err != nil {
			return CheckResult{Status: StatusDegraded, Message: err.Error(), Latency: time.Since(start)}
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return CheckResult{Status: StatusDegraded, Message: resp.Status, Latency: time.Since(start)}
		}
		return CheckResult{Status: StatusHealthy, Latency: time.Since(start)}
	}
}

// ConfigurationHealthCheck flags any required config value left empty.
func ConfigurationHealthCheck(configs map[string]string) HealthCheck {
	return func() CheckResult {
		for name, value := range configs {
			if value == "" {
				return CheckResult{Status: StatusUnhealthy, Message: "missing required config: " + name}
			}
		}
		return CheckResult{Status: StatusHealthy}
	}
}
