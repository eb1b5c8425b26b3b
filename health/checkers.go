// Package health reports the last-known connectivity of the messaging
// components for readiness probes.
package health

import (
	"time"
)

// Status is the outcome of a health check.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is one named check's outcome.
type CheckResult struct {
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ConnectionReporter is anything that can report broker connectivity.
// Both the connector and the publisher satisfy it.
type ConnectionReporter interface {
	Connected() bool
}

// BrokerChecker reports whether the broker was reachable the last time
// a component touched it. It does not probe the socket.
type BrokerChecker struct {
	name     string
	reporter ConnectionReporter
}

// NewBrokerChecker creates a checker over a connection reporter.
func NewBrokerChecker(name string, reporter ConnectionReporter) *BrokerChecker {
	return &BrokerChecker{name: name, reporter: reporter}
}

func (c *BrokerChecker) Name() string { return c.name }

// Check returns the current result.
func (c *BrokerChecker) Check() CheckResult {
	result := CheckResult{
		Name:      c.name,
		Timestamp: time.Now().UTC(),
	}
	if c.reporter.Connected() {
		result.Status = StatusHealthy
		return result
	}
	result.Status = StatusUnhealthy
	result.Message = "broker connection not established"
	return result
}
