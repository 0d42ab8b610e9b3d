package domain

import "time"

// HealthState overall exchange connectivity state.
type HealthState string

const (
	HealthUnknown  HealthState = "UNKNOWN"
	HealthHealthy  HealthState = "HEALTHY"
	HealthDegraded HealthState = "DEGRADED"
	HealthDown     HealthState = "DOWN"
)

// HealthStatus latest result of the health probe.
type HealthStatus struct {
	State       HealthState `json:"state"`
	OK          bool        `json:"ok"`
	Degraded    bool        `json:"degraded"`
	Message     string      `json:"message"`
	LatencyMs   int64       `json:"latency_ms"`
	LastChecked time.Time   `json:"last_checked"`
}
