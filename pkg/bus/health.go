package bus

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const healthLogPrefix = "bus:health"

// HealthChecks holds individual check results.
type HealthChecks struct {
	Store       bool `json:"store"`
	Connections int  `json:"connections"`
	Services    int  `json:"services"`
}

// HealthOutput is the response of Health.
type HealthOutput struct {
	Status    string       `json:"status"`
	Checks    HealthChecks `json:"checks"`
	Timestamp string       `json:"timestamp"`
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Health reports whether the runtime can reach its config store, with
// connection and service counts. Stores without Ping count as healthy.
func (rt *Runtime) Health(ctx context.Context) *HealthOutput {
	storeOK := true
	if p, ok := rt.store.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			slog.Warn(fmt.Sprintf("%s - store ping failed: %v", healthLogPrefix, err))
			storeOK = false
		}
	}

	rt.connsMu.RLock()
	conns := len(rt.conns)
	rt.connsMu.RUnlock()

	status := "healthy"
	if !storeOK {
		status = "unhealthy"
	}
	return &HealthOutput{
		Status: status,
		Checks: HealthChecks{
			Store:       storeOK,
			Connections: conns,
			Services:    rt.registry.Len(),
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
