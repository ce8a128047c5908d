package gateway

import (
	"context"
	"time"
)

// Health is the outcome of a connectivity check.
type Health struct {
	OK             bool    `json:"ok"`
	Database       string  `json:"database"`
	ResponseTimeMS float64 `json:"response_time_ms"`
	Error          string  `json:"error,omitempty"`
}

// Ping runs a trivial SELECT 1 through the adapter under the default timeout.
// It never returns an error; failures are reported in Health.
func (g *Gateway) Ping(ctx context.Context) Health {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	started := time.Now()
	err := g.adapter.Ping(ctx)
	h := Health{
		OK:             err == nil,
		Database:       g.adapter.DialectName(),
		ResponseTimeMS: float64(time.Since(started).Microseconds()) / 1000,
	}
	if err != nil {
		h.Error = redact(err.Error(), nil)
	}
	return h
}
