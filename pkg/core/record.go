package core

import (
	"context"
	"time"
)

// ExecutionRecord describes one executed statement. It is built once per call
// and never modified afterwards.
type ExecutionRecord struct {
	Fingerprint string        `json:"fingerprint"`
	Source      string        `json:"source"` // "query" or "template:<name>"
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration_ns"`
	RowCount    int           `json:"row_count"`
	Success     bool          `json:"success"`
	Error       string        `json:"error,omitempty"` // empty on success
}

// Sink receives execution records. Record must not block the caller for
// longer than it takes to hand the record off.
type Sink interface {
	Record(ctx context.Context, rec ExecutionRecord)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, rec ExecutionRecord)

// Record calls f(ctx, rec).
func (f SinkFunc) Record(ctx context.Context, rec ExecutionRecord) { f(ctx, rec) }
