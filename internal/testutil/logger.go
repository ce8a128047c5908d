// Package testutil provides fixtures shared by tests: a structured logger
// bound to the test and a seeded retail database.
package testutil

import (
	"log/slog"
	"sync/atomic"
	"testing"
)

// NewTestLogger returns a debug logger that writes to t.Log. Lines logged
// after the test finished, as background sinks and servers may do, are
// dropped instead of failing the run.
func NewTestLogger(t testing.TB) *slog.Logger {
	t.Helper()
	w := &testWriter{t: t}
	t.Cleanup(func() { w.done.Store(true) })
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})).
		With(slog.String("test", t.Name()))
}

type testWriter struct {
	t    testing.TB
	done atomic.Bool
}

func (w *testWriter) Write(p []byte) (int, error) {
	if w.done.Load() {
		return len(p), nil
	}
	w.t.Helper()
	w.t.Log(string(p))
	return len(p), nil
}
