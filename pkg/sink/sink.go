// Package sink provides destinations for execution records: logging,
// metrics, fan-out and a non-blocking asynchronous wrapper.
package sink

import (
	"context"

	"github.com/leapstack-labs/retailsql/pkg/core"
)

// Nop discards every record.
var Nop core.Sink = core.SinkFunc(func(context.Context, core.ExecutionRecord) {})

// Multi fans a record out to every non-nil sink in order.
func Multi(sinks ...core.Sink) core.Sink {
	var out multi
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	switch len(out) {
	case 0:
		return Nop
	case 1:
		return out[0]
	}
	return out
}

type multi []core.Sink

func (m multi) Record(ctx context.Context, rec core.ExecutionRecord) {
	for _, s := range m {
		s.Record(ctx, rec)
	}
}
