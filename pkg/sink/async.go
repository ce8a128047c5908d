package sink

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/leapstack-labs/retailsql/pkg/core"
)

// DefaultBuffer is the queue length used when NewAsync is given zero.
const DefaultBuffer = 256

// Async hands records to a background goroutine so a slow sink never delays
// the caller. When the queue is full the record is dropped and counted.
type Async struct {
	next    core.Sink
	log     *slog.Logger
	queue   chan core.ExecutionRecord
	dropped atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
}

// NewAsync starts the delivery goroutine. Call Close to flush and stop it.
func NewAsync(next core.Sink, buffer int, log *slog.Logger) *Async {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if log == nil {
		log = slog.Default()
	}
	a := &Async{
		next:  next,
		log:   log,
		queue: make(chan core.ExecutionRecord, buffer),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for rec := range a.queue {
		a.deliver(rec)
	}
}

func (a *Async) deliver(rec core.ExecutionRecord) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("execution sink panicked", slog.Any("panic", r), slog.String("fingerprint", rec.Fingerprint))
		}
	}()
	// The caller's context may already be cancelled by the time we deliver.
	a.next.Record(context.Background(), rec)
}

// Record enqueues rec without blocking.
func (a *Async) Record(_ context.Context, rec core.ExecutionRecord) {
	defer func() {
		// Record after Close sends on a closed channel.
		if recover() != nil {
			a.dropped.Add(1)
		}
	}()
	select {
	case a.queue <- rec:
	default:
		if n := a.dropped.Add(1); n == 1 || n%100 == 0 {
			a.log.Warn("execution sink queue full, dropping records", slog.Int64("dropped", n))
		}
	}
}

// Dropped returns how many records were discarded.
func (a *Async) Dropped() int64 { return a.dropped.Load() }

// Close stops accepting records and waits until queued ones are delivered
// or ctx is done.
func (a *Async) Close(ctx context.Context) error {
	a.closeOnce.Do(func() { close(a.queue) })
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
