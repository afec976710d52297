// Package pipeline implements the step abstraction and its runtime: steps
// are wired together by bounded channels and each runs as an independent,
// cooperatively-scheduled task that selects between input-driven and
// timer-driven work.
package pipeline

import (
	"context"
	"time"

	"github.com/0xkanth/polymarket-indexer/pkg/stream"
)

// Step is the contract every pipeline node implements. Process transforms
// one batch; returning a nil *stream.Batch[Out] drops the batch silently,
// which is valid for sinks and filters.
type Step[In, Out any] interface {
	// Name returns a stable identity for diagnostics, including the
	// payload type so that two instances of a generic step (e.g. the
	// tracker) are distinguishable in logs.
	Name() string

	Process(ctx context.Context, batch stream.Batch[In]) (*stream.Batch[Out], error)
}

// Pollable is an optional capability: steps that produce output on a timer
// in addition to (or instead of) input-driven processing implement it.
// Timers, trackers and batchers are pollable.
type Pollable[Out any] interface {
	PollInterval() time.Duration
	Poll(ctx context.Context) ([]stream.Batch[Out], error)
}

// Cleaner is an optional capability: steps that need to flush state when
// their input channel closes (end of stream) implement it. Runner calls
// Cleanup once when the step's task ends: after the step's input is closed
// and drained, or on a best-effort basis on forced shutdown or a fatal
// error.
type Cleaner[Out any] interface {
	Cleanup(ctx context.Context) ([]stream.Batch[Out], error)
}

// AsPollable type-asserts step against Pollable[Out], for runtime capability
// dispatch (see Spawn). Returns ok=false if step does not implement it.
func AsPollable[In, Out any](step Step[In, Out]) (Pollable[Out], bool) {
	p, ok := any(step).(Pollable[Out])
	return p, ok
}

// AsCleaner type-asserts step against Cleaner[Out].
func AsCleaner[In, Out any](step Step[In, Out]) (Cleaner[Out], bool) {
	c, ok := any(step).(Cleaner[Out])
	return c, ok
}
