package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/0xkanth/polymarket-indexer/pkg/stream"
)

// DefaultChannelCapacity is the default bound on the FIFO queue materialized
// between two independently-spawned steps. The exact number isn't
// contractual; the presence of backpressure is.
const DefaultChannelCapacity = 16

// Edge is the channel type wiring two spawned steps together: a batch of
// envelopes, preserving whatever grouping the upstream task produced.
type Edge[T any] chan []stream.Batch[T]

// NewEdge allocates a bounded edge channel, defaulting its capacity to
// DefaultChannelCapacity when capacity <= 0.
func NewEdge[T any](capacity int) Edge[T] {
	if capacity <= 0 {
		capacity = DefaultChannelCapacity
	}
	return make(Edge[T], capacity)
}

// Runner hosts one step as a single cooperative task. A Runner with a nil
// In channel models a source step (SpawnsPollableWithOutput in the
// original SDK's terms): it has nothing upstream and relies entirely on
// its poll timer.
type Runner[In, Out any] struct {
	Step   Step[In, Out]
	In     Edge[In] // nil for a source step
	Out    Edge[Out] // nil for a terminal sink step
	Logger zerolog.Logger
}

// Run executes the step runtime's event loop until ctx is canceled (forced
// shutdown) or, for steps with an input edge, until that edge is closed and
// drained (graceful shutdown propagated from upstream). On graceful
// shutdown it invokes Cleanup (if the step implements Cleaner), forwards any
// cleanup output, then closes its own Out edge so downstream steps observe
// the same graceful shutdown.
//
// On forced shutdown (ctx canceled) Cleanup is still invoked on a
// best-effort basis before Run returns, per the cancellation contract: a
// pollable tracker step must get to persist before the task dies.
func (r *Runner[In, Out]) Run(ctx context.Context) error {
	name := r.Step.Name()
	poller, pollable := AsPollable[In, Out](r.Step)
	cleaner, cleanable := AsCleaner[In, Out](r.Step)

	var pollInterval time.Duration
	var timer *time.Timer
	if pollable {
		// A non-positive interval means the step has no poll work.
		pollInterval = poller.PollInterval()
		pollable = pollInterval > 0
	}
	if pollable {
		timer = time.NewTimer(pollInterval)
		defer timer.Stop()
	}
	lastPoll := time.Now()

	finish := func(cleanupErr error) error {
		if r.Out != nil {
			close(r.Out)
		}
		return cleanupErr
	}

	runCleanup := func() error {
		if !cleanable {
			return nil
		}
		outputs, err := cleaner.Cleanup(ctx)
		if err != nil {
			return fmt.Errorf("%s: cleanup: %w", name, err)
		}
		if len(outputs) > 0 && r.Out != nil {
			select {
			case r.Out <- outputs:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	}

	doPoll := func() error {
		outputs, err := poller.Poll(ctx)
		if err != nil {
			return fmt.Errorf("%s: poll: %w", name, err)
		}
		if len(outputs) > 0 && r.Out != nil {
			select {
			case r.Out <- outputs:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	}

	for {
		// Step 1: a ready poll is invoked synchronously before waiting,
		// so sustained input load can never starve it by more than one
		// poll_interval.
		if pollable && time.Since(lastPoll) >= pollInterval {
			if err := doPoll(); err != nil {
				_ = runCleanup()
				return finish(err)
			}
			lastPoll = time.Now()
			resetTimer(timer, pollInterval)
		}

		if r.In == nil {
			// Source step: nothing to receive from, just timer/shutdown.
			select {
			case <-ctx.Done():
				_ = runCleanup()
				return finish(ctx.Err())

			case <-timer.C:
				if err := doPoll(); err != nil {
					_ = runCleanup()
					return finish(err)
				}
				lastPoll = time.Now()
				resetTimer(timer, pollInterval)
			}
			continue
		}

		var timerC <-chan time.Time
		if pollable {
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
			_ = runCleanup()
			return finish(ctx.Err())

		case <-timerC:
			if err := doPoll(); err != nil {
				_ = runCleanup()
				return finish(err)
			}
			lastPoll = time.Now()
			resetTimer(timer, pollInterval)

		case batch, ok := <-r.In:
			if !ok {
				// Upstream closed: drain (nothing left, channel close
				// means empty), cleanup, forward, close our own output.
				if err := runCleanup(); err != nil {
					return finish(err)
				}
				return finish(nil)
			}

			outputs := make([]stream.Batch[Out], 0, len(batch))
			for _, envelope := range batch {
				result, err := r.Step.Process(ctx, envelope)
				if err != nil {
					_ = runCleanup()
					return finish(fmt.Errorf("%s: process: %w", name, err))
				}
				if result != nil {
					outputs = append(outputs, *result)
				}
			}
			if len(outputs) > 0 && r.Out != nil {
				select {
				case r.Out <- outputs:
				case <-ctx.Done():
					_ = runCleanup()
					return finish(ctx.Err())
				}
			}
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if t == nil {
		return
	}
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
