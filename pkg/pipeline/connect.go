package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/0xkanth/polymarket-indexer/pkg/stream"
)

// connected fuses two steps into one node: its declared input is the first
// step's input and its declared output is the second step's output.
// Composition is associative at the type level.
//
// Unlike Spawn (the channel-wired runtime), a connected step runs both
// halves synchronously within whichever task hosts it - no channel, no
// extra goroutine. This is the cheap path for chaining steps that don't
// need independent scheduling (e.g. a decode step fused directly with a
// cheap filter).
type connected[In, Mid, Out any] struct {
	first  Step[In, Mid]
	second Step[Mid, Out]
}

// Connect composes first and second into a single Step[In, Out].
func Connect[In, Mid, Out any](first Step[In, Mid], second Step[Mid, Out]) Step[In, Out] {
	return &connected[In, Mid, Out]{first: first, second: second}
}

func (c *connected[In, Mid, Out]) Name() string {
	return fmt.Sprintf("%s -> %s", c.first.Name(), c.second.Name())
}

func (c *connected[In, Mid, Out]) Process(ctx context.Context, batch stream.Batch[In]) (*stream.Batch[Out], error) {
	mid, err := c.first.Process(ctx, batch)
	if err != nil {
		return nil, err
	}
	if mid == nil {
		return nil, nil
	}
	return c.second.Process(ctx, *mid)
}

// PollInterval reports the first half's poll interval when it is pollable,
// and 0 otherwise, which Runner treats as having no poll work. Poll applies
// the second half's Process to each of the first half's polled outputs.
func (c *connected[In, Mid, Out]) PollInterval() time.Duration {
	if p, ok := AsPollable[In, Mid](c.first); ok {
		return p.PollInterval()
	}
	return 0
}

func (c *connected[In, Mid, Out]) Poll(ctx context.Context) ([]stream.Batch[Out], error) {
	p, ok := AsPollable[In, Mid](c.first)
	if !ok {
		return nil, nil
	}
	mids, err := p.Poll(ctx)
	if err != nil {
		return nil, err
	}
	return c.threadThroughSecond(ctx, mids)
}

// Cleanup flushes whichever halves are Cleaners (and returns nothing when
// neither is): the first half's flushed output (if any) is threaded through
// the second step's Process, then the second half's own Cleanup output is
// appended.
func (c *connected[In, Mid, Out]) Cleanup(ctx context.Context) ([]stream.Batch[Out], error) {
	var out []stream.Batch[Out]

	if fc, ok := AsCleaner[In, Mid](c.first); ok {
		mids, err := fc.Cleanup(ctx)
		if err != nil {
			return nil, err
		}
		threaded, err := c.threadThroughSecond(ctx, mids)
		if err != nil {
			return nil, err
		}
		out = append(out, threaded...)
	}

	if sc, ok := AsCleaner[Mid, Out](c.second); ok {
		tail, err := sc.Cleanup(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, tail...)
	}

	return out, nil
}

func (c *connected[In, Mid, Out]) threadThroughSecond(ctx context.Context, mids []stream.Batch[Mid]) ([]stream.Batch[Out], error) {
	out := make([]stream.Batch[Out], 0, len(mids))
	for _, mid := range mids {
		res, err := c.second.Process(ctx, mid)
		if err != nil {
			return nil, err
		}
		if res != nil {
			out = append(out, *res)
		}
	}
	return out, nil
}
