package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Pipeline owns the lifetime of a set of spawned steps. Every step observes
// the same shutdown signal: canceling the Pipeline (via Shutdown, or a
// fatal error from any one step) cancels the shared context, and every
// Runner's select loop wakes on ctx.Done() at its next suspension point.
type Pipeline struct {
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
}

// New creates a Pipeline whose shared context is derived from parent.
func New(parent context.Context) *Pipeline {
	ctx, cancel := context.WithCancel(parent)
	group, ctx := errgroup.WithContext(ctx)
	return &Pipeline{ctx: ctx, cancel: cancel, group: group}
}

// Spawn schedules r as an independent cooperative task. Spawn must be
// called before Wait; it is not a method on Pipeline because Go forbids
// generic methods.
func Spawn[In, Out any](p *Pipeline, r *Runner[In, Out]) {
	p.group.Go(func() error {
		return r.Run(p.ctx)
	})
}

// Shutdown broadcasts a forced-shutdown signal to every spawned step.
func (p *Pipeline) Shutdown() {
	p.cancel()
}

// Wait blocks until every spawned step has returned, then returns the
// first error any step returned (errgroup semantics), or nil when that
// first error is context.Canceled: a fatal error from any step cancels
// every other step's context.
func (p *Pipeline) Wait() error {
	err := p.group.Wait()
	if err == context.Canceled {
		return nil
	}
	return err
}
