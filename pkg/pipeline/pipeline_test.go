package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xkanth/polymarket-indexer/pkg/stream"
)

// doubler is a trivial fixture Step[int, int].
type doubler struct{}

func (doubler) Name() string { return "doubler" }
func (doubler) Process(_ context.Context, batch stream.Batch[int]) (*stream.Batch[int], error) {
	batch.Data *= 2
	return &batch, nil
}

// incrementer is a trivial fixture Step[int, int].
type incrementer struct{}

func (incrementer) Name() string { return "incrementer" }
func (incrementer) Process(_ context.Context, batch stream.Batch[int]) (*stream.Batch[int], error) {
	batch.Data++
	return &batch, nil
}

func TestConnect_ThreadsBatchThroughBothSteps(t *testing.T) {
	fused := Connect[int, int, int](doubler{}, incrementer{})
	assert.Equal(t, "doubler -> incrementer", fused.Name())

	out, err := fused.Process(context.Background(), stream.Batch[int]{Data: 5})
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, 11, out.Data) // (5*2)+1
}

// ticker is a source step: Pollable and Cleaner, no input edge.
type ticker struct {
	interval time.Duration
	emitted  int
	flushed  bool
}

func (t *ticker) Name() string { return "ticker" }
func (t *ticker) Process(context.Context, stream.Batch[stream.Void]) (*stream.Batch[int], error) {
	panic("unreachable for a source step")
}
func (t *ticker) PollInterval() time.Duration { return t.interval }
func (t *ticker) Poll(context.Context) ([]stream.Batch[int], error) {
	t.emitted++
	return []stream.Batch[int]{{Data: t.emitted}}, nil
}
func (t *ticker) Cleanup(context.Context) ([]stream.Batch[int], error) {
	t.flushed = true
	return nil, nil
}

func TestRunner_SourceStepForwardsPolledOutput(t *testing.T) {
	step := &ticker{interval: 5 * time.Millisecond}
	out := NewEdge[int](4)
	runner := &Runner[stream.Void, int]{Step: step, Out: out, Logger: zerolog.Nop()}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	select {
	case batch := <-out:
		require.Len(t, batch, 1)
		assert.Equal(t, 1, batch[0].Data)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for polled output")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not exit after cancellation")
	}
	assert.True(t, step.flushed, "cleanup must run on forced shutdown")
}

// passThroughCleaner is an input step that also implements Cleaner, used to
// verify the graceful-shutdown cascade when its input edge is closed.
type passThroughCleaner struct {
	cleanedUp bool
}

func (p *passThroughCleaner) Name() string { return "passThroughCleaner" }
func (p *passThroughCleaner) Process(_ context.Context, batch stream.Batch[int]) (*stream.Batch[int], error) {
	return &batch, nil
}
func (p *passThroughCleaner) Cleanup(context.Context) ([]stream.Batch[int], error) {
	p.cleanedUp = true
	return []stream.Batch[int]{{Data: -1}}, nil
}

func TestRunner_GracefulShutdownCascadesOnInputClose(t *testing.T) {
	step := &passThroughCleaner{}
	in := NewEdge[int](4)
	out := NewEdge[int](4)
	runner := &Runner[int, int]{Step: step, In: in, Out: out, Logger: zerolog.Nop()}

	done := make(chan error, 1)
	go func() { done <- runner.Run(context.Background()) }()

	in <- []stream.Batch[int]{{Data: 1}, {Data: 2}}
	first := <-out
	require.Len(t, first, 2)

	close(in)

	cleanupBatch := <-out
	require.Len(t, cleanupBatch, 1)
	assert.Equal(t, -1, cleanupBatch[0].Data)

	_, stillOpen := <-out
	assert.False(t, stillOpen, "Out must be closed after graceful shutdown")

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not exit after input close")
	}
	assert.True(t, step.cleanedUp)
}

func TestPipeline_ShutdownStopsAllSpawnedSteps(t *testing.T) {
	p := New(context.Background())

	step := &ticker{interval: 5 * time.Millisecond}
	out := NewEdge[int](4)
	Spawn(p, &Runner[stream.Void, int]{Step: step, Out: out, Logger: zerolog.Nop()})

	<-out // wait for at least one tick

	p.Shutdown()
	err := p.Wait()
	assert.NoError(t, err, "a clean Shutdown must not surface as an error")
}
