package polymarket

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	natspub "github.com/0xkanth/polymarket-indexer/internal/nats"
	"github.com/0xkanth/polymarket-indexer/pkg/models"
	"github.com/0xkanth/polymarket-indexer/pkg/stream"
)

// PublishStep publishes every decoded event to NATS JetStream and passes
// the batch through unchanged, so a tracker step can sit downstream of it
// and record progress against what was actually published.
type PublishStep struct {
	publisher *natspub.Publisher
	logger    zerolog.Logger
}

// NewPublishStep wraps an already-connected NATS publisher as a step.
func NewPublishStep(publisher *natspub.Publisher, logger zerolog.Logger) *PublishStep {
	return &PublishStep{publisher: publisher, logger: logger.With().Str("component", "polymarket_publish").Logger()}
}

func (p *PublishStep) Name() string { return "polymarket.Publish" }

func (p *PublishStep) Process(ctx context.Context, batch stream.Batch[[]models.Event]) (*stream.Batch[[]models.Event], error) {
	if len(batch.Data) > 0 {
		if err := p.publisher.PublishBatch(ctx, batch.Data); err != nil {
			return nil, stream.NewDownstreamError(p.Name(), fmt.Errorf("publish batch: %w", err))
		}
	}
	return &batch, nil
}
