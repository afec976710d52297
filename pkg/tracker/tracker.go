// Package tracker implements the gap-aware, monotonic version tracker: a
// pipeline step that sits at (or near) the end of a pipeline and records how
// far processing has progressed, tolerating batches that arrive out of
// order across concurrently-spawned steps.
//
// Grounded on the original Rust SDK's LatestVersionProcessedTracker
// (rust/sdk-examples/src/common_steps/latest_processed_version_tracker.rs):
// the same next_version frontier, seen_versions side-table and advance loop,
// reimplemented with Go's select-loop step runtime instead of a poll trait
// object, and persisted through a monotonic pgx upsert instead of diesel.
package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/0xkanth/polymarket-indexer/internal/config"
	"github.com/0xkanth/polymarket-indexer/pkg/stream"
)

// PersistInterval is how often the tracker flushes its frontier to
// Postgres, independent of how many batches pass through Process in between.
const PersistInterval = time.Second

// GapTracker absorbs batches from a (possibly fanned-out) upstream and
// maintains a monotonic next_version frontier, persisting it on a timer and
// at cleanup. T is the step's passthrough payload type: the tracker forwards
// every batch unchanged, so it can sit anywhere in a pipeline without
// affecting downstream payload shape.
type GapTracker[T any] struct {
	db   DB
	name string

	nextVersion      uint64
	lastSuccessBatch *stream.Batch[T]
	seenVersions     map[uint64]stream.Batch[T]

	backfill      bool
	backfillStart uint64
	backfillEnd   uint64

	logger zerolog.Logger
}

// New constructs a GapTracker. When cfg.BackfillConfig is non-nil the
// tracker runs in backfill mode, identified by BackfillAlias instead of the
// processor name, and requires a bounded ending version - mirroring the
// original's backfill validation in LatestVersionProcessedTracker::new.
func New[T any](db DB, cfg *config.IndexerProcessorConfig, startingVersion uint64, logger zerolog.Logger) (*GapTracker[T], error) {
	var zero T
	typeName := fmt.Sprintf("%T", zero)

	if cfg.BackfillConfig != nil {
		if cfg.TransactionStreamConfig.RequestEndingVersion == nil {
			return nil, stream.NewConfigError("tracker",
				fmt.Errorf("backfill mode requires transaction_stream_config.request_ending_version to be set"))
		}
		alias := cfg.BackfillConfig.BackfillAlias
		return &GapTracker[T]{
			db:            db,
			name:          alias,
			nextVersion:   startingVersion,
			seenVersions:  make(map[uint64]stream.Batch[T]),
			backfill:      true,
			backfillStart: cfg.TransactionStreamConfig.StartingVersion,
			backfillEnd:   *cfg.TransactionStreamConfig.RequestEndingVersion,
			logger:        logger.With().Str("component", "tracker").Str("tracker", alias).Str("payload_type", typeName).Logger(),
		}, nil
	}

	name := cfg.ProcessorConfig.Name
	return &GapTracker[T]{
		db:           db,
		name:         name,
		nextVersion:  startingVersion,
		seenVersions: make(map[uint64]stream.Batch[T]),
		logger:       logger.With().Str("component", "tracker").Str("tracker", name).Str("payload_type", typeName).Logger(),
	}, nil
}

// Name identifies this tracker instance, including its payload type so two
// trackers of different generic instantiations are distinguishable in logs.
func (t *GapTracker[T]) Name() string {
	var zero T
	return fmt.Sprintf("GapTracker<%T>: %s", zero, t.name)
}

// Process implements the batch ingestion algorithm: a batch whose
// StartVersion equals next_version advances the frontier (absorbing any
// contiguous out-of-order batches already buffered); a batch whose
// StartVersion is ahead of next_version is a gap and is buffered,
// metadata-only, in seen_versions; a batch whose StartVersion is behind
// next_version has already been accounted for and is dropped. The batch
// itself passes through unchanged regardless of which case applies.
func (t *GapTracker[T]) Process(ctx context.Context, batch stream.Batch[T]) (*stream.Batch[T], error) {
	switch {
	case batch.StartVersion == t.nextVersion:
		t.advance(batch)
		t.logger.Debug().
			Uint64("start_version", batch.StartVersion).
			Uint64("end_version", batch.EndVersion).
			Uint64("next_version", t.nextVersion).
			Msg("no gap, frontier advanced")

	case batch.StartVersion > t.nextVersion:
		t.logger.Debug().
			Uint64("next_version", t.nextVersion).
			Uint64("observed_start_version", batch.StartVersion).
			Msg("gap detected, buffering out of order batch")
		t.recordSeen(batch)

	default:
		t.logger.Debug().
			Uint64("start_version", batch.StartVersion).
			Uint64("next_version", t.nextVersion).
			Msg("batch start_version already advanced past, dropping")
	}

	seenVersionsGauge.WithLabelValues(t.name).Set(float64(len(t.seenVersions)))
	nextVersionGauge.WithLabelValues(t.name).Set(float64(t.nextVersion))

	return &batch, nil
}

// recordSeen inserts batch into seen_versions at its StartVersion key. A
// batch whose range is identical to an already-buffered entry overwrites it
// (newest wins); a batch with the same StartVersion as an existing entry
// but a different end_version is logged as undefined and the entry with the
// larger end_version is kept. Only entries sharing a StartVersion are
// compared: a batch overlapping an entry that starts elsewhere is buffered
// under its own key without a warning.
func (t *GapTracker[T]) recordSeen(batch stream.Batch[T]) {
	stripped := stream.Stripped(batch)

	existing, ok := t.seenVersions[batch.StartVersion]
	if !ok {
		t.seenVersions[batch.StartVersion] = stripped
		return
	}
	if existing.EndVersion == batch.EndVersion {
		t.seenVersions[batch.StartVersion] = stripped
		return
	}

	t.logger.Warn().
		Uint64("start_version", batch.StartVersion).
		Uint64("existing_end_version", existing.EndVersion).
		Uint64("incoming_end_version", batch.EndVersion).
		Msg("overlapping, non-identical seen_versions entry; keeping the larger end_version")
	if batch.EndVersion > existing.EndVersion {
		t.seenVersions[batch.StartVersion] = stripped
	}
}

// advance moves next_version forward from batch, then keeps absorbing any
// buffered seen_versions entry contiguous with the new frontier.
func (t *GapTracker[T]) advance(batch stream.Batch[T]) {
	cursor := batch
	for {
		next, ok := t.seenVersions[cursor.EndVersion+1]
		if !ok {
			break
		}
		delete(t.seenVersions, cursor.EndVersion+1)
		cursor = next
	}
	t.nextVersion = cursor.EndVersion + 1
	last := cursor
	t.lastSuccessBatch = &last
}

// PollInterval implements pipeline.Pollable.
func (t *GapTracker[T]) PollInterval() time.Duration { return PersistInterval }

// Poll implements pipeline.Pollable: on every tick, persist the current
// frontier. It never produces output batches of its own.
func (t *GapTracker[T]) Poll(ctx context.Context) ([]stream.Batch[T], error) {
	if err := t.persist(ctx); err != nil {
		return nil, err
	}
	return nil, nil
}

// Cleanup implements pipeline.Cleaner: flush the frontier one last time
// before the step's task exits.
func (t *GapTracker[T]) Cleanup(ctx context.Context) ([]stream.Batch[T], error) {
	if err := t.persist(ctx); err != nil {
		return nil, err
	}
	return nil, nil
}

func (t *GapTracker[T]) persist(ctx context.Context) error {
	if t.lastSuccessBatch == nil {
		return nil
	}
	batch := t.lastSuccessBatch

	if t.backfill {
		_, err := t.db.Exec(ctx, upsertBackfillStatusSQL,
			t.name, int64(batch.EndVersion), batch.EndTransactionTimestamp,
			int64(t.backfillStart), int64(t.backfillEnd))
		if err != nil {
			return stream.NewStorageError(t.Name(), fmt.Errorf("upsert backfill_processor_status: %w", err))
		}
		return nil
	}

	_, err := t.db.Exec(ctx, upsertLiveStatusSQL, t.name, int64(batch.EndVersion), batch.EndTransactionTimestamp)
	if err != nil {
		return stream.NewStorageError(t.Name(), fmt.Errorf("upsert processor_status: %w", err))
	}
	return nil
}

// LastSuccessVersion reports the highest contiguously-processed version,
// or false if nothing has advanced the frontier yet. Intended for health
// checks and tests.
func (t *GapTracker[T]) LastSuccessVersion() (uint64, bool) {
	if t.lastSuccessBatch == nil {
		return 0, false
	}
	return t.lastSuccessBatch.EndVersion, true
}

// NextVersion reports the current frontier.
func (t *GapTracker[T]) NextVersion() uint64 {
	return t.nextVersion
}
