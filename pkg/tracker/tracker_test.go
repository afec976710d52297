package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xkanth/polymarket-indexer/internal/config"
	"github.com/0xkanth/polymarket-indexer/pkg/stream"
)

// fakeDB simulates the monotonic WHERE guard the real upsert statements
// enforce, so the persistence contract can be exercised without Postgres.
type fakeDB struct {
	liveVersion     int64
	liveSeen        bool
	backfillVersion int64
	backfillSeen    bool
	calls           int
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls++
	switch sql {
	case upsertLiveStatusSQL:
		version := args[1].(int64)
		if !f.liveSeen || version >= f.liveVersion {
			f.liveVersion = version
			f.liveSeen = true
		}
	case upsertBackfillStatusSQL:
		version := args[1].(int64)
		if !f.backfillSeen || version >= f.backfillVersion {
			f.backfillVersion = version
			f.backfillSeen = true
		}
	}
	return pgconn.CommandTag{}, nil
}

func ts(v int64) *time.Time {
	t := time.Unix(v, 0).UTC()
	return &t
}

func batch(start, end uint64) stream.Batch[string] {
	return stream.Batch[string]{
		Data:                    "payload",
		StartVersion:            start,
		EndVersion:              end,
		EndTransactionTimestamp: ts(int64(end)),
	}
}

func newLiveTracker(t *testing.T, db DB, startingVersion uint64) *GapTracker[string] {
	t.Helper()
	cfg := &config.IndexerProcessorConfig{
		ProcessorConfig: config.ProcessorConfig{Name: "test-processor"},
	}
	tr, err := New[string](db, cfg, startingVersion, zerolog.Nop())
	require.NoError(t, err)
	return tr
}

func TestGapTracker_ContiguousAdvance(t *testing.T) {
	tr := newLiveTracker(t, &fakeDB{}, 0)

	_, err := tr.Process(context.Background(), batch(0, 9))
	require.NoError(t, err)
	assert.Equal(t, uint64(10), tr.NextVersion())

	_, err = tr.Process(context.Background(), batch(10, 19))
	require.NoError(t, err)
	assert.Equal(t, uint64(20), tr.NextVersion())

	last, ok := tr.LastSuccessVersion()
	require.True(t, ok)
	assert.Equal(t, uint64(19), last)
}

func TestGapTracker_OutOfOrderThenFilled(t *testing.T) {
	tr := newLiveTracker(t, &fakeDB{}, 0)

	// Arrives ahead of the frontier: buffered, frontier unmoved.
	_, err := tr.Process(context.Background(), batch(10, 19))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), tr.NextVersion())
	assert.Len(t, tr.seenVersions, 1)

	// Fills the gap: frontier should jump straight through to 20,
	// absorbing the buffered entry.
	_, err = tr.Process(context.Background(), batch(0, 9))
	require.NoError(t, err)
	assert.Equal(t, uint64(20), tr.NextVersion())
	assert.Len(t, tr.seenVersions, 0)
}

func TestGapTracker_DuplicateBehindFrontierDropped(t *testing.T) {
	tr := newLiveTracker(t, &fakeDB{}, 0)

	_, err := tr.Process(context.Background(), batch(0, 9))
	require.NoError(t, err)

	_, err = tr.Process(context.Background(), batch(0, 9))
	require.NoError(t, err)
	assert.Equal(t, uint64(10), tr.NextVersion())
	assert.Len(t, tr.seenVersions, 0)
}

func TestGapTracker_OverlappingSeenVersionsKeepsLargerEnd(t *testing.T) {
	tr := newLiveTracker(t, &fakeDB{}, 0)

	_, err := tr.Process(context.Background(), batch(5, 9))
	require.NoError(t, err)
	_, err = tr.Process(context.Background(), batch(5, 14))
	require.NoError(t, err)

	entry := tr.seenVersions[5]
	assert.Equal(t, uint64(14), entry.EndVersion)

	// A smaller overlapping range arriving after must not shrink it back.
	_, err = tr.Process(context.Background(), batch(5, 11))
	require.NoError(t, err)
	entry = tr.seenVersions[5]
	assert.Equal(t, uint64(14), entry.EndVersion)
}

func TestGapTracker_PersistIsMonotonic(t *testing.T) {
	db := &fakeDB{}
	tr := newLiveTracker(t, db, 0)

	_, err := tr.Process(context.Background(), batch(0, 99))
	require.NoError(t, err)
	require.NoError(t, tr.persist(context.Background()))
	assert.Equal(t, int64(99), db.liveVersion)

	// Simulate a concurrently-running newer instance having already
	// pushed the frontier further ahead.
	db.liveVersion = 199

	_, err = tr.Process(context.Background(), batch(100, 149))
	require.NoError(t, err)
	require.NoError(t, tr.persist(context.Background()))

	assert.Equal(t, int64(199), db.liveVersion, "an older instance's persist must never regress last_success_version")
}

func TestGapTracker_BackfillRequiresEndingVersion(t *testing.T) {
	cfg := &config.IndexerProcessorConfig{
		BackfillConfig: &config.BackfillConfig{BackfillAlias: "backfill-1"},
		TransactionStreamConfig: config.TransactionStreamConfig{
			StartingVersion: 0,
		},
	}
	_, err := New[string](&fakeDB{}, cfg, 0, zerolog.Nop())
	require.Error(t, err)

	var perr *stream.ProcessorError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, stream.KindConfig, perr.Kind)
}

func TestGapTracker_BackfillPersistsDistinctRow(t *testing.T) {
	ending := uint64(199)
	cfg := &config.IndexerProcessorConfig{
		BackfillConfig: &config.BackfillConfig{BackfillAlias: "backfill-1"},
		TransactionStreamConfig: config.TransactionStreamConfig{
			StartingVersion:      0,
			RequestEndingVersion: &ending,
		},
	}
	db := &fakeDB{}
	tr, err := New[string](db, cfg, 0, zerolog.Nop())
	require.NoError(t, err)

	_, err = tr.Process(context.Background(), batch(0, 99))
	require.NoError(t, err)
	require.NoError(t, tr.persist(context.Background()))

	assert.True(t, db.backfillSeen)
	assert.False(t, db.liveSeen)
	assert.Equal(t, int64(99), db.backfillVersion)
}

func TestGapTracker_CleanupPersists(t *testing.T) {
	db := &fakeDB{}
	tr := newLiveTracker(t, db, 0)

	_, err := tr.Process(context.Background(), batch(0, 9))
	require.NoError(t, err)

	outputs, err := tr.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Nil(t, outputs)
	assert.Equal(t, int64(9), db.liveVersion)
}
