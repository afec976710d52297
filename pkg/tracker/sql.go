package tracker

// Both statements use the same monotonic guard: a concurrently-running
// older instance of the same processor (e.g. during a deploy) must never
// be allowed to stomp a newer last_success_version back down.

const upsertLiveStatusSQL = `
INSERT INTO processor_status (processor, last_success_version, last_transaction_timestamp, last_updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (processor) DO UPDATE
SET last_success_version = EXCLUDED.last_success_version,
    last_transaction_timestamp = EXCLUDED.last_transaction_timestamp,
    last_updated_at = EXCLUDED.last_updated_at
WHERE processor_status.last_success_version <= EXCLUDED.last_success_version
`

const upsertBackfillStatusSQL = `
INSERT INTO backfill_processor_status (processor_name, last_success_version, last_transaction_timestamp, backfill_start_version, backfill_end_version, last_updated_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (processor_name) DO UPDATE
SET last_success_version = EXCLUDED.last_success_version,
    last_transaction_timestamp = EXCLUDED.last_transaction_timestamp,
    backfill_start_version = EXCLUDED.backfill_start_version,
    backfill_end_version = EXCLUDED.backfill_end_version,
    last_updated_at = EXCLUDED.last_updated_at
WHERE backfill_processor_status.last_success_version <= EXCLUDED.last_success_version
`
