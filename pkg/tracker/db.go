package tracker

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the slice of *pgxpool.Pool the tracker needs. Depending on an
// interface here (rather than the concrete pool type) lets tests exercise
// the monotonic-upsert contract against a fake without a live Postgres.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}
