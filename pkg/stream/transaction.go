// Package stream defines the data model shared by every pipeline step:
// the opaque versioned transaction and the batch envelope that carries it
// between steps.
package stream

import "time"

// Void is the input payload type for a source step: a step with nothing
// upstream never actually receives a batch (pipeline.Runner never wires an
// input edge to it), so Void only exists to satisfy Step's two type
// parameters.
type Void = struct{}

// Transaction is an opaque record bearing a monotonic version drawn from a
// dense, gap-free integer sequence at the source.
type Transaction struct {
	Version   uint64
	Data      []byte
	Timestamp time.Time
}

// Batch is the envelope every pipeline edge carries: a contiguous range of
// transactions plus enough metadata for the gap tracker and terminal steps
// to do their job without re-deriving it from the payload.
//
// Invariant: StartVersion <= EndVersion. Successive batches on one edge may
// arrive out of order, but each individual batch is internally contiguous.
type Batch[T any] struct {
	Data T

	StartVersion uint64
	EndVersion   uint64

	StartTransactionTimestamp *time.Time
	EndTransactionTimestamp   *time.Time

	TotalSizeInBytes uint64
}

// stripped returns a metadata-only copy of b: same version range and
// timestamps, payload replaced by the zero value of T. Used by the gap
// tracker's seen_versions map so it never retains a second copy of user
// payload bytes.
func stripped[T any](b Batch[T]) Batch[T] {
	var zero T
	return Batch[T]{
		Data:                      zero,
		StartVersion:              b.StartVersion,
		EndVersion:                b.EndVersion,
		StartTransactionTimestamp: b.StartTransactionTimestamp,
		EndTransactionTimestamp:   b.EndTransactionTimestamp,
		TotalSizeInBytes:          b.TotalSizeInBytes,
	}
}

// Stripped exposes stripped for use outside the package (pkg/tracker).
func Stripped[T any](b Batch[T]) Batch[T] {
	return stripped(b)
}
