// Package streamclient adapts the upstreamrpc.RawDataClient server-stream
// into a pipeline.Step source: a background goroutine continuously drains
// the gRPC stream into a small internal buffer, and Poll drains that buffer
// without blocking the step runtime's select loop. A stream that ends
// cleanly is followed by a new request from the next version; a failed
// request or Recv is not retried and reaches Poll as an upstream error.
// Grounded in the forward shape of fangrpcstream.Stream (send/recv pump
// goroutines feeding a channel the caller polls), adapted from a
// bidirectional RPC wrapper to a unidirectional streaming source.
package streamclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/0xkanth/polymarket-indexer/pkg/stream"
	"github.com/0xkanth/polymarket-indexer/pkg/upstreamrpc"
)

// PollInterval bounds how often the step runtime checks the internal
// buffer; it is small because the actual pacing is governed by the
// background recv loop, not by this tick.
const PollInterval = 10 * time.Millisecond

// ErrStreamComplete is returned by Poll once the configured ending version
// has been reached. It is a normal end-of-work signal, not a fault: the
// pipeline runtime surfaces it like any other poll error, which cascades
// into a coordinated pipeline shutdown, the desired outcome at the end of
// a bounded backfill run.
var ErrStreamComplete = errors.New("streamclient: reached request_ending_version")

type recvResult struct {
	batch stream.Batch[[]stream.Transaction]
	err   error
}

// Source is a pipeline.Step[stream.Void, []stream.Transaction] source whose
// Process is never called (it has no input edge): its only behavior is Poll.
type Source struct {
	client            upstreamrpc.RawDataClient
	nextVersion       uint64
	endingVersion     *uint64
	transactionsCount *uint64
	logger            zerolog.Logger

	mu      sync.Mutex
	started bool
	recvCh  chan recvResult
}

// New constructs a Source that will begin streaming at startingVersion.
// endingVersion, if non-nil, bounds the stream (backfill mode);
// transactionsCount, if non-nil, is forwarded to the upstream as a hint on
// how many transactions to include per response.
func New(client upstreamrpc.RawDataClient, startingVersion uint64, endingVersion, transactionsCount *uint64, logger zerolog.Logger) *Source {
	return &Source{
		client:            client,
		nextVersion:       startingVersion,
		endingVersion:     endingVersion,
		transactionsCount: transactionsCount,
		logger:            logger.With().Str("component", "streamclient").Logger(),
		recvCh:            make(chan recvResult, 64),
	}
}

func (s *Source) Name() string { return "TransactionStreamSource" }

// Process is unreachable: Source has no input edge, so pipeline.Runner
// never calls it.
func (s *Source) Process(ctx context.Context, _ stream.Batch[stream.Void]) (*stream.Batch[[]stream.Transaction], error) {
	return nil, fmt.Errorf("streamclient: Process is unreachable for a source step")
}

func (s *Source) PollInterval() time.Duration { return PollInterval }

// Poll drains one pending batch from the internal buffer, if any is ready,
// starting the background recv loop on first call.
func (s *Source) Poll(ctx context.Context) ([]stream.Batch[[]stream.Transaction], error) {
	s.ensureStarted(ctx)

	select {
	case res, ok := <-s.recvCh:
		if !ok {
			return nil, ErrStreamComplete
		}
		if res.err != nil {
			return nil, res.err
		}
		return []stream.Batch[[]stream.Transaction]{res.batch}, nil
	default:
		return nil, nil
	}
}

func (s *Source) ensureStarted(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	go s.run(ctx)
}

func (s *Source) run(ctx context.Context) {
	defer close(s.recvCh)
	for {
		if ctx.Err() != nil {
			return
		}
		if s.reachedEnd() {
			return
		}
		if err := s.consumeOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Error().Err(err).Msg("upstream stream failed")
			select {
			case s.recvCh <- recvResult{err: stream.NewUpstreamError(s.Name(), err)}:
			case <-ctx.Done():
			}
			return
		}
	}
}

func (s *Source) reachedEnd() bool {
	return s.endingVersion != nil && s.nextVersion > *s.endingVersion
}

func (s *Source) consumeOnce(ctx context.Context) error {
	req := &upstreamrpc.GetTransactionsRequest{
		StartingVersion:   s.nextVersion,
		TransactionsCount: s.transactionsCount,
	}
	grpcStream, err := s.client.GetTransactions(ctx, req)
	if err != nil {
		return fmt.Errorf("get_transactions: %w", err)
	}

	for {
		resp, err := grpcStream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("recv: %w", err)
		}
		if len(resp.Transactions) == 0 {
			continue
		}

		batch := toBatch(resp)
		s.nextVersion = batch.EndVersion + 1

		select {
		case s.recvCh <- recvResult{batch: batch}:
		case <-ctx.Done():
			return ctx.Err()
		}

		if s.reachedEnd() {
			return nil
		}
	}
}

func toBatch(resp *upstreamrpc.TransactionsResponse) stream.Batch[[]stream.Transaction] {
	txs := make([]stream.Transaction, len(resp.Transactions))
	var size uint64
	for i, tx := range resp.Transactions {
		txs[i] = stream.Transaction{Version: tx.Version, Data: tx.Payload, Timestamp: tx.Timestamp}
		size += uint64(len(tx.Payload))
	}
	startTS := txs[0].Timestamp
	endTS := txs[len(txs)-1].Timestamp
	return stream.Batch[[]stream.Transaction]{
		Data:                      txs,
		StartVersion:              txs[0].Version,
		EndVersion:                txs[len(txs)-1].Version,
		StartTransactionTimestamp: &startTS,
		EndTransactionTimestamp:   &endTS,
		TotalSizeInBytes:          size,
	}
}
