// Package mockstream implements a minimal stand-in for the upstream
// transaction stream, for tests and local development. Grounded on the
// Aptos indexer SDK's testing-framework MockGrpcServer
// (aptos-indexer-processors-sdk/testing-framework/src/mock_grpc.rs): the
// same expected-version filter/gap-fill semantics, the same
// fallback-to-first-stored response behavior, and the same
// bind-to-port-0-plus-watchdog lifecycle, reimplemented over genuine
// google.golang.org/grpc transport via the upstreamrpc wire contract.
package mockstream

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/0xkanth/polymarket-indexer/pkg/upstreamrpc"
)

// Watchdog is how long the server keeps running with no explicit Stop
// call before shutting itself down - a guard against a test harness that
// forgets to tear the server down leaking a listening socket forever.
const Watchdog = 60 * time.Second

// Server replays a fixed, pre-seeded set of responses to any
// GetTransactions call, filtering stored transactions down to those at or
// after an expected version that starts at the request's starting_version
// and advances by one for every transaction accepted, so the outgoing
// batch is contiguous and gap-free even if the underlying corpus isn't.
type Server struct {
	upstreamrpc.UnimplementedRawDataServer

	responses []upstreamrpc.TransactionsResponse
	chainID   uint64
	logger    zerolog.Logger
}

// New constructs a Server that will serve responses in order, stamping
// every outgoing response with chainID.
func New(responses []upstreamrpc.TransactionsResponse, chainID uint64, logger zerolog.Logger) *Server {
	return &Server{responses: responses, chainID: chainID, logger: logger.With().Str("component", "mockstream").Logger()}
}

// GetTransactions implements upstreamrpc.RawDataServer. It walks the
// pre-seeded responses in order, skipping any stored transaction whose
// version is below the expected version (req.StartingVersion at first, one
// higher after each accepted transaction), and collects the rest -
// untouched, version and data as stored - into one outgoing batch.
// Collection stops once req.TransactionsCount transactions have been
// gathered (defaulting to 1 if unset). If nothing was collected (a
// starting_version the store can't satisfy) the first stored response is
// replayed verbatim except for chain_id, so that a caller always observes
// at least one response rather than an empty stream. A server seeded with
// no responses at all answers with a NotFound error instead.
func (s *Server) GetTransactions(req *upstreamrpc.GetTransactionsRequest, stream upstreamrpc.RawData_GetTransactionsServer) error {
	s.logger.Debug().
		Uint64("starting_version", req.StartingVersion).
		Msg("get_transactions called")

	if err := stream.SetSendCompressor(upstreamrpc.ZstdName); err != nil {
		s.logger.Warn().Err(err).Msg("failed to enable zstd response compression")
	}

	count := uint64(1)
	if req.TransactionsCount != nil {
		count = *req.TransactionsCount
	}

	current := req.StartingVersion
	collected := make([]upstreamrpc.Transaction, 0)

collecting:
	for _, resp := range s.responses {
		for _, tx := range resp.Transactions {
			if tx.Version >= current && uint64(len(collected)) < count {
				collected = append(collected, tx)
				current++
			}
			if uint64(len(collected)) >= count {
				break collecting
			}
		}
	}

	if len(collected) == 0 {
		if len(s.responses) == 0 {
			return status.Error(codes.NotFound, "mockstream: no responses seeded")
		}
		fallback := s.responses[0]
		fallback.ChainID = s.chainID
		s.logger.Debug().Msg("no transactions collected, replaying fallback response")
		return stream.Send(&fallback)
	}

	return stream.Send(&upstreamrpc.TransactionsResponse{
		Transactions: collected,
		ChainID:      s.chainID,
	})
}

// Run binds to 127.0.0.1:0, serves until ctx is canceled, Stop is called,
// or the watchdog elapses, and reports the bound port once listening has
// started.
func Run(ctx context.Context, srv *Server) (port int, stop func(), err error) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, nil, fmt.Errorf("mockstream: listen: %w", err)
	}

	grpcServer := grpc.NewServer()
	upstreamrpc.RegisterRawDataServer(grpcServer, srv)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(lis)
	}()

	stopped := make(chan struct{})
	var once sync.Once
	doStop := func() {
		once.Do(func() {
			grpcServer.GracefulStop()
			close(stopped)
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			doStop()
		case <-time.After(Watchdog):
			srv.logger.Warn().Dur("watchdog", Watchdog).Msg("mock upstream server watchdog elapsed, stopping")
			doStop()
		case <-stopped:
		}
	}()

	return lis.Addr().(*net.TCPAddr).Port, doStop, nil
}
