// Command mockupstream runs a standalone instance of the mock transaction
// stream server, seeded from a JSON fixture file, for local development and
// integration tests that need a real gRPC upstream without a live chain.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/0xkanth/polymarket-indexer/internal/logging"
	"github.com/0xkanth/polymarket-indexer/pkg/mockstream"
	"github.com/0xkanth/polymarket-indexer/pkg/upstreamrpc"
)

type seedFile struct {
	ChainID   uint64                              `json:"chain_id"`
	Responses []upstreamrpc.TransactionsResponse `json:"responses"`
}

func main() {
	logger := logging.Init()

	seedPath := "seed.json"
	if len(os.Args) > 1 {
		seedPath = os.Args[1]
	}

	raw, err := os.ReadFile(seedPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", seedPath).Msg("failed to read seed file")
	}

	var seed seedFile
	if err := json.Unmarshal(raw, &seed); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse seed file")
	}

	srv := mockstream.New(seed.Responses, seed.ChainID, *logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	port, shutdown, err := mockstream.Run(ctx, srv)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start mock upstream server")
	}
	defer shutdown()

	fmt.Printf("mock upstream listening on 127.0.0.1:%d\n", port)
	logger.Info().Int("port", port).Int("responses", len(seed.Responses)).Msg("mock upstream server started")

	<-ctx.Done()
	logger.Info().Msg("mock upstream server shutting down")
}
