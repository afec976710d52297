// Main indexer service: streams transactions from the upstream, decodes
// Polymarket contract events out of them, publishes to NATS, and tracks
// processing progress in Postgres.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/0xkanth/polymarket-indexer/internal/config"
	"github.com/0xkanth/polymarket-indexer/internal/dbpool"
	"github.com/0xkanth/polymarket-indexer/internal/logging"
	natspub "github.com/0xkanth/polymarket-indexer/internal/nats"
	"github.com/0xkanth/polymarket-indexer/internal/polymarket"
	chainscope "github.com/0xkanth/polymarket-indexer/pkg/config"
	"github.com/0xkanth/polymarket-indexer/pkg/models"
	"github.com/0xkanth/polymarket-indexer/pkg/pipeline"
	"github.com/0xkanth/polymarket-indexer/pkg/stream"
	"github.com/0xkanth/polymarket-indexer/pkg/streamclient"
	"github.com/0xkanth/polymarket-indexer/pkg/tracker"
	"github.com/0xkanth/polymarket-indexer/pkg/upstreamrpc"
)

func main() {
	logger := logging.Init()
	logger.Info().Msg("starting transaction indexing pipeline")

	configPath := "config.toml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(logger, configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.SetLevel(logger, os.Getenv("LOG_LEVEL"))

	ctx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	pool, err := dbpool.New(ctx, cfg.DBConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	conn, err := grpc.NewClient(
		cfg.TransactionStreamConfig.IndexerGRPCAddress,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.UseCompressor(upstreamrpc.ZstdName)),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to dial upstream transaction stream")
	}
	defer conn.Close()
	rawDataClient := upstreamrpc.NewRawDataClient(conn)

	publisher, err := natspub.NewPublisher(
		os.Getenv("NATS_URL"),
		24*time.Hour,
		"POLYMARKET",
		logger,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create nats publisher")
	}
	defer publisher.Close()

	gapTracker, err := tracker.New[[]models.Event](pool, cfg, cfg.TransactionStreamConfig.StartingVersion, *logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to construct tracker")
	}

	source := streamclient.New(
		rawDataClient,
		cfg.TransactionStreamConfig.StartingVersion,
		cfg.TransactionStreamConfig.RequestEndingVersion,
		cfg.TransactionStreamConfig.TransactionsCount,
		*logger,
	)
	decode := polymarket.NewDecodeStep(*logger)
	publish := polymarket.NewPublishStep(publisher, *logger)
	logMonitoredAddresses(logger, cfg.ChainScopeConfig)

	sourceToDecode := pipeline.NewEdge[[]stream.Transaction](pipeline.DefaultChannelCapacity)
	decodeToPublish := pipeline.NewEdge[[]models.Event](pipeline.DefaultChannelCapacity)
	publishToTracker := pipeline.NewEdge[[]models.Event](pipeline.DefaultChannelCapacity)

	p := pipeline.New(ctx)
	pipeline.Spawn(p, &pipeline.Runner[stream.Void, []stream.Transaction]{
		Step: source, Out: sourceToDecode, Logger: *logger,
	})
	pipeline.Spawn(p, &pipeline.Runner[[]stream.Transaction, []models.Event]{
		Step: decode, In: sourceToDecode, Out: decodeToPublish, Logger: *logger,
	})
	pipeline.Spawn(p, &pipeline.Runner[[]models.Event, []models.Event]{
		Step: publish, In: decodeToPublish, Out: publishToTracker, Logger: *logger,
	})
	pipeline.Spawn(p, &pipeline.Runner[[]models.Event, []models.Event]{
		Step: gapTracker, In: publishToTracker, Logger: *logger,
	})

	metricsServer := &http.Server{Addr: envOr("METRICS_ADDRESS", ":9090"), Handler: promhttp.Handler()}
	go func() {
		logger.Info().Str("address", metricsServer.Addr).Msg("starting metrics server")
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()

	healthServer := &http.Server{
		Addr:    envOr("HEALTH_ADDRESS", ":9091"),
		Handler: http.HandlerFunc(healthCheckHandler(gapTracker, publisher)),
	}
	go func() {
		logger.Info().Str("address", healthServer.Addr).Msg("starting health check server")
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("health check server error")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	if err := p.Wait(); err != nil {
		logger.Error().Err(err).Msg("pipeline exited with error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("metrics server shutdown error")
	}
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("health server shutdown error")
	}

	logger.Info().Msg("shutdown complete")
}

func healthCheckHandler(t *tracker.GapTracker[[]models.Event], pub *natspub.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !pub.Healthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintln(w, "unhealthy: nats disconnected")
			return
		}
		last, ok := t.LastSuccessVersion()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "healthy\nnext_version: %d\nlast_success_version_known: %v\nlast_success_version: %d\n",
			t.NextVersion(), ok, last)
	}
}

// logMonitoredAddresses resolves the decode step's contract scope from an
// optional chains.json-style file and logs it. It's informational only:
// decoding itself is keyed off event signatures, not the sender address, so
// a missing or unresolvable chain scope just means nothing gets logged.
func logMonitoredAddresses(logger *zerolog.Logger, scope *config.ChainScopeConfig) {
	if scope == nil {
		return
	}

	chains, err := chainscope.LoadConfig(scope.ConfigPath)
	if err != nil {
		logger.Warn().Err(err).Str("path", scope.ConfigPath).Msg("failed to load chain scope config")
		return
	}
	chain, err := chains.GetChain(scope.ChainName)
	if err != nil {
		logger.Warn().Err(err).Str("chain", scope.ChainName).Msg("chain scope not found")
		return
	}

	addresses, err := polymarket.Monitored(chain.GetAllContractAddressStrings())
	if err != nil {
		logger.Warn().Err(err).Msg("invalid contract address in chain scope config")
		return
	}
	logger.Info().Str("chain", scope.ChainName).Any("contracts", addresses).Msg("decoding scoped to chain contracts")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
