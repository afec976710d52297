// Package config loads the indexer's configuration surface from a TOML
// file with environment variable overrides, decoding into the
// strongly-typed structs the rest of the framework consumes.
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
)

// ProcessorConfig names the pipeline's processor; it's the tracker name in
// live mode.
type ProcessorConfig struct {
	Name string `koanf:"name"`
}

// BackfillConfig is present only when the pipeline is running a bounded
// re-run. Its presence (not its contents) selects backfill mode.
type BackfillConfig struct {
	BackfillAlias string `koanf:"backfill_alias"`
}

// TransactionStreamConfig configures the upstream gRPC source.
type TransactionStreamConfig struct {
	IndexerGRPCAddress   string  `koanf:"indexer_grpc_address"`
	StartingVersion      uint64  `koanf:"starting_version"`
	RequestEndingVersion *uint64 `koanf:"request_ending_version"`
	TransactionsCount    *uint64 `koanf:"transactions_count"`
}

// DBConfig configures the shared Postgres connection pool.
type DBConfig struct {
	PostgresConnectionString string `koanf:"postgres_connection_string"`
	DBPoolSize               uint32 `koanf:"db_pool_size"`
}

// ChainScopeConfig points at a chains.json-style file of per-network
// contract addresses and names which entry applies to this run. It's
// optional: a deployment that doesn't need to scope decoding to a specific
// contract set can omit it entirely.
type ChainScopeConfig struct {
	ConfigPath string `koanf:"config_path"`
	ChainName  string `koanf:"chain_name"`
}

// IndexerProcessorConfig is the full configuration surface the indexer
// binary reads at startup.
type IndexerProcessorConfig struct {
	ProcessorConfig         ProcessorConfig         `koanf:"processor_config"`
	BackfillConfig          *BackfillConfig         `koanf:"backfill_config"`
	TransactionStreamConfig TransactionStreamConfig `koanf:"transaction_stream_config"`
	DBConfig                DBConfig                `koanf:"db_config"`
	ChainScopeConfig        *ChainScopeConfig       `koanf:"chain_scope_config"`
}

// Load reads path (TOML) and overlays environment variables: an env var
// name lowercased with every underscore replaced by a dot addresses the
// matching nested key, e.g. FOO_BAR overrides foo.bar. Keys whose own
// names contain underscores (such as transaction_stream_config.starting_version)
// are not reachable this way.
func Load(logger *zerolog.Logger, path string) (*IndexerProcessorConfig, error) {
	ko := koanf.New(".")

	if err := ko.Load(file.Provider(path), toml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
	}

	if err := ko.Load(env.Provider("", ".", func(s string) string {
		return strings.Replace(strings.ToLower(s), "_", ".", -1)
	}), nil); err != nil {
		logger.Warn().Err(err).Msg("failed to load environment variable overrides")
	}

	var cfg IndexerProcessorConfig
	if err := ko.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
